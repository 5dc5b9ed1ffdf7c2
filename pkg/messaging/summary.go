package messaging

import (
	"time"
)

// RunSummary is the message published after each analysis run.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	Producer    string        `json:"producer"`
	GeneratedAt time.Time     `json:"generated_at"`
	WindowStart time.Time     `json:"window_start"`
	WindowEnd   time.Time     `json:"window_end"`
	Kinds       []KindSummary `json:"kinds"`
}

// KindSummary covers the exceptions of one record kind
type KindSummary struct {
	Kind       string        `json:"kind"`
	Records    int           `json:"records"`
	Buckets    int           `json:"buckets"`
	Amber      int           `json:"amber"`
	Red        int           `json:"red"`
	ReportPath string        `json:"report_path,omitempty"`
	TopDevices []DeviceCount `json:"top_devices,omitempty"`
}

// DeviceCount is one entry of the device counter
type DeviceCount struct {
	Device string `json:"device"`
	Count  int    `json:"count"`
}

// Exceptions is the number of amber and red exceptions across kinds
func (s *RunSummary) Exceptions() int {
	total := 0
	for _, k := range s.Kinds {
		total += k.Amber + k.Red
	}
	return total
}
