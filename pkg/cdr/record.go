package cdr

import (
	"fmt"
	"strings"
	"time"

	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/errors"
)

// Kind discriminates call detail records from call management (quality) records.
// The values match the CUCM cdrRecordType column.
type Kind int

const (
	KindCall    Kind = 1
	KindQuality Kind = 2
)

// String returns the short report name of the kind
func (k Kind) String() string {
	switch k {
	case KindCall:
		return "CDR"
	case KindQuality:
		return "CMR"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// DateLayout is the calendar date granularity used for per-day counters.
const DateLayout = "2006-01-02"

// Identity is the call correlation key shared by every leg of a call.
type Identity struct {
	SwitchID string // globalCallID_callManagerId
	CallID   string // globalCallID_callId
}

func (id Identity) String() string {
	return id.SwitchID + "/" + id.CallID
}

// Header holds the fields common to both record kinds.
type Header struct {
	Identity
	StartTime time.Time
	Duration  time.Duration
}

func (h Header) validate() error {
	if h.SwitchID == "" {
		return errors.NewMissingField("switch_id")
	}
	if h.CallID == "" {
		return errors.NewMissingField("call_id")
	}
	if h.StartTime.IsZero() {
		return errors.NewMissingField("start_time")
	}
	if h.Duration < 0 {
		return errors.NewInvalidRecord("negative duration", map[string]interface{}{"call": h.Identity.String()})
	}
	return nil
}

// Endpoints carries the addressing details of a call leg.
type Endpoints struct {
	OrigAddress          string
	DestAddress          string
	CallingNumber        string
	OriginalCalledNumber string
	FinalCalledNumber    string
}

// CallDetail is the payload of a CDR.
type CallDetail struct {
	Endpoints
	OrigCause  string
	DestCause  string
	OrigDevice string
	DestDevice string
}

// QualityDetail is the payload of a correlated CMR.
type QualityDetail struct {
	Endpoints
	OrigDevice  string
	DestDevice  string
	OrigMetrics string
	DestMetrics string
}

// Record is a CDR or a correlated CMR. Exactly one of the payloads is set and
// neither changes after construction.
type Record struct {
	Header
	call    *CallDetail
	quality *QualityDetail
}

// NewCallRecord builds an immutable CDR.
func NewCallRecord(h Header, d CallDetail) (*Record, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}
	h.StartTime = h.StartTime.UTC()
	detail := d
	return &Record{Header: h, call: &detail}, nil
}

// NewQualityRecord builds a correlated CMR. At least one device and at least
// one metrics blob must be populated.
func NewQualityRecord(h Header, d QualityDetail) (*Record, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}
	if d.OrigDevice == "" && d.DestDevice == "" {
		return nil, errors.NewMissingField("orig_device|dest_device", map[string]interface{}{"call": h.Identity.String()})
	}
	if d.OrigMetrics == "" && d.DestMetrics == "" {
		return nil, errors.NewMissingField("orig_quality_metrics|dest_quality_metrics", map[string]interface{}{"call": h.Identity.String()})
	}
	h.StartTime = h.StartTime.UTC()
	detail := d
	return &Record{Header: h, quality: &detail}, nil
}

// Kind reports which payload the record carries
func (r *Record) Kind() Kind {
	if r.quality != nil {
		return KindQuality
	}
	return KindCall
}

// Call returns the CDR payload.
func (r *Record) Call() (CallDetail, bool) {
	if r.call == nil {
		return CallDetail{}, false
	}
	return *r.call, true
}

// Quality returns the CMR payload.
func (r *Record) Quality() (QualityDetail, bool) {
	if r.quality == nil {
		return QualityDetail{}, false
	}
	return *r.quality, true
}

// OrigDevice returns the originating device name of either kind
func (r *Record) OrigDevice() string {
	if r.quality != nil {
		return r.quality.OrigDevice
	}
	return r.call.OrigDevice
}

// DestDevice returns the destination device name of either kind
func (r *Record) DestDevice() string {
	if r.quality != nil {
		return r.quality.DestDevice
	}
	return r.call.DestDevice
}

// Endpoints returns the addressing details of either kind
func (r *Record) Endpoints() Endpoints {
	if r.quality != nil {
		return r.quality.Endpoints
	}
	return r.call.Endpoints
}

// Date returns the UTC calendar day the call started on.
func (r *Record) Date() string {
	return r.StartTime.UTC().Format(DateLayout)
}

func (r *Record) String() string {
	ep := r.Endpoints()
	parts := []string{
		fmt.Sprintf("%d", int(r.Kind())),
		r.SwitchID,
		r.CallID,
		r.StartTime.Format("2006-01-02 15:04:05"),
		ep.OrigAddress,
		ep.DestAddress,
		ep.CallingNumber,
		ep.OriginalCalledNumber,
		ep.FinalCalledNumber,
	}
	if r.call != nil {
		parts = append(parts, r.call.OrigCause, r.call.DestCause, r.call.OrigDevice, r.call.DestDevice)
	} else {
		parts = append(parts, r.quality.OrigDevice, r.quality.DestDevice, r.quality.OrigMetrics, r.quality.DestMetrics)
	}
	parts = append(parts, fmt.Sprintf("%d", int(r.Duration/time.Second)))
	return strings.Join(parts, ", ")
}

// QualityReport is a raw CMR row before it has been matched to its call.
type QualityReport struct {
	Header
	DeviceName string
	Metrics    string
}

// NewQualityReport validates a raw CMR row. The device name may be empty; it is
// matched against call legs as-is.
func NewQualityReport(h Header, deviceName, metrics string) (QualityReport, error) {
	if err := h.validate(); err != nil {
		return QualityReport{}, err
	}
	h.StartTime = h.StartTime.UTC()
	return QualityReport{Header: h, DeviceName: deviceName, Metrics: metrics}, nil
}
