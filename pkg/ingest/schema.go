package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/cdr"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/errors"
)

// CUCM export column names. Headers are matched case-insensitively.
const (
	colRecordType           = "cdrRecordType"
	colSwitchID             = "globalCallID_callManagerId"
	colCallID               = "globalCallID_callId"
	colOrigination          = "dateTimeOrigination"
	colOrigAddress          = "origIpv4v6Addr"
	colDestAddress          = "destIpv4v6Addr"
	colCallingNumber        = "callingPartyNumber"
	colOriginalCalledNumber = "originalCalledPartyNumber"
	colFinalCalledNumber    = "finalCalledPartyNumber"
	colOrigCause            = "origCause_value"
	colDestCause            = "destCause_value"
	colOrigDevice           = "origDeviceName"
	colDestDevice           = "destDeviceName"
	colDuration             = "duration"
	colTimeStamp            = "dateTimeStamp"
	colDeviceName           = "deviceName"
	colVQMetrics            = "varVQMetrics"
)

// schema is the set of columns a file must carry to be read as one kind.
type schema struct {
	kind    cdr.Kind
	columns []string
}

var cdrSchema = schema{
	kind: cdr.KindCall,
	columns: []string{
		colRecordType, colSwitchID, colCallID, colOrigination,
		colOrigAddress, colDestAddress, colCallingNumber,
		colOriginalCalledNumber, colFinalCalledNumber,
		colOrigCause, colDestCause, colOrigDevice, colDestDevice, colDuration,
	},
}

var cmrSchema = schema{
	kind: cdr.KindQuality,
	columns: []string{
		colRecordType, colSwitchID, colCallID, colTimeStamp,
		colDeviceName, colVQMetrics, colDuration,
	},
}

// columnIndex maps a column name to its position in the row.
type columnIndex map[string]int

// locate finds the schema columns in a header row and lists the absent ones.
// When a header repeats, the last occurrence wins.
func (s schema) locate(header []string) (columnIndex, []string) {
	byLower := make(map[string]int, len(header))
	for i, h := range header {
		byLower[strings.ToLower(strings.TrimSpace(h))] = i
	}

	cols := make(columnIndex, len(s.columns))
	var missing []string
	for _, name := range s.columns {
		i, ok := byLower[strings.ToLower(name)]
		if !ok {
			missing = append(missing, name)
			continue
		}
		cols[name] = i
	}
	return cols, missing
}

func (c columnIndex) get(row []string, name string) (string, error) {
	i := c[name]
	if i >= len(row) {
		return "", errors.NewMalformedRow(fmt.Sprintf("row has %d fields, column %s missing", len(row), name), map[string]interface{}{
			"column": name,
		})
	}
	return row[i], nil
}

// fields reads several columns, stopping at the first short-row error.
func (c columnIndex) fields(row []string, names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		v, err := c.get(row, name)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// parseEpoch reads a CUCM epoch-seconds timestamp as UTC.
func parseEpoch(column, value string) (time.Time, error) {
	secs, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return time.Time{}, errors.NewMalformedRow(fmt.Sprintf("invalid %s %q", column, value), map[string]interface{}{
			"column": column,
		})
	}
	return time.Unix(secs, 0).UTC(), nil
}

func parseDuration(value string) (time.Duration, error) {
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, errors.NewMalformedRow(fmt.Sprintf("invalid %s %q", colDuration, value), map[string]interface{}{
			"column": colDuration,
		})
	}
	return time.Duration(secs) * time.Second, nil
}

func parseCallRow(row []string, cols columnIndex, window Window) (*cdr.Record, bool, error) {
	f, err := cols.fields(row,
		colSwitchID, colCallID, colOrigination,
		colOrigAddress, colDestAddress, colCallingNumber,
		colOriginalCalledNumber, colFinalCalledNumber,
		colOrigCause, colDestCause, colOrigDevice, colDestDevice, colDuration,
	)
	if err != nil {
		return nil, false, err
	}

	start, err := parseEpoch(colOrigination, f[2])
	if err != nil {
		return nil, false, err
	}
	duration, err := parseDuration(f[12])
	if err != nil {
		return nil, false, err
	}
	if !window.Contains(start) {
		return nil, false, nil
	}

	rec, err := cdr.NewCallRecord(cdr.Header{
		Identity:  cdr.Identity{SwitchID: f[0], CallID: f[1]},
		StartTime: start,
		Duration:  duration,
	}, cdr.CallDetail{
		Endpoints: cdr.Endpoints{
			OrigAddress:          f[3],
			DestAddress:          f[4],
			CallingNumber:        f[5],
			OriginalCalledNumber: f[6],
			FinalCalledNumber:    f[7],
		},
		OrigCause:  f[8],
		DestCause:  f[9],
		OrigDevice: f[10],
		DestDevice: f[11],
	})
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// parseQualityRow checks the window as soon as the timestamp is known, so
// rows outside it are not parsed further.
func parseQualityRow(row []string, cols columnIndex, window Window) (cdr.QualityReport, bool, error) {
	f, err := cols.fields(row, colSwitchID, colCallID, colTimeStamp, colDeviceName, colVQMetrics, colDuration)
	if err != nil {
		return cdr.QualityReport{}, false, err
	}

	stamp, err := parseEpoch(colTimeStamp, f[2])
	if err != nil {
		return cdr.QualityReport{}, false, err
	}
	if !window.Contains(stamp) {
		return cdr.QualityReport{}, false, nil
	}
	duration, err := parseDuration(f[5])
	if err != nil {
		return cdr.QualityReport{}, false, err
	}

	report, err := cdr.NewQualityReport(cdr.Header{
		Identity:  cdr.Identity{SwitchID: f[0], CallID: f[1]},
		StartTime: stamp,
		Duration:  duration,
	}, f[3], f[4])
	if err != nil {
		return cdr.QualityReport{}, false, err
	}
	return report, true, nil
}
