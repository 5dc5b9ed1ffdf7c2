package report

import (
	"strings"

	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary    = "Summary"
	sheetExceptions = "Exceptions"
	sheetDevices    = "Devices"
	sheetCauses     = "Causes"
	sheetDates      = "Dates"
)

// WriteXLSX writes the report as a workbook with one sheet per table. Like
// WriteHTML it returns false when there is nothing to report.
func (w *Writer) WriteXLSX(path string, d *Data) (bool, error) {
	if Skip(d) {
		return false, nil
	}
	if d.GeneratedAt.IsZero() {
		d.GeneratedAt = w.now()
	}
	v := buildView(d)

	f := excelize.NewFile()
	defer f.Close()

	styles, err := newWorkbookStyles(f)
	if err != nil {
		return false, errors.Wrap(err, "failed to create workbook styles")
	}

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return false, errors.Wrap(err, "failed to rename sheet")
	}

	steps := []func(*excelize.File, view, workbookStyles) error{
		writeSummarySheet,
		writeExceptionsSheet,
		writeDevicesSheet,
		writeDatesSheet,
	}
	if v.IsCall {
		steps = append(steps, writeCausesSheet)
	}
	for _, step := range steps {
		if err := step(f, v, styles); err != nil {
			return false, errors.Wrap(err, "failed to fill workbook", map[string]interface{}{"kind": v.Kind})
		}
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return false, errors.Wrap(err, "unable to write file "+path, map[string]interface{}{"kind": v.Kind})
	}

	w.logger.WithFields(logrus.Fields{
		"kind": v.Kind,
		"path": path,
	}).Info("Workbook written")
	return true, nil
}

type workbookStyles struct {
	header int
	amber  int
	red    int
}

func newWorkbookStyles(f *excelize.File) (workbookStyles, error) {
	var s workbookStyles
	var err error

	if s.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"EEEEEE"}},
	}); err != nil {
		return s, err
	}
	if s.amber, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FBDCA0"}},
	}); err != nil {
		return s, err
	}
	if s.red, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"F4B6B6"}},
	}); err != nil {
		return s, err
	}
	return s, nil
}

// writeRows writes a header row followed by data rows starting at A1.
func writeRows(f *excelize.File, sheet string, styles workbookStyles, header []interface{}, rows [][]interface{}) error {
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}

	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, styles.header); err != nil {
		return err
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	return f.SetColWidth(sheet, "A", columnName(len(header)), 18)
}

func columnName(n int) string {
	name, _ := excelize.ColumnNumberToName(n)
	return name
}

func writeSummarySheet(f *excelize.File, v view, styles workbookStyles) error {
	rows := [][]interface{}{
		{"Report", v.Title},
		{"Start", v.Start},
		{"End", v.End},
		{"Generated", v.GeneratedAt},
		{"Run ID", v.RunID},
		{"Amber threshold", v.Thresholds.Amber},
		{"Red threshold", v.Thresholds.Red},
		{"Amber exceptions", v.AmberCount},
		{"Red exceptions", v.RedCount},
	}
	if v.IsCall {
		rows = append(rows, []interface{}{"Excluded cause codes", strings.Join(v.Excluded, ", ")})
	} else {
		rows = append(rows,
			[]interface{}{"MoS threshold", v.Quality.MOS},
			[]interface{}{"CCR threshold", v.Quality.CCR},
		)
	}
	return writeRows(f, sheetSummary, styles, []interface{}{"Item", "Value"}, rows)
}

func writeExceptionsSheet(f *excelize.File, v view, styles workbookStyles) error {
	var header []interface{}
	if v.IsCall {
		header = []interface{}{"Exception", "Severity", "Device", "Role", "Cause", "Description", "Date/Time", "Call ID",
			"Calling", "Original called", "Final called", "Orig address", "Dest address", "Orig device", "Dest device",
			"Orig cause", "Dest cause", "Duration (s)"}
	} else {
		header = []interface{}{"Exception", "Severity", "Device", "Role", "Date/Time", "Call ID",
			"Calling", "Original called", "Final called", "Orig address", "Dest address", "Orig device", "Dest device",
			"MoS", "Rating", "CCR", "Duration (s)", "Metrics"}
	}

	var rows [][]interface{}
	var severities []string
	for i, ex := range v.Exceptions {
		for _, r := range ex.Rows {
			callID := r.SwitchID + "/" + r.CallID
			var row []interface{}
			if v.IsCall {
				row = []interface{}{i + 1, ex.Severity, ex.Device, ex.Role, ex.Cause, ex.CauseDescription, r.Time, callID,
					r.Calling, r.OrigCalled, r.FinalCalled, r.OrigAddress, r.DestAddress, r.OrigDevice, r.DestDevice,
					r.OrigCause, r.DestCause, r.Duration}
			} else {
				row = []interface{}{i + 1, ex.Severity, ex.Device, ex.Role, r.Time, callID,
					r.Calling, r.OrigCalled, r.FinalCalled, r.OrigAddress, r.DestAddress, r.OrigDevice, r.DestDevice,
					r.MOS, r.Rating, r.CCR, r.Duration, r.Metrics}
			}
			rows = append(rows, row)
			severities = append(severities, ex.Severity)
		}
	}

	if err := writeRows(f, sheetExceptions, styles, header, rows); err != nil {
		return err
	}

	for i, sev := range severities {
		style := styles.amber
		if sev == "red" {
			style = styles.red
		}
		cell, _ := excelize.CoordinatesToCellName(2, i+2)
		if err := f.SetCellStyle(sheetExceptions, cell, cell, style); err != nil {
			return err
		}
	}
	return f.AutoFilter(sheetExceptions, "A1:"+columnName(len(header))+"1", nil)
}

func writeDevicesSheet(f *excelize.File, v view, styles workbookStyles) error {
	rows := make([][]interface{}, 0, len(v.Devices))
	for _, c := range v.Devices {
		rows = append(rows, []interface{}{c.Name, c.Count})
	}
	return writeRows(f, sheetDevices, styles, []interface{}{"Device", "Count"}, rows)
}

func writeCausesSheet(f *excelize.File, v view, styles workbookStyles) error {
	rows := make([][]interface{}, 0, len(v.Causes))
	for _, c := range v.Causes {
		rows = append(rows, []interface{}{c.Name, c.Description, c.Count})
	}
	return writeRows(f, sheetCauses, styles, []interface{}{"Cause code", "Description", "Count"}, rows)
}

func writeDatesSheet(f *excelize.File, v view, styles workbookStyles) error {
	rows := make([][]interface{}, 0, len(v.Dates))
	for _, c := range v.Dates {
		rows = append(rows, []interface{}{c.Name, c.Count})
	}
	return writeRows(f, sheetDates, styles, []interface{}{"Date", "Count"}, rows)
}
