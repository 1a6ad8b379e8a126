package core

import (
	"fmt"
	"strings"
)

const (
	// SampleRowCount is the number of data rows returned for preview.
	SampleRowCount = 3

	// MissingDataThreshold is the empty-cell ratio above which a key column is warned.
	MissingDataThreshold = 0.10

	// maxListedValues bounds how many offending values a warning names.
	maxListedValues = 5
)

// Validate checks content against format. Structural problems (empty input,
// unreadable content, missing required columns, no data rows) make the report
// invalid; data-quality findings are warnings only.
func Validate(content string, format Format) ValidationReport {
	report := ValidationReport{
		IsValid:    true,
		Errors:     []string{},
		Warnings:   []string{},
		Columns:    []string{},
		SampleRows: []map[string]string{},
	}

	if isBlank(content) {
		report.fail("empty file")
		return report
	}

	t, err := parseTable(content)
	if err != nil {
		report.fail(err.Error())
		return report
	}

	report.Columns = t.Headers
	report.ColumnCount = len(t.Headers)
	report.RowCount = len(t.Rows)
	for i := 0; i < len(t.Rows) && i < SampleRowCount; i++ {
		report.SampleRows = append(report.SampleRows, t.rowMap(t.Rows[i]))
	}

	sig, known := SignatureFor(format)
	if !known {
		report.warn("format not recognized: only basic validation was performed")
	}

	if known {
		var missing []string
		for _, col := range sig.Required {
			if _, ok := t.Index[col]; !ok {
				missing = append(missing, col)
			}
		}
		if len(missing) > 0 {
			report.fail(fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")))
		}
	}

	if report.RowCount == 0 {
		report.fail("no data rows")
	}
	if !report.IsValid {
		return report
	}

	checkRaggedRows(&report, t)
	if !known {
		return report
	}

	checkDuplicates(&report, t, sig)
	checkMissingData(&report, t, sig)
	checkPrices(&report, t, sig)
	checkPatterns(&report, t, sig)

	return report
}

func (r *ValidationReport) fail(msg string) {
	r.IsValid = false
	r.Errors = append(r.Errors, msg)
}

func (r *ValidationReport) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

func checkRaggedRows(r *ValidationReport, t *table) {
	var lines []int
	for i, row := range t.Rows {
		if len(row) != len(t.Headers) {
			lines = append(lines, t.Lines[i])
		}
	}
	if len(lines) > 0 {
		r.warn(fmt.Sprintf("%d rows have a column count different from the header (lines %s)",
			len(lines), listInts(lines)))
	}
}

func checkDuplicates(r *ValidationReport, t *table, sig FormatSignature) {
	pos, ok := t.Index[sig.IDColumn]
	if !ok {
		return
	}

	counts := make(map[string]int)
	var order []string
	for _, row := range t.Rows {
		id := t.cell(row, pos)
		if id == "" {
			continue
		}
		counts[id]++
		if counts[id] == 2 {
			order = append(order, id)
		}
	}
	if len(order) == 0 {
		return
	}

	shown := order
	if len(shown) > maxListedValues {
		shown = shown[:maxListedValues]
	}
	msg := fmt.Sprintf("duplicate %s values: %s", sig.IDColumn, strings.Join(shown, ", "))
	if len(order) > len(shown) {
		msg += fmt.Sprintf(" (and %d more)", len(order)-len(shown))
	}
	r.warn(msg)
}

func checkMissingData(r *ValidationReport, t *table, sig FormatSignature) {
	total := len(t.Rows)
	for _, col := range sig.Required {
		pos := t.Index[col]
		empty := 0
		for _, row := range t.Rows {
			if t.cell(row, pos) == "" {
				empty++
			}
		}
		ratio := float64(empty) / float64(total)
		if ratio > MissingDataThreshold {
			r.warn(fmt.Sprintf("column %q is empty in %.1f%% of rows", col, ratio*100))
		}
	}
}

func checkPrices(r *ValidationReport, t *table, sig FormatSignature) {
	for _, col := range sig.PriceColumns {
		pos, ok := t.Index[col]
		if !ok {
			continue
		}
		var bad []int
		for i, row := range t.Rows {
			v := t.cell(row, pos)
			if v == "" {
				continue
			}
			if !ParseDecimal(v).Valid {
				bad = append(bad, t.Lines[i])
			}
		}
		if len(bad) > 0 {
			r.warn(fmt.Sprintf("column %q has %d invalid numeric values (lines %s)",
				col, len(bad), listInts(bad)))
		}
	}
}

func checkPatterns(r *ValidationReport, t *table, sig FormatSignature) {
	for _, col := range sig.Required {
		checkPattern(r, t, sig, col)
	}
	for _, col := range sig.Optional {
		checkPattern(r, t, sig, col)
	}
}

func checkPattern(r *ValidationReport, t *table, sig FormatSignature, col string) {
	re, ok := sig.Patterns[col]
	if !ok {
		return
	}
	pos, ok := t.Index[col]
	if !ok {
		return
	}
	mismatches := 0
	for _, row := range t.Rows {
		v := t.cell(row, pos)
		if v != "" && !re.MatchString(v) {
			mismatches++
		}
	}
	if mismatches > 0 {
		r.warn(fmt.Sprintf("column %q has %d values in an unexpected format", col, mismatches))
	}
}

// listInts renders up to maxListedValues numbers, noting how many were left out.
func listInts(values []int) string {
	var b strings.Builder
	for i, v := range values {
		if i == maxListedValues {
			fmt.Fprintf(&b, " and %d more", len(values)-maxListedValues)
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d", v)
	}
	return b.String()
}
