package core

import (
	"fmt"
	"strings"
	"time"
)

// Transform converts every data row of content into a NormalizedRecord for
// accountID. Rows without an identifier, a title, or a positive price are
// skipped and reported in Errors; they never abort the batch.
func Transform(content string, format Format, accountID string) TransformationResult {
	res := TransformationResult{
		Records:  []NormalizedRecord{},
		Errors:   []RowError{},
		Warnings: []string{},
	}

	if _, ok := SignatureFor(format); !ok {
		res.Errors = append(res.Errors, RowError{Reason: fmt.Sprintf("unsupported format: %s", format)})
		return res
	}

	t, err := parseTable(content)
	if err != nil {
		res.Errors = append(res.Errors, RowError{Reason: err.Error()})
		return res
	}
	if len(t.Rows) == 0 {
		res.Errors = append(res.Errors, RowError{Reason: "no data rows"})
		return res
	}

	cols := resolveColumns(format, t.Index)
	used := cols.mapped()
	importedAt := now().UTC()

	var defaultedStart, badEnd, truncated int
	for i, row := range t.Rows {
		res.ProcessedRows++
		line := t.Lines[i]

		rec, rowErr := buildRecord(t, row, cols, format)
		if rowErr != "" {
			res.SkippedRows++
			res.Errors = append(res.Errors, RowError{Line: line, ExternalID: rec.ExternalID, Reason: rowErr})
			continue
		}

		rec.AccountID = accountID
		rec.LineNumber = line

		if title, cut := TruncateTitle(rec.Title); cut {
			rec.Title = title
			truncated++
		}

		if start, ok := firstDate(t, row, cols[FieldStartDate]); ok {
			rec.StartDate = start
		} else {
			rec.StartDate = importedAt
			defaultedStart++
		}

		if pos := cols.first(FieldEndDate); pos >= 0 && t.cell(row, pos) != "" {
			if end, ok := ParseDate(t.cell(row, pos)); ok {
				rec.EndDate = &end
			} else {
				badEnd++
			}
		}

		rec.Extra = extraFields(t, row, used)
		res.Records = append(res.Records, rec)
	}

	if truncated > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d titles truncated to %d characters", truncated, MaxTitleLength))
	}
	if defaultedStart > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d rows had no valid start date; import time used", defaultedStart))
	}
	if badEnd > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d rows had an unparseable end date", badEnd))
	}

	res.Success = len(res.Records) > 0
	return res
}

// buildRecord extracts required fields, returning a skip reason when the row is unusable.
func buildRecord(t *table, row []string, cols columnMap, format Format) (NormalizedRecord, string) {
	rec := NormalizedRecord{
		ExternalID: firstValue(t, row, cols[FieldExternalID]),
		Title:      firstValue(t, row, cols[FieldTitle]),
		SKU:        firstValue(t, row, cols[FieldSKU]),
	}

	if rec.ExternalID == "" {
		return rec, "missing item id"
	}
	if rec.Title == "" {
		return rec, "missing title"
	}

	raw := firstValue(t, row, cols[FieldPrice])
	if raw == "" {
		return rec, "missing price"
	}
	price := ParseDecimal(raw)
	if !IsPositive(price) {
		return rec, fmt.Sprintf("invalid price %q", raw)
	}
	rec.Price = price

	rec.Quantity = defaultQuantity[format]
	for _, pos := range cols[FieldQuantity] {
		if q, ok := ParseQuantity(t.cell(row, pos)); ok {
			rec.Quantity = q
			break
		}
	}

	rec.Status = mapStatus(format, firstValue(t, row, cols[FieldStatus]), firstValue(t, row, cols[FieldEndReason]))
	return rec, ""
}

// mapStatus derives a listing status. Every row gets one.
func mapStatus(format Format, status, endReason string) ListingStatus {
	switch format {
	case FormatSold:
		return StatusSold
	case FormatUnsold:
		return statusFromEndReason(endReason)
	default:
		return statusFromText(status)
	}
}

// statusFromEndReason applies keyword rules to free-text end reasons.
func statusFromEndReason(reason string) ListingStatus {
	r := strings.ToLower(reason)
	switch {
	case strings.Contains(r, "sold"), strings.Contains(r, "purchased"):
		return StatusSold
	case strings.Contains(r, "cancel"):
		return StatusCancelled
	case strings.Contains(r, "stock"):
		return StatusOutOfStock
	default:
		return StatusEnded
	}
}

func statusFromText(s string) ListingStatus {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return StatusActive
	case strings.Contains(s, "stock"):
		return StatusOutOfStock
	case strings.Contains(s, "unsold"), strings.Contains(s, "not sold"), strings.Contains(s, "not-sold"):
		return StatusEnded
	case strings.Contains(s, "sold"):
		return StatusSold
	case strings.Contains(s, "cancel"):
		return StatusCancelled
	case strings.HasPrefix(s, "end"), strings.Contains(s, "inactive"), strings.Contains(s, "closed"):
		return StatusEnded
	default:
		return StatusActive
	}
}

func firstValue(t *table, row []string, positions []int) string {
	for _, pos := range positions {
		if v := t.cell(row, pos); v != "" {
			return v
		}
	}
	return ""
}

func firstDate(t *table, row []string, positions []int) (time.Time, bool) {
	for _, pos := range positions {
		if d, ok := ParseDate(t.cell(row, pos)); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// extraFields keeps non-empty values of columns no field consumed.
func extraFields(t *table, row []string, used map[int]bool) map[string]string {
	var extra map[string]string
	for i, h := range t.Headers {
		if h == "" || used[i] {
			continue
		}
		v := t.cell(row, i)
		if v == "" {
			continue
		}
		if extra == nil {
			extra = make(map[string]string)
		}
		extra[strings.ToLower(h)] = v
	}
	return extra
}
