package core

// content.go turns raw export text into a header index plus data rows.
//
// Exports arrive from spreadsheets and marketplace downloads, so the reader
// tolerates the usual artifacts before parsing:
//
//   - UTF-8 BOM at the start of the file (Excel on Windows)
//   - Windows-1252 bytes when the file is not valid UTF-8
//   - Tab or semicolon delimiters instead of commas
//   - Fully blank rows between data rows
//   - Stray quotes inside unquoted cells (inch marks in titles)
//
// Anything the CSV reader still rejects is reported as ErrMalformedContent.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const utf8BOM = "\uFEFF"

// table is a parsed export: cleaned headers, their index, and the non-empty data rows.
type table struct {
	Headers []string
	Index   HeaderIndex
	Rows    [][]string
	Lines   []int // source line of each row, 1-indexed
}

// normalizeContent strips a leading BOM and re-decodes non-UTF-8 input as Windows-1252.
func normalizeContent(content string) (string, error) {
	if !utf8.ValidString(content) {
		decoded, err := charmap.Windows1252.NewDecoder().String(content)
		if err != nil {
			return "", fmt.Errorf("%w: encoding error: %v", ErrMalformedContent, err)
		}
		content = decoded
	}
	return strings.TrimPrefix(content, utf8BOM), nil
}

// sniffDelimiter picks the delimiter that appears most often in the header line.
func sniffDelimiter(content string) rune {
	line := content
	if i := strings.IndexAny(content, "\r\n"); i >= 0 {
		line = content[:i]
	}

	best, bestCount := ',', strings.Count(line, ",")
	for _, d := range []rune{'\t', ';'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// isBlank reports whether content has no non-whitespace characters.
func isBlank(content string) bool {
	return strings.TrimSpace(strings.TrimPrefix(content, utf8BOM)) == ""
}

// parseTable reads content as delimited text. The first row is the header.
// Blank content is an error here; callers that treat it differently check isBlank first.
func parseTable(content string) (*table, error) {
	if isBlank(content) {
		return nil, fmt.Errorf("%w: empty file", ErrMalformedContent)
	}
	if strings.ContainsRune(content, 0) {
		return nil, fmt.Errorf("%w: binary content", ErrMalformedContent)
	}

	content, err := normalizeContent(content)
	if err != nil {
		return nil, err
	}

	t, err := readTable(content, false)
	if errors.Is(err, csv.ErrBareQuote) {
		// A stray quote inside an unquoted cell (15" Monitor) is data, not structure.
		t, err = readTable(content, true)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// readTable runs the CSV reader over normalized content. Reader errors are
// returned unwrapped so the caller can retry leniently.
func readTable(content string, lazyQuotes bool) (*table, error) {
	r := csv.NewReader(strings.NewReader(content))
	r.Comma = sniffDelimiter(content)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = lazyQuotes

	header, err := r.Read()
	if errors.Is(err, csv.ErrBareQuote) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrMalformedContent, err)
	}

	t := &table{
		Headers: make([]string, len(header)),
		Index:   MakeHeaderIndex(header),
	}
	named := 0
	for i, h := range header {
		t.Headers[i] = CleanCell(h)
		if t.Headers[i] != "" {
			named++
		}
	}
	if named == 0 {
		return nil, fmt.Errorf("%w: header row has no column names", ErrMalformedContent)
	}

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, csv.ErrBareQuote) {
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
		}
		if isEmptyRow(row) {
			continue
		}
		line, _ := r.FieldPos(0)
		t.Rows = append(t.Rows, row)
		t.Lines = append(t.Lines, line)
	}

	return t, nil
}

// cell returns the cleaned value at pos, or "" when the row is short.
func (t *table) cell(row []string, pos int) string {
	if pos < 0 || pos >= len(row) {
		return ""
	}
	return CleanCell(row[pos])
}

// rowMap renders a row as header -> value for previews.
func (t *table) rowMap(row []string) map[string]string {
	m := make(map[string]string, len(t.Headers))
	for i, h := range t.Headers {
		if h == "" {
			continue
		}
		m[h] = t.cell(row, i)
	}
	return m
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
