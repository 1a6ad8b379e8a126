package core

// convert.go provides tolerant cell conversion for marketplace exports.
//
// These functions handle the messy reality of seller reports:
//   - Currency symbols and thousand separators in prices ("$1,299.00", "US $19.99")
//   - Multiple date formats (ISO, US, marketplace timestamps like "Mar-05-24 10:15:00 PST")
//   - Excel formula prefixes (="value") and stray quotes
//
// Conversions report failure with a false/invalid result instead of an error;
// callers decide whether a bad cell skips the row or only warns.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgtype"
)

// MaxTitleLength is the storage limit for listing titles, in characters.
const MaxTitleLength = 255

// numericRegex validates that a string is a plain decimal after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// currencyTokens are stripped from price cells before parsing.
// Longer tokens come first so "US $" is removed before "$".
var currencyTokens = []string{
	"US $", "C $", "AU $", "USD", "CAD", "AUD", "EUR", "GBP",
	"$", "€", "£", "¥",
}

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future
// are moved to the previous century.
var TwoDigitYearPivot = 20

// now is the clock for import timestamps and the two-digit-year pivot.
var now = time.Now

// dateLayouts are tried in order; the first successful parse wins.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"Jan-02-06 15:04:05 MST",
	"Jan-02-06",
}

var twoDigitYearLayouts = []string{"1/2/06", "01/02/06"}

// ParseDecimal converts a price-like cell to pgtype.Numeric.
// Handles currency symbols, thousands separators, and accounting format
// (parentheses for negative). Returns Valid=false for empty or unparseable input.
func ParseDecimal(s string) pgtype.Numeric {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Numeric{Valid: false}
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, tok := range currencyTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return pgtype.Numeric{Valid: false}
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

// IsPositive reports whether n is a valid, finite amount greater than zero.
func IsPositive(n pgtype.Numeric) bool {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
		return false
	}
	return n.Int.Sign() > 0
}

// ParseQuantity parses a non-negative integer count.
// Accepts thousands separators and a trailing ".0" from spreadsheet exports.
func ParseQuantity(s string) (int, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	s = strings.TrimSuffix(s, ".0")
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ParseDate tries each accepted layout in order and returns the first match.
// Two-digit years are resolved with TwoDigitYearPivot.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// TruncateTitle shortens s to at most MaxTitleLength characters without
// splitting a multi-byte rune. The second result reports whether it was cut.
func TruncateTitle(s string) (string, bool) {
	if utf8.RuneCountInString(s) <= MaxTitleLength {
		return s, false
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:MaxTitleLength])), true
}

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
// Keys are lowercased for case-insensitive matching. When a name repeats,
// the first occurrence wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if key == "" {
			continue
		}
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
