package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Format identifies a known report layout.
type Format string

const (
	FormatActive  Format = "ACTIVE"
	FormatSold    Format = "SOLD"
	FormatUnsold  Format = "UNSOLD"
	FormatUnknown Format = "UNKNOWN"
)

// ParseFormat converts a caller-supplied format name (case-insensitive) to a Format.
// Returns false for empty or unrecognized names.
func ParseFormat(s string) (Format, bool) {
	f := Format(strings.ToUpper(strings.TrimSpace(s)))
	switch f {
	case FormatActive, FormatSold, FormatUnsold, FormatUnknown:
		return f, true
	default:
		return FormatUnknown, false
	}
}

// ListingStatus is the normalized state of an imported listing.
type ListingStatus string

const (
	StatusActive     ListingStatus = "ACTIVE"
	StatusSold       ListingStatus = "SOLD"
	StatusEnded      ListingStatus = "ENDED"
	StatusCancelled  ListingStatus = "CANCELLED"
	StatusOutOfStock ListingStatus = "OUT_OF_STOCK"
)

// DetectionResult is the outcome of matching content against the format catalog.
type DetectionResult struct {
	Format     Format             `json:"format"`
	Confidence float64            `json:"confidence"`
	Scores     map[Format]float64 `json:"scores,omitempty"`
}

// ValidationReport describes structural problems (Errors) and data-quality
// findings (Warnings) for a file checked against a format.
type ValidationReport struct {
	IsValid     bool                `json:"is_valid"`
	Errors      []string            `json:"errors"`
	Warnings    []string            `json:"warnings"`
	RowCount    int                 `json:"row_count"`
	ColumnCount int                 `json:"column_count"`
	Columns     []string            `json:"columns"`
	SampleRows  []map[string]string `json:"sample_rows"`
}

// NormalizedRecord is one imported row, typed and ready for persistence.
type NormalizedRecord struct {
	ExternalID string            `json:"external_id"`
	AccountID  string            `json:"account_id"`
	Title      string            `json:"title"`
	Price      pgtype.Numeric    `json:"price"`
	Quantity   int               `json:"quantity"`
	Status     ListingStatus     `json:"status"`
	StartDate  time.Time         `json:"start_date"`
	EndDate    *time.Time        `json:"end_date,omitempty"`
	SKU        string            `json:"sku,omitempty"`
	LineNumber int               `json:"line_number"`
	Extra      map[string]string `json:"extra_fields,omitempty"`
}

// RowError records why a source row produced no record.
// Line is the 1-indexed line in the source file; 0 means the whole batch.
type RowError struct {
	Line       int    `json:"line"`
	ExternalID string `json:"external_id,omitempty"`
	Reason     string `json:"reason"`
}

func (e RowError) Error() string {
	if e.Line == 0 {
		return e.Reason
	}
	if e.ExternalID != "" {
		return fmt.Sprintf("line %d (item %s): %s", e.Line, e.ExternalID, e.Reason)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// TransformationResult is the output of Transform.
// Success is false only when the format is unsupported or no record was produced.
type TransformationResult struct {
	Success       bool               `json:"success"`
	Records       []NormalizedRecord `json:"records"`
	Errors        []RowError         `json:"errors"`
	Warnings      []string           `json:"warnings"`
	ProcessedRows int                `json:"processed_rows"`
	SkippedRows   int                `json:"skipped_rows"`
}

// HeaderIndex maps column names (lowercase) to their position in the CSV row.
type HeaderIndex map[string]int
