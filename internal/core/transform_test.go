package core

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func priceOf(t *testing.T, n pgtype.Numeric) float64 {
	t.Helper()
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		t.Fatalf("price not convertible: %v", err)
	}
	return f.Float64
}

func TestTransform_Example(t *testing.T) {
	res := Transform(exampleActive, FormatActive, "acct-1")

	if !res.Success {
		t.Fatalf("Success = false, errors %v", res.Errors)
	}
	if len(res.Records) != 1 {
		t.Fatalf("len(Records) = %d, want 1", len(res.Records))
	}

	rec := res.Records[0]
	if rec.ExternalID != "123456789" || rec.Title != "Widget" {
		t.Errorf("record = %s/%s, want 123456789/Widget", rec.ExternalID, rec.Title)
	}
	if got := priceOf(t, rec.Price); got != 19.99 {
		t.Errorf("Price = %v, want 19.99", got)
	}
	if rec.Quantity != 5 {
		t.Errorf("Quantity = %d, want 5", rec.Quantity)
	}
	if rec.Status != StatusActive {
		t.Errorf("Status = %s, want ACTIVE", rec.Status)
	}
	if rec.AccountID != "acct-1" || rec.LineNumber != 2 {
		t.Errorf("AccountID/LineNumber = %s/%d, want acct-1/2", rec.AccountID, rec.LineNumber)
	}

	if res.ProcessedRows != 2 || res.SkippedRows != 1 {
		t.Errorf("ProcessedRows/SkippedRows = %d/%d, want 2/1", res.ProcessedRows, res.SkippedRows)
	}
	if len(res.Errors) != 1 || res.Errors[0].Line != 3 || res.Errors[0].Reason != "missing item id" {
		t.Errorf("Errors = %+v, want one missing item id on line 3", res.Errors)
	}
}

func TestTransform_SkipDontAbort(t *testing.T) {
	tests := []struct {
		name string
		n, k int
	}{
		{"no bad rows", 5, 0},
		{"some bad rows", 10, 3},
		{"all bad rows", 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			b.WriteString("Item ID,Title,Price\n")
			for i := 0; i < tt.n; i++ {
				switch {
				case i >= tt.k:
					fmt.Fprintf(&b, "%d,Item %d,5.00\n", 1000+i, i)
				case i%2 == 0:
					fmt.Fprintf(&b, ",Item %d,5.00\n", i)
				default:
					fmt.Fprintf(&b, "%d,,5.00\n", 1000+i)
				}
			}

			res := Transform(b.String(), FormatActive, "acct")
			if len(res.Records) != tt.n-tt.k {
				t.Errorf("len(Records) = %d, want %d", len(res.Records), tt.n-tt.k)
			}
			if len(res.Errors) != tt.k || res.SkippedRows != tt.k {
				t.Errorf("errors/skipped = %d/%d, want %d", len(res.Errors), res.SkippedRows, tt.k)
			}
			if want := tt.n-tt.k > 0; res.Success != want {
				t.Errorf("Success = %v, want %v", res.Success, want)
			}
		})
	}
}

func TestTransform_InvalidPrice(t *testing.T) {
	content := "Item ID,Title,Price\n1,Free,0\n2,Negative,-3\n3,Words,call me\n4,Blank,\n5,Good,$1.50\n"

	res := Transform(content, FormatActive, "acct")
	if len(res.Records) != 1 || res.Records[0].ExternalID != "5" {
		t.Fatalf("Records = %+v, want only item 5", res.Records)
	}
	wantReasons := []string{`invalid price "0"`, `invalid price "-3"`, `invalid price "call me"`, "missing price"}
	for i, want := range wantReasons {
		if res.Errors[i].Reason != want {
			t.Errorf("Errors[%d].Reason = %q, want %q", i, res.Errors[i].Reason, want)
		}
	}
}

func TestTransform_Sold(t *testing.T) {
	content := "Item ID,Title,Sold Price,Sale Date,Buyer Username\n" +
		"77,Lamp,\"$1,250.00\",Mar-05-24 10:15:00 PST,bob\n"

	res := Transform(content, FormatSold, "acct")
	if len(res.Records) != 1 {
		t.Fatalf("len(Records) = %d, errors %v", len(res.Records), res.Errors)
	}
	rec := res.Records[0]
	if rec.Status != StatusSold {
		t.Errorf("Status = %s, want SOLD", rec.Status)
	}
	if rec.Quantity != 0 {
		t.Errorf("Quantity = %d, want default 0", rec.Quantity)
	}
	if got := priceOf(t, rec.Price); got != 1250 {
		t.Errorf("Price = %v, want 1250", got)
	}
	if rec.EndDate == nil || rec.EndDate.Day() != 5 || rec.EndDate.Month() != time.March {
		t.Errorf("EndDate = %v, want Mar 5", rec.EndDate)
	}
	if rec.Extra["buyer username"] != "bob" {
		t.Errorf("Extra = %v, want buyer username", rec.Extra)
	}
}

func TestTransform_SoldQuantityIsNotStock(t *testing.T) {
	content := "Item ID,Title,Sold Price,Sale Date,Quantity Sold,Quantity\n" +
		"77,Lamp,$25.00,2024-03-05,3,3\n"

	res := Transform(content, FormatSold, "acct")
	if len(res.Records) != 1 {
		t.Fatalf("len(Records) = %d, errors %v", len(res.Records), res.Errors)
	}
	rec := res.Records[0]
	if rec.Quantity != 0 {
		t.Errorf("Quantity = %d, want 0 for a sold listing", rec.Quantity)
	}
	if rec.Extra["quantity sold"] != "3" {
		t.Errorf("Extra = %v, want quantity sold kept", rec.Extra)
	}
}

func TestTransform_InchMarkInTitle(t *testing.T) {
	content := "Item ID,Title,Price\n1,15\" Monitor,$10\n2,Lamp,$5\n"

	res := Transform(content, FormatActive, "acct")
	if !res.Success || len(res.Records) != 2 {
		t.Fatalf("Success = %v, len(Records) = %d, errors %v", res.Success, len(res.Records), res.Errors)
	}
	if got := res.Records[0].Title; got != `15" Monitor` {
		t.Errorf("Title = %q, want %q", got, `15" Monitor`)
	}
}

func TestTransform_UnsoldStatus(t *testing.T) {
	content := "Item ID,Title,Price,End Date,End Reason\n" +
		"1,A,5,2024-01-01,Sold via best offer\n" +
		"2,B,5,2024-01-01,Buyer purchased item\n" +
		"3,C,5,2024-01-01,Seller cancelled listing\n" +
		"4,D,5,2024-01-01,Out of stock\n" +
		"5,E,5,2024-01-01,Duration ended\n" +
		"6,F,5,2024-01-01,\n"

	res := Transform(content, FormatUnsold, "acct")
	want := []ListingStatus{StatusSold, StatusSold, StatusCancelled, StatusOutOfStock, StatusEnded, StatusEnded}
	if len(res.Records) != len(want) {
		t.Fatalf("len(Records) = %d, want %d", len(res.Records), len(want))
	}
	for i, rec := range res.Records {
		if rec.Status != want[i] {
			t.Errorf("record %s Status = %s, want %s", rec.ExternalID, rec.Status, want[i])
		}
		if rec.Quantity != 0 {
			t.Errorf("record %s Quantity = %d, want 0", rec.ExternalID, rec.Quantity)
		}
	}
}

func TestStatusFromText(t *testing.T) {
	tests := []struct {
		in   string
		want ListingStatus
	}{
		{"", StatusActive},
		{"Active", StatusActive},
		{"Pending", StatusActive},
		{"Ended", StatusEnded},
		{"Inactive", StatusEnded},
		{"Out of Stock", StatusOutOfStock},
		{"Sold", StatusSold},
		{"Cancelled", StatusCancelled},
		{"Unsold", StatusEnded},
		{"Not Sold", StatusEnded},
		{"not-sold", StatusEnded},
	}

	for _, tt := range tests {
		if got := statusFromText(tt.in); got != tt.want {
			t.Errorf("statusFromText(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestTransform_QuantityAndSynonyms(t *testing.T) {
	content := "Item Number,Item Title,Current Price,Quantity,Custom Label\n" +
		"10,Synonym Widget,4.00,n/a,SKU-10\n" +
		"11,Counted Widget,4.00,7,SKU-11\n"

	res := Transform(content, FormatActive, "acct")
	if len(res.Records) != 2 {
		t.Fatalf("len(Records) = %d, errors %v", len(res.Records), res.Errors)
	}
	if q := res.Records[0].Quantity; q != 1 {
		t.Errorf("invalid quantity fell back to %d, want 1", q)
	}
	if q := res.Records[1].Quantity; q != 7 {
		t.Errorf("Quantity = %d, want 7", q)
	}
	if res.Records[0].SKU != "SKU-10" || res.Records[0].Title != "Synonym Widget" {
		t.Errorf("record = %+v", res.Records[0])
	}
}

func TestTransform_Defaults(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	origNow := now
	now = func() time.Time { return fixed }
	defer func() { now = origNow }()

	long := strings.Repeat("x", MaxTitleLength+10)
	content := "Item ID,Title,Price,Start Date,Watchers\n" +
		"1," + long + ",5,,12\n" +
		"2,Dated,5,2024-01-15,\n"

	res := Transform(content, FormatActive, "acct")
	if len(res.Records) != 2 {
		t.Fatalf("len(Records) = %d, errors %v", len(res.Records), res.Errors)
	}

	first, second := res.Records[0], res.Records[1]
	if len([]rune(first.Title)) != MaxTitleLength {
		t.Errorf("title length = %d, want %d", len([]rune(first.Title)), MaxTitleLength)
	}
	if !first.StartDate.Equal(fixed) {
		t.Errorf("StartDate = %v, want import time %v", first.StartDate, fixed)
	}
	if second.StartDate.Day() != 15 {
		t.Errorf("StartDate = %v, want Jan 15", second.StartDate)
	}
	if first.Extra["watchers"] != "12" || second.Extra != nil {
		t.Errorf("Extra = %v / %v, want watchers only on first", first.Extra, second.Extra)
	}
	if !containsWarning(res.Warnings, "1 titles truncated") || !containsWarning(res.Warnings, "1 rows had no valid start date") {
		t.Errorf("Warnings = %q", res.Warnings)
	}
}

func TestTransform_Unsupported(t *testing.T) {
	tests := []struct {
		name    string
		content string
		format  Format
	}{
		{"unknown format", exampleActive, FormatUnknown},
		{"no rows", "Item ID,Title,Price\n", FormatActive},
		{"malformed", "", FormatActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Transform(tt.content, tt.format, "acct")
			if res.Success {
				t.Error("Success = true, want false")
			}
			if len(res.Errors) != 1 || res.Errors[0].Line != 0 {
				t.Errorf("Errors = %+v, want one batch-level error", res.Errors)
			}
		})
	}
}
