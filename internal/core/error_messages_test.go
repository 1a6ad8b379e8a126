package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "malformed content",
			err:         fmt.Errorf("%w: bare \" in non-quoted field", ErrMalformedContent),
			wantCode:    "FMT001",
			wantMessage: "The file could not be read as a table",
		},
		{
			name:        "empty file wins over malformed content",
			err:         fmt.Errorf("%w: empty file", ErrMalformedContent),
			wantCode:    "FILE005",
			wantMessage: "The uploaded file is empty",
		},
		{
			name:        "job store outage beats connection refused",
			err:         errors.New("put job a: job store unavailable: dial tcp 127.0.0.1:6379: connect: connection refused"),
			wantCode:    "JOB004",
			wantMessage: "Import tracking is temporarily unavailable",
		},
		{
			name:        "unrecognized format",
			err:         &ValidationError{Reason: "format not recognized"},
			wantCode:    "FMT002",
			wantMessage: "The report layout was not recognized",
		},
		{
			name:        "missing columns inside validation error",
			err:         &ValidationError{Reason: "file failed validation", Errors: []string{"missing required columns: title"}},
			wantCode:    "VAL004",
			wantMessage: "Required column is missing from the file",
		},
		{
			name:        "connection refused",
			err:         errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"),
			wantCode:    "DB004",
			wantMessage: "Unable to connect to the listing store",
		},
		{
			name:        "context deadline",
			err:         fmt.Errorf("upsert: %w", context.DeadlineExceeded),
			wantCode:    "REQ002",
			wantMessage: "Request timed out",
		},
		{
			name:        "plain timeout",
			err:         errors.New("i/o timeout"),
			wantCode:    "DB006",
			wantMessage: "Operation timed out",
		},
		{
			name:        "rate limit",
			err:         errors.New("rate limit exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("DUPLICATE KEY value violates"),
			wantCode:    "DB001",
			wantMessage: "A listing with this ID already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(errors.New("duplicate key value violates"))

	expected := "A listing with this ID already exists (Code: DB001). Review the file for duplicate item IDs"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", errors.New("no data rows"), true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := fmt.Errorf("%w: header row has no column names", ErrMalformedContent)
		userErr := NewUserError(techErr)

		if userErr.Error() != "The file could not be read as a table" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, ErrMalformedContent) {
			t.Error("Unwrap() should expose the original error")
		}
	})
}

func TestValidationErrorMessage(t *testing.T) {
	err := error(&ValidationError{Reason: "file failed validation", Errors: []string{"a", "b"}})
	if got, want := err.Error(), "file failed validation: a; b"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !IsValidationError(fmt.Errorf("create job: %w", err)) {
		t.Error("IsValidationError should see through wrapping")
	}
	if IsValidationError(errors.New("other")) {
		t.Error("IsValidationError(other) = true, want false")
	}
}
