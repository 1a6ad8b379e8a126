// Package core error codes.
//
// Technical errors are mapped to short user messages carrying a code that
// users can quote to support. Codes are grouped by prefix:
//
//	FMT  - format detection (FMT001 unreadable file, FMT002 unrecognized format,
//	       FMT003 file does not match the requested format)
//	VAL  - validation (VAL002 invalid number, VAL004 missing required column,
//	       VAL007 no data rows)
//	FILE - upload handling (FILE001 too large, FILE003 encoding, FILE004 no file,
//	       FILE005 empty file)
//	ACC  - accounts (ACC001 account not found)
//	JOB  - job manager (JOB001 not found, JOB002 invalid state, JOB003 queue full,
//	       JOB004 job store unavailable)
//	DB   - listing store (DB001 duplicate, DB004 unavailable, DB005 reset, DB006 timeout)
//	REQ  - request lifecycle (REQ001 cancelled, REQ002 timed out,
//	       REQ003 invalid request)
//	RATE - throttling
//	ERR000 - fallback; check the logs for the original error.
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns precede general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// File handling
	{"empty file", UserMessage{"The uploaded file is empty", "Upload a report that has a header row and data rows", "FILE005"}},
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the report into smaller files", "FILE001"}},
	{"encoding error", UserMessage{"File contains invalid characters", "Save the report as UTF-8", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Choose a report file to import", "FILE004"}},

	// Format detection
	{"does not match requested format", UserMessage{"The file does not match the requested format", "Pick a different format or let it be detected automatically", "FMT003"}},
	{"format not recognized", UserMessage{"The report layout was not recognized", "Export the report again without renaming or removing columns", "FMT002"}},
	{"malformed content", UserMessage{"The file could not be read as a table", "Ensure the file is a comma, tab, or semicolon separated export", "FMT001"}},

	// Validation
	{"missing required column", UserMessage{"Required column is missing from the file", "Check that all required columns are present", "VAL004"}},
	{"no data rows", UserMessage{"The file has a header but no data rows", "Upload a report that contains listings", "VAL007"}},
	{"invalid numeric", UserMessage{"Invalid number format detected", "Use plain decimal prices such as 19.99", "VAL002"}},

	// Accounts and jobs
	{"account not found", UserMessage{"The selected account does not exist", "Choose an existing account", "ACC001"}},
	{"job not found", UserMessage{"Import job not found", "The job may have been cleaned up. Start a new import", "JOB001"}},
	{"invalid job state", UserMessage{"The job can no longer be changed", "Refresh to see the job's current status", "JOB002"}},
	{"queue is full", UserMessage{"Too many imports are waiting", "Please wait a moment and try again", "JOB003"}},
	{"job store unavailable", UserMessage{"Import tracking is temporarily unavailable", "Please try again in a few moments", "JOB004"}},

	// Listing store
	{"duplicate key", UserMessage{"A listing with this ID already exists", "Review the file for duplicate item IDs", "DB001"}},
	{"unavailable", UserMessage{"The listing store is unavailable", "Please try again in a few moments", "DB004"}},
	{"connection refused", UserMessage{"Unable to connect to the listing store", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Connection to the listing store was interrupted", "Please try again", "DB005"}},

	// Request lifecycle. These precede "timeout" so deadline errors keep their own code.
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "REQ001"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or check your connection", "REQ002"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}},

	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
	{"invalid request", UserMessage{"Invalid request", "Check the request parameters and try again", "REQ003"}},
}

// defaultMessage is the ERR000 fallback.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns the ERR000 fallback when nothing matches, and a zero value for nil.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error (for logs) with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
