// Package core recognizes, checks, and normalizes marketplace listing reports.
//
// Everything here is a pure function over in-memory file content and the
// embedded format catalog. It can be used by the job manager, HTTP handlers,
// or the CLI without modification.
//
// # Format Catalog
//
// Known layouts are declared in formats.yaml and loaded once at init. Each
// [FormatSignature] lists required and optional columns, light regex checks,
// filename keywords and a minimum confidence:
//
//	- format: UNSOLD
//	  min_confidence: 0.7
//	  required: [item id, title, price, end date]
//	  optional: [end reason, start date, quantity available]
//
// Adding a layout means adding an entry there and a [Format] constant.
//
// # Pipeline
//
//  1. [Detect] scores headers against every signature and picks a [Format]
//  2. [Validate] reports blocking errors and data-quality warnings
//  3. [Transform] turns rows into [NormalizedRecord] values, skipping rows
//     that lack an item ID, a title, or a positive price
//
// Column names are resolved through ordered synonym lists, so "Item Number"
// and "Item ID" both feed the external ID.
//
// # Error Handling
//
// Unreadable input wraps [ErrMalformedContent]. Rejections before a job exists
// are [ValidationError] values. [MapError] turns any of these into a coded
// [UserMessage] for display.
package core
