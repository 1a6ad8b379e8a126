package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/ListingImport/internal/core"
)

// errInvalid signals a failed check whose details were already printed.
var errInvalid = errors.New("file is not valid")

func parseFormatFlag(raw string) (core.Format, error) {
	if raw == "" {
		return "", nil
	}
	f, ok := core.ParseFormat(raw)
	if !ok {
		return "", fmt.Errorf("unknown format %q (want ACTIVE, SOLD or UNSOLD)", raw)
	}
	return f, nil
}

// resolveFormat returns the forced format, or the detected one.
func resolveFormat(name, content string, forced core.Format) (core.DetectionResult, error) {
	if forced != "" && forced != core.FormatUnknown {
		return core.DetectAs(content, name, forced)
	}
	return core.Detect(content, name)
}

func newDetectCmd(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "detect FILE",
		Short: "Identify which report layout a file matches",
		Long: `Score a file against every known layout and report the best match.
Use - to read from stdin. With --format, only that layout is scored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			forced, err := parseFormatFlag(format)
			if err != nil {
				return err
			}
			name, content, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			res, err := resolveFormat(name, content, forced)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), res)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Format:     %s\n", res.Format)
			fmt.Fprintf(out, "Confidence: %.4f\n", res.Confidence)
			if len(res.Scores) > 0 {
				fmt.Fprintln(out, "\nCandidate scores:")
				formats := make([]string, 0, len(res.Scores))
				for f := range res.Scores {
					formats = append(formats, string(f))
				}
				sort.Strings(formats)
				for _, f := range formats {
					fmt.Fprintf(out, "  %-8s %.4f\n", f, res.Scores[core.Format(f)])
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "score only this format")
	return cmd
}

func newValidateCmd(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a file for structural problems and data-quality warnings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			forced, err := parseFormatFlag(format)
			if err != nil {
				return err
			}
			name, content, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			target := forced
			if target == "" {
				res, err := core.Detect(content, name)
				if err != nil && !errors.Is(err, core.ErrMalformedContent) {
					return err
				}
				target = res.Format
				if target == "" {
					target = core.FormatUnknown
				}
			}

			report := core.Validate(content, target)
			if opts.jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), map[string]any{"format": target, "report": report}); err != nil {
					return err
				}
			} else {
				printReport(cmd, target, report)
			}
			if !report.IsValid {
				return errInvalid
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "validate against this format instead of the detected one")
	return cmd
}

func printReport(cmd *cobra.Command, format core.Format, r core.ValidationReport) {
	out := cmd.OutOrStdout()
	status := "valid"
	if !r.IsValid {
		status = "INVALID"
	}
	fmt.Fprintf(out, "Format:  %s\n", format)
	fmt.Fprintf(out, "Result:  %s\n", status)
	fmt.Fprintf(out, "Rows:    %d\n", r.RowCount)
	fmt.Fprintf(out, "Columns: %d (%s)\n", r.ColumnCount, strings.Join(r.Columns, ", "))
	for _, e := range r.Errors {
		fmt.Fprintf(out, "  error:   %s\n", e)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
}

func newTransformCmd(opts *options) *cobra.Command {
	var (
		format    string
		accountID string
	)

	cmd := &cobra.Command{
		Use:   "transform FILE",
		Short: "Normalize a file into listing records without storing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			forced, err := parseFormatFlag(format)
			if err != nil {
				return err
			}
			name, content, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			det, err := resolveFormat(name, content, forced)
			if err != nil {
				return err
			}
			if det.Format == core.FormatUnknown {
				return fmt.Errorf("format not recognized (best confidence %.2f)", det.Confidence)
			}

			res := core.Transform(content, det.Format, accountID)
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), res)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Format: %s  processed: %d  records: %d  skipped: %d\n\n",
				det.Format, res.ProcessedRows, len(res.Records), res.SkippedRows)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LINE\tITEM ID\tSTATUS\tPRICE\tQTY\tTITLE")
			for _, rec := range res.Records {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
					rec.LineNumber, rec.ExternalID, rec.Status, formatPrice(rec), rec.Quantity, rec.Title)
			}
			tw.Flush()

			for _, e := range res.Errors {
				fmt.Fprintf(out, "  skipped: %s\n", e.Error())
			}
			for _, w := range res.Warnings {
				fmt.Fprintf(out, "  warning: %s\n", w)
			}
			if !res.Success {
				return errors.New("no records produced")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "treat the file as this format")
	cmd.Flags().StringVarP(&accountID, "account", "a", "", "account ID stamped on records")
	return cmd
}

func formatPrice(rec core.NormalizedRecord) string {
	f, err := rec.Price.Float64Value()
	if err != nil || !f.Valid {
		return "-"
	}
	return fmt.Sprintf("%.2f", f.Float64)
}

func newFormatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the known report layouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sigs := core.Signatures()
			if opts.jsonOutput {
				type entry struct {
					Format        core.Format `json:"format"`
					Description   string      `json:"description"`
					Required      []string    `json:"required"`
					Optional      []string    `json:"optional"`
					MinConfidence float64     `json:"min_confidence"`
				}
				out := make([]entry, len(sigs))
				for i, s := range sigs {
					out[i] = entry{s.Format, s.Description, s.Required, s.Optional, s.MinConfidence}
				}
				return printJSON(cmd.OutOrStdout(), out)
			}

			for _, s := range sigs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n    required: %s\n    optional: %s\n",
					s.Format, s.Description, strings.Join(s.Required, ", "), strings.Join(s.Optional, ", "))
			}
			return nil
		},
	}
}
