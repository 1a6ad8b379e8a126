// Package cli provides the listingctl command-line interface.
//
// The analysis commands (detect, validate, transform) work on a local file
// and touch no storage. import runs the full job pipeline, against
// PostgreSQL when a database URL is given and in memory otherwise.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/ListingImport/internal/logging"
)

// Version is set at build time.
var Version = "0.1.0"

// options are the persistent flags shared by every command.
type options struct {
	jsonOutput bool
	logLevel   string
}

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "listingctl",
		Short: "Detect, validate and import seller listing reports",
		Long: `listingctl inspects marketplace listing exports (active, sold and
unsold reports) and imports them as listing records.

Examples:
  listingctl detect active_listings.csv
  listingctl validate --format SOLD sold.csv
  listingctl transform --account acct-1 --json unsold.csv
  listingctl import --account acct-1 active_listings.csv`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Logs go to stderr so command output stays parseable.
			_, err := logging.SetupWriter(cmd.ErrOrStderr(), logging.Options{Level: opts.logLevel})
			return err
		},
	}

	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print JSON output")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(newDetectCmd(opts))
	root.AddCommand(newValidateCmd(opts))
	root.AddCommand(newTransformCmd(opts))
	root.AddCommand(newImportCmd(opts))
	root.AddCommand(newFormatsCmd(opts))
	return root
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// readInput reads path, or stdin when path is "-". The returned name is used
// for filename keyword matching.
func readInput(cmd *cobra.Command, path string) (name, content string, err error) {
	var data []byte
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
		name = ""
	} else {
		data, err = os.ReadFile(path)
		name = filepath.Base(path)
	}
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", path, err)
	}
	return name, string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
