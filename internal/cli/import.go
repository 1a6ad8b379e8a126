package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/ListingImport/internal/jobs"
	"github.com/JonMunkholm/ListingImport/internal/listing"
)

// store is what import needs from a listing backend.
type store interface {
	listing.AccountLookup
	listing.Repository
}

func newImportCmd(opts *options) *cobra.Command {
	var (
		format      string
		accountID   string
		databaseURL string
		batchSize   int
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Run a file through the import pipeline",
		Long: `Validate a file, queue it as an import job and wait for the result.

With --database-url (or DATABASE_URL) listings are upserted into PostgreSQL.
Without it the import runs against an in-memory store as a dry run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			forced, err := parseFormatFlag(format)
			if err != nil {
				return err
			}
			if accountID == "" {
				return errors.New("--account is required")
			}
			name, content, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			backend, closeFn, err := openStore(ctx, databaseURL, accountID)
			if err != nil {
				return err
			}
			defer closeFn()

			job, err := runImport(ctx, backend, jobs.Config{MaxConcurrentJobs: 1, BatchSize: batchSize}, jobs.CreateJobRequest{
				AccountID:  accountID,
				Filename:   name,
				Content:    content,
				FormatHint: forced,
			})
			if err != nil {
				return err
			}
			job.Content = ""

			if opts.jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), job); err != nil {
					return err
				}
			} else {
				printJob(cmd, job, databaseURL == "")
			}
			if job.Status != jobs.StatusCompleted {
				return fmt.Errorf("import %s: %s", job.Status, job.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "require this format instead of detecting")
	cmd.Flags().StringVarP(&accountID, "account", "a", "", "account ID to import into (required)")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	cmd.Flags().IntVar(&batchSize, "batch-size", jobs.DefaultBatchSize, "records per batch")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 = no limit)")
	return cmd
}

// openStore connects to PostgreSQL, or returns an in-memory store holding
// just accountID when url is empty.
func openStore(ctx context.Context, url, accountID string) (store, func(), error) {
	if url == "" {
		mem := listing.NewMemoryStore()
		mem.AddAccount(accountID, "dry run")
		return mem, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	pg := listing.NewPostgresStore(pool)
	if err := pg.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	return pg, pool.Close, nil
}

// runImport submits one job and polls until it reaches a terminal state.
// If ctx ends first the job is cancelled.
func runImport(ctx context.Context, backend store, cfg jobs.Config, req jobs.CreateJobRequest) (jobs.ImportJob, error) {
	m := jobs.NewManager(jobs.NewMemoryStore(), backend, backend, cfg)

	runCtx, stopRun := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRun()
	go m.Run(runCtx)

	id, err := m.CreateJob(ctx, req)
	if err != nil {
		return jobs.ImportJob{}, err
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := m.GetJobStatus(context.WithoutCancel(ctx), id)
		if err != nil {
			return jobs.ImportJob{}, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			job, err := m.CancelJob(context.WithoutCancel(ctx), id)
			if err != nil && !errors.Is(err, jobs.ErrInvalidState) {
				return jobs.ImportJob{}, err
			}
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = m.Wait(drainCtx)
			return job, nil
		case <-ticker.C:
		}
	}
}

func printJob(cmd *cobra.Command, job jobs.ImportJob, dryRun bool) {
	out := cmd.OutOrStdout()
	mode := "postgres"
	if dryRun {
		mode = "dry run (in memory)"
	}
	fmt.Fprintf(out, "Job:        %s\n", job.ID)
	fmt.Fprintf(out, "Mode:       %s\n", mode)
	fmt.Fprintf(out, "Format:     %s (confidence %.2f)\n", job.DetectedFormat, job.Confidence)
	fmt.Fprintf(out, "Status:     %s\n", job.Status)

	r := job.Result
	if r == nil {
		return
	}
	fmt.Fprintf(out, "Created:    %d\n", r.CreatedCount)
	fmt.Fprintf(out, "Updated:    %d\n", r.UpdatedCount)
	fmt.Fprintf(out, "Skipped:    %d\n", r.SkippedCount)
	fmt.Fprintf(out, "Errors:     %d\n", r.ErrorCount)
	fmt.Fprintf(out, "Duration:   %.2fs\n", r.ProcessingTimeSeconds)
	for _, e := range r.Errors {
		fmt.Fprintf(out, "  error:   %s\n", e)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
}
