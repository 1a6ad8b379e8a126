// Package jobs runs listing imports as background jobs.
//
// A Manager validates a file synchronously, registers a PENDING job, and hands
// its ID to a FIFO queue. A single dispatcher goroutine (Run) admits queued
// jobs as execution slots free up, so creation order is admission order and
// at most Config.MaxConcurrentJobs jobs are PROCESSING at once.
//
// Cancellation is cooperative: CancelJob marks the job CANCELLED and the worker
// stops at the next batch boundary. A record already being written finishes,
// but it is not counted in the frozen result.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/ListingImport/internal/core"
	"github.com/JonMunkholm/ListingImport/internal/listing"
)

// Config controls admission and execution. Zero fields take the defaults.
type Config struct {
	MaxConcurrentJobs int
	QueueSize         int
	BatchSize         int
	MaxFileSize       int64
	MinConfidence     float64
}

const (
	DefaultQueueSize     = 1000
	DefaultBatchSize     = 100
	DefaultMaxFileSize   = 50 << 20
	DefaultMinConfidence = 0.7
)

func (c Config) withDefaults() Config {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = DefaultMinConfidence
	}
	return c
}

// Manager owns every job record and is the only writer of job state.
type Manager struct {
	cfg      Config
	store    Store
	accounts listing.AccountLookup
	listings listing.Repository
	limiter  *Limiter
	queue    chan string

	// mu serializes read-modify-write on the store and guards running.
	mu      sync.Mutex
	running map[string]*runState

	now   func() time.Time
	newID func() string
}

// runState is the live, in-process side of a PROCESSING job.
type runState struct {
	cancelled atomic.Bool

	mu          sync.Mutex
	startedAt   time.Time
	progress    Progress
	errors      []string
	warnings    []string
	transformOK bool
}

func (s *runState) snapshot() (Progress, []string, []string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress, append([]string(nil), s.errors...), append([]string(nil), s.warnings...), s.transformOK
}

// NewManager wires a manager. Call Run to start admitting jobs.
func NewManager(store Store, accounts listing.AccountLookup, listings listing.Repository, cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:      cfg,
		store:    store,
		accounts: accounts,
		listings: listings,
		limiter:  NewLimiter(cfg.MaxConcurrentJobs),
		queue:    make(chan string, cfg.QueueSize),
		running:  make(map[string]*runState),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// CreateJob runs pre-flight checks and registers a PENDING job.
// Rejections return before any job exists: a *core.ValidationError for
// unusable files, an error wrapping core.ErrMalformedContent for unreadable
// ones, listing.ErrAccountNotFound, or ErrQueueFull.
func (m *Manager) CreateJob(ctx context.Context, req CreateJobRequest) (string, error) {
	if int64(len(req.Content)) > m.cfg.MaxFileSize {
		return "", &core.ValidationError{
			Reason: "file too large",
			Errors: []string{fmt.Sprintf("%d bytes exceeds limit of %d", len(req.Content), m.cfg.MaxFileSize)},
		}
	}

	if _, err := m.accounts.GetByID(ctx, req.AccountID); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	detection, err := m.detect(req)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	report := core.Validate(req.Content, detection.Format)
	if !report.IsValid {
		return "", &core.ValidationError{
			Reason:   "file failed validation",
			Errors:   report.Errors,
			Warnings: report.Warnings,
		}
	}

	hint := req.FormatHint
	if hint == core.FormatUnknown {
		hint = ""
	}
	job := ImportJob{
		ID:              m.newID(),
		AccountID:       req.AccountID,
		Filename:        req.Filename,
		CreatedAt:       m.now().UTC(),
		Content:         req.Content,
		RequestedFormat: hint,
		Status:          StatusPending,
		DetectedFormat:  detection.Format,
		Confidence:      detection.Confidence,
		Warnings:        report.Warnings,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Put(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	select {
	case m.queue <- job.ID:
	default:
		if err := m.store.Delete(ctx, job.ID); err != nil {
			slog.Error("failed to remove rejected job", "job_id", job.ID, "error", err)
		}
		return "", ErrQueueFull
	}

	slog.Info("import job created",
		"job_id", job.ID,
		"account_id", job.AccountID,
		"filename", job.Filename,
		"format", job.DetectedFormat,
		"confidence", job.Confidence,
		"rows", report.RowCount,
	)
	return job.ID, nil
}

// detect picks the job's format, honoring a format hint when one is given.
func (m *Manager) detect(req CreateJobRequest) (core.DetectionResult, error) {
	if req.FormatHint != "" && req.FormatHint != core.FormatUnknown {
		res, err := core.DetectAs(req.Content, req.Filename, req.FormatHint)
		if err != nil {
			return res, err
		}
		if res.Format == core.FormatUnknown {
			return res, &core.ValidationError{
				Reason: fmt.Sprintf("file does not match requested format %s", req.FormatHint),
				Errors: []string{fmt.Sprintf("confidence %.2f", res.Confidence)},
			}
		}
		return res, m.checkConfidence(res)
	}

	res, err := core.Detect(req.Content, req.Filename)
	if err != nil {
		return res, err
	}
	if res.Format == core.FormatUnknown {
		return res, &core.ValidationError{
			Reason: "format not recognized",
			Errors: []string{fmt.Sprintf("best confidence %.2f", res.Confidence)},
		}
	}
	return res, m.checkConfidence(res)
}

func (m *Manager) checkConfidence(res core.DetectionResult) error {
	if res.Confidence < m.cfg.MinConfidence {
		return &core.ValidationError{
			Reason: "format not recognized",
			Errors: []string{fmt.Sprintf("confidence %.2f below %.2f", res.Confidence, m.cfg.MinConfidence)},
		}
	}
	return nil
}

// Run admits queued jobs in FIFO order until ctx is cancelled.
// Each admitted job executes on its own goroutine.
func (m *Manager) Run(ctx context.Context) {
	slog.Info("job dispatcher started", "max_concurrent_jobs", m.cfg.MaxConcurrentJobs)
	defer slog.Info("job dispatcher stopped")

	for {
		var id string
		select {
		case <-ctx.Done():
			return
		case id = <-m.queue:
		}

		if err := m.limiter.Acquire(ctx); err != nil {
			return
		}

		job, st, ok := m.start(ctx, id)
		if !ok {
			m.limiter.Release()
			continue
		}

		go func() {
			defer m.limiter.Release()
			m.execute(ctx, job, st)
		}()
	}
}

// start moves a job from PENDING to PROCESSING. Jobs cancelled or removed
// while queued are skipped.
func (m *Manager) start(ctx context.Context, id string) (ImportJob, *runState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Error("failed to load queued job", "job_id", id, "error", err)
		}
		return ImportJob{}, nil, false
	}
	if job.Status != StatusPending {
		return ImportJob{}, nil, false
	}

	started := m.now().UTC()
	job.Status = StatusProcessing
	job.StartedAt = &started
	if err := m.store.Put(ctx, job); err != nil {
		slog.Error("failed to start job", "job_id", id, "error", err)
		return ImportJob{}, nil, false
	}

	st := &runState{startedAt: started}
	m.running[id] = st
	return job, st, true
}

// execute transforms the job's content and upserts every record, checking
// for cancellation between batches.
func (m *Manager) execute(ctx context.Context, job ImportJob, st *runState) {
	log := slog.With("job_id", job.ID, "account_id", job.AccountID, "format", job.DetectedFormat)
	log.Info("import job processing")

	defer func() {
		if r := recover(); r != nil {
			log.Error("import job panicked", "panic", r)
			m.finish(ctx, job.ID, st, StatusFailed, fmt.Sprintf("internal error: %v", r))
		}
	}()

	res := core.Transform(job.Content, job.DetectedFormat, job.AccountID)

	st.mu.Lock()
	st.transformOK = res.Success
	st.progress.TotalRecords = len(res.Records)
	st.progress.Skipped = res.SkippedRows
	for _, e := range res.Errors {
		st.errors = append(st.errors, e.Error())
	}
	st.warnings = append(append(st.warnings, job.Warnings...), res.Warnings...)
	st.mu.Unlock()

	records := res.Records
	for start := 0; start < len(records); start += m.cfg.BatchSize {
		if st.cancelled.Load() {
			log.Info("import job stopped after cancellation")
			return
		}
		if err := ctx.Err(); err != nil {
			m.finish(ctx, job.ID, st, StatusFailed, fmt.Sprintf("interrupted by shutdown: %v", err))
			return
		}

		end := min(start+m.cfg.BatchSize, len(records))
		for _, rec := range records[start:end] {
			created, err := m.upsert(ctx, rec)

			st.mu.Lock()
			if st.cancelled.Load() {
				st.mu.Unlock()
				return
			}
			st.progress.ProcessedRecords++
			switch {
			case err != nil:
				st.progress.Errors++
				st.errors = append(st.errors, core.RowError{
					Line:       rec.LineNumber,
					ExternalID: rec.ExternalID,
					Reason:     err.Error(),
				}.Error())
			case created:
				st.progress.Created++
			default:
				st.progress.Updated++
			}
			st.mu.Unlock()

			if err != nil && isFatal(ctx, err) {
				log.Error("import job failed", "error", err)
				m.finish(ctx, job.ID, st, StatusFailed, err.Error())
				return
			}
		}
	}

	m.finish(ctx, job.ID, st, StatusCompleted, "")
}

// upsert creates or updates one listing by external ID.
// No manager lock is held here.
func (m *Manager) upsert(ctx context.Context, rec core.NormalizedRecord) (created bool, err error) {
	existing, err := m.listings.FindByExternalID(ctx, rec.AccountID, rec.ExternalID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		if _, err := m.listings.Create(ctx, rec); err != nil {
			return false, err
		}
		return true, nil
	}
	if _, err := m.listings.Update(ctx, existing.ID, listing.UpdateFromRecord(rec)); err != nil {
		return false, err
	}
	return false, nil
}

// isFatal reports whether err should abort the whole job.
func isFatal(ctx context.Context, err error) bool {
	return errors.Is(err, listing.ErrUnavailable) || ctx.Err() != nil
}

// finish records a terminal state for a PROCESSING job. A job cancelled in
// the meantime keeps its cancelled result.
func (m *Manager) finish(ctx context.Context, id string, st *runState, status JobStatus, failure string) {
	// Record the outcome even when shutdown cancelled ctx.
	ctx = context.WithoutCancel(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.running, id)

	job, err := m.store.Get(ctx, id)
	if err != nil {
		slog.Error("failed to load finished job", "job_id", id, "error", err)
		return
	}
	if job.Status != StatusProcessing {
		return
	}

	progress, errs, warns, transformOK := st.snapshot()
	completed := m.now().UTC()
	job.Status = status
	job.CompletedAt = &completed
	job.Progress = progress
	job.Error = failure
	job.Result = buildResult(status, progress, errs, warns, transformOK, failure, completed.Sub(st.startedAt))

	if err := m.store.Put(ctx, job); err != nil {
		slog.Error("failed to store finished job", "job_id", id, "error", err)
		return
	}

	slog.Info("import job finished",
		"job_id", id,
		"status", status,
		"created", progress.Created,
		"updated", progress.Updated,
		"skipped", progress.Skipped,
		"errors", progress.Errors,
		"duration_ms", completed.Sub(st.startedAt).Milliseconds(),
	)
}

func buildResult(status JobStatus, p Progress, errs, warns []string, transformOK bool, failure string, elapsed time.Duration) *ImportJobResult {
	if failure != "" {
		errs = append(errs, failure)
	}
	if errs == nil {
		errs = []string{}
	}
	if warns == nil {
		warns = []string{}
	}
	return &ImportJobResult{
		Success:               status == StatusCompleted && transformOK && p.Errors == 0,
		CreatedCount:          p.Created,
		UpdatedCount:          p.Updated,
		SkippedCount:          p.Skipped,
		ErrorCount:            p.Errors,
		Errors:                errs,
		Warnings:              warns,
		ProcessingTimeSeconds: elapsed.Seconds(),
	}
}

// CancelJob stops a PENDING or PROCESSING job. For a PROCESSING job the
// result is frozen from its progress at this moment. Any other status
// returns ErrInvalidState and leaves the job unchanged.
func (m *Manager) CancelJob(ctx context.Context, id string) (ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.store.Get(ctx, id)
	if err != nil {
		return ImportJob{}, err
	}

	completed := m.now().UTC()
	switch job.Status {
	case StatusPending:
		job.Result = buildResult(StatusCancelled, Progress{}, nil, job.Warnings, false, "", 0)

	case StatusProcessing:
		var (
			progress    Progress
			errs        []string
			warns       []string
			transformOK bool
		)
		startedAt := completed
		if st, ok := m.running[id]; ok {
			st.mu.Lock()
			st.cancelled.Store(true)
			st.mu.Unlock()
			progress, errs, warns, transformOK = st.snapshot()
			startedAt = st.startedAt
			delete(m.running, id)
		}
		job.Progress = progress
		job.Result = buildResult(StatusCancelled, progress, errs, warns, transformOK, "", completed.Sub(startedAt))

	default:
		return job.clone(), fmt.Errorf("%w: cannot cancel job %s in status %s", ErrInvalidState, id, job.Status)
	}

	job.Status = StatusCancelled
	job.CompletedAt = &completed
	if err := m.store.Put(ctx, job); err != nil {
		return ImportJob{}, fmt.Errorf("cancel job: %w", err)
	}

	slog.Info("import job cancelled", "job_id", id, "processed", job.Progress.ProcessedRecords)
	return job.clone(), nil
}

// GetJobStatus returns a snapshot of one job, with live progress while PROCESSING.
func (m *Manager) GetJobStatus(ctx context.Context, id string) (ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.store.Get(ctx, id)
	if err != nil {
		return ImportJob{}, err
	}
	return m.withLiveProgress(job), nil
}

// ListJobs returns jobs newest first, filtered by account and status and truncated to Limit.
func (m *Manager) ListJobs(ctx context.Context, f JobFilter) ([]ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	out := make([]ImportJob, 0, len(all))
	for _, job := range all {
		if f.AccountID != "" && job.AccountID != f.AccountID {
			continue
		}
		if f.Status != "" && job.Status != f.Status {
			continue
		}
		out = append(out, m.withLiveProgress(job))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// withLiveProgress overlays in-process counters. Caller holds m.mu.
func (m *Manager) withLiveProgress(job ImportJob) ImportJob {
	if st, ok := m.running[job.ID]; ok && job.Status == StatusProcessing {
		job.Progress, _, _, _ = st.snapshot()
	}
	return job.clone()
}

// CleanupOldJobs removes terminal jobs created more than maxAge ago and
// returns how many were removed. PENDING and PROCESSING jobs are never removed.
func (m *Manager) CleanupOldJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := m.now().UTC().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("cleanup jobs: %w", err)
	}

	removed := 0
	for _, job := range all {
		if !job.Status.IsTerminal() || !job.CreatedAt.Before(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, job.ID); err != nil {
			return removed, fmt.Errorf("cleanup jobs: %w", err)
		}
		removed++
	}
	return removed, nil
}

// GetStatistics counts jobs by status.
func (m *Manager) GetStatistics(ctx context.Context) (Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.store.List(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("job statistics: %w", err)
	}

	stats := Statistics{
		Total:             len(all),
		ByStatus:          make(map[JobStatus]int, len(AllStatuses)),
		MaxConcurrentJobs: m.limiter.MaxConcurrent(),
		ActiveWorkers:     m.limiter.ActiveCount(),
		Queued:            len(m.queue),
	}
	for _, s := range AllStatuses {
		stats.ByStatus[s] = 0
	}
	for _, job := range all {
		stats.ByStatus[job.Status]++
	}
	return stats, nil
}

// Wait blocks until no job is executing or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	return m.limiter.WaitForDrain(ctx)
}
