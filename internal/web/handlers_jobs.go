package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/ListingImport/internal/core"
	"github.com/JonMunkholm/ListingImport/internal/jobs"
	"github.com/JonMunkholm/ListingImport/internal/logging"
)

// multipartOverhead is extra body allowance for form fields and boundaries.
const multipartOverhead = 1 << 20

// upload is a file submitted as multipart form data.
type upload struct {
	Filename  string
	Content   string
	AccountID string
	Format    core.Format
}

// readUpload reads the "file" part plus the account_id and format fields.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (upload, bool) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, &requestError{detail: "file too large"}, http.StatusRequestEntityTooLarge)
		} else {
			s.badRequest(w, r, "expected multipart form data")
		}
		return upload{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.badRequest(w, r, "no file provided")
		return upload{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return upload{}, false
	}

	u := upload{
		Filename:  header.Filename,
		Content:   string(data),
		AccountID: strings.TrimSpace(r.FormValue("account_id")),
	}
	if raw := r.FormValue("format"); raw != "" {
		f, ok := core.ParseFormat(raw)
		if !ok {
			s.badRequest(w, r, "unknown format "+strconv.Quote(raw))
			return upload{}, false
		}
		u.Format = f
	}
	return u, true
}

// publicJob hides the stored file content.
func publicJob(job jobs.ImportJob) jobs.ImportJob {
	job.Content = ""
	return job
}

// handleCreateJob validates an uploaded file and queues an import job.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	u, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	if u.AccountID == "" {
		s.badRequest(w, r, "account_id is required")
		return
	}

	id, err := s.manager.CreateJob(r.Context(), jobs.CreateJobRequest{
		AccountID:  u.AccountID,
		Filename:   u.Filename,
		Content:    u.Content,
		FormatHint: u.Format,
	})
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	job, err := s.manager.GetJobStatus(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	logging.WithFields(r.Context(), "job_id", id, "account_id", u.AccountID).
		Info("job submitted", "format", job.DetectedFormat, "confidence", job.Confidence)

	w.Header().Set("Location", "/api/jobs/"+id)
	writeJSON(w, http.StatusAccepted, publicJob(job))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.manager.GetJobStatus(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, publicJob(job))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.manager.CancelJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, publicJob(job))
}

// handleListJobs supports ?account_id=, ?status= and ?limit= filters.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := jobs.JobFilter{AccountID: q.Get("account_id")}

	if raw := q.Get("status"); raw != "" {
		status, ok := jobs.ParseStatus(raw)
		if !ok {
			s.badRequest(w, r, "unknown status "+strconv.Quote(raw))
			return
		}
		filter.Status = status
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.badRequest(w, r, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	list, err := s.manager.ListJobs(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	out := make([]jobs.ImportJob, len(list))
	for i, job := range list {
		out[i] = publicJob(job)
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out, "count": len(out)})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.GetStatistics(r.Context())
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleCleanup removes terminal jobs older than ?max_age_hours= (default:
// the configured retention).
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	maxAge := s.cfg.Import.Retention()
	if raw := r.URL.Query().Get("max_age_hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 0 {
			s.badRequest(w, r, "max_age_hours must be a non-negative integer")
			return
		}
		maxAge = time.Duration(hours) * time.Hour
	}

	removed, err := s.manager.CleanupOldJobs(r.Context(), maxAge)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed, "max_age_hours": maxAge.Hours()})
}
