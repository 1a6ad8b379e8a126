package web

import (
	"net/http"

	"github.com/JonMunkholm/ListingImport/internal/core"
)

// handleDetect scores an uploaded file against the format catalog without
// creating a job.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	u, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	var (
		res core.DetectionResult
		err error
	)
	if u.Format != "" && u.Format != core.FormatUnknown {
		res, err = core.DetectAs(u.Content, u.Filename, u.Format)
	} else {
		res, err = core.Detect(u.Content, u.Filename)
	}
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleValidate reports structural problems and warnings for an uploaded
// file. Without a format it validates against the detected one.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	u, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	format := u.Format
	if format == "" {
		res, err := core.Detect(u.Content, u.Filename)
		if err != nil {
			s.respondError(w, r, err, 0)
			return
		}
		format = res.Format
	}

	report := core.Validate(u.Content, format)
	writeJSON(w, http.StatusOK, map[string]any{
		"format": format,
		"report": report,
	})
}
