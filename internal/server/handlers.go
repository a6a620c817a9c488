package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	_ "embed"

	"github.com/google/uuid"
	"github.com/spigell/cv-scout/internal/jobsearch"
	"github.com/spigell/cv-scout/internal/mcp"
	"github.com/spigell/cv-scout/internal/pipeline"
	"go.uber.org/zap"
)

//go:embed index.html
var indexHTML []byte

// extractResponse is the success body for one processed resume.
type extractResponse struct {
	Skills     []string            `json:"skills"`
	Experience string              `json:"experience"`
	Location   string              `json:"location"`
	JobTitle   string              `json:"jobTitle"`
	Jobs       []jobsearch.Listing `json:"jobs"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With(zap.String("request_id", uuid.NewString()))

	file, header, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "input", "no file uploaded")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		s.errorResponse(w, http.StatusBadRequest, "input", "empty filename")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "input", "reading upload: "+err.Error())
		return
	}

	if len(data) > maxUploadBytes {
		s.errorResponse(w, http.StatusRequestEntityTooLarge, "input",
			fmt.Sprintf("document larger than the %d MiB upload limit", maxUploadBytes>>20))
		return
	}

	log.Info("resume received",
		zap.String("filename", header.Filename),
		zap.Int("size", len(data)),
	)

	res, err := s.runner.Run(r.Context(), pipeline.Document{Name: header.Filename, Data: data})
	if err != nil {
		s.pipelineError(w, log, err)
		return
	}

	if res.Failure != nil {
		s.jsonResponse(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "extractor output failed the profile contract",
			"kind":  "contract",
			"raw":   res.Failure.Raw,
		})
		return
	}

	p := res.Profile
	s.jsonResponse(w, http.StatusOK, extractResponse{
		Skills:     p.Skills,
		Experience: p.Experience,
		Location:   p.Location,
		JobTitle:   p.JobTitle,
		Jobs:       res.Jobs,
	})
}

// pipelineError maps each failure kind to a status code and keeps the kind
// machine-readable in the body.
func (s *Server) pipelineError(w http.ResponseWriter, log *zap.Logger, err error) {
	var status int
	var kind string

	switch {
	case errors.Is(err, pipeline.ErrInput):
		status, kind = http.StatusBadRequest, "input"
	case errors.Is(err, mcp.ErrToolTimeout):
		status, kind = http.StatusGatewayTimeout, "tool_timeout"
	case errors.Is(err, mcp.ErrToolNotFound):
		status, kind = http.StatusBadGateway, "tool_not_found"
	case errors.Is(err, mcp.ErrTransportClosed):
		status, kind = http.StatusBadGateway, "transport_closed"
	case errors.Is(err, mcp.ErrProtocol), errors.Is(err, mcp.ErrNotReady):
		status, kind = http.StatusBadGateway, "protocol"
	default:
		status, kind = http.StatusInternalServerError, "internal"
	}

	log.Warn("upload failed", zap.String("kind", kind), zap.Error(err))

	s.errorResponse(w, status, kind, err.Error())
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("encoding response failed", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, kind, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message, "kind": kind})
}
