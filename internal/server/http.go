// Package server is the HTTP boundary: JSON in, records or task handles out.
// It maps pipeline error kinds onto status codes and otherwise stays thin.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"casetrace/constants"
	"casetrace/internal/async"
	"casetrace/internal/common"
	"casetrace/internal/entity"
	"casetrace/internal/fetch"
	"casetrace/internal/task"
)

type caseProcessor interface {
	Process(ctx context.Context, caseID string, source fetch.Source) (*entity.ExtractionRecord, error)
}

type caseReader interface {
	GetByCaseID(ctx context.Context, caseID string) (*entity.ExtractionRecord, error)
}

type caseExporter interface {
	ExportCaseXLSX(ctx context.Context, caseID string) ([]byte, error)
}

type healthChecker interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

// Server wires the handlers to the pipeline, the queue and the tracker.
type Server struct {
	proc     caseProcessor
	reader   caseReader
	exporter caseExporter
	health   healthChecker
	queue    *async.Queue
	tracker  *task.Tracker
	logger   *slog.Logger

	tmpDir   string
	maxBytes int64
}

type ServerConfig struct {
	TmpDir    string
	MaxSizeMB int
}

func NewServer(
	proc caseProcessor,
	reader caseReader,
	exporter caseExporter,
	health healthChecker,
	queue *async.Queue,
	tracker *task.Tracker,
	cfg ServerConfig,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TmpDir == "" {
		cfg.TmpDir = os.TempDir()
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 14
	}
	return &Server{
		proc:     proc,
		reader:   reader,
		exporter: exporter,
		health:   health,
		queue:    queue,
		tracker:  tracker,
		logger:   logger,
		tmpDir:   cfg.TmpDir,
		maxBytes: int64(cfg.MaxSizeMB) * 1024 * 1024,
	}
}

// Handler builds the route table wrapped in the logging and CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /extract", s.handleExtract)
	mux.HandleFunc("POST /extract/async", s.handleExtractAsync)
	mux.HandleFunc("GET /extract/{case_id}", s.handleGetCase)
	mux.HandleFunc("GET /extract/{case_id}/export", s.handleExport)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /tasks/{task_id}", s.handleGetTask)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return s.withLogging(s.withCORS(mux))
}

// handleExtract runs the pipeline synchronously and returns the persisted
// record. Repeated calls for the same case id return the stored record.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, common.NewValidationError("request body is not valid JSON", err))
		return
	}
	if req.URL == "" {
		s.writeError(w, common.NewValidationError("url must not be empty", nil))
		return
	}

	rec, err := s.proc.Process(r.Context(), req.CaseID, fetch.Source{URL: req.URL})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// handleExtractAsync validates the request, registers a task and queues the
// job. The caller polls /tasks/{task_id} for the outcome.
func (s *Server) handleExtractAsync(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, common.NewValidationError("request body is not valid JSON", err))
		return
	}
	if req.URL == "" {
		s.writeError(w, common.NewValidationError("url must not be empty", nil))
		return
	}
	caseID, err := common.ValidateCaseID(req.CaseID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	taskID := s.tracker.Create(constants.TaskKindExtractURL)
	s.queue.Enqueue(r.Context(), async.Job{
		TaskID:      taskID,
		CaseID:      caseID,
		Source:      fetch.Source{URL: req.URL},
		SubmittedAt: time.Now().UTC(),
	})
	s.writeJSON(w, http.StatusAccepted, taskAccepted{
		TaskID: taskID,
		CaseID: caseID,
		Status: constants.TaskStatusPending,
	})
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := common.ValidateCaseID(r.PathValue("case_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := s.reader.GetByCaseID(r.Context(), caseID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rec == nil {
		s.writeError(w, common.ErrNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// handleUpload spools a multipart PDF into scratch space and queues an async
// extraction. A missing case_id gets a generated one.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes+(1<<20))
	if err := r.ParseMultipartForm(s.maxBytes); err != nil {
		s.writeError(w, common.NewValidationError("multipart body is invalid or too large", err))
		return
	}

	caseID := r.FormValue("case_id")
	if caseID == "" {
		caseID = common.GenerateCaseID()
	}
	caseID, err := common.ValidateCaseID(caseID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, common.NewValidationError("multipart field 'file' is required", err))
		return
	}
	defer file.Close()

	path, err := s.spoolUpload(file, header.Filename)
	if err != nil {
		s.writeError(w, err)
		return
	}

	taskID := s.tracker.Create(constants.TaskKindExtractUpload)
	s.queue.Enqueue(r.Context(), async.Job{
		TaskID:      taskID,
		CaseID:      caseID,
		Source:      fetch.Source{LocalPath: path},
		CleanupPath: path,
		SubmittedAt: time.Now().UTC(),
	})
	s.writeJSON(w, http.StatusAccepted, taskAccepted{
		TaskID: taskID,
		CaseID: caseID,
		Status: constants.TaskStatusPending,
	})
}

// spoolUpload writes the multipart file into scratch space. Uploads are
// magic-byte checked strictly, unlike URL downloads where the check is
// advisory: the uploader can fix the file immediately.
func (s *Server) spoolUpload(file io.Reader, filename string) (string, error) {
	path, err := common.ScratchPath(s.tmpDir, filename)
	if err != nil {
		return "", err
	}
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", common.NewAcquisitionError("cannot create scratch file", err)
	}

	written, err := io.Copy(out, io.LimitReader(file, s.maxBytes+1))
	closeErr := out.Close()
	switch {
	case err != nil:
		os.Remove(path)
		return "", common.NewAcquisitionError("storing upload failed", err)
	case closeErr != nil:
		os.Remove(path)
		return "", common.NewAcquisitionError("storing upload failed", closeErr)
	case written > s.maxBytes:
		os.Remove(path)
		return "", common.NewValidationError(fmt.Sprintf("upload exceeds size limit (%d bytes)", s.maxBytes), nil)
	}

	head := make([]byte, len("%PDF-"))
	fh, err := os.Open(path)
	if err == nil {
		n, _ := io.ReadFull(fh, head)
		fh.Close()
		if !common.LooksLikePDF(head[:n]) {
			os.Remove(path)
			return "", common.NewValidationError("uploaded file is not a PDF", nil)
		}
	}
	return path, nil
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	info, ok := s.tracker.Get(r.PathValue("task_id"))
	if !ok {
		s.writeError(w, common.ErrNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	caseID, err := common.ValidateCaseID(r.PathValue("case_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := s.exporter.ExportCaseXLSX(r.Context(), caseID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "case_"+caseID+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.health.HealthCheck(r.Context(), 3*time.Second); err != nil {
		s.logger.Error("health check failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded"})
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// writeError translates pipeline errors into status codes: validation 422,
// acquisition 400, extraction 502, not-found 404, everything else 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	default:
		switch common.KindOf(err) {
		case common.KindValidation:
			status = http.StatusUnprocessableEntity
		case common.KindAcquisition:
			status = http.StatusBadRequest
		case common.KindExtraction:
			status = http.StatusBadGateway
		case common.KindPersistence:
			status = http.StatusInternalServerError
		}
	}
	if status >= 500 {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response failed", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
