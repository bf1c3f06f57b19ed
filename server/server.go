// Package server exposes the iFlow generator over HTTP and MCP. Every request
// is stateless: callers hold the current design between calls.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"iflow_prompt_generator/export"
	"iflow_prompt_generator/extractor"
	"iflow_prompt_generator/generator"
	"iflow_prompt_generator/pipeline"
	"iflow_prompt_generator/review"
)

var (
	errBadRequest = errors.New("bad request")
	errTooLarge   = errors.New("upload too large")
)

// Config tunes the server. Zero values select defaults.
type Config struct {
	// MaxUploadBytes caps multipart uploads (default 50 MiB).
	MaxUploadBytes int64
	// Guard inspects edits; nil uses a reporting-only guard.
	Guard  *review.Guard
	Logger *slog.Logger
}

type Server struct {
	gen       pipeline.Generator
	extractor *extractor.Extractor
	guard     *review.Guard
	logger    *slog.Logger
	maxUpload int64
}

func New(gen pipeline.Generator, ext *extractor.Extractor, cfg Config) (*Server, error) {
	if gen == nil {
		return nil, errors.New("generator required")
	}
	if ext == nil {
		return nil, errors.New("extractor required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	if cfg.Guard == nil {
		cfg.Guard = review.NewGuard(review.GuardConfig{})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		gen:       gen,
		extractor: ext,
		guard:     cfg.Guard,
		logger:    cfg.Logger,
		maxUpload: cfg.MaxUploadBytes,
	}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/extract-text", s.handleExtract)
	r.Route("/iflow", func(r chi.Router) {
		r.Post("/understand", s.handleUnderstand)
		r.Post("/edit", s.handleEdit)
		r.Post("/final-prompt", s.handleFinalPrompt)
	})
	return r
}

// --- Handlers ---

type extractResp struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

type understandResp struct {
	Filename      string `json:"filename"`
	Understanding string `json:"iflow_understanding"`
	HTML          string `json:"html,omitempty"`
}

type editReq struct {
	CurrentDesign   string `json:"current_design"`
	EditInstruction string `json:"edit_instruction"`
}

type editResp struct {
	Design          string   `json:"design"`
	Similarity      float64  `json:"similarity"`
	Added           int      `json:"added"`
	Deleted         int      `json:"deleted"`
	DroppedSections []string `json:"dropped_sections"`
}

type finalReq struct {
	ApprovedDesign string `json:"approved_design"`
}

type finalResp struct {
	FinalPrompt string `json:"final_prompt"`
}

type errorResp struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	filename, text, err := s.extractUpload(w, r)
	if err != nil {
		s.fail(w, r, pipeline.StageExtraction, err)
		return
	}
	writeJSON(w, http.StatusOK, extractResp{Filename: filename, Text: text.Text()})
}

func (s *Server) handleUnderstand(w http.ResponseWriter, r *http.Request) {
	filename, text, err := s.extractUpload(w, r)
	if err != nil {
		s.fail(w, r, pipeline.StageExtraction, err)
		return
	}

	design, err := s.gen.Understand(r.Context(), text.Text())
	if err != nil {
		s.fail(w, r, pipeline.StageUnderstanding, err)
		return
	}

	html, err := export.RenderHTML(design.String())
	if err != nil {
		s.fail(w, r, pipeline.StageUnderstanding, err)
		return
	}
	writeJSON(w, http.StatusOK, understandResp{Filename: filename, Understanding: design.String(), HTML: html})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editReq
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, pipeline.StageEdit, err)
		return
	}

	resp, err := s.applyEdit(r.Context(), req)
	if err != nil {
		s.fail(w, r, pipeline.StageEdit, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFinalPrompt(w http.ResponseWriter, r *http.Request) {
	req := finalReq{ApprovedDesign: r.URL.Query().Get("approved_design")}
	if req.ApprovedDesign == "" {
		if err := decodeJSON(r, &req); err != nil {
			s.fail(w, r, pipeline.StageFinalize, err)
			return
		}
	}

	prompt, err := s.finalPrompt(r.Context(), req.ApprovedDesign)
	if err != nil {
		s.fail(w, r, pipeline.StageFinalize, err)
		return
	}
	writeJSON(w, http.StatusOK, finalResp{FinalPrompt: prompt.String()})
}

// --- Operations shared with the MCP tools ---

func (s *Server) applyEdit(ctx context.Context, req editReq) (editResp, error) {
	current := generator.DesignDocument(req.CurrentDesign)
	if strings.TrimSpace(req.CurrentDesign) == "" {
		return editResp{}, fmt.Errorf("%w: current_design is required", errBadRequest)
	}

	next, err := s.gen.ApplyEdit(ctx, current, req.EditInstruction)
	if err != nil {
		return editResp{}, err
	}

	check := s.guard.Inspect(current, next, req.EditInstruction)
	if err := s.guard.Verify(check); err != nil {
		return editResp{}, err
	}
	if s.guard.Suspicious(check) {
		s.logger.WarnContext(ctx, "edit looks lossy", "check", check.String())
	}

	dropped := check.DroppedSections
	if dropped == nil {
		dropped = []string{}
	}
	return editResp{
		Design:          next.String(),
		Similarity:      check.Similarity,
		Added:           check.Added,
		Deleted:         check.Deleted,
		DroppedSections: dropped,
	}, nil
}

// finalPrompt treats the request itself as the reviewer's approval.
func (s *Server) finalPrompt(ctx context.Context, design string) (generator.FinalPrompt, error) {
	if strings.TrimSpace(design) == "" {
		return "", fmt.Errorf("%w: approved_design is required", generator.ErrNotApproved)
	}
	return s.gen.Finalize(ctx, generator.Approve(generator.DesignDocument(design)))
}

func (s *Server) extractUpload(w http.ResponseWriter, r *http.Request) (string, extractor.ExtractedText, error) {
	if r.ContentLength > s.maxUpload {
		return "", extractor.ExtractedText{}, fmt.Errorf("%w: %d bytes (max %d)", errTooLarge, r.ContentLength, s.maxUpload)
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", extractor.ExtractedText{}, err
		}
		return "", extractor.ExtractedText{}, fmt.Errorf("%w: multipart field \"file\" is required: %w", errBadRequest, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", extractor.ExtractedText{}, fmt.Errorf("read upload: %w", err)
	}

	text, err := s.extractor.ExtractFile(r.Context(), header.Filename, data)
	if err != nil {
		return header.Filename, extractor.ExtractedText{}, err
	}
	return header.Filename, text, nil
}

// --- Helpers ---

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %w", errBadRequest, err)
	}
	return nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, stage pipeline.Stage, err error) {
	status := statusFor(err)
	if st := pipeline.StageOf(err); st != "" {
		stage = st
	}
	s.logger.WarnContext(r.Context(), "request failed",
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"stage", stage,
		"status", status,
		"error", err,
	)
	writeJSON(w, status, errorResp{Error: err.Error(), Stage: string(stage)})
}

// statusFor maps domain errors to HTTP statuses: client input 400, oversized
// upload 413, unreadable document or refused edit 422, upstream failure 502.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge), errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, extractor.ErrUnsupportedFormat),
		errors.Is(err, generator.ErrEmptyInstruction),
		errors.Is(err, generator.ErrNotApproved),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, extractor.ErrExtraction),
		errors.Is(err, review.ErrEditRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, generator.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if path == "" {
			path = "/"
		}
		s.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
