// Package server exposes the retrieval pipeline over HTTP: account
// endpoints, authenticated chat and document routes, and operational
// probes.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/liao/ragserve/internal/ai"
	"github.com/liao/ragserve/internal/auth"
	"github.com/liao/ragserve/internal/chunker"
	"github.com/liao/ragserve/internal/engine"
	"github.com/liao/ragserve/internal/loader"
	"github.com/liao/ragserve/internal/user"
	"github.com/liao/ragserve/internal/vectorstore"
)

type Server struct {
	users     *user.Store
	tokens    *auth.Manager
	registry  *Registry
	embedder  ai.Embedder
	generator ai.Generator
	validate  *validator.Validate
	maxUpload int64
}

func New(users *user.Store, tokens *auth.Manager, registry *Registry, embedder ai.Embedder, generator ai.Generator, maxUploadMB int) *Server {
	if maxUploadMB <= 0 {
		maxUploadMB = 32
	}
	return &Server{
		users:     users,
		tokens:    tokens,
		registry:  registry,
		embedder:  embedder,
		generator: generator,
		validate:  validator.New(),
		maxUpload: int64(maxUploadMB) << 20,
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /models", s.handleModels)

	mux.HandleFunc("POST /api/v1/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)

	mux.HandleFunc("POST /api/v1/chat", s.requireAuth(s.handleChat))
	mux.HandleFunc("POST /api/v1/chat/direct", s.requireAuth(s.handleChatDirect))
	mux.HandleFunc("POST /api/v1/chat/stream", s.requireAuth(s.handleChatStream))

	mux.HandleFunc("POST /api/v1/documents/ingest", s.requireAuth(s.handleIngest))
	mux.HandleFunc("POST /api/v1/documents/upload", s.requireAuth(s.handleUpload))
	mux.HandleFunc("GET /api/v1/documents/stats", s.requireAuth(s.handleStats))
	mux.HandleFunc("DELETE /api/v1/documents", s.requireAuth(s.handleDeleteDocuments))

	return logRequests(mux)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writePipelineError maps pipeline failures to status codes: bad input
// 400, provider outages 503, everything else 500.
func writePipelineError(w http.ResponseWriter, err error) {
	var procErr *loader.ProcessError
	var provErr *ai.ProviderError
	switch {
	case errors.As(err, &procErr):
		writeError(w, http.StatusBadRequest, procErr.Error())
	case errors.As(err, &provErr):
		writeError(w, http.StatusServiceUnavailable, provErr.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

func (s *Server) engineFor(w http.ResponseWriter, r *http.Request) (*engine.Engine, bool) {
	eng, err := s.registry.Get(UserID(r.Context()))
	if err != nil {
		writePipelineError(w, err)
		return nil, false
	}
	return eng, true
}

// --- auth ---

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}

	u, err := s.users.Create(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrUsernameTaken) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}

	u, err := s.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		writePipelineError(w, err)
		return
	}

	token, expires, err := s.tokens.Issue(u.ID, u.Username)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, TokenType: "bearer", ExpiresAt: expires})
}

// --- chat ---

type chatRequest struct {
	Message string `json:"message" validate:"required"`
	TopK    int    `json:"top_k" validate:"gte=0,lte=20"`
}

type chatResponse struct {
	Answer    string `json:"answer"`
	Sources   any    `json:"sources"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	eng, ok := s.engineFor(w, r)
	if !ok {
		return
	}

	res, err := eng.Query(r.Context(), req.Message, req.TopK)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Answer:    res.Answer,
		Sources:   res.Sources,
		ElapsedMs: res.Elapsed.Milliseconds(),
	})
}

func (s *Server) handleChatDirect(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	eng, ok := s.engineFor(w, r)
	if !ok {
		return
	}

	res, err := eng.QueryWithoutRAG(r.Context(), req.Message)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Answer:    res.Answer,
		Sources:   res.Sources,
		ElapsedMs: res.Elapsed.Milliseconds(),
	})
}

// handleChatStream answers over server-sent events: "token" events as
// fragments arrive, then one "sources" event, then "done".
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	eng, ok := s.engineFor(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emit := func(event string, data any) {
		payload, _ := json.Marshal(data)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
		flusher.Flush()
	}

	sources, err := eng.QueryStream(r.Context(), req.Message, req.TopK, func(fragment string) error {
		emit("token", map[string]string{"content": fragment})
		return nil
	})
	if err != nil {
		// Headers are already out; the error goes down the stream.
		emit("error", map[string]string{"error": err.Error()})
		return
	}
	if sources == nil {
		sources = []vectorstore.Result{}
	}
	emit("sources", sources)
	emit("done", map[string]bool{"done": true})
}

// --- documents ---

type ingestDocument struct {
	Content  string            `json:"content" validate:"required"`
	Metadata map[string]string `json:"metadata"`
}

type ingestRequest struct {
	Documents []ingestDocument `json:"documents" validate:"required,min=1,dive"`
}

type ingestResponse struct {
	IngestedCount int   `json:"ingested_count"`
	ChunkCount    int   `json:"chunk_count"`
	ElapsedMs     int64 `json:"elapsed_ms"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !s.decode(w, r, &req) {
		return
	}
	eng, ok := s.engineFor(w, r)
	if !ok {
		return
	}

	docs := make([]chunker.Document, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = chunker.Document{Content: d.Content, Metadata: d.Metadata}
	}

	res, err := eng.Ingest(r.Context(), docs)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{
		IngestedCount: res.IngestedCount,
		ChunkCount:    res.ChunkCount,
		ElapsedMs:     res.Elapsed.Milliseconds(),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "parse multipart form: "+err.Error())
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "no files provided (use form field \"files\")")
		return
	}
	eng, ok := s.engineFor(w, r)
	if !ok {
		return
	}

	docs := make([]chunker.Document, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "open upload "+fh.Filename+": "+err.Error())
			return
		}
		content, err := io.ReadAll(io.LimitReader(f, s.maxUpload))
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "read upload "+fh.Filename+": "+err.Error())
			return
		}

		doc, err := loader.Load(content, fh.Filename, fh.Header.Get("Content-Type"))
		if err != nil {
			writePipelineError(w, err)
			return
		}
		docs = append(docs, chunker.Document{Content: doc.Content, Metadata: doc.Metadata})
	}

	res, err := eng.Ingest(r.Context(), docs)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{
		IngestedCount: res.IngestedCount,
		ChunkCount:    res.ChunkCount,
		ElapsedMs:     res.Elapsed.Milliseconds(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, eng.Stats(r.Context()))
}

func (s *Server) handleDeleteDocuments(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	if err := eng.DeleteDocuments(r.Context()); err != nil {
		writePipelineError(w, err)
		return
	}
	s.registry.Remove(UserID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- operational ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"time_utc": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.embedder.Ready(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "error": err.Error()})
		return
	}
	if !s.generator.HealthCheck(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "error": "llm backend unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.generator.ListModels(r.Context())
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  models,
		"current": s.generator.Model(),
	})
}
