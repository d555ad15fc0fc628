// Package api exposes the agent over HTTP. Routes live under /wip/
// and exchange JSON; /wip/chat/ws upgrades to a websocket for
// turn-per-message chat.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wiplab/wip-agent/internal/buildinfo"
	"github.com/wiplab/wip-agent/internal/llm"
	"github.com/wiplab/wip-agent/internal/memory"
	"github.com/wiplab/wip-agent/internal/orchestrator"
)

// Server is the HTTP front end.
type Server struct {
	addr    string
	orch    *orchestrator.Orchestrator
	backend orchestrator.ToolBackend
	store   *memory.Store
	archive *memory.Archive // optional
	llm     llm.Client
	logger  *slog.Logger
	httpSrv *http.Server
}

// New creates a server listening on addr.
func New(addr string, orch *orchestrator.Orchestrator, backend orchestrator.ToolBackend, store *memory.Store, archive *memory.Archive, client llm.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    addr,
		orch:    orch,
		backend: backend,
		store:   store,
		archive: archive,
		llm:     client,
		logger:  logger.With("component", "api"),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /wip/chat", s.handleChat)
	mux.HandleFunc("GET /wip/chat/ws", s.handleChatWS)
	mux.HandleFunc("POST /wip/context-injection", s.handleContextInjection)
	mux.HandleFunc("GET /wip/manifest", s.handleManifest)
	mux.HandleFunc("GET /wip/start-session", s.handleStartSession)
	mux.HandleFunc("GET /wip/resource-template", s.handleResourceTemplate)
	mux.HandleFunc("POST /wip/call-tool/{tool}", s.handleCallTool)
	mux.HandleFunc("GET /wip/sessions/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)

	return s.withLogging(mux)
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown() error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	result, err := s.orch.RunTurn(r.Context(), req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, orchestrator.ErrTurnInFlight) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("turn failed", "session", req.SessionID, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleContextInjection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Context   string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.Context == "" {
		writeError(w, http.StatusBadRequest, "session_id and context are required")
		return
	}

	s.orch.InjectContext(r.Context(), req.SessionID, req.Context)
	writeJSON(w, http.StatusOK, map[string]string{"status": "injected"})
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	docs, err := s.orch.CollectAllWidgetTexts(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("collect widgets: %v", err))
		return
	}
	raw := make([]json.RawMessage, len(docs))
	for i, doc := range docs {
		raw[i] = json.RawMessage(doc)
	}
	writeJSON(w, http.StatusOK, map[string]any{"widgets": raw})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"session_id": uuid.NewString()})
}

func (s *Server) handleResourceTemplate(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		writeError(w, http.StatusBadRequest, "uri query parameter is required")
		return
	}
	text, err := s.backend.ReadResource(r.Context(), uri)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(text))
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	tool := r.PathValue("tool")

	var args map[string]any
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid arguments body")
		return
	}

	result, err := s.backend.CallTool(r.Context(), tool, args)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":   result.Text(),
		"is_error": result.IsError,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// ?source=archive reads the persisted transcript instead of the
	// bounded in-memory log.
	if r.URL.Query().Get("source") == "archive" {
		if s.archive == nil {
			writeError(w, http.StatusNotFound, "no archive configured")
			return
		}
		entries, err := s.archive.Transcript(r.Context(), id, 200)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "transcript": entries})
		return
	}

	history := s.store.History(id)
	if history == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "messages": history})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	checks := map[string]string{"llm": "ok"}
	if err := s.llm.Ping(ctx); err != nil {
		checks["llm"] = err.Error()
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Info())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
