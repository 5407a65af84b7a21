// internal/bridge/server.go

// Package bridge exposes the orchestrator to a GUI over HTTP and websockets.
// REST endpoints manage tasks; each agent terminal is one websocket carrying
// raw bytes in binary frames and JSON control messages in text frames.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"agentManager/internal/agent"
	"agentManager/internal/apperr"
	"agentManager/internal/models"
	"agentManager/internal/orchestrator"
	"agentManager/internal/ssh"
)

// Backend is the orchestrator surface the bridge needs.
type Backend interface {
	Tasks() []models.Task
	Agents() []models.AgentRecord
	CreateAndStartTask(ctx context.Context, req orchestrator.CreateTaskRequest) (models.Task, error)
	ResumeTask(ctx context.Context, taskID, followUp string) (models.Task, error)
	StopTask(taskID string) error
	DeleteTask(ctx context.Context, taskID string) error
	AddConversation(ctx context.Context, req orchestrator.AddConversationRequest) (models.Conversation, error)
	DetectAgents(ctx context.Context, connID string, force bool) ([]string, error)
	Attach(channelID string, onData func([]byte), onExit func(error)) (func(), error)
	SendInput(channelID string, data []byte) error
	Resize(channelID string, cols, rows int) error
}

type Options struct {
	Backend Backend
	Logger  *slog.Logger
	// CheckOrigin overrides the websocket same-origin check.
	CheckOrigin func(r *http.Request) bool
}

type Server struct {
	backend Backend
	logger  *slog.Logger
	mux     *http.ServeMux
	ws      *upgrader
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		backend: opts.Backend,
		logger:  logger.With("component", "bridge"),
		mux:     http.NewServeMux(),
		ws:      newUpgrader(opts.CheckOrigin),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	s.mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	s.mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)
	s.mux.HandleFunc("POST /api/tasks/{id}/resume", s.handleResumeTask)
	s.mux.HandleFunc("POST /api/tasks/{id}/stop", s.handleStopTask)
	s.mux.HandleFunc("POST /api/tasks/{id}/conversations", s.handleAddConversation)
	s.mux.HandleFunc("GET /api/agents", s.handleListAgents)
	s.mux.HandleFunc("GET /api/connections/{id}/agents", s.handleDetect)
	s.mux.HandleFunc("GET /ws/sessions/{channelID}", s.handleSession)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("bridge listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrTaskNotFound), errors.Is(err, agent.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, agent.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, ssh.ErrNotConnected), errors.Is(err, ssh.ErrCapacity):
		return http.StatusServiceUnavailable
	}
	switch apperr.KindOf(err) {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.Connection:
		return http.StatusBadGateway
	case apperr.Workspace:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Warn("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	body := errorBody{Error: err.Error()}
	if k := apperr.KindOf(err); k != apperr.Unknown {
		body.Kind = k.String()
	}
	writeJSON(w, status, body)
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.New(apperr.Validation, "decode request", r.URL.Path, err)
	}
	return nil
}
