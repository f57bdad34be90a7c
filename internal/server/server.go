package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ldi/taskdesk/internal/assistant"
	"github.com/ldi/taskdesk/internal/db"
	"github.com/ldi/taskdesk/pkg/models"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type Server struct {
	db        *db.DB
	assistant *assistant.Assistant
	logger    *zap.Logger
	now       func() time.Time

	// server exists from construction so Shutdown may run before, during or
	// after ListenAndServe.
	server     *http.Server
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

func NewServer(database *db.DB, a *assistant.Assistant, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{db: database, assistant: a, logger: logger, now: time.Now}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, s.logRequests, middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Post("/drafts/commit", s.handleCommitDraft)
		r.Get("/contacts", s.handleContacts)
		r.Get("/tasks", s.handleTasks)
		r.Patch("/tasks/{id}/status", s.handleTaskStatus)
		r.Get("/stats", s.handleStats)
		r.Get("/sessions/{id}/transcript", s.handleTranscript)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			s.respondError(w, http.StatusNotFound, errors.New("not found"))
		})
	})

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(r)
}

// ListenAndServe serves on addr until Shutdown. It returns nil once the
// server has been shut down, including when Shutdown ran first, and without
// listening when ctx is already done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if ctx.Err() != nil {
		return nil
	}
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.logger.Info("starting http server", zap.String("addr", ln.Addr().String()))
	err = s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the listener and waits for in-flight requests until ctx
// expires, then cancels whatever is still running.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.cancelBase()
	return s.server.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		switch {
		case ww.Status() >= 500:
			s.logger.Error(http.StatusText(ww.Status()), fields...)
		case ww.Status() >= 400:
			s.logger.Warn(http.StatusText(ww.Status()), fields...)
		default:
			s.logger.Debug(http.StatusText(ww.Status()), fields...)
		}
	})
}

type askRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type askResponse struct {
	SessionID string `json:"session_id"`
	assistant.Reply
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Text == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}
	if req.SessionID == "" {
		req.SessionID = assistant.NewSessionID()
	}

	reply := s.assistant.Handle(r.Context(), req.SessionID, req.Text)
	s.respond(w, http.StatusOK, askResponse{SessionID: req.SessionID, Reply: reply})
}

type commitRequest struct {
	SessionID string `json:"session_id"`
	models.TaskDraft
}

func (s *Server) handleCommitDraft(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.SessionID == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("session_id is required"))
		return
	}

	task, err := s.assistant.CommitDraft(r.Context(), req.SessionID, &req.TaskDraft)
	switch {
	case errors.Is(err, assistant.ErrNoDraft):
		s.respondError(w, http.StatusNotFound, err)
	case errors.Is(err, assistant.ErrNoAssignee), errors.Is(err, db.ErrContactNotFound):
		s.respondError(w, http.StatusUnprocessableEntity, err)
	case err != nil:
		s.respondError(w, http.StatusInternalServerError, err)
	default:
		s.respond(w, http.StatusCreated, task)
	}
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.db.ListContacts(r.Context())
	s.respondResult(w, contacts, err)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	var status *models.TaskStatus
	if q := r.URL.Query().Get("status"); q != "" {
		ts := models.TaskStatus(q)
		if !ts.Valid() {
			s.respondError(w, http.StatusBadRequest, errors.New("unknown status "+q))
			return
		}
		status = &ts
	}
	tasks, err := s.db.ListTasks(r.Context(), status)
	s.respondResult(w, tasks, err)
}

type statusRequest struct {
	Status models.TaskStatus `json:"status"`
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, errors.New("task id must be a number"))
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if !req.Status.Valid() {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("unknown status %q", req.Status))
		return
	}

	err = s.db.UpdateTaskStatus(r.Context(), id, req.Status)
	if errors.Is(err, db.ErrTaskNotFound) {
		s.respondError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.respondResult(w, nil, err)
		return
	}
	task, err := s.db.GetTask(r.Context(), id)
	s.respondResult(w, task, err)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats(r.Context(), s.now())
	s.respondResult(w, stats, err)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.respond(w, http.StatusOK, s.assistant.Sessions().Transcript(id))
}

func (s *Server) respondResult(w http.ResponseWriter, data any, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, db.ErrPoolExhausted) {
			status = http.StatusServiceUnavailable
		}
		s.respondError(w, status, err)
		return
	}
	s.respond(w, http.StatusOK, data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.respond(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}
