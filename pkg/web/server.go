// Package web serves the up-to-date check over HTTP for build orchestrators and
// streams check, telemetry and snapshot events to subscribers.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ritzau/fast-uptodate/pkg/logging"
	"github.com/ritzau/fast-uptodate/pkg/model"
	"github.com/ritzau/fast-uptodate/pkg/pubsub"
	"github.com/ritzau/fast-uptodate/pkg/snapshot"
	"github.com/ritzau/fast-uptodate/pkg/telemetry"
	"github.com/ritzau/fast-uptodate/pkg/uptodate"
)

// TopicCheck carries a CheckStatus after every Build check served over HTTP
const TopicCheck = "check"

// Topics lists the topics clients may subscribe to
var Topics = []string{TopicCheck, telemetry.TopicTelemetry, snapshot.TopicSnapshot}

// DisabledMessage is reported when configuration turns the check off
const DisabledMessage = "The fast up-to-date check is disabled by configuration, not up to date."

// NewPublisher creates a publisher with retention for every served topic
func NewPublisher() *pubsub.SSEPublisher {
	p := pubsub.NewSSEPublisher()
	// check and snapshot: new subscribers only need the current state
	p.ConfigureTopic(TopicCheck, pubsub.TopicConfig{BufferSize: 1})
	p.ConfigureTopic(snapshot.TopicSnapshot, pubsub.TopicConfig{BufferSize: 1})
	// telemetry: a short history of outcomes
	p.ConfigureTopic(telemetry.TopicTelemetry, pubsub.TopicConfig{BufferSize: 50, ReplayAll: true})
	return p
}

// Checker is the part of uptodate.Checker the server drives
type Checker interface {
	Check(action model.BuildAction) uptodate.Result
	BuildStarted(at time.Time)
}

// Server represents the web server
type Server struct {
	router    *mux.Router
	checker   Checker
	snapshots uptodate.SnapshotSource
	publisher pubsub.Publisher
	tasks     *uptodate.TaskQueue
	enabled   bool
	now       func() time.Time
}

// Option configures a Server
type Option func(*Server)

// WithEnabled turns the check on or off; a disabled server answers every check as not up to date
func WithEnabled(enabled bool) Option {
	return func(s *Server) { s.enabled = enabled }
}

// WithTasks exposes tasks to build orchestrators under /api/tasks. The same queue
// must be the checker's task tracker for pending tasks to fail checks.
func WithTasks(tasks *uptodate.TaskQueue) Option {
	return func(s *Server) { s.tasks = tasks }
}

// WithClock replaces time.Now for build start records
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates a server checking with checker and reporting snapshots from snapshots
func NewServer(checker Checker, snapshots uptodate.SnapshotSource, publisher pubsub.Publisher, opts ...Option) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		checker:   checker,
		snapshots: snapshots,
		publisher: publisher,
		enabled:   true,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.RequestIDMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/check", s.handleCheck).Methods(http.MethodGet)
	api.HandleFunc("/build/started", s.handleBuildStarted).Methods(http.MethodPost)
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/subscribe/{topic}", s.handleSubscribe).Methods(http.MethodGet)
	if s.tasks != nil {
		api.HandleFunc("/tasks", s.handleTasks).Methods(http.MethodGet)
		api.HandleFunc("/tasks/begin", s.handleTaskBegin).Methods(http.MethodPost)
		api.HandleFunc("/tasks/{id}/end", s.handleTaskEnd).Methods(http.MethodPost)
	}
}

// ServeHTTP makes the server usable as an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	action := model.ActionBuild
	if raw := r.URL.Query().Get("action"); raw != "" {
		parsed, err := model.ParseBuildAction(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		action = parsed
	}

	if !s.enabled {
		project := uptodate.ProjectName(s.snapshots.Current().Properties.FullPath)
		writeJSON(w, http.StatusOK, uptodate.Result{
			Lines: []string{uptodate.FormatLine(DisabledMessage, project)},
		})
		return
	}

	res := s.checker.Check(action)
	ctx = logging.WithCheckID(ctx, res.CheckID)
	logging.DebugContext(ctx, "check served", "action", string(action), "upToDate", res.UpToDate)

	if action == model.ActionBuild {
		status := pubsub.CheckStatus{
			Project:  s.snapshots.Current().Properties.FullPath,
			CheckID:  res.CheckID,
			UpToDate: res.UpToDate,
			Reason:   string(res.Reason),
			Lines:    res.Lines,
		}
		if err := s.publisher.Publish(TopicCheck, "result", status); err != nil {
			logging.WarnContext(ctx, "failed to publish check status", "error", err)
		}
	}
	if res.Lines == nil {
		res.Lines = []string{}
	}
	writeJSON(w, http.StatusOK, res)
}

type buildStartedRequest struct {
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

type buildStartedResponse struct {
	StartedAt time.Time `json:"startedAt"`
}

func (s *Server) handleBuildStarted(w http.ResponseWriter, r *http.Request) {
	var req buildStartedRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}
	at := s.now()
	if req.StartedAt != nil {
		at = *req.StartedAt
	}
	s.checker.BuildStarted(at)
	logging.InfoContext(r.Context(), "build started", "at", at.UTC())
	writeJSON(w, http.StatusOK, buildStartedResponse{StartedAt: at.UTC()})
}

type taskBeginRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleTaskBegin(w http.ResponseWriter, r *http.Request) {
	var req taskBeginRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}
	id := s.tasks.Start(req.Name)
	logging.InfoContext(r.Context(), "critical task started", "task", id, "name", req.Name)
	writeJSON(w, http.StatusCreated, uptodate.Task{ID: id, Name: req.Name})
}

func (s *Server) handleTaskEnd(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.tasks.Finish(id) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no pending task %q", id))
		return
	}
	logging.InfoContext(r.Context(), "critical task finished", "task", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tasks.Pending())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshots.Current().Summary())
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if !knownTopic(topic) {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown topic %q", topic))
		return
	}
	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := pubsub.Stream(r.Context(), w, sub); err != nil {
		logging.WarnContext(r.Context(), "event stream ended", "topic", topic, "error", err)
	}
}

func knownTopic(topic string) bool {
	for _, t := range Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// Start serves on port until ctx is done
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		// Event streams end with ctx instead of holding up Shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		logging.Info("starting web server", "url", fmt.Sprintf("http://localhost:%d", port))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server shutdown: %w", err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", "error", err)
	}
}
