// Package server exposes the pipeline components as authenticated JSON
// endpoints.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/eventbus"
	"github.com/julianstephens/daylitd/internal/guardian"
	"github.com/julianstephens/daylitd/internal/logger"
	"github.com/julianstephens/daylitd/internal/models"
	"github.com/julianstephens/daylitd/internal/negotiator"
	"github.com/julianstephens/daylitd/internal/orchestrator"
)

const maxBodyBytes = 1 << 20

type Checker interface {
	Check(ctx context.Context, req guardian.CheckRequest) (*guardian.CheckResult, error)
}

type Negotiator interface {
	NegotiateAlert(ctx context.Context, userID, alertID, date, timezone string) (*negotiator.Proposal, error)
}

type Resolver interface {
	Resolve(ctx context.Context, req orchestrator.ResolveRequest) (*orchestrator.ResolveResult, error)
}

type Events interface {
	Publish(ctx context.Context, userID string, eventType constants.EventType, source string, payload interface{}) string
	ProcessEvents(ctx context.Context) (int, error)
}

type Subscribers interface {
	Handler(name string) (eventbus.Handler, bool)
}

// Deps are the components behind the endpoints.
type Deps struct {
	Guardian     Checker
	Negotiator   Negotiator
	Orchestrator Resolver
	Events       Events
	Subscribers  Subscribers
}

type Server struct {
	deps   Deps
	token  string
	addr   string
	server *http.Server
}

// New builds a server. Every endpoint except /health requires token as a
// bearer credential; an empty token rejects every protected request.
func New(deps Deps, addr, token string) *Server {
	s := &Server{deps: deps, addr: addr, token: token}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * constants.DefaultCallTimeout * constants.DefaultMaxRetries,
	}
	return s
}

// Handler returns the routed, authenticated handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": constants.Version})
	})

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/guardian/check", s.handleCheck)
	protected.HandleFunc("POST /v1/negotiator/negotiate", s.handleNegotiate)
	protected.HandleFunc("POST /v1/orchestrator/resolve", s.handleResolve)
	protected.HandleFunc("POST /v1/events", s.handlePublish)
	protected.HandleFunc("POST /v1/events/process", s.handleProcess)
	protected.HandleFunc("POST /v1/subscribers/{name}", s.handleSubscriber)
	mux.Handle("/v1/", s.authenticate(protected))

	return s.logRequests(mux)
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	logger.For("server").Info("Listening", "addr", s.addr)
	err := s.server.ListenAndServe()
	if stderrors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || s.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
			writeError(w, errors.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.For("server").Debug("Request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req guardian.CheckRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.deps.Guardian.Check(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, res)
}

type alertRequest struct {
	UserID   string `json:"userId"`
	AlertID  string `json:"alertId"`
	Date     string `json:"date"`
	Timezone string `json:"timezone"`
}

func (s *Server) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if !decode(w, r, &req) {
		return
	}
	proposal, err := s.deps.Negotiator.NegotiateAlert(r.Context(), req.UserID, req.AlertID, req.Date, req.Timezone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]interface{}{"strategies": proposal.Strategies})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.ResolveRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.deps.Orchestrator.Resolve(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, res)
}

type publishRequest struct {
	UserID    string              `json:"userId"`
	EventType constants.EventType `json:"eventType"`
	Source    string              `json:"source"`
	Payload   json.RawMessage     `json:"payload"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if !decode(w, r, &req) {
		return
	}
	switch {
	case req.UserID == "":
		writeError(w, errors.MissingField("userId"))
		return
	case req.EventType == "":
		writeError(w, errors.MissingField("eventType"))
		return
	case !req.EventType.Valid():
		writeError(w, errors.Validation(errors.CodeInvalidField, "eventType", "unknown event type %q", req.EventType))
		return
	}
	if req.Source == "" {
		req.Source = constants.SourceCLI
	}
	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	id := s.deps.Events.Publish(r.Context(), req.UserID, req.EventType, req.Source, payload)
	if id == "" {
		writeError(w, stderrors.New("publish failed"))
		return
	}
	writeSuccess(w, map[string]string{"eventId": id})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Events.ProcessEvents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]int{"processed": n})
}

func (s *Server) handleSubscriber(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	h, ok := s.deps.Subscribers.Handler(name)
	if !ok {
		writeError(w, errors.ErrNotFound)
		return
	}
	var event models.AgentEvent
	if !decode(w, r, &event) {
		return
	}
	if err := h.Handle(r.Context(), event); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, errors.Validation(errors.CodeInvalidField, "body", "invalid JSON: %v", err))
		return false
	}
	return true
}

// writeSuccess merges body's JSON object fields next to "success": true.
func writeSuccess(w http.ResponseWriter, body interface{}) {
	out := map[string]interface{}{}
	if body != nil {
		raw, err := json.Marshal(body)
		if err == nil {
			err = json.Unmarshal(raw, &out)
		}
		if err != nil {
			writeError(w, err)
			return
		}
	}
	out["success"] = true
	writeJSON(w, http.StatusOK, out)
}

type errorBody struct {
	Code      errors.Code `json:"code"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable"`
}

func writeError(w http.ResponseWriter, err error) {
	status, code, message, retryable := errors.Describe(err)
	l := logger.For("server")
	if status >= http.StatusInternalServerError {
		l.Error("Request failed", "status", status, "code", code, "error", err)
	} else {
		l.Warn("Request rejected", "status", status, "code", code, "error", err)
	}
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   errorBody{Code: code, Message: message, Retryable: retryable},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
