// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/marquee/tierlist/internal/adapters/repository"
	service "github.com/marquee/tierlist/internal/app"
	"github.com/marquee/tierlist/internal/domain/insertion"
	"github.com/marquee/tierlist/internal/domain/tier"
	"github.com/marquee/tierlist/internal/domain/types"
	"github.com/marquee/tierlist/internal/validation"
	"github.com/marquee/tierlist/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider

	StartSession(ctx context.Context, req service.StartRequest) (types.Session, error)
	Choose(ctx context.Context, sessionID, winnerID, requestID string) (types.Session, error)
	Skip(ctx context.Context, sessionID string) (types.Session, error)
	Undo(ctx context.Context, sessionID string) (types.Session, error)
	Session(ctx context.Context, sessionID string) (types.Session, error)
	Abandon(ctx context.Context, sessionID string) error

	Predict(ctx context.Context, req service.PredictRequest) (types.Prediction, error)

	Rankings(ctx context.Context, userID string, q service.RankingsQuery) ([]types.Entry, error)
	MoveRanking(ctx context.Context, userID, itemID string, t tier.Tier, rank int) (types.Entry, error)
	RemoveRanking(ctx context.Context, userID, itemID string) error
	Reclassify(ctx context.Context, userID string, apply bool) (types.Reclassification, error)
	ReclassifyAsync(ctx context.Context, userID string) (string, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	sessionsHandler    *SessionsHandler
	predictionsHandler *PredictionsHandler
	rankingsHandler    *RankingsHandler
}

// Option configures a Server.
type Option func(*Server)

// WithMaxLimit caps the limit accepted by GET /rankings/{user}.
func WithMaxLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.rankingsHandler.maxLimit = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		sessionsHandler:    NewSessionsHandler(deps),
		predictionsHandler: NewPredictionsHandler(deps),
		rankingsHandler:    NewRankingsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /sessions", MetricsMiddleware(s.sessionsHandler.HandleStart, "sessions"))
	mux.HandleFunc("GET /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleGet, "session"))
	mux.HandleFunc("DELETE /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleAbandon, "session"))
	mux.HandleFunc("POST /sessions/{id}/choice", MetricsMiddleware(s.sessionsHandler.HandleChoice, "session_choice"))
	mux.HandleFunc("POST /sessions/{id}/skip", MetricsMiddleware(s.sessionsHandler.HandleSkip, "session_skip"))
	mux.HandleFunc("POST /sessions/{id}/undo", MetricsMiddleware(s.sessionsHandler.HandleUndo, "session_undo"))

	mux.HandleFunc("POST /predictions", MetricsMiddleware(s.predictionsHandler.HandlePredict, "predictions"))

	mux.HandleFunc("GET /rankings/{user}", MetricsMiddleware(s.rankingsHandler.HandleList, "rankings"))
	mux.HandleFunc("PATCH /rankings/{user}/{item}", MetricsMiddleware(s.rankingsHandler.HandleMove, "ranking"))
	mux.HandleFunc("DELETE /rankings/{user}/{item}", MetricsMiddleware(s.rankingsHandler.HandleRemove, "ranking"))
	mux.HandleFunc("POST /rankings/{user}/reclassify", MetricsMiddleware(s.rankingsHandler.HandleReclassify, "reclassify"))
}

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Fields  []validation.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Get().Warn(context.Background(), "failed to encode response", logger.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decode reads a JSON body into dst and validates it.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return WrapKind("decode", ErrBadRequest, err)
	}
	return validation.ValidateStruct(dst)
}

// fail maps err onto a status code and writes it.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    "validation_failed",
			Message: verr.Error(),
			Fields:  verr.Fields,
		})
		return
	}

	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Get().Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("method", r.Method),
			logger.Error(err))
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, insertion.ErrInvalidChoice):
		return http.StatusBadRequest, "invalid_choice"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, insertion.ErrInvalidItem),
		errors.Is(err, tier.ErrUnknownTier),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, repository.ErrInvalidItem):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, insertion.ErrSessionComplete):
		return http.StatusConflict, "session_complete"
	case errors.Is(err, insertion.ErrDuplicateItem),
		errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict, "duplicate_item"
	case errors.Is(err, insertion.ErrNotStarted):
		return http.StatusConflict, "session_not_started"
	case errors.Is(err, service.ErrBusy), errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "busy"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
