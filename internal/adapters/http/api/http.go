// Package api exposes the calibration engine over JSON HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/perfcal/internal/app"
	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/pkg/logger"
)

// Request headers carrying the caller identity. Authentication happens in
// front of the engine; the values are trusted as given.
const (
	HeaderTenant         = "X-Tenant-ID"
	HeaderActorID        = "X-Actor-ID"
	HeaderActorRoles     = "X-Actor-Roles"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	CycleDependencies
	SessionDependencies
	ArtifactDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	cycleHandler    *CycleHandler
	sessionHandler  *SessionHandler
	artifactHandler *ArtifactHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, log logger.Logger) *Server {
	if log == nil {
		log = logger.Get()
	}
	b := newBase(log.Named("api"))
	return &Server{
		healthHandler:   NewHealthHandler(),
		cycleHandler:    &CycleHandler{base: b, deps: deps},
		sessionHandler:  &SessionHandler{base: b, deps: deps},
		artifactHandler: &ArtifactHandler{base: b, deps: deps},
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}
	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)

	c := s.cycleHandler
	route("POST /cycles", "cycles", c.HandleCreateCycle)
	route("GET /cycles/{cycleID}", "cycle", c.HandleGetCycle)
	route("POST /cycles/{cycleID}/advance", "cycle_advance", c.HandleAdvanceCycle)
	route("POST /cycles/{cycleID}/employees", "cycle_employees", c.HandleEnroll)
	route("POST /cycles/{cycleID}/assignments", "cycle_assignments", c.HandleRecordAssignment)
	route("POST /cycles/{cycleID}/recalculate", "cycle_recalculate", c.HandleRecalculateCycle)
	route("GET /cycles/{cycleID}/grid", "cycle_grid", c.HandleGrid)
	route("GET /cycles/{cycleID}/ranking", "cycle_ranking", c.HandleRanking)
	route("GET /ratings/{ratingID}", "rating", c.HandleGetRating)
	route("POST /ratings/{ratingID}/recalculate", "rating_recalculate", c.HandleRecalculateRating)
	route("PUT /ratings/{ratingID}/potential", "rating_potential", c.HandleAssessPotential)

	ss := s.sessionHandler
	route("POST /sessions", "sessions", ss.HandleCreateSession)
	route("GET /sessions/{sessionID}", "session", ss.HandleGetSession)
	route("POST /sessions/{sessionID}/roster", "session_roster", ss.HandleAddToRoster)
	route("POST /sessions/{sessionID}/start", "session_start", ss.HandleStart)
	route("POST /sessions/{sessionID}/sign-off", "session_sign_off", ss.HandleSignOff)
	route("POST /sessions/{sessionID}/close", "session_close", ss.HandleClose)
	route("POST /sessions/{sessionID}/cancel", "session_cancel", ss.HandleCancel)
	route("GET /sessions/{sessionID}/adjustments", "session_adjustments", ss.HandleListAdjustments)
	route("POST /sessions/{sessionID}/adjustments", "session_adjust", ss.HandleAdjust)
	route("POST /sessions/{sessionID}/adjustments/{adjustmentID}/revert", "session_revert", ss.HandleRevert)
	route("GET /sessions/{sessionID}/bonus", "session_bonus", ss.HandleBonus)

	a := s.artifactHandler
	route("GET /sessions/{sessionID}/artifacts", "session_artifacts", a.HandleList)
	route("POST /sessions/{sessionID}/artifacts", "session_regenerate", a.HandleRegenerate)
	route("GET /artifacts/{artifactID}", "artifact", a.HandleGet)
	route("POST /artifacts/verify", "artifact_verify", a.HandleVerify)
}

// Handler returns a mux with every route registered.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	s.Register(ctx, mux)
	return mux
}

// base carries what every handler shares.
type base struct {
	log      logger.Logger
	validate *validator.Validate
}

func newBase(log logger.Logger) *base {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names so errors match the request document
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &base{log: log, validate: v}
}

// decode reads a JSON body into dst and validates it.
func (b *base) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := b.validate.Struct(dst); err != nil {
		var fe validator.ValidationErrors
		if errors.As(err, &fe) && len(fe) > 0 {
			return model.Invalid(fe[0].Field(), fe[0].Value(), "failed "+fe[0].Tag()+" check")
		}
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// tenant returns the caller's tenant.
func tenant(r *http.Request) (string, error) {
	t := strings.TrimSpace(r.Header.Get(HeaderTenant))
	if t == "" {
		return "", ErrMissingTenant
	}
	return t, nil
}

// actor reads the caller identity. Roles is a comma separated list of
// "facilitator" and "panelist".
func actor(r *http.Request) model.Actor {
	a := model.Actor{ID: strings.TrimSpace(r.Header.Get(HeaderActorID))}
	for _, role := range strings.Split(r.Header.Get(HeaderActorRoles), ",") {
		switch strings.ToLower(strings.TrimSpace(role)) {
		case "facilitator":
			a.Facilitator = true
		case "panelist":
			a.Panelist = true
		}
	}
	return a
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	State   string `json:"state,omitempty"`
	Retry   bool   `json:"retry,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fail maps err onto a status code and error document.
func (b *base) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *model.ValidationError
		sc *model.StateConflictError
		ie *model.IntegrityError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Code: "validation_failed", Message: err.Error(), Field: ve.Field})
	case errors.As(err, &sc):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "state_conflict", Message: err.Error(), State: sc.State})
	case errors.As(err, &ie):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "integrity_conflict", Message: err.Error(), Retry: true})
	case errors.Is(err, service.ErrIdempotencyInFlight):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "in_flight", Message: err.Error(), Retry: true})
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "not_found", Message: err.Error()})
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrMissingTenant):
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Message: err.Error()})
	default:
		b.log.Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "internal_error", Message: http.StatusText(http.StatusInternalServerError)})
	}
}
