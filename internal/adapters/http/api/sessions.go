package api

import (
	"context"
	"net/http"

	service "github.com/okian/perfcal/internal/app"
	"github.com/okian/perfcal/internal/domain/calibration"
	"github.com/okian/perfcal/internal/domain/model"
)

// SessionDependencies covers calibration sessions.
type SessionDependencies interface {
	CreateSession(ctx context.Context, tenantID string, actor model.Actor, spec service.SessionSpec) (*model.CalibrationSession, error)
	Session(ctx context.Context, tenantID, sessionID string) (*model.CalibrationSession, error)
	AddToRoster(ctx context.Context, tenantID, sessionID string, actor model.Actor, ratingIDs []string) (*model.CalibrationSession, error)
	StartSession(ctx context.Context, tenantID, sessionID string, actor model.Actor) (*model.CalibrationSession, error)
	SignOff(ctx context.Context, tenantID, sessionID string, actor model.Actor) (*model.CalibrationSession, error)
	CloseSession(ctx context.Context, tenantID, sessionID string, actor model.Actor) (*model.CalibrationSession, *model.AuditArtifact, error)
	CancelSession(ctx context.Context, tenantID, sessionID string, actor model.Actor) (*model.CalibrationSession, error)
	Adjust(ctx context.Context, tenantID, sessionID string, actor model.Actor, req calibration.AdjustRequest, key string) (*model.CalibrationAdjustment, error)
	Revert(ctx context.Context, tenantID, sessionID string, actor model.Actor, adjustmentID, justification string) (*model.CalibrationAdjustment, error)
	SessionAdjustments(ctx context.Context, tenantID, sessionID string) ([]model.CalibrationAdjustment, error)
	BonusFactor(ctx context.Context, tenantID, sessionID string) (*calibration.BonusFactor, error)
}

// SessionHandler handles calibration session requests.
type SessionHandler struct {
	*base
	deps SessionDependencies
}

// HandleCreateSession handles POST /sessions.
func (h *SessionHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createSessionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	panelists := make([]model.Panelist, 0, len(req.Panelists))
	for _, p := range req.Panelists {
		panelists = append(panelists, model.Panelist{ID: p.ID, Name: p.Name, Required: p.Required})
	}
	s, err := h.deps.CreateSession(r.Context(), t, actor(r), service.SessionSpec{
		CycleID:        req.CycleID,
		Name:           req.Name,
		Panelists:      panelists,
		Department:     req.Department,
		ManagerID:      req.ManagerID,
		RatingIDs:      req.RatingIDs,
		ScheduledAt:    req.ScheduledAt,
		RequireSignOff: req.RequireSignOff,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// HandleGetSession handles GET /sessions/{sessionID}.
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.deps.Session(r.Context(), t, r.PathValue("sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleAddToRoster handles POST /sessions/{sessionID}/roster.
func (h *SessionHandler) HandleAddToRoster(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req rosterRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.deps.AddToRoster(r.Context(), t, r.PathValue("sessionID"), actor(r), req.RatingIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type transitionFunc func(ctx context.Context, tenantID, sessionID string, actor model.Actor) (*model.CalibrationSession, error)

func (h *SessionHandler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := fn(r.Context(), t, r.PathValue("sessionID"), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleStart handles POST /sessions/{sessionID}/start.
func (h *SessionHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.deps.StartSession)
}

// HandleSignOff handles POST /sessions/{sessionID}/sign-off.
func (h *SessionHandler) HandleSignOff(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.deps.SignOff)
}

// HandleCancel handles POST /sessions/{sessionID}/cancel.
func (h *SessionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.deps.CancelSession)
}

// HandleClose handles POST /sessions/{sessionID}/close. The response carries
// the first audit artifact.
func (h *SessionHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, a, err := h.deps.CloseSession(r.Context(), t, r.PathValue("sessionID"), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, closeResponse{Session: s, Artifact: a})
}

// HandleAdjust handles POST /sessions/{sessionID}/adjustments. An
// Idempotency-Key header makes retries safe.
func (h *SessionHandler) HandleAdjust(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req adjustRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.deps.Adjust(r.Context(), t, r.PathValue("sessionID"), actor(r), calibration.AdjustRequest{
		RatingID:      req.RatingID,
		Score:         *req.FinalScore,
		Justification: req.Justification,
	}, r.Header.Get(HeaderIdempotencyKey))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// HandleRevert handles POST /sessions/{sessionID}/adjustments/{adjustmentID}/revert.
func (h *SessionHandler) HandleRevert(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req revertRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.deps.Revert(r.Context(), t, r.PathValue("sessionID"), actor(r), r.PathValue("adjustmentID"), req.Justification)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// HandleListAdjustments handles GET /sessions/{sessionID}/adjustments.
func (h *SessionHandler) HandleListAdjustments(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	log, err := h.deps.SessionAdjustments(r.Context(), t, r.PathValue("sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

// HandleBonus handles GET /sessions/{sessionID}/bonus.
func (h *SessionHandler) HandleBonus(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.deps.BonusFactor(r.Context(), t, r.PathValue("sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
