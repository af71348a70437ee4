package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/perfcal/internal/adapters/repository"
	service "github.com/okian/perfcal/internal/app"
	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/internal/domain/ninebox"
)

const defaultRankingLimit = 10

// CycleDependencies covers cycles and the ratings inside them.
type CycleDependencies interface {
	CreateCycle(ctx context.Context, spec service.CycleSpec) (*model.Cycle, error)
	Cycle(ctx context.Context, tenantID, cycleID string) (*model.Cycle, error)
	AdvanceCycle(ctx context.Context, tenantID, cycleID string, status model.CycleStatus) (*model.Cycle, error)
	EnrollEmployees(ctx context.Context, tenantID, cycleID string, employees []model.Employee) ([]*model.Rating, error)
	RecordAssignment(ctx context.Context, tenantID string, a model.EvaluationAssignment) (*model.EvaluationAssignment, error)
	RecalculateCycle(ctx context.Context, tenantID, cycleID string) (*service.RecalcReport, error)
	RecalculateRating(ctx context.Context, tenantID, ratingID string) (*model.Rating, error)
	AssessPotential(ctx context.Context, tenantID, ratingID string, f model.PotentialFactors, reassess bool) (*model.Rating, error)
	Rating(ctx context.Context, tenantID, ratingID string) (*model.Rating, error)
	Grid(ctx context.Context, tenantID, cycleID string, f service.GridFilter) (*ninebox.Grid, error)
	Ranking(ctx context.Context, tenantID, cycleID string, n int) ([]repository.Ranked, error)
}

// CycleHandler handles cycle and rating requests.
type CycleHandler struct {
	*base
	deps CycleDependencies
}

// HandleCreateCycle handles POST /cycles.
func (h *CycleHandler) HandleCreateCycle(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createCycleRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	roles := make([]model.RaterRole, 0, len(req.Roles))
	for _, role := range req.Roles {
		roles = append(roles, model.RaterRole(role))
	}
	c, err := h.deps.CreateCycle(r.Context(), service.CycleSpec{
		TenantID:        t,
		Name:            req.Name,
		Roles:           roles,
		MinSubordinates: req.MinSubordinates,
		CloseDate:       req.CloseDate,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleGetCycle handles GET /cycles/{cycleID}.
func (h *CycleHandler) HandleGetCycle(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.deps.Cycle(r.Context(), t, r.PathValue("cycleID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleAdvanceCycle handles POST /cycles/{cycleID}/advance.
func (h *CycleHandler) HandleAdvanceCycle(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req advanceRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.deps.AdvanceCycle(r.Context(), t, r.PathValue("cycleID"), model.CycleStatus(req.Status))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleEnroll handles POST /cycles/{cycleID}/employees.
func (h *CycleHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req enrollRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	employees := make([]model.Employee, 0, len(req.Employees))
	for _, e := range req.Employees {
		employees = append(employees, model.Employee{ID: e.ID, Name: e.Name, Department: e.Department, ManagerID: e.ManagerID})
	}
	ratings, err := h.deps.EnrollEmployees(r.Context(), t, r.PathValue("cycleID"), employees)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ratings)
}

// HandleRecordAssignment handles POST /cycles/{cycleID}/assignments.
func (h *CycleHandler) HandleRecordAssignment(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req assignmentRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.deps.RecordAssignment(r.Context(), t, req.model(r.PathValue("cycleID")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleRecalculateCycle handles POST /cycles/{cycleID}/recalculate.
func (h *CycleHandler) HandleRecalculateCycle(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rep, err := h.deps.RecalculateCycle(r.Context(), t, r.PathValue("cycleID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleGrid handles GET /cycles/{cycleID}/grid.
func (h *CycleHandler) HandleGrid(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	g, err := h.deps.Grid(r.Context(), t, r.PathValue("cycleID"), service.GridFilter{
		Department: q.Get("department"),
		ManagerID:  q.Get("manager_id"),
		SessionID:  q.Get("session_id"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// HandleRanking handles GET /cycles/{cycleID}/ranking?limit=n.
func (h *CycleHandler) HandleRanking(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit := defaultRankingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			h.fail(w, r, model.Invalid("limit", raw, "must be an integer"))
			return
		}
	}
	rows, err := h.deps.Ranking(r.Context(), t, r.PathValue("cycleID"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleGetRating handles GET /ratings/{ratingID}.
func (h *CycleHandler) HandleGetRating(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rating, err := h.deps.Rating(r.Context(), t, r.PathValue("ratingID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

// HandleRecalculateRating handles POST /ratings/{ratingID}/recalculate.
func (h *CycleHandler) HandleRecalculateRating(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rating, err := h.deps.RecalculateRating(r.Context(), t, r.PathValue("ratingID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

// HandleAssessPotential handles PUT /ratings/{ratingID}/potential.
func (h *CycleHandler) HandleAssessPotential(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req potentialRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	f := model.PotentialFactors{Aspiration: req.Aspiration, Ability: req.Ability, Engagement: req.Engagement}
	rating, err := h.deps.AssessPotential(r.Context(), t, r.PathValue("ratingID"), f, req.Reassess)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}
