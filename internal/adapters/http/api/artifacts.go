package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/perfcal/internal/domain/audit"
	"github.com/okian/perfcal/internal/domain/model"
)

// ArtifactDependencies covers audit artifacts.
type ArtifactDependencies interface {
	Artifacts(ctx context.Context, tenantID, sessionID string) ([]*model.AuditArtifact, error)
	Artifact(ctx context.Context, tenantID, id string) (*model.AuditArtifact, error)
	RegenerateArtifact(ctx context.Context, tenantID, sessionID string) (*model.AuditArtifact, error)
	VerifyArtifact(ctx context.Context, tenantID string, a *model.AuditArtifact) error
}

// ArtifactHandler handles audit artifact requests.
type ArtifactHandler struct {
	*base
	deps ArtifactDependencies
}

// format reads ?format=json|yaml; json is the default.
func format(r *http.Request) (audit.Format, error) {
	switch f := audit.Format(r.URL.Query().Get("format")); f {
	case "", audit.FormatJSON:
		return audit.FormatJSON, nil
	case audit.FormatYAML:
		return f, nil
	default:
		return "", model.Invalid("format", string(f), "must be json or yaml")
	}
}

// HandleList handles GET /sessions/{sessionID}/artifacts.
func (h *ArtifactHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.deps.Artifacts(r.Context(), t, r.PathValue("sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleRegenerate handles POST /sessions/{sessionID}/artifacts.
func (h *ArtifactHandler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.deps.RegenerateArtifact(r.Context(), t, r.PathValue("sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// HandleGet handles GET /artifacts/{artifactID}?format=json|yaml.
func (h *ArtifactHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := format(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.deps.Artifact(r.Context(), t, r.PathValue("artifactID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	doc, err := audit.Render(a, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if f == audit.FormatYAML {
		w.Header().Set("Content-Type", "application/yaml")
	} else {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// HandleVerify handles POST /artifacts/verify?format=json|yaml. The body is
// a rendered artifact; a mismatch answers 409.
func (h *ArtifactHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	t, err := tenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := format(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	a, err := audit.Parse(body, f)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if err := h.deps.VerifyArtifact(r.Context(), t, a); err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			writeJSON(w, http.StatusConflict, errorResponse{Code: "verification_failed", Message: "artifact " + a.ID + " was never issued"})
		case errors.Is(err, model.ErrIntegrity):
			writeJSON(w, http.StatusConflict, errorResponse{Code: "verification_failed", Message: err.Error()})
		default:
			h.fail(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Valid: true, ID: a.ID})
}
