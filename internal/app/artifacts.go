package service

import (
	"context"

	"github.com/okian/perfcal/internal/adapters/repository"
	"github.com/okian/perfcal/internal/domain/audit"
	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/pkg/logger"
	"github.com/okian/perfcal/pkg/metrics"
)

// Artifacts lists the artifacts of a session by version.
func (s *Service) Artifacts(ctx context.Context, tenantID, sessionID string) ([]*model.AuditArtifact, error) {
	var out []*model.AuditArtifact
	err := s.view(ctx, func(tx repository.Tx) error {
		if _, err := sessionOf(tx, tenantID, sessionID, false); err != nil {
			return err
		}
		var err error
		out, err = tx.Artifacts(sessionID)
		return err
	})
	return out, err
}

// Artifact returns one artifact by id.
func (s *Service) Artifact(ctx context.Context, tenantID, id string) (*model.AuditArtifact, error) {
	var out *model.AuditArtifact
	err := s.view(ctx, func(tx repository.Tx) error {
		a, err := tx.Artifact(id)
		if err != nil {
			return err
		}
		if a.TenantID != tenantID {
			return model.NotFound("artifact", id)
		}
		out = a
		return nil
	})
	return out, err
}

// RegenerateArtifact issues the next version of a closed session's
// artifact. Earlier versions stay as they were.
func (s *Service) RegenerateArtifact(ctx context.Context, tenantID, sessionID string) (*model.AuditArtifact, error) {
	p, err := s.policy(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var a *model.AuditArtifact
	err = s.update(ctx, "regenerate_artifact", func(tx repository.Tx) error {
		sess, err := sessionOf(tx, tenantID, sessionID, true)
		if err != nil {
			return err
		}
		if sess.Status != model.SessionClosed {
			return model.Conflict("session", sess.ID, string(sess.Status), "regenerate_artifact", "only closed sessions have artifacts")
		}
		existing, err := tx.Artifacts(sess.ID)
		if err != nil {
			return err
		}
		version := 1
		for _, e := range existing {
			if e.Version >= version {
				version = e.Version + 1
			}
		}
		if a, err = s.generate(tx, p, sess, version, s.now()); err != nil {
			return err
		}
		return tx.SaveArtifact(a)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordArtifactGenerated()
	s.logger.Info(ctx, "artifact regenerated",
		logger.String("session", sessionID),
		logger.String("artifact", a.ID),
		logger.Int("version", a.Version))
	return a, nil
}

// VerifyArtifact checks that a presented artifact is self-consistent and
// matches the copy recorded when it was generated.
func (s *Service) VerifyArtifact(ctx context.Context, tenantID string, presented *model.AuditArtifact) error {
	if presented == nil {
		return model.Invalid("artifact", nil, "required")
	}
	err := audit.Verify(presented)
	if err == nil {
		var stored *model.AuditArtifact
		stored, err = s.Artifact(ctx, tenantID, presented.ID)
		if err == nil && stored.ContentDigest != presented.ContentDigest {
			err = model.Integrity("artifact", presented.ID, "does not match the recorded artifact")
		}
	}
	result := "valid"
	if err != nil {
		result = "invalid"
		s.logger.Warn(ctx, "artifact verification failed",
			logger.String("artifact", presented.ID),
			logger.Error(err))
	}
	metrics.RecordArtifactVerification(result)
	return err
}
