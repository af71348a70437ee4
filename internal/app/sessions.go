package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/okian/perfcal/internal/adapters/repository"
	"github.com/okian/perfcal/internal/domain/audit"
	"github.com/okian/perfcal/internal/domain/calibration"
	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/internal/domain/policy"
	"github.com/okian/perfcal/pkg/logger"
	"github.com/okian/perfcal/pkg/metrics"
)

// SessionSpec describes a new calibration session. The roster is the
// explicit RatingIDs, or every rating of the cycle matching Department and
// ManagerID; at least one of the three must be set.
type SessionSpec struct {
	CycleID     string
	Name        string
	Panelists   []model.Panelist
	Department  string
	ManagerID   string
	RatingIDs   []string
	ScheduledAt *time.Time
	// RequireSignOff overrides the tenant policy when set.
	RequireSignOff *bool
}

// CreateSession opens a draft session facilitated by actor.
func (s *Service) CreateSession(ctx context.Context, tenantID string, actor model.Actor, spec SessionSpec) (*model.CalibrationSession, error) {
	if !actor.Facilitator || actor.ID == "" {
		return nil, model.Conflict("actor", actor.ID, "not_facilitator", "create_session", "only a facilitator may create a session")
	}
	if strings.TrimSpace(spec.Name) == "" {
		return nil, model.Invalid("name", nil, "required")
	}
	if spec.Department == "" && spec.ManagerID == "" && len(spec.RatingIDs) == 0 {
		return nil, model.Invalid("scope", nil, "department, manager_id or rating_ids is required")
	}
	panelists, err := seat(spec.Panelists)
	if err != nil {
		return nil, err
	}
	p, err := s.policy(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	requireSignOff := p.RequireSignOff
	if spec.RequireSignOff != nil {
		requireSignOff = *spec.RequireSignOff
	}

	var sess *model.CalibrationSession
	err = s.update(ctx, "create_session", func(tx repository.Tx) error {
		if _, err := writableCycle(tx, tenantID, spec.CycleID, "create_session"); err != nil {
			return err
		}
		ratings, err := tx.Ratings(repository.RatingFilter{
			CycleID:    spec.CycleID,
			Department: spec.Department,
			ManagerID:  spec.ManagerID,
			IDs:        spec.RatingIDs,
		})
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(ratings))
		for _, r := range ratings {
			ids = append(ids, r.ID)
		}
		if err := missing(spec.RatingIDs, ids); err != nil {
			return err
		}
		if err := rosterFree(tx, spec.CycleID, "", ids); err != nil {
			return err
		}
		now := s.now()
		sess = &model.CalibrationSession{
			ID:             s.newID(),
			TenantID:       tenantID,
			CycleID:        spec.CycleID,
			Name:           strings.TrimSpace(spec.Name),
			Status:         model.SessionDraft,
			FacilitatorID:  actor.ID,
			Panelists:      panelists,
			RatingIDs:      ids,
			RequireSignOff: requireSignOff,
			Version:        1,
			ScheduledAt:    spec.ScheduledAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.CreateSession(sess)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "session created",
		logger.String("session", sess.ID),
		logger.String("cycle", sess.CycleID),
		logger.Int("roster", len(sess.RatingIDs)),
		logger.Int("panelists", len(sess.Panelists)))
	return sess, nil
}

// seat validates panelist ids and drops repeats.
func seat(in []model.Panelist) ([]model.Panelist, error) {
	out := make([]model.Panelist, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, p := range in {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, model.Invalid("panelists", p.Name, "panelist id is required")
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, model.Panelist{ID: id, Name: p.Name, Required: p.Required})
	}
	return out, nil
}

// missing reports requested ids that did not resolve to a rating of the cycle.
func missing(requested, found []string) error {
	have := make(map[string]bool, len(found))
	for _, id := range found {
		have[id] = true
	}
	for _, id := range requested {
		if !have[id] {
			return model.Invalid("rating_ids", id, "rating not found in cycle")
		}
	}
	return nil
}

// rosterFree rejects ratings already seated in another open session.
func rosterFree(tx repository.Tx, cycleID, selfID string, ids []string) error {
	open, err := tx.OpenSessions(cycleID)
	if err != nil {
		return err
	}
	for _, o := range open {
		if o.ID == selfID {
			continue
		}
		for _, id := range ids {
			if o.InRoster(id) {
				return model.Conflict("rating", id, "in_session", string(calibration.EventEditRoster), "already in open session "+o.ID)
			}
		}
	}
	return nil
}

// AddToRoster adds ratings to a draft session.
func (s *Service) AddToRoster(ctx context.Context, tenantID, sessionID string, actor model.Actor, ratingIDs []string) (*model.CalibrationSession, error) {
	if len(ratingIDs) == 0 {
		return nil, model.Invalid("rating_ids", nil, "at least one rating is required")
	}
	return s.transition(ctx, tenantID, sessionID, calibration.EventEditRoster, func(tx repository.Tx, sess *model.CalibrationSession, now time.Time) error {
		ratings, err := tx.Ratings(repository.RatingFilter{CycleID: sess.CycleID, IDs: ratingIDs})
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(ratings))
		for _, r := range ratings {
			ids = append(ids, r.ID)
		}
		if err := missing(ratingIDs, ids); err != nil {
			return err
		}
		if err := rosterFree(tx, sess.CycleID, sess.ID, ids); err != nil {
			return err
		}
		return calibration.EditRoster(sess, actor, append(append([]string{}, sess.RatingIDs...), ids...), now)
	})
}

// StartSession moves a draft session into progress.
func (s *Service) StartSession(ctx context.Context, tenantID, sessionID string, actor model.Actor) (*model.CalibrationSession, error) {
	return s.transition(ctx, tenantID, sessionID, calibration.EventStart, func(_ repository.Tx, sess *model.CalibrationSession, now time.Time) error {
		return calibration.Start(sess, actor, now)
	})
}

// SignOff records a panelist's approval of the session.
func (s *Service) SignOff(ctx context.Context, tenantID, sessionID string, actor model.Actor) (*model.CalibrationSession, error) {
	return s.transition(ctx, tenantID, sessionID, calibration.EventSignOff, func(_ repository.Tx, sess *model.CalibrationSession, now time.Time) error {
		return calibration.SignOff(sess, actor, now)
	})
}

// transition locks the session, applies fn and writes the session back.
func (s *Service) transition(ctx context.Context, tenantID, sessionID string, ev calibration.Event, fn func(tx repository.Tx, sess *model.CalibrationSession, now time.Time) error) (*model.CalibrationSession, error) {
	var sess *model.CalibrationSession
	err := s.update(ctx, string(ev), func(tx repository.Tx) error {
		var err error
		sess, err = sessionOf(tx, tenantID, sessionID, true)
		if err != nil {
			return err
		}
		if _, err := writableCycle(tx, tenantID, sess.CycleID, string(ev)); err != nil {
			return err
		}
		if err := fn(tx, sess, s.now()); err != nil {
			return err
		}
		return tx.UpdateSession(sess)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordSessionTransition(string(ev))
	s.logger.Info(ctx, "session transition",
		logger.String("session", sess.ID),
		logger.String("event", string(ev)),
		logger.String("status", string(sess.Status)))
	return sess, nil
}

// Adjust applies a calibrated score to a roster member. A non-empty key
// makes the call idempotent: a replay returns the entry of the first call.
func (s *Service) Adjust(ctx context.Context, tenantID, sessionID string, actor model.Actor, req calibration.AdjustRequest, key string) (*model.CalibrationAdjustment, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if key == "" {
		return s.adjust(ctx, tenantID, sessionID, actor, req)
	}

	scoped := tenantID + "|" + sessionID + "|" + key
	if s.deduper.SeenAndRecord(ctx, scoped) {
		id, done := s.deduper.Result(ctx, scoped)
		if !done {
			return nil, ErrIdempotencyInFlight
		}
		metrics.RecordIdempotentReplay()
		s.logger.Debug(ctx, "idempotent replay", logger.String("key", key), logger.String("adjustment", id))
		return s.adjustment(ctx, tenantID, sessionID, id)
	}
	entry, err := s.adjust(ctx, tenantID, sessionID, actor, req)
	if err != nil {
		s.deduper.Unrecord(ctx, scoped)
		return nil, err
	}
	s.deduper.Complete(ctx, scoped, entry.ID)
	return entry, nil
}

func (s *Service) adjust(ctx context.Context, tenantID, sessionID string, actor model.Actor, req calibration.AdjustRequest) (*model.CalibrationAdjustment, error) {
	p, err := s.policy(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var entry *model.CalibrationAdjustment
	err = s.update(ctx, string(calibration.EventAdjust), func(tx repository.Tx) error {
		sess, err := sessionOf(tx, tenantID, sessionID, true)
		if err != nil {
			return err
		}
		if _, err := writableCycle(tx, tenantID, sess.CycleID, string(calibration.EventAdjust)); err != nil {
			return err
		}
		// Outside the roster the rating is never read; Adjust reports
		// state, permission and roster problems in that order.
		r := &model.Rating{ID: req.RatingID}
		if sess.InRoster(req.RatingID) {
			if r, err = ratingOf(tx, tenantID, req.RatingID, true); err != nil {
				return err
			}
		}
		now := s.now()
		entry, err = calibration.Adjust(p, sess, r, actor, req, now)
		if err != nil {
			return err
		}
		entry.ID = s.newID()
		return s.record(tx, p, sess, r, entry, now)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordAdjustment(string(entry.Kind))
	s.logger.Info(ctx, "score adjusted",
		logger.String("session", sessionID),
		logger.String("rating", entry.RatingID),
		logger.Int("seq", entry.Seq),
		logger.Float64("final", *entry.FinalScore),
		logger.String("author", entry.AuthorID))
	return entry, nil
}

// record appends entry and writes back the rating and session it changed.
func (s *Service) record(tx repository.Tx, p policy.Policy, sess *model.CalibrationSession, r *model.Rating, entry *model.CalibrationAdjustment, now time.Time) error {
	if err := tx.AppendAdjustment(entry); err != nil {
		return err
	}
	s.refresh(p, r)
	if err := tx.UpdateRating(r); err != nil {
		return err
	}
	sess.UpdatedAt = now
	return tx.UpdateSession(sess)
}

// Revert undoes an apply entry, restoring the rating to the apply beneath
// it. Only the newest standing apply for the rating can be reverted.
func (s *Service) Revert(ctx context.Context, tenantID, sessionID string, actor model.Actor, adjustmentID, justification string) (*model.CalibrationAdjustment, error) {
	p, err := s.policy(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var entry *model.CalibrationAdjustment
	err = s.update(ctx, string(calibration.EventRevert), func(tx repository.Tx) error {
		sess, err := sessionOf(tx, tenantID, sessionID, true)
		if err != nil {
			return err
		}
		if _, err := writableCycle(tx, tenantID, sess.CycleID, string(calibration.EventRevert)); err != nil {
			return err
		}
		target, err := tx.Adjustment(adjustmentID)
		if err != nil {
			return err
		}
		if target.SessionID != sess.ID {
			return model.NotFound("adjustment", adjustmentID)
		}
		r, err := ratingOf(tx, tenantID, target.RatingID, true)
		if err != nil {
			return err
		}
		entries, err := tx.Adjustments(sess.ID)
		if err != nil {
			return err
		}
		now := s.now()
		entry, err = calibration.Revert(p, sess, r, actor, target, entries, justification, now)
		if err != nil {
			return err
		}
		entry.ID = s.newID()
		return s.record(tx, p, sess, r, entry, now)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordAdjustment(string(entry.Kind))
	s.logger.Info(ctx, "adjustment reverted",
		logger.String("session", sessionID),
		logger.String("rating", entry.RatingID),
		logger.String("reverts", entry.RevertsID),
		logger.String("author", entry.AuthorID))
	return entry, nil
}

// CloseSession freezes the session and generates audit artifact version 1
// in the same transaction. Of two concurrent closes exactly one succeeds.
func (s *Service) CloseSession(ctx context.Context, tenantID, sessionID string, actor model.Actor) (*model.CalibrationSession, *model.AuditArtifact, error) {
	p, err := s.policy(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	var (
		sess     *model.CalibrationSession
		artifact *model.AuditArtifact
	)
	err = s.update(ctx, string(calibration.EventClose), func(tx repository.Tx) error {
		var err error
		sess, err = sessionOf(tx, tenantID, sessionID, true)
		if err != nil {
			return err
		}
		if _, err := writableCycle(tx, tenantID, sess.CycleID, string(calibration.EventClose)); err != nil {
			return err
		}
		now := s.now()
		if err := calibration.Close(sess, actor, now); err != nil {
			return err
		}
		if err := tx.UpdateSession(sess); err != nil {
			return err
		}
		artifact, err = s.generate(tx, p, sess, 1, now)
		if err != nil {
			return err
		}
		return tx.SaveArtifact(artifact)
	})
	if err != nil {
		return nil, nil, err
	}
	metrics.RecordSessionTransition(string(calibration.EventClose))
	metrics.RecordArtifactGenerated()
	s.logger.Info(ctx, "session closed",
		logger.String("session", sess.ID),
		logger.String("artifact", artifact.ID),
		logger.Int("rows", len(artifact.Rows)))
	return sess, artifact, nil
}

// generate builds an artifact of the session's log as it stands in tx.
func (s *Service) generate(tx repository.Tx, p policy.Policy, sess *model.CalibrationSession, version int, now time.Time) (*model.AuditArtifact, error) {
	entries, err := tx.Adjustments(sess.ID)
	if err != nil {
		return nil, err
	}
	ratings, err := s.roster(tx, sess)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(ratings))
	for _, r := range ratings {
		names[r.ID] = r.EmployeeName
	}
	bonus := calibration.Bonus(p, s.classifier, ratings)
	return s.generator.Generate(audit.Input{
		Session:      sess,
		Entries:      entries,
		Names:        names,
		BonusFactor:  bonus.Factor,
		Version:      version,
		DisplayLimit: p.JustificationDisplayLimit,
		GeneratedAt:  now,
	})
}

func (s *Service) roster(tx repository.Tx, sess *model.CalibrationSession) ([]*model.Rating, error) {
	if len(sess.RatingIDs) == 0 {
		return []*model.Rating{}, nil
	}
	return tx.Ratings(repository.RatingFilter{CycleID: sess.CycleID, IDs: sess.RatingIDs})
}

// CancelSession abandons the session. Final scores it left behind are
// cleared by compensating revert entries.
func (s *Service) CancelSession(ctx context.Context, tenantID, sessionID string, actor model.Actor) (*model.CalibrationSession, error) {
	p, err := s.policy(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var reverted int
	sess, err := s.transition(ctx, tenantID, sessionID, calibration.EventCancel, func(tx repository.Tx, sess *model.CalibrationSession, now time.Time) error {
		if err := calibration.Cancel(sess, actor, now); err != nil {
			return err
		}
		entries, err := tx.Adjustments(sess.ID)
		if err != nil {
			return err
		}
		ratings := make(map[string]*model.Rating)
		for id := range calibration.Live(entries) {
			if ratings[id], err = ratingOf(tx, tenantID, id, true); err != nil {
				return err
			}
		}
		for _, entry := range calibration.CancelReverts(sess, ratings, entries, actor.ID, now) {
			entry.ID = s.newID()
			if err := tx.AppendAdjustment(entry); err != nil {
				return err
			}
			r := ratings[entry.RatingID]
			s.refresh(p, r)
			if err := tx.UpdateRating(r); err != nil {
				return err
			}
			reverted++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for range reverted {
		metrics.RecordAdjustment(string(model.AdjustmentRevert))
	}
	return sess, nil
}

// Session returns one session.
func (s *Service) Session(ctx context.Context, tenantID, sessionID string) (*model.CalibrationSession, error) {
	var sess *model.CalibrationSession
	err := s.view(ctx, func(tx repository.Tx) error {
		var err error
		sess, err = sessionOf(tx, tenantID, sessionID, false)
		return err
	})
	return sess, err
}

// SessionAdjustments returns the session's log in sequence order.
func (s *Service) SessionAdjustments(ctx context.Context, tenantID, sessionID string) ([]model.CalibrationAdjustment, error) {
	var out []model.CalibrationAdjustment
	err := s.view(ctx, func(tx repository.Tx) error {
		if _, err := sessionOf(tx, tenantID, sessionID, false); err != nil {
			return err
		}
		var err error
		out, err = tx.Adjustments(sessionID)
		return err
	})
	return out, err
}

func (s *Service) adjustment(ctx context.Context, tenantID, sessionID, id string) (*model.CalibrationAdjustment, error) {
	var out *model.CalibrationAdjustment
	err := s.view(ctx, func(tx repository.Tx) error {
		if _, err := sessionOf(tx, tenantID, sessionID, false); err != nil {
			return err
		}
		var err error
		out, err = tx.Adjustment(id)
		return err
	})
	return out, err
}

// BonusFactor is the mean bonus multiplier of the roster as currently scored.
func (s *Service) BonusFactor(ctx context.Context, tenantID, sessionID string) (*calibration.BonusFactor, error) {
	p, err := s.policy(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var ratings []*model.Rating
	err = s.view(ctx, func(tx repository.Tx) error {
		sess, err := sessionOf(tx, tenantID, sessionID, false)
		if err != nil {
			return err
		}
		ratings, err = s.roster(tx, sess)
		return err
	})
	if err != nil {
		return nil, err
	}
	b := calibration.Bonus(p, s.classifier, ratings)
	return &b, nil
}

// IsRetryable reports whether err came from a lost optimistic race.
func IsRetryable(err error) bool { return errors.Is(err, model.ErrIntegrity) }
