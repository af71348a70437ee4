package service

import (
	"context"
	"errors"
	"time"

	"github.com/okian/perfcal/internal/adapters/repository"
	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/internal/domain/ninebox"
	"github.com/okian/perfcal/internal/domain/potential"
	"github.com/okian/perfcal/internal/domain/scoring"
	"github.com/okian/perfcal/pkg/logger"
	"github.com/okian/perfcal/pkg/metrics"
)

// Recalculation outcomes.
const (
	OutcomeCalculated = "calculated"
	OutcomePending    = "pending"
)

// RecalcReport lists the ratings of a cycle recalculation by outcome.
type RecalcReport struct {
	Calculated []string          `json:"calculated"`
	Pending    []string          `json:"pending"`
	Failed     map[string]string `json:"failed"`
	Took       time.Duration     `json:"took"`
}

// RecalculateRating re-aggregates the rating from the cycle's assignments.
// Without usable data the rating goes back to pending: null score and level.
func (s *Service) RecalculateRating(ctx context.Context, tenantID, ratingID string) (*model.Rating, error) {
	r, _, err := s.recalculate(ctx, tenantID, ratingID)
	return r, err
}

func (s *Service) recalculate(ctx context.Context, tenantID, ratingID string) (*model.Rating, string, error) {
	p, err := s.policy(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}
	var (
		r       *model.Rating
		outcome string
	)
	err = s.update(ctx, "recalculate", func(tx repository.Tx) error {
		var err error
		r, err = ratingOf(tx, tenantID, ratingID, true)
		if err != nil {
			return err
		}
		c, err := writableCycle(tx, tenantID, r.CycleID, "recalculate")
		if err != nil {
			return err
		}
		assignments, err := tx.Assignments(c.ID, r.EmployeeID)
		if err != nil {
			return err
		}
		res, err := scoring.Aggregate(p, scoring.Input{Cycle: *c, EmployeeID: r.EmployeeID, Assignments: assignments})
		switch {
		case errors.Is(err, model.ErrDataIncomplete):
			r.CalculatedScore, r.CalculatedLevel, r.RoleScores = nil, "", nil
			outcome = OutcomePending
		case err != nil:
			return err
		default:
			r.CalculatedScore = model.Float(res.Score)
			r.CalculatedLevel = res.Level
			r.RoleScores = res.RoleScores
			outcome = OutcomeCalculated
		}
		now := s.now()
		r.CalculatedAt = &now
		r.UpdatedAt = now
		s.refresh(p, r)
		return tx.UpdateRating(r)
	})
	if err != nil {
		return nil, "", err
	}
	metrics.RecordRatingCalculated(outcome)
	s.logger.Debug(ctx, "rating recalculated",
		logger.String("rating", r.ID),
		logger.String("employee", r.EmployeeID),
		logger.String("outcome", outcome))
	return r, outcome, nil
}

// RecalculateCycle recalculates every rating of the cycle, several at a time.
// One rating's failure does not stop the others.
func (s *Service) RecalculateCycle(ctx context.Context, tenantID, cycleID string) (*RecalcReport, error) {
	var ids []string
	err := s.view(ctx, func(tx repository.Tx) error {
		if _, err := writableCycle(tx, tenantID, cycleID, "recalculate"); err != nil {
			return err
		}
		ratings, err := tx.Ratings(repository.RatingFilter{CycleID: cycleID})
		if err != nil {
			return err
		}
		for _, r := range ratings {
			ids = append(ids, r.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rep := s.pool.Run(ctx, ids, func(ctx context.Context, id string) (string, error) {
		_, outcome, err := s.recalculate(ctx, tenantID, id)
		return outcome, err
	})
	metrics.RecordRecalculationDuration(rep.Took.Seconds())

	out := &RecalcReport{
		Calculated: append([]string{}, rep.ByStatus[OutcomeCalculated]...),
		Pending:    append([]string{}, rep.ByStatus[OutcomePending]...),
		Failed:     make(map[string]string, len(rep.Failed)),
		Took:       rep.Took,
	}
	for id, err := range rep.Failed {
		out.Failed[id] = err.Error()
	}
	s.logger.Info(ctx, "cycle recalculated",
		logger.String("cycle", cycleID),
		logger.Int("calculated", len(out.Calculated)),
		logger.Int("pending", len(out.Pending)),
		logger.Int("failed", len(out.Failed)),
		logger.Duration("took", rep.Took))
	return out, nil
}

// AssessPotential records the potential factors of a rating. Once the rating
// has been through calibration the assessment is frozen unless reassess is set.
func (s *Service) AssessPotential(ctx context.Context, tenantID, ratingID string, f model.PotentialFactors, reassess bool) (*model.Rating, error) {
	score, err := potential.Score(&f)
	if err != nil {
		return nil, err
	}
	p, err := s.policy(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var r *model.Rating
	err = s.update(ctx, "assess_potential", func(tx repository.Tx) error {
		var err error
		r, err = ratingOf(tx, tenantID, ratingID, true)
		if err != nil {
			return err
		}
		if _, err := writableCycle(tx, tenantID, r.CycleID, "assess_potential"); err != nil {
			return err
		}
		if !reassess {
			adjusted, err := tx.RatingAdjusted(r.ID)
			if err != nil {
				return err
			}
			if adjusted {
				return model.Conflict("rating", r.ID, "calibrated", "assess_potential", "potential is frozen after calibration; reassess explicitly")
			}
		}
		r.Potential = &f
		r.PotentialScore = model.Float(score)
		r.UpdatedAt = s.now()
		s.refresh(p, r)
		return tx.UpdateRating(r)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordPotentialAssessment()
	s.logger.Debug(ctx, "potential assessed",
		logger.String("rating", r.ID),
		logger.Float64("score", score),
		logger.Bool("reassess", reassess))
	return r, nil
}

// Rating returns one rating with its nine-box position re-derived from the
// current scores.
func (s *Service) Rating(ctx context.Context, tenantID, ratingID string) (*model.Rating, error) {
	p, err := s.policy(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var r *model.Rating
	err = s.view(ctx, func(tx repository.Tx) error {
		var err error
		r, err = ratingOf(tx, tenantID, ratingID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.NineBoxPosition = s.classifier.ClassifyRating(p, r)
	return r, nil
}

// GridFilter narrows a grid to a department, a manager's reports or a
// session roster. Empty fields do not filter.
type GridFilter struct {
	Department string
	ManagerID  string
	SessionID  string
}

// Grid places the cycle's ratings on the nine-box grid.
func (s *Service) Grid(ctx context.Context, tenantID, cycleID string, f GridFilter) (*ninebox.Grid, error) {
	p, err := s.policy(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var ratings []*model.Rating
	err = s.view(ctx, func(tx repository.Tx) error {
		if _, err := cycleOf(tx, tenantID, cycleID); err != nil {
			return err
		}
		filter := repository.RatingFilter{CycleID: cycleID, Department: f.Department, ManagerID: f.ManagerID}
		if f.SessionID != "" {
			sess, err := sessionOf(tx, tenantID, f.SessionID, false)
			if err != nil {
				return err
			}
			if len(sess.RatingIDs) == 0 {
				return nil
			}
			filter.IDs = sess.RatingIDs
		}
		ratings, err = tx.Ratings(filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	values := make([]model.Rating, 0, len(ratings))
	for _, r := range ratings {
		values = append(values, *r)
	}
	g := s.classifier.Summarize(p, values)
	return &g, nil
}

// Ranking returns the top n scored ratings of a cycle. Pending ratings are
// left out.
func (s *Service) Ranking(ctx context.Context, tenantID, cycleID string, n int) ([]repository.Ranked, error) {
	if n < 1 || n > s.maxRanking {
		return nil, model.Invalid("limit", n, "must be between 1 and the configured maximum")
	}
	var out []repository.Ranked
	err := s.view(ctx, func(tx repository.Tx) error {
		if _, err := cycleOf(tx, tenantID, cycleID); err != nil {
			return err
		}
		var err error
		out, err = tx.TopRatings(cycleID, n)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
