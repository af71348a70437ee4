package calibration

import (
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/internal/domain/policy"
	"github.com/okian/perfcal/internal/domain/scoring"
)

// AdjustRequest is the input of an adjustment.
type AdjustRequest struct {
	RatingID      string
	Score         float64
	Justification string
}

func requireFacilitator(s *model.CalibrationSession, actor model.Actor, ev Event) error {
	if !actor.Facilitator || actor.ID != s.FacilitatorID {
		return model.Conflict("session", s.ID, string(s.Status), string(ev), "only the facilitator may do this")
	}
	return nil
}

func requireReviewer(s *model.CalibrationSession, actor model.Actor, ev Event) error {
	if actor.Facilitator && actor.ID == s.FacilitatorID {
		return nil
	}
	if _, seated := s.Panelist(actor.ID); actor.Panelist && seated {
		return nil
	}
	return model.Conflict("session", s.ID, string(s.Status), string(ev), "only the facilitator or a seated panelist may do this")
}

// CheckJustification enforces the minimum trimmed length.
func CheckJustification(p policy.Policy, text string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(text)); n < p.MinJustification {
		return model.Invalid("justification", n, "must be at least "+strconv.Itoa(p.MinJustification)+" characters")
	}
	return nil
}

// EditRoster replaces the roster of a draft session.
func EditRoster(s *model.CalibrationSession, actor model.Actor, ratingIDs []string, now time.Time) error {
	if _, err := Next(s, EventEditRoster); err != nil {
		return err
	}
	if err := requireFacilitator(s, actor, EventEditRoster); err != nil {
		return err
	}
	s.RatingIDs = dedupe(ratingIDs)
	s.UpdatedAt = now
	return nil
}

// Start moves a draft session with a non-empty roster into progress.
func Start(s *model.CalibrationSession, actor model.Actor, now time.Time) error {
	next, err := Next(s, EventStart)
	if err != nil {
		return err
	}
	if err := requireFacilitator(s, actor, EventStart); err != nil {
		return err
	}
	if len(s.RatingIDs) == 0 {
		return model.Conflict("session", s.ID, string(s.Status), string(EventStart), "roster is empty")
	}
	s.Status = next
	s.StartedAt = &now
	s.UpdatedAt = now
	return nil
}

// Adjust sets the rating's final score and level and returns the audit entry
// to append. The original snapshot is whatever is authoritative right now,
// so a second adjustment sees the first one's result.
func Adjust(p policy.Policy, s *model.CalibrationSession, r *model.Rating, actor model.Actor, req AdjustRequest, now time.Time) (*model.CalibrationAdjustment, error) {
	if _, err := Next(s, EventAdjust); err != nil {
		return nil, err
	}
	if err := requireReviewer(s, actor, EventAdjust); err != nil {
		return nil, err
	}
	if !s.InRoster(r.ID) {
		return nil, model.Invalid("rating_id", r.ID, "rating is not in the session roster")
	}
	if !p.Scale.Contains(req.Score) {
		return nil, model.Invalid("final_score", req.Score, "outside the rating scale")
	}
	if err := CheckJustification(p, req.Justification); err != nil {
		return nil, err
	}
	level, err := scoring.LevelFor(p, req.Score)
	if err != nil {
		return nil, err
	}

	entry := &model.CalibrationAdjustment{
		SessionID:     s.ID,
		Kind:          model.AdjustmentApply,
		RatingID:      r.ID,
		EmployeeID:    r.EmployeeID,
		OriginalScore: copyFloat(r.EffectiveScore()),
		OriginalLevel: r.EffectiveLevel(),
		FinalScore:    model.Float(req.Score),
		FinalLevel:    level,
		Justification: strings.TrimSpace(req.Justification),
		AuthorID:      actor.ID,
		CreatedAt:     now,
	}
	r.FinalScore = model.Float(req.Score)
	r.FinalLevel = level
	r.UpdatedAt = now
	return entry, nil
}

// Revert undoes an apply entry. Only the newest apply still standing for
// the rating can be reverted; the rating falls back to the apply beneath
// it, or to its calculated score when none is left.
func Revert(p policy.Policy, s *model.CalibrationSession, r *model.Rating, actor model.Actor, target *model.CalibrationAdjustment, entries []model.CalibrationAdjustment, justification string, now time.Time) (*model.CalibrationAdjustment, error) {
	if _, err := Next(s, EventRevert); err != nil {
		return nil, err
	}
	if err := requireReviewer(s, actor, EventRevert); err != nil {
		return nil, err
	}
	if target.SessionID != s.ID || target.RatingID != r.ID {
		return nil, model.Invalid("adjustment_id", target.ID, "adjustment does not belong to this session and rating")
	}
	if target.Kind != model.AdjustmentApply {
		return nil, model.Invalid("adjustment_id", target.ID, "only apply entries can be reverted")
	}
	stack := Live(entries)[r.ID]
	top := len(stack) - 1
	switch {
	case !standing(stack, target.ID):
		return nil, model.Conflict("adjustment", target.ID, "reverted", string(EventRevert), "adjustment was already reverted")
	case stack[top].ID != target.ID:
		return nil, model.Conflict("adjustment", target.ID, "superseded", string(EventRevert), "a later apply exists for this rating")
	}
	if err := CheckJustification(p, justification); err != nil {
		return nil, err
	}
	var below *model.CalibrationAdjustment
	if top > 0 {
		below = &stack[top-1]
	}
	return compensate(s, r, target.ID, below, strings.TrimSpace(justification), actor.ID, now), nil
}

func standing(stack []model.CalibrationAdjustment, id string) bool {
	for _, e := range stack {
		if e.ID == id {
			return true
		}
	}
	return false
}

// compensate builds a revert entry and moves the rating back to restore's
// final value, or clears it when restore is nil.
func compensate(s *model.CalibrationSession, r *model.Rating, revertsID string, restore *model.CalibrationAdjustment, justification, author string, now time.Time) *model.CalibrationAdjustment {
	entry := &model.CalibrationAdjustment{
		SessionID:     s.ID,
		Kind:          model.AdjustmentRevert,
		RevertsID:     revertsID,
		RatingID:      r.ID,
		EmployeeID:    r.EmployeeID,
		OriginalScore: copyFloat(r.FinalScore),
		OriginalLevel: r.FinalLevel,
		Justification: justification,
		AuthorID:      author,
		CreatedAt:     now,
	}
	r.FinalScore, r.FinalLevel = nil, ""
	if restore != nil {
		r.FinalScore, r.FinalLevel = copyFloat(restore.FinalScore), restore.FinalLevel
	}
	entry.FinalScore, entry.FinalLevel = copyFloat(r.FinalScore), r.FinalLevel
	r.UpdatedAt = now
	return entry
}

// SignOff records a seated panelist's approval.
func SignOff(s *model.CalibrationSession, actor model.Actor, now time.Time) error {
	if _, err := Next(s, EventSignOff); err != nil {
		return err
	}
	pan, seated := s.Panelist(actor.ID)
	if !actor.Panelist || !seated {
		return model.Conflict("session", s.ID, string(s.Status), string(EventSignOff), "only a seated panelist may sign off")
	}
	if pan.SignedOffAt == nil {
		pan.SignedOffAt = &now
	}
	s.UpdatedAt = now
	return nil
}

// PendingSignOffs lists required panelists that have not signed off.
func PendingSignOffs(s *model.CalibrationSession) []string {
	var out []string
	for _, pan := range s.Panelists {
		if pan.Required && pan.SignedOffAt == nil {
			out = append(out, pan.ID)
		}
	}
	return out
}

// Close freezes the session. With sign-off required, every required
// panelist must have approved first.
func Close(s *model.CalibrationSession, actor model.Actor, now time.Time) error {
	next, err := Next(s, EventClose)
	if err != nil {
		return err
	}
	if err := requireFacilitator(s, actor, EventClose); err != nil {
		return err
	}
	if s.RequireSignOff {
		if pending := PendingSignOffs(s); len(pending) > 0 {
			return model.Conflict("session", s.ID, string(s.Status), string(EventClose),
				"awaiting sign-off from "+strings.Join(pending, ", "))
		}
	}
	s.Status = next
	s.ClosedAt = &now
	s.UpdatedAt = now
	return nil
}

// Cancel abandons the session. The caller must append the entries returned
// by CancelReverts for ratings the session left with a final score.
func Cancel(s *model.CalibrationSession, actor model.Actor, now time.Time) error {
	next, err := Next(s, EventCancel)
	if err != nil {
		return err
	}
	if err := requireFacilitator(s, actor, EventCancel); err != nil {
		return err
	}
	s.Status = next
	s.CancelledAt = &now
	s.UpdatedAt = now
	return nil
}

// CancelReverts returns the compensating reverts that unwind every apply
// still standing in the session, newest first per rating, so each rating
// ends without a final score.
func CancelReverts(s *model.CalibrationSession, ratings map[string]*model.Rating, entries []model.CalibrationAdjustment, author string, now time.Time) []*model.CalibrationAdjustment {
	live := Live(entries)
	var out []*model.CalibrationAdjustment
	for _, id := range s.RatingIDs {
		r, ok := ratings[id]
		if !ok {
			continue
		}
		stack := live[id]
		for i := len(stack) - 1; i >= 0; i-- {
			var below *model.CalibrationAdjustment
			if i > 0 {
				below = &stack[i-1]
			}
			out = append(out, compensate(s, r, stack[i].ID, below, "session cancelled", author, now))
		}
	}
	return out
}

// Live groups the apply entries no revert has undone by rating, in
// sequence order.
func Live(entries []model.CalibrationAdjustment) map[string][]model.CalibrationAdjustment {
	reverted := make(map[string]struct{})
	for _, e := range entries {
		if e.Kind == model.AdjustmentRevert {
			reverted[e.RevertsID] = struct{}{}
		}
	}
	out := make(map[string][]model.CalibrationAdjustment)
	for _, e := range entries {
		if e.Kind != model.AdjustmentApply {
			continue
		}
		if _, ok := reverted[e.ID]; ok {
			continue
		}
		out[e.RatingID] = append(out[e.RatingID], e)
	}
	for _, stack := range out {
		sort.SliceStable(stack, func(i, j int) bool { return stack[i].Seq < stack[j].Seq })
	}
	return out
}

// Latest indexes the newest standing apply per rating. Ratings whose
// applies were all reverted are absent.
func Latest(entries []model.CalibrationAdjustment) map[string]model.CalibrationAdjustment {
	out := make(map[string]model.CalibrationAdjustment)
	for id, stack := range Live(entries) {
		out[id] = stack[len(stack)-1]
	}
	return out
}

// Project derives each rating's current final score from the log: the
// after-value of its newest standing apply, or nil for ratings the session
// touched but whose applies were all reverted.
func Project(entries []model.CalibrationAdjustment) map[string]*float64 {
	out := make(map[string]*float64)
	for _, e := range entries {
		out[e.RatingID] = nil
	}
	for id, e := range Latest(entries) {
		out[id] = copyFloat(e.FinalScore)
	}
	return out
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
