// Package calibration implements the facilitated review workflow: the
// session transition table, score adjustments with mandatory justification,
// panel sign-off and the derived bonus factor.
package calibration

import (
	"github.com/okian/perfcal/internal/domain/model"
)

// Event is an operation requested against a session.
type Event string

// Session events.
const (
	EventEditRoster Event = "edit_roster"
	EventStart      Event = "start"
	EventAdjust     Event = "adjust"
	EventRevert     Event = "revert"
	EventSignOff    Event = "sign_off"
	EventClose      Event = "close"
	EventCancel     Event = "cancel"
)

// transitions is the complete set of legal moves. Anything absent is rejected.
var transitions = map[model.SessionStatus]map[Event]model.SessionStatus{
	model.SessionDraft: {
		EventEditRoster: model.SessionDraft,
		EventStart:      model.SessionInProgress,
		EventCancel:     model.SessionCancelled,
	},
	model.SessionInProgress: {
		EventAdjust:  model.SessionInProgress,
		EventRevert:  model.SessionInProgress,
		EventSignOff: model.SessionInProgress,
		EventClose:   model.SessionClosed,
		EventCancel:  model.SessionCancelled,
	},
}

// Next returns the state reached by applying ev in the session's current
// state, or a StateConflictError carrying that state.
func Next(s *model.CalibrationSession, ev Event) (model.SessionStatus, error) {
	if next, ok := transitions[s.Status][ev]; ok {
		return next, nil
	}
	return "", model.Conflict("session", s.ID, string(s.Status), string(ev), "")
}

// Allowed lists the events accepted in status, for callers that render controls.
func Allowed(status model.SessionStatus) []Event {
	order := []Event{EventEditRoster, EventStart, EventAdjust, EventRevert, EventSignOff, EventClose, EventCancel}
	out := make([]Event, 0, len(order))
	for _, ev := range order {
		if _, ok := transitions[status][ev]; ok {
			out = append(out, ev)
		}
	}
	return out
}
