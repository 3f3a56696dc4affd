package domain

import (
	"github.com/careflow/approvals/internal/domain/models"
	apperrors "github.com/careflow/approvals/pkg/errors"
)

// RequestTransition represents an action that can change request state
type RequestTransition string

const (
	// TransitionAdvance records an approval that leaves further levels to clear
	TransitionAdvance RequestTransition = "Advance"
	// TransitionComplete records the approval that clears the final level
	TransitionComplete RequestTransition = "Complete"
	// TransitionReject terminates the request with a reason
	TransitionReject RequestTransition = "Reject"
	// TransitionDelegate hands the pending decision to another approver
	TransitionDelegate RequestTransition = "Delegate"
	// TransitionEscalate hands an overdue decision to the escalation role
	TransitionEscalate RequestTransition = "Escalate"
	// TransitionRemind nudges pending approvers
	TransitionRemind RequestTransition = "Remind"
	// TransitionResubmit restarts a rejected request at level 1
	TransitionResubmit RequestTransition = "Resubmit"
)

// RequestStateMachine enforces valid status transitions for approval requests.
// Invalid transitions return an INVALID_TRANSITION error.
type RequestStateMachine struct {
	// transitions maps (current state, transition) -> next state
	transitions map[stateTransitionKey]models.RequestStatus
}

type stateTransitionKey struct {
	state      models.RequestStatus
	transition RequestTransition
}

// NewRequestStateMachine creates a new state machine with the request lifecycle rules.
// State diagram:
//
//	              submit
//	                │
//	                ▼
//	  ┌────────► [pending] ◄── Advance / Delegate / Escalate / Remind
//	  │           │     \
//	Resubmit   Reject   Complete
//	  │           │       \
//	  │           ▼        ▼
//	  └──────[rejected]  [approved]
func NewRequestStateMachine() *RequestStateMachine {
	sm := &RequestStateMachine{
		transitions: make(map[stateTransitionKey]models.RequestStatus),
	}

	sm.addTransition(models.StatusPending, TransitionAdvance, models.StatusPending)
	sm.addTransition(models.StatusPending, TransitionComplete, models.StatusApproved)
	sm.addTransition(models.StatusPending, TransitionReject, models.StatusRejected)
	sm.addTransition(models.StatusPending, TransitionDelegate, models.StatusPending)
	sm.addTransition(models.StatusPending, TransitionEscalate, models.StatusPending)
	sm.addTransition(models.StatusPending, TransitionRemind, models.StatusPending)
	sm.addTransition(models.StatusRejected, TransitionResubmit, models.StatusPending)

	return sm
}

func (sm *RequestStateMachine) addTransition(from models.RequestStatus, via RequestTransition, to models.RequestStatus) {
	key := stateTransitionKey{state: from, transition: via}
	sm.transitions[key] = to
}

// Transition attempts to transition from the current state using the given action.
// Returns the new state or an error if the transition is invalid.
func (sm *RequestStateMachine) Transition(current models.RequestStatus, action RequestTransition) (models.RequestStatus, error) {
	key := stateTransitionKey{state: current, transition: action}
	next, ok := sm.transitions[key]
	if !ok {
		return current, apperrors.New(apperrors.KindInvalidTransition, "invalid state transition: cannot %s from %s", action, current)
	}
	return next, nil
}

// CanTransition checks if a transition is valid without performing it.
func (sm *RequestStateMachine) CanTransition(current models.RequestStatus, action RequestTransition) bool {
	key := stateTransitionKey{state: current, transition: action}
	_, ok := sm.transitions[key]
	return ok
}
