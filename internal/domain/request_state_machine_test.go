package domain

import (
	"testing"

	"github.com/careflow/approvals/internal/domain/models"
	apperrors "github.com/careflow/approvals/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRequestStateMachine_Transitions(t *testing.T) {
	sm := NewRequestStateMachine()

	tests := []struct {
		name        string
		from        models.RequestStatus
		action      RequestTransition
		expectedTo  models.RequestStatus
		shouldError bool
	}{
		// Valid transitions
		{"pending -> pending via Advance", models.StatusPending, TransitionAdvance, models.StatusPending, false},
		{"pending -> approved via Complete", models.StatusPending, TransitionComplete, models.StatusApproved, false},
		{"pending -> rejected via Reject", models.StatusPending, TransitionReject, models.StatusRejected, false},
		{"pending -> pending via Delegate", models.StatusPending, TransitionDelegate, models.StatusPending, false},
		{"pending -> pending via Escalate", models.StatusPending, TransitionEscalate, models.StatusPending, false},
		{"rejected -> pending via Resubmit", models.StatusRejected, TransitionResubmit, models.StatusPending, false},

		// Invalid transitions
		{"approved -> Advance (terminal)", models.StatusApproved, TransitionAdvance, models.StatusApproved, true},
		{"approved -> Resubmit (terminal)", models.StatusApproved, TransitionResubmit, models.StatusApproved, true},
		{"rejected -> Complete (terminal)", models.StatusRejected, TransitionComplete, models.StatusRejected, true},
		{"rejected -> Reject (terminal)", models.StatusRejected, TransitionReject, models.StatusRejected, true},
		{"rejected -> Delegate (terminal)", models.StatusRejected, TransitionDelegate, models.StatusRejected, true},
		{"rejected -> Escalate (terminal)", models.StatusRejected, TransitionEscalate, models.StatusRejected, true},
		{"pending -> Resubmit (invalid)", models.StatusPending, TransitionResubmit, models.StatusPending, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			newState, err := sm.Transition(tc.from, tc.action)

			if tc.shouldError {
				assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
				assert.Equal(t, tc.from, newState, "State should not change on invalid transition")
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expectedTo, newState)
			}
		})
	}
}

func TestRequestStateMachine_CanTransition(t *testing.T) {
	sm := NewRequestStateMachine()

	assert.True(t, sm.CanTransition(models.StatusPending, TransitionEscalate))
	assert.True(t, sm.CanTransition(models.StatusRejected, TransitionResubmit))
	assert.False(t, sm.CanTransition(models.StatusRejected, TransitionEscalate))
	assert.False(t, sm.CanTransition(models.StatusApproved, TransitionRemind))
}
