package events

// EventType defines the type of event in the system
type EventType string

const (
	// Request lifecycle events
	RequestSubmitted   EventType = "approval.submitted"
	RequestAdvanced    EventType = "approval.advanced"
	RequestApproved    EventType = "approval.approved"
	RequestRejected    EventType = "approval.rejected"
	RequestDelegated   EventType = "approval.delegated"
	RequestEscalated   EventType = "approval.escalated"
	RequestResubmitted EventType = "approval.resubmitted"
	ReminderSent       EventType = "approval.reminder_sent"
	RequestInformed    EventType = "approval.informed"
)

// String returns the string representation of the event type
func (e EventType) String() string {
	return string(e)
}
