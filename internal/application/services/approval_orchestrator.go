package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/careflow/approvals/internal/domain/events"
	"github.com/careflow/approvals/internal/domain/models"
	"github.com/careflow/approvals/internal/domain/ports"
	"github.com/careflow/approvals/internal/metrics"
	apperrors "github.com/careflow/approvals/pkg/errors"
	"github.com/careflow/approvals/pkg/expression"
)

// ApprovalOrchestrator is the entry point other subsystems use to drive approval requests.
//
// Each operation reads the request, computes the next state with the state
// machine and writes it back conditionally on the version it read. Events and
// notifications go out only after that write has committed; their failures are
// logged and never undo the transition.
type ApprovalOrchestrator struct {
	workflows  ports.WorkflowStore
	requests   ports.RequestStore
	conditions *ConditionEvaluator
	machine    *ApprovalStateMachine
	delegation *DelegationManager
	scheduler  *EscalationScheduler

	dispatcher ports.NotificationDispatcher
	events     *EventBus
	metrics    *metrics.Metrics
	retry      RetryPolicy
	logger     *zap.Logger
	now        func() time.Time
	schedule   string
	engine     *expression.Engine
}

// Option configures an ApprovalOrchestrator.
type Option func(*ApprovalOrchestrator)

// WithDispatcher sets where notifications are sent.
func WithDispatcher(d ports.NotificationDispatcher) Option {
	return func(o *ApprovalOrchestrator) { o.dispatcher = d }
}

// WithEventBus shares an existing event bus.
func WithEventBus(bus *EventBus) Option {
	return func(o *ApprovalOrchestrator) { o.events = bus }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *ApprovalOrchestrator) { o.metrics = m }
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *ApprovalOrchestrator) { o.retry = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *ApprovalOrchestrator) { o.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *ApprovalOrchestrator) { o.now = now }
}

// WithEscalationSchedule sets the cron spec of the escalation scheduler.
func WithEscalationSchedule(spec string) Option {
	return func(o *ApprovalOrchestrator) { o.schedule = spec }
}

// WithExpressionEngine shares a compiled-expression cache.
func WithExpressionEngine(e *expression.Engine) Option {
	return func(o *ApprovalOrchestrator) { o.engine = e }
}

// NewApprovalOrchestrator wires the engine around the given stores and directory.
func NewApprovalOrchestrator(workflows ports.WorkflowStore, requests ports.RequestStore, directory ports.Directory, opts ...Option) *ApprovalOrchestrator {
	o := &ApprovalOrchestrator{
		workflows: workflows,
		requests:  requests,
		retry:     DefaultRetryPolicy,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.events == nil {
		o.events = NewEventBus(o.logger)
	}

	o.conditions = NewConditionEvaluator(o.engine)
	evaluator := NewWorkflowEvaluator(o.conditions, directory)
	o.machine = NewApprovalStateMachine(evaluator, o.now)
	o.delegation = NewDelegationManager(directory, o.now)
	o.scheduler = NewEscalationScheduler(o, o.schedule, o.logger, o.metrics)
	return o
}

// Scheduler returns the escalation scheduler bound to this orchestrator.
func (o *ApprovalOrchestrator) Scheduler() *EscalationScheduler {
	return o.scheduler
}

// Subscribe registers handler for eventType. Handlers receive a RequestEvent.
func (o *ApprovalOrchestrator) Subscribe(eventType EventType, handler EventHandler) func() {
	return o.events.Subscribe(eventType, handler)
}

// Submit creates a request for a document against an active workflow.
func (o *ApprovalOrchestrator) Submit(ctx context.Context, in SubmitInput) (*models.ApprovalRequest, error) {
	wf, err := o.loadWorkflow(ctx, in.WorkflowID)
	if err != nil {
		return nil, err
	}
	if !wf.IsActive {
		return nil, apperrors.New(apperrors.KindWorkflowNotFound, "workflow %s is not active", in.WorkflowID)
	}
	return o.submitTo(ctx, wf, in)
}

// AutoSubmit submits the document to every active automatic workflow of targetModule
// whose trigger conditions pass. Failures on one workflow do not stop the others.
func (o *ApprovalOrchestrator) AutoSubmit(ctx context.Context, targetModule string, in SubmitInput) ([]*models.ApprovalRequest, error) {
	workflows, err := retryStore(ctx, o.retry, o.onRetry, func() ([]*models.WorkflowDefinition, error) {
		return o.workflows.ListActiveWorkflows(ctx, targetModule)
	})
	if err != nil {
		return nil, err
	}

	var created []*models.ApprovalRequest
	var errs []error
	for _, wf := range workflows {
		if wf.TriggerKind != models.TriggerAutomatic {
			continue
		}
		if !o.conditions.Evaluate(wf.TriggerConditions, in.Document) {
			continue
		}
		in.WorkflowID = wf.ID
		req, err := o.submitTo(ctx, wf, in)
		if err != nil {
			o.logger.Warn("automatic submission failed",
				zap.String("workflow_id", wf.ID),
				zap.String("document_id", in.DocumentID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("workflow %s: %w", wf.ID, err))
			continue
		}
		created = append(created, req)
	}
	return created, errors.Join(errs...)
}

// Approve records an approval by actorID.
func (o *ApprovalOrchestrator) Approve(ctx context.Context, requestID, actorID, comment string) (*models.ApprovalRequest, error) {
	before, after, err := o.mutate(ctx, requestID, "approve", func(r *models.ApprovalRequest) (*models.ApprovalRequest, error) {
		return o.machine.Approve(ctx, r, actorID, comment)
	})
	if err != nil {
		return nil, err
	}

	switch {
	case after.Status == models.StatusApproved:
		o.afterCommit(ctx, events.RequestApproved, after, actorID, []string{after.RequesterID},
			"Request approved", fmt.Sprintf("%s %s has been approved.", after.DocumentType, after.DocumentID))
	case after.CurrentLevel != before.CurrentLevel:
		o.afterCommit(ctx, events.RequestAdvanced, after, actorID, pendingIDs(after),
			"Approval required", fmt.Sprintf("%s %s awaits your decision at level %d.", after.DocumentType, after.DocumentID, after.CurrentLevel))
	}
	o.notifyInformed(ctx, after, len(before.History))
	return after, nil
}

// Reject records a rejection by actorID. reason must be non-empty.
func (o *ApprovalOrchestrator) Reject(ctx context.Context, requestID, actorID, reason string) (*models.ApprovalRequest, error) {
	_, after, err := o.mutate(ctx, requestID, "reject", func(r *models.ApprovalRequest) (*models.ApprovalRequest, error) {
		return o.machine.Reject(ctx, r, actorID, reason)
	})
	if err != nil {
		return nil, err
	}

	if after.Status == models.StatusRejected {
		o.afterCommit(ctx, events.RequestRejected, after, actorID, []string{after.RequesterID},
			"Request rejected", fmt.Sprintf("%s %s was rejected: %s", after.DocumentType, after.DocumentID, reason))
	} else {
		o.afterCommit(ctx, events.RequestEscalated, after, actorID, pendingIDs(after),
			"Rejection escalated", fmt.Sprintf("A rejection of %s %s at level %d was escalated to you.", after.DocumentType, after.DocumentID, after.CurrentLevel))
	}
	return after, nil
}

// Delegate hands fromUserID's pending decision to toUserID.
func (o *ApprovalOrchestrator) Delegate(ctx context.Context, requestID, fromUserID, toUserID string) (*models.ApprovalRequest, error) {
	_, after, err := o.mutate(ctx, requestID, "delegate", func(r *models.ApprovalRequest) (*models.ApprovalRequest, error) {
		return o.delegation.Delegate(ctx, r, fromUserID, toUserID)
	})
	if err != nil {
		return nil, err
	}

	o.afterCommit(ctx, events.RequestDelegated, after, fromUserID, []string{toUserID},
		"Approval delegated to you", fmt.Sprintf("%s delegated %s %s to you.", fromUserID, after.DocumentType, after.DocumentID))
	return after, nil
}

// Resubmit restarts a rejected request with updates merged into its document.
func (o *ApprovalOrchestrator) Resubmit(ctx context.Context, requestID string, updates map[string]interface{}) (*models.ApprovalRequest, error) {
	before, after, err := o.mutate(ctx, requestID, "resubmit", func(r *models.ApprovalRequest) (*models.ApprovalRequest, error) {
		live, err := o.loadWorkflow(ctx, r.WorkflowID)
		if err != nil {
			return nil, err
		}
		return o.machine.Resubmit(ctx, r, live, updates)
	})
	if err != nil {
		return nil, err
	}

	o.afterCommit(ctx, events.RequestResubmitted, after, after.RequesterID, pendingIDs(after),
		"Approval required", fmt.Sprintf("%s %s was resubmitted (revision %d).", after.DocumentType, after.DocumentID, after.RevisionCount))
	if after.Status == models.StatusApproved {
		o.afterCommit(ctx, events.RequestApproved, after, SystemActor, []string{after.RequesterID},
			"Request approved", fmt.Sprintf("%s %s has been approved.", after.DocumentType, after.DocumentID))
	}
	o.notifyInformed(ctx, after, len(before.History))
	return after, nil
}

// SendReminder nudges the pending approvers of a request.
func (o *ApprovalOrchestrator) SendReminder(ctx context.Context, requestID, actorID string) (*models.ApprovalRequest, error) {
	_, after, err := o.mutate(ctx, requestID, "remind", func(r *models.ApprovalRequest) (*models.ApprovalRequest, error) {
		return o.machine.Remind(r, actorID)
	})
	if err != nil {
		return nil, err
	}

	o.afterCommit(ctx, events.ReminderSent, after, actorID, pendingIDs(after),
		"Reminder: approval pending", fmt.Sprintf("%s %s is still waiting for your decision.", after.DocumentType, after.DocumentID))
	return after, nil
}

// IsOverdue reports whether req is due for escalation.
func (o *ApprovalOrchestrator) IsOverdue(req *models.ApprovalRequest) bool {
	return o.machine.IsOverdue(req)
}

// Escalate escalates one request if it is overdue. It reports whether a transition happened.
func (o *ApprovalOrchestrator) Escalate(ctx context.Context, requestID string) (bool, error) {
	before, after, err := o.mutate(ctx, requestID, "escalate", func(r *models.ApprovalRequest) (*models.ApprovalRequest, error) {
		next, _, err := o.machine.Escalate(ctx, r)
		return next, err
	})
	if err != nil {
		return false, err
	}
	if after == before {
		return false, nil
	}

	o.logger.Info("request escalated",
		zap.String("request_id", after.ID),
		zap.String("workflow_id", after.WorkflowID),
		zap.Int("level", after.CurrentLevel),
		zap.String("approver_id", after.CurrentApproverID))
	o.afterCommit(ctx, events.RequestEscalated, after, SystemActor, pendingIDs(after),
		"Escalated approval", fmt.Sprintf("%s %s was escalated to you after its step timed out.", after.DocumentType, after.DocumentID))
	return true, nil
}

// RunEscalationSweep escalates every overdue request now and returns how many were escalated.
func (o *ApprovalOrchestrator) RunEscalationSweep(ctx context.Context) (int, error) {
	return o.scheduler.Sweep(ctx)
}

// GetRequest returns one request.
func (o *ApprovalOrchestrator) GetRequest(ctx context.Context, requestID string) (*models.ApprovalRequest, error) {
	return o.loadRequest(ctx, requestID)
}

// ListRequests returns requests matching filter in creation order.
func (o *ApprovalOrchestrator) ListRequests(ctx context.Context, filter models.RequestFilter) ([]*models.ApprovalRequest, error) {
	return retryStore(ctx, o.retry, o.onRetry, func() ([]*models.ApprovalRequest, error) {
		return o.requests.ListRequests(ctx, filter)
	})
}

// PendingFor returns the pending requests on which approverID holds a pending slot,
// including parallel and any-one levels where they are not the first approver.
func (o *ApprovalOrchestrator) PendingFor(ctx context.Context, approverID string) ([]*models.ApprovalRequest, error) {
	pending, err := o.ListRequests(ctx, models.RequestFilter{Status: models.StatusPending})
	if err != nil {
		return nil, err
	}
	out := make([]*models.ApprovalRequest, 0, len(pending))
	for _, req := range pending {
		if req.PendingSlot(approverID) >= 0 {
			out = append(out, req)
		}
	}
	return out, nil
}

// GetApprovalMatrix aggregates the requests of a workflow per level.
//
// Approved and rejected counts come from history across all requests. Mean
// processing time covers terminal requests only and measures each decision from
// the moment its level was entered.
func (o *ApprovalOrchestrator) GetApprovalMatrix(ctx context.Context, workflowID string) (*models.ApprovalMatrix, error) {
	wf, err := o.loadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	reqs, err := o.ListRequests(ctx, models.RequestFilter{WorkflowID: workflowID})
	if err != nil {
		return nil, err
	}

	stats := make([]models.LevelStats, len(wf.Steps))
	for i, step := range wf.Steps {
		stats[i] = models.LevelStats{Level: i + 1, StepName: step.Name}
	}
	totals := make([]time.Duration, len(stats))
	samples := make([]int, len(stats))
	inRange := func(level int) bool { return level >= 1 && level <= len(stats) }

	for _, r := range reqs {
		if r.Status == models.StatusPending && inRange(r.CurrentLevel) {
			stats[r.CurrentLevel-1].PendingCount++
		}
		for _, h := range r.History {
			if !inRange(h.Level) {
				continue
			}
			switch h.Action {
			case models.ActionApproved:
				stats[h.Level-1].ApprovedCount++
			case models.ActionRejected:
				stats[h.Level-1].RejectedCount++
			}
		}
		if r.Status == models.StatusPending {
			continue
		}
		for level, d := range decisionDurations(r) {
			if inRange(level) {
				totals[level-1] += d.total
				samples[level-1] += d.count
			}
		}
	}

	for i := range stats {
		if samples[i] > 0 {
			stats[i].MeanProcessingHours = totals[i].Hours() / float64(samples[i])
		}
	}
	return &models.ApprovalMatrix{WorkflowID: workflowID, Levels: stats}, nil
}

type levelDuration struct {
	total time.Duration
	count int
}

func decisionDurations(r *models.ApprovalRequest) map[int]levelDuration {
	out := make(map[int]levelDuration)
	cursor := r.CreatedAt
	level := 0
	var lastApproval time.Time

	for _, h := range r.History {
		switch h.Action {
		case models.ActionResubmitted:
			cursor, level, lastApproval = h.Timestamp, 0, time.Time{}
		case models.ActionApproved, models.ActionRejected:
			if h.Level != level {
				if !lastApproval.IsZero() {
					cursor = lastApproval
				}
				level = h.Level
			}
			d := out[h.Level]
			d.total += h.Timestamp.Sub(cursor)
			d.count++
			out[h.Level] = d
			if h.Action == models.ActionApproved {
				lastApproval = h.Timestamp
			}
		}
	}
	return out
}

func (o *ApprovalOrchestrator) submitTo(ctx context.Context, wf *models.WorkflowDefinition, in SubmitInput) (*models.ApprovalRequest, error) {
	req, err := o.machine.Create(ctx, wf, in)
	if err != nil {
		return nil, err
	}
	if _, err := retryStore(ctx, o.retry, o.onRetry, func() (struct{}, error) {
		return struct{}{}, o.requests.CreateRequest(ctx, req)
	}); err != nil {
		return nil, err
	}
	o.metrics.RecordTransition("submit")

	o.logger.Info("request submitted",
		zap.String("request_id", req.ID),
		zap.String("workflow_id", wf.ID),
		zap.String("document_id", req.DocumentID),
		zap.Int("level", req.CurrentLevel))
	o.afterCommit(ctx, events.RequestSubmitted, req, req.RequesterID, pendingIDs(req),
		"Approval required", fmt.Sprintf("%s %s awaits your decision.", req.DocumentType, req.DocumentID))
	if req.Status == models.StatusApproved {
		o.afterCommit(ctx, events.RequestApproved, req, SystemActor, []string{req.RequesterID},
			"Request approved", fmt.Sprintf("%s %s needed no approval steps.", req.DocumentType, req.DocumentID))
	}
	o.notifyInformed(ctx, req, 0)
	return req, nil
}

// mutate applies fn to the stored request and writes the result back if the
// version is unchanged. When fn returns its input unchanged nothing is written
// and before == after.
func (o *ApprovalOrchestrator) mutate(ctx context.Context, requestID, action string, fn func(*models.ApprovalRequest) (*models.ApprovalRequest, error)) (before, after *models.ApprovalRequest, err error) {
	current, err := o.loadRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, nil, err
	}
	if next == current {
		return current, current, nil
	}

	expected := current.Version
	_, err = retryStore(ctx, o.retry, o.onRetry, func() (struct{}, error) {
		return struct{}{}, o.requests.UpdateRequest(ctx, next, expected)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrConcurrentModification) {
			o.metrics.RecordConflict()
		}
		return nil, nil, err
	}
	o.metrics.RecordTransition(action)
	return current, next, nil
}

func (o *ApprovalOrchestrator) loadRequest(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	return retryStore(ctx, o.retry, o.onRetry, func() (*models.ApprovalRequest, error) {
		return o.requests.GetRequest(ctx, id)
	})
}

func (o *ApprovalOrchestrator) loadWorkflow(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return retryStore(ctx, o.retry, o.onRetry, func() (*models.WorkflowDefinition, error) {
		return o.workflows.GetWorkflow(ctx, id)
	})
}

func (o *ApprovalOrchestrator) onRetry(err error, wait time.Duration) {
	o.metrics.RecordStoreRetry()
	o.logger.Warn("retrying store call", zap.Error(err), zap.Duration("wait", wait))
}

// afterCommit publishes the event and notifies recipients. Nothing here can fail the caller.
func (o *ApprovalOrchestrator) afterCommit(ctx context.Context, eventType EventType, req *models.ApprovalRequest, actorID string, recipients []string, title, body string) {
	if err := o.events.PublishRequest(ctx, eventType, req, actorID); err != nil {
		o.logger.Warn("event subscriber failed",
			zap.String("event", eventType.String()),
			zap.String("request_id", req.ID),
			zap.Error(err))
	}

	for _, recipient := range recipients {
		o.notify(ctx, eventType, req, req.CurrentLevel, recipient, title, body)
	}
}

// notifyInformed notifies the approvers of inform-only levels passed since history entry from.
func (o *ApprovalOrchestrator) notifyInformed(ctx context.Context, req *models.ApprovalRequest, from int) {
	for _, h := range req.History[from:] {
		if h.Action != models.ActionInformed {
			continue
		}
		o.notify(ctx, events.RequestInformed, req, h.Level, h.ActorID,
			"For your information", fmt.Sprintf("%s %s passed level %d, which you are informed of.", req.DocumentType, req.DocumentID, h.Level))
	}
}

// notify sends one notification on the channels selected by the step at level.
// Notifications about a finished request go in-app.
func (o *ApprovalOrchestrator) notify(ctx context.Context, eventType EventType, req *models.ApprovalRequest, level int, recipient, title, body string) {
	if o.dispatcher == nil || recipient == "" {
		return
	}

	channels := []string{models.ChannelInApp}
	active := req.Status == models.StatusPending || eventType == events.RequestInformed
	if active && level >= 1 && level <= len(req.Workflow.Steps) {
		channels = req.Workflow.Steps[level-1].NotificationConfig.Enabled()
	}

	n := ports.Notification{
		Type:        eventType,
		RecipientID: recipient,
		RequestID:   req.ID,
		DocumentID:  req.DocumentID,
		Level:       level,
		Title:       title,
		Body:        body,
		Channels:    channels,
		CreatedAt:   o.now().UTC(),
	}
	if err := o.dispatcher.Dispatch(ctx, n); err != nil {
		o.metrics.RecordNotificationFailure(eventType.String())
		o.logger.Warn("notification not delivered",
			zap.String("request_id", req.ID),
			zap.String("workflow_id", req.WorkflowID),
			zap.Int("level", level),
			zap.String("recipient_id", recipient),
			zap.Error(apperrors.Wrap(apperrors.KindNotificationDeliveryFailure, err, "dispatch %s", eventType)))
	}
}

func pendingIDs(req *models.ApprovalRequest) []string {
	approvers := req.PendingApprovers()
	ids := make([]string, 0, len(approvers))
	for _, a := range approvers {
		ids = append(ids, a.ID)
	}
	return ids
}
