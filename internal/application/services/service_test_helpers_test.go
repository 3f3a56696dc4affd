package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/careflow/approvals/internal/domain/models"
	"github.com/careflow/approvals/internal/domain/ports"
	"github.com/careflow/approvals/internal/infrastructure/directory"
	"github.com/careflow/approvals/internal/infrastructure/persistence"
	apperrors "github.com/careflow/approvals/pkg/errors"
)

var testEpoch = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

var fastRetry = RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testDirectory() *directory.StaticDirectory {
	return directory.NewStaticDirectory(
		models.User{ID: "nurse-1", Name: "Ana Nurse", Roles: []string{"nurse"}},
		models.User{ID: "lead-1", Name: "Ben Lead", Roles: []string{"clinical_lead"}},
		models.User{ID: "lead-2", Name: "Cara Lead", Roles: []string{"clinical_lead"}},
		models.User{ID: "lead-3", Name: "Dev Lead", Roles: []string{"clinical_lead"}},
		models.User{ID: "manager-1", Name: "Eve Manager", Roles: []string{"ward_manager"}},
		models.User{ID: "director-1", Name: "Fay Director", Roles: []string{"director"}},
		models.User{ID: "deputy-1", Name: "Gus Deputy", Roles: []string{"deputy_lead"}},
	)
}

func roleStep(order int, name, role string) models.Step {
	return models.Step{
		Order:        order,
		Name:         name,
		ApproverType: models.ApproverRole,
		RequiredRole: role,
		ApprovalType: models.ApprovalApproveReject,
		Mandatory:    true,
		TimeoutHours: 24,
	}
}

// sequentialWorkflow: clinical lead (delegable to deputies) then ward manager, both escalating to director.
func sequentialWorkflow() *models.WorkflowDefinition {
	lead := roleStep(1, "Clinical lead review", "clinical_lead")
	lead.CanDelegate = true
	lead.DelegationRoles = []string{"deputy_lead"}
	lead.EscalationRole = "director"

	manager := roleStep(2, "Ward manager sign-off", "ward_manager")
	manager.EscalationRole = "director"

	return &models.WorkflowDefinition{
		ID:                  "wf-seq",
		Name:                "Incident review",
		TargetModule:        "incidents",
		TriggerKind:         models.TriggerManual,
		LevelType:           models.LevelSequential,
		IsActive:            true,
		Steps:               []models.Step{lead, manager},
		DefaultTimeoutHours: 48,
		AutoEscalate:        true,
		RevisionPolicy:      models.RevisionPolicy{Enabled: true, MaxRevisions: 1},
	}
}

func workflowOfType(id string, levelType models.LevelType, steps ...models.Step) *models.WorkflowDefinition {
	wf := sequentialWorkflow()
	wf.ID = id
	wf.LevelType = levelType
	wf.Steps = steps
	return wf
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []ports.Notification
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n ports.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, n)
	return nil
}

func (d *recordingDispatcher) recipients() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, n := range d.sent {
		out = append(out, n.RecipientID)
	}
	return out
}

type testEnv struct {
	orch       *ApprovalOrchestrator
	store      *persistence.MemoryStore
	clock      *fakeClock
	dispatcher *recordingDispatcher
}

func newTestEnv(t *testing.T, workflows ...*models.WorkflowDefinition) *testEnv {
	t.Helper()
	return newTestEnvWithStores(t, nil, workflows...)
}

// newTestEnvWithStores lets a test wrap the request store; nil uses the memory store.
func newTestEnvWithStores(t *testing.T, requests ports.RequestStore, workflows ...*models.WorkflowDefinition) *testEnv {
	t.Helper()

	store := persistence.NewMemoryStore()
	for _, wf := range workflows {
		require.NoError(t, store.SaveWorkflow(context.Background(), wf))
	}
	if requests == nil {
		requests = store
	}

	clock := newFakeClock()
	dispatcher := &recordingDispatcher{}
	orch := NewApprovalOrchestrator(store, requests, testDirectory(),
		WithClock(clock.Now),
		WithDispatcher(dispatcher),
		WithLogger(zaptest.NewLogger(t)),
		WithRetryPolicy(fastRetry),
	)
	return &testEnv{orch: orch, store: store, clock: clock, dispatcher: dispatcher}
}

func (e *testEnv) submit(t *testing.T, workflowID string, doc map[string]interface{}) *models.ApprovalRequest {
	t.Helper()
	req, err := e.orch.Submit(context.Background(), SubmitInput{
		WorkflowID:   workflowID,
		DocumentType: "incident_report",
		DocumentID:   "doc-1",
		Document:     doc,
		RequesterID:  "nurse-1",
	})
	require.NoError(t, err)
	return req
}

func actions(req *models.ApprovalRequest) []models.HistoryAction {
	out := make([]models.HistoryAction, 0, len(req.History))
	for _, h := range req.History {
		out = append(out, h.Action)
	}
	return out
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	var verr *apperrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}
