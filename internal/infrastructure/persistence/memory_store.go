package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/careflow/approvals/internal/domain/models"
	"github.com/careflow/approvals/internal/domain/ports"
	apperrors "github.com/careflow/approvals/pkg/errors"
)

// MemoryStore keeps workflows and requests in process memory.
// Every read and write goes through a clone so callers never share state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*models.WorkflowDefinition
	requests  map[string]*models.ApprovalRequest
	order     []string
}

var (
	_ ports.WorkflowStore = (*MemoryStore)(nil)
	_ ports.RequestStore  = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*models.WorkflowDefinition),
		requests:  make(map[string]*models.ApprovalRequest),
	}
}

func (s *MemoryStore) GetWorkflow(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindWorkflowNotFound, "workflow %s not found", id)
	}
	return wf.Clone(), nil
}

func (s *MemoryStore) ListActiveWorkflows(_ context.Context, targetModule string) ([]*models.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.WorkflowDefinition
	for _, wf := range s.workflows {
		if !wf.IsActive {
			continue
		}
		if targetModule != "" && wf.TargetModule != targetModule {
			continue
		}
		out = append(out, wf.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SaveWorkflow(_ context.Context, wf *models.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[wf.ID] = wf.Clone()
	return nil
}

func (s *MemoryStore) CreateRequest(_ context.Context, req *models.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return apperrors.New(apperrors.KindConcurrentModification, "request %s already exists", req.ID)
	}
	req.Version = 1
	s.requests[req.ID] = req.Clone()
	s.order = append(s.order, req.ID)
	return nil
}

func (s *MemoryStore) GetRequest(_ context.Context, id string) (*models.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindRequestNotFound, "approval request %s not found", id)
	}
	return req.Clone(), nil
}

func (s *MemoryStore) UpdateRequest(_ context.Context, req *models.ApprovalRequest, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.requests[req.ID]
	if !ok {
		return apperrors.New(apperrors.KindRequestNotFound, "approval request %s not found", req.ID)
	}
	if stored.Version != expectedVersion {
		return apperrors.New(apperrors.KindConcurrentModification, "request %s is at version %d, expected %d", req.ID, stored.Version, expectedVersion)
	}

	next := req.Clone()
	// stored history is append-only
	history := append([]models.HistoryEntry(nil), stored.History...)
	if len(next.History) > len(history) {
		history = append(history, next.History[len(history):]...)
	}
	next.History = history
	next.Version = expectedVersion + 1

	s.requests[req.ID] = next
	req.Version = next.Version
	return nil
}

func (s *MemoryStore) ListRequests(_ context.Context, filter models.RequestFilter) ([]*models.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ApprovalRequest
	for _, id := range s.order {
		req := s.requests[id]
		if filter.Matches(req) {
			out = append(out, req.Clone())
		}
	}
	return out, nil
}
