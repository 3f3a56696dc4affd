package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/careflow/approvals/internal/domain/models"
	"github.com/careflow/approvals/internal/metrics"
	apperrors "github.com/careflow/approvals/pkg/errors"
)

// DefaultEscalationSchedule is the sweep cadence when none is configured.
const DefaultEscalationSchedule = "@every 5m"

const sweepMaxRuntime = 2 * time.Minute

// Escalator is what the scheduler drives. ApprovalOrchestrator implements it.
type Escalator interface {
	ListRequests(ctx context.Context, filter models.RequestFilter) ([]*models.ApprovalRequest, error)
	IsOverdue(req *models.ApprovalRequest) bool
	Escalate(ctx context.Context, requestID string) (bool, error)
}

// EscalationScheduler periodically escalates overdue pending requests.
// Sweeps never overlap.
type EscalationScheduler struct {
	escalator Escalator
	schedule  string
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	sweepMu sync.Mutex
	cron    *cron.Cron
}

// NewEscalationScheduler creates a scheduler. An empty schedule uses DefaultEscalationSchedule.
func NewEscalationScheduler(escalator Escalator, schedule string, logger *zap.Logger, m *metrics.Metrics) *EscalationScheduler {
	if schedule == "" {
		schedule = DefaultEscalationSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationScheduler{
		escalator: escalator,
		schedule:  schedule,
		logger:    logger.Named("escalation"),
		metrics:   m,
	}
}

// Sweep escalates every overdue pending request and returns how many were escalated.
// A failure on one request is logged and does not stop the sweep.
func (s *EscalationScheduler) Sweep(ctx context.Context) (int, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	start := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(start).Seconds()) }()

	pending, err := s.escalator.ListRequests(ctx, models.RequestFilter{Status: models.StatusPending})
	if err != nil {
		return 0, fmt.Errorf("failed to list pending requests: %w", err)
	}

	escalated := 0
	for _, req := range pending {
		if ctx.Err() != nil {
			return escalated, ctx.Err()
		}
		if !s.escalator.IsOverdue(req) {
			continue
		}

		ok, err := s.escalator.Escalate(ctx, req.ID)
		switch {
		case err != nil:
			s.metrics.RecordEscalation("error")
			s.logger.Warn("escalation failed",
				zap.String("request_id", req.ID),
				zap.String("workflow_id", req.WorkflowID),
				zap.Int("level", req.CurrentLevel),
				zap.String("error_kind", string(apperrors.KindOf(err))),
				zap.Error(err))
		case ok:
			s.metrics.RecordEscalation("escalated")
			escalated++
		default:
			s.metrics.RecordEscalation("skipped")
		}
	}

	s.logger.Info("escalation sweep finished",
		zap.Int("pending", len(pending)),
		zap.Int("escalated", escalated),
		zap.Duration("took", time.Since(start)))
	return escalated, nil
}

// Start schedules sweeps on the configured cron spec.
func (s *EscalationScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, s.runScheduled); err != nil {
		return fmt.Errorf("invalid escalation schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("escalation scheduler started", zap.String("schedule", s.schedule))
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *EscalationScheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("escalation scheduler stopped")
}

func (s *EscalationScheduler) runScheduled() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in escalation sweep", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), sweepMaxRuntime)
	defer cancel()

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("escalation sweep failed", zap.Error(err))
	}
}
