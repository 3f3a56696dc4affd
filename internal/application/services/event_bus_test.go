package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/careflow/approvals/internal/domain/events"
)

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(zaptest.NewLogger(t))
	ctx := context.Background()

	var calls []string
	unsubA := bus.Subscribe(events.RequestApproved, func(context.Context, interface{}) error {
		calls = append(calls, "a")
		return nil
	})
	bus.Subscribe(events.RequestApproved, func(context.Context, interface{}) error {
		calls = append(calls, "b")
		return nil
	})

	assert.NoError(t, bus.Publish(ctx, events.RequestApproved, nil))
	unsubA()
	unsubA()
	assert.NoError(t, bus.Publish(ctx, events.RequestApproved, nil))

	assert.Equal(t, []string{"a", "b", "b"}, calls)
}

func TestEventBus_AllHandlersRunOnFailure(t *testing.T) {
	bus := NewEventBus(nil)

	ran := 0
	bus.Subscribe(events.RequestRejected, func(context.Context, interface{}) error {
		ran++
		return errors.New("boom")
	})
	bus.Subscribe(events.RequestRejected, func(context.Context, interface{}) error {
		ran++
		return nil
	})

	err := bus.Publish(context.Background(), events.RequestRejected, nil)
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 2, ran)
}
