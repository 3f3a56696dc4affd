package notify

import (
	"context"
	"errors"

	"github.com/careflow/approvals/internal/domain/ports"
)

// Fanout delivers each notification to every channel. A failing channel does
// not stop the others; all failures are returned together.
type Fanout []ports.NotificationDispatcher

func (f Fanout) Dispatch(ctx context.Context, n ports.Notification) error {
	var errs []error
	for _, d := range f {
		if err := d.Dispatch(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
