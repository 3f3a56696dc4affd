package ports

import (
	"context"

	"github.com/careflow/approvals/internal/domain/models"
)

// Directory is the identity directory used to resolve roles at step entry.
type Directory interface {
	// UsersInRole returns the members of role in a stable order.
	UsersInRole(ctx context.Context, role string) ([]models.User, error)
	// GetUser returns nil, nil when the user is unknown.
	GetUser(ctx context.Context, id string) (*models.User, error)
}
