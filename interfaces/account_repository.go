package interfaces

import (
	"context"
	"time"

	"github.com/mailfleet/tokenstack/internal/enum"
	"github.com/mailfleet/tokenstack/internal/models"
)

// AccountRepository is the credential store. Implementations decrypt secret
// fields on read and encrypt on write; callers only ever see plaintext.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	// ListActive returns active accounts ordered by id ascending.
	ListActive(ctx context.Context) ([]*models.Account, error)
	ListActiveByIDs(ctx context.Context, ids []string) ([]*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
	// UpdateRefreshStatus is the only writer of status/last-refresh fields.
	// A rotated refresh secret may be persisted alongside; empty means keep.
	UpdateRefreshStatus(ctx context.Context, id string, status enum.RefreshStatus, at time.Time, rotatedSecret string) error
	CountActive(ctx context.Context) (int64, error)
	CountActiveByStatus(ctx context.Context, status enum.RefreshStatus) (int64, error)
}
