package interfaces

import (
	"context"
	"time"

	"github.com/mailfleet/tokenstack/internal/models"
)

// RefreshLogRepository is the append-only history ledger.
type RefreshLogRepository interface {
	Append(ctx context.Context, entry *models.RefreshLog) error
	// ListSince returns entries created after cutoff, most recent first.
	ListSince(ctx context.Context, cutoff time.Time, limit int, failedOnly bool) ([]*models.RefreshLog, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.RefreshLog, error)
	// ListLatestPerAccount returns each account's single most recent entry.
	ListLatestPerAccount(ctx context.Context) ([]*models.RefreshLog, error)
	// ListAll returns every entry, most recent first, ties broken by id desc.
	ListAll(ctx context.Context) ([]*models.RefreshLog, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	LatestEntryTime(ctx context.Context) (*time.Time, error)
}
