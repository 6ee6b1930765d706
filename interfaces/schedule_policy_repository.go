package interfaces

import (
	"context"
	"time"

	"github.com/mailfleet/tokenstack/internal/models"
)

// SchedulePolicyRepository persists the singleton scheduling policy.
type SchedulePolicyRepository interface {
	// Get returns the policy, creating the default disabled row when missing.
	Get(ctx context.Context) (*models.SchedulePolicy, error)
	Save(ctx context.Context, policy *models.SchedulePolicy) error
	// MarkRun records run bookkeeping without touching operator settings.
	MarkRun(ctx context.Context, lastRunAt time.Time, nextRunAt *time.Time) error
}
