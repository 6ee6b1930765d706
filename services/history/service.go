package history

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/mailfleet/tokenstack/interfaces"
	"github.com/mailfleet/tokenstack/internal/enum"
	"github.com/mailfleet/tokenstack/internal/logger"
	"github.com/mailfleet/tokenstack/internal/models"
	"github.com/mailfleet/tokenstack/internal/tracing"
)

const (
	// RetentionWindow is how long ledger entries stay before age pruning.
	RetentionWindow = 180 * 24 * time.Hour
	// RetentionCap bounds the total ledger size after age pruning.
	RetentionCap = 1000
)

// Service exposes read paths over the history ledger plus retention pruning.
type Service struct {
	log    logger.Logger
	ledger interfaces.RefreshLogRepository
}

func NewService(log logger.Logger, ledger interfaces.RefreshLogRepository) *Service {
	return &Service{
		log:    log,
		ledger: ledger,
	}
}

// ListSince returns entries newer than cutoff, most recent first.
func (s *Service) ListSince(ctx context.Context, cutoff time.Time, limit int, failedOnly bool) ([]*models.RefreshLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HistoryService.ListSince")
	defer span.Finish()
	tracing.TagComponentService(span)

	return s.ledger.ListSince(ctx, cutoff, limit, failedOnly)
}

// ListByAccount returns one account's entries, most recent first.
func (s *Service) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.RefreshLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HistoryService.ListByAccount")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagEntity(span, accountID)

	return s.ledger.ListByAccount(ctx, accountID, limit)
}

// ListFailedCurrent returns the latest ledger entry of every account whose
// most recent attempt failed.
func (s *Service) ListFailedCurrent(ctx context.Context) ([]*models.RefreshLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HistoryService.ListFailedCurrent")
	defer span.Finish()
	tracing.TagComponentService(span)

	latest, err := s.ledger.ListLatestPerAccount(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return FailedCurrentSelection(latest), nil
}

// LatestEntryTime returns the timestamp of the newest ledger entry, nil when
// the ledger is empty.
func (s *Service) LatestEntryTime(ctx context.Context) (*time.Time, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HistoryService.LatestEntryTime")
	defer span.Finish()
	tracing.TagComponentService(span)

	return s.ledger.LatestEntryTime(ctx)
}

// Prune applies the retention policy over a single ledger snapshot and
// deletes the selected entries. Returns the number of deleted entries.
func (s *Service) Prune(ctx context.Context) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HistoryService.Prune")
	defer span.Finish()
	tracing.TagComponentService(span)

	entries, err := s.ledger.ListAll(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}

	ids := PruneSelection(entries, time.Now(), RetentionWindow, RetentionCap)
	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.ledger.DeleteByIDs(ctx, ids); err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return len(ids), nil
}

// FailedCurrentSelection picks the accounts that are failing right now: each
// account's single most recent entry, kept only when that entry is a failure.
// An account that failed earlier but has since succeeded is excluded; one that
// succeeded earlier but failed last is included. Entries must be ordered most
// recent first per account (a latest-per-account list passes through as is).
func FailedCurrentSelection(entries []*models.RefreshLog) []*models.RefreshLog {
	seen := make(map[string]bool, len(entries))
	var failing []*models.RefreshLog
	for _, e := range entries {
		if seen[e.AccountID] {
			continue
		}
		seen[e.AccountID] = true
		if e.Outcome == enum.RefreshOutcomeFailed {
			failing = append(failing, e)
		}
	}
	return failing
}

// PruneSelection decides which ledger entries to delete. Both rules run over
// the same snapshot: first entries older than the window go, then the oldest
// survivors beyond the cap. An account's single most recent entry is exempt
// from both rules so current failure state is never lost.
//
// Entries must be ordered most recent first, ties broken by id, matching the
// ledger's ListAll ordering.
func PruneSelection(entries []*models.RefreshLog, now time.Time, window time.Duration, cap int) []string {
	if len(entries) == 0 {
		return nil
	}

	// The first entry seen per account is that account's most recent one.
	latest := make(map[string]string, len(entries))
	for _, e := range entries {
		if _, ok := latest[e.AccountID]; !ok {
			latest[e.AccountID] = e.ID
		}
	}
	exempt := func(e *models.RefreshLog) bool {
		return latest[e.AccountID] == e.ID
	}

	cutoff := now.Add(-window)
	var doomed []string
	var survivors []*models.RefreshLog
	for _, e := range entries {
		if !exempt(e) && e.CreatedAt.Before(cutoff) {
			doomed = append(doomed, e.ID)
			continue
		}
		survivors = append(survivors, e)
	}

	if cap > 0 && len(survivors) > cap {
		// survivors are most recent first; trim from the oldest end,
		// skipping exempt entries.
		excess := len(survivors) - cap
		for i := len(survivors) - 1; i >= 0 && excess > 0; i-- {
			if exempt(survivors[i]) {
				continue
			}
			doomed = append(doomed, survivors[i].ID)
			excess--
		}
	}

	return doomed
}
