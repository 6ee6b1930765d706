package history

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailfleet/tokenstack/internal/enum"
	"github.com/mailfleet/tokenstack/internal/models"
)

func entry(id, accountID string, createdAt time.Time) *models.RefreshLog {
	return &models.RefreshLog{
		ID:        id,
		AccountID: accountID,
		Outcome:   enum.RefreshOutcomeSuccess,
		CreatedAt: createdAt,
	}
}

// mostRecentFirst matches the ledger's ListAll ordering: created_at desc,
// ties broken by id desc.
func mostRecentFirst(entries []*models.RefreshLog) []*models.RefreshLog {
	sorted := make([]*models.RefreshLog, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted
}

func TestPruneSelection_EmptyLedger(t *testing.T) {
	assert.Empty(t, PruneSelection(nil, time.Now(), RetentionWindow, RetentionCap))
}

func TestPruneSelection_AgedEntriesGo(t *testing.T) {
	// Arrange
	now := time.Now()
	entries := mostRecentFirst([]*models.RefreshLog{
		entry("new-1", "a1", now.Add(-time.Hour)),
		entry("old-1", "a1", now.Add(-200*24*time.Hour)),
		entry("old-2", "a1", now.Add(-365*24*time.Hour)),
	})

	// Act
	doomed := PruneSelection(entries, now, RetentionWindow, RetentionCap)

	// Assert
	assert.ElementsMatch(t, []string{"old-1", "old-2"}, doomed)
}

func TestPruneSelection_LatestEntrySurvivesAgePruning(t *testing.T) {
	// Arrange - the account's only entry is ancient
	now := time.Now()
	entries := []*models.RefreshLog{
		entry("old-1", "a1", now.Add(-400*24*time.Hour)),
	}

	// Act
	doomed := PruneSelection(entries, now, RetentionWindow, RetentionCap)

	// Assert - an account's most recent entry is never deleted
	assert.Empty(t, doomed)
}

func TestPruneSelection_CapTrimsOldestSurvivors(t *testing.T) {
	// Arrange - 10 fresh entries for one account, cap of 4
	now := time.Now()
	var entries []*models.RefreshLog
	for i := 0; i < 10; i++ {
		entries = append(entries, entry(fmt.Sprintf("e-%02d", i), "a1", now.Add(-time.Duration(i)*time.Hour)))
	}
	entries = mostRecentFirst(entries)

	// Act
	doomed := PruneSelection(entries, now, RetentionWindow, 4)

	// Assert - the six oldest go, the newest four stay
	assert.ElementsMatch(t, []string{"e-04", "e-05", "e-06", "e-07", "e-08", "e-09"}, doomed)
}

func TestPruneSelection_CapSkipsLatestPerAccount(t *testing.T) {
	// Arrange - a2's single entry is the oldest of all; cap forces trimming
	now := time.Now()
	entries := mostRecentFirst([]*models.RefreshLog{
		entry("a1-new", "a1", now.Add(-1*time.Hour)),
		entry("a1-mid", "a1", now.Add(-2*time.Hour)),
		entry("a1-old", "a1", now.Add(-3*time.Hour)),
		entry("a2-only", "a2", now.Add(-4*time.Hour)),
	})

	// Act
	doomed := PruneSelection(entries, now, RetentionWindow, 2)

	// Assert - a2's only entry is exempt even though it is the oldest
	require.NotContains(t, doomed, "a2-only")
	assert.ElementsMatch(t, []string{"a1-mid", "a1-old"}, doomed)
}

func TestPruneSelection_WindowAndCapShareOneSnapshot(t *testing.T) {
	// Arrange - aged entries beyond the window plus fresh ones beyond the cap
	now := time.Now()
	entries := mostRecentFirst([]*models.RefreshLog{
		entry("fresh-1", "a1", now.Add(-1*time.Hour)),
		entry("fresh-2", "a1", now.Add(-2*time.Hour)),
		entry("fresh-3", "a1", now.Add(-3*time.Hour)),
		entry("aged-1", "a1", now.Add(-200*24*time.Hour)),
		entry("aged-2", "a1", now.Add(-201*24*time.Hour)),
	})

	// Act - window drops the aged pair, cap of 2 then drops fresh-3
	doomed := PruneSelection(entries, now, RetentionWindow, 2)

	// Assert
	assert.ElementsMatch(t, []string{"aged-1", "aged-2", "fresh-3"}, doomed)
}

func TestPruneSelection_UnderBothLimits(t *testing.T) {
	// Arrange
	now := time.Now()
	entries := mostRecentFirst([]*models.RefreshLog{
		entry("e-1", "a1", now.Add(-time.Hour)),
		entry("e-2", "a2", now.Add(-2*time.Hour)),
	})

	// Act
	doomed := PruneSelection(entries, now, RetentionWindow, RetentionCap)

	// Assert
	assert.Empty(t, doomed)
}
