package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailfleet/tokenstack/internal/enum"
	"github.com/mailfleet/tokenstack/internal/models"
)

func outcomeEntry(id, accountID string, outcome enum.RefreshOutcome, createdAt time.Time) *models.RefreshLog {
	return &models.RefreshLog{
		ID:        id,
		AccountID: accountID,
		Outcome:   outcome,
		CreatedAt: createdAt,
	}
}

func TestFailedCurrentSelection_Empty(t *testing.T) {
	assert.Empty(t, FailedCurrentSelection(nil))
}

func TestFailedCurrentSelection_RecoveredAccountExcluded(t *testing.T) {
	// Arrange - the account failed once but its most recent attempt succeeded
	now := time.Now()
	entries := mostRecentFirst([]*models.RefreshLog{
		outcomeEntry("a1-fail", "a1", enum.RefreshOutcomeFailed, now.Add(-2*time.Hour)),
		outcomeEntry("a1-ok", "a1", enum.RefreshOutcomeSuccess, now.Add(-1*time.Hour)),
	})

	// Act
	failing := FailedCurrentSelection(entries)

	// Assert - only the latest entry counts, so the account is not failing
	assert.Empty(t, failing)
}

func TestFailedCurrentSelection_RegressedAccountIncluded(t *testing.T) {
	// Arrange - the account succeeded once but its most recent attempt failed
	now := time.Now()
	entries := mostRecentFirst([]*models.RefreshLog{
		outcomeEntry("b1-ok", "b1", enum.RefreshOutcomeSuccess, now.Add(-2*time.Hour)),
		outcomeEntry("b1-fail", "b1", enum.RefreshOutcomeFailed, now.Add(-1*time.Hour)),
	})

	// Act
	failing := FailedCurrentSelection(entries)

	// Assert
	require.Len(t, failing, 1)
	assert.Equal(t, "b1-fail", failing[0].ID)
}

func TestFailedCurrentSelection_MixedAccounts(t *testing.T) {
	// Arrange - a1 recovered, b1 regressed, c1 only ever succeeded
	now := time.Now()
	entries := mostRecentFirst([]*models.RefreshLog{
		outcomeEntry("a1-fail", "a1", enum.RefreshOutcomeFailed, now.Add(-4*time.Hour)),
		outcomeEntry("a1-ok", "a1", enum.RefreshOutcomeSuccess, now.Add(-1*time.Hour)),
		outcomeEntry("b1-ok", "b1", enum.RefreshOutcomeSuccess, now.Add(-3*time.Hour)),
		outcomeEntry("b1-fail", "b1", enum.RefreshOutcomeFailed, now.Add(-2*time.Hour)),
		outcomeEntry("c1-ok", "c1", enum.RefreshOutcomeSuccess, now.Add(-5*time.Hour)),
	})

	// Act
	failing := FailedCurrentSelection(entries)

	// Assert
	require.Len(t, failing, 1)
	assert.Equal(t, "b1", failing[0].AccountID)
	assert.Equal(t, "b1-fail", failing[0].ID)
}

func TestFailedCurrentSelection_LatestPerAccountInputPassesThrough(t *testing.T) {
	// Arrange - input already holds one entry per account, as the ledger's
	// latest-per-account query returns it
	now := time.Now()
	entries := []*models.RefreshLog{
		outcomeEntry("a1-fail", "a1", enum.RefreshOutcomeFailed, now),
		outcomeEntry("b1-ok", "b1", enum.RefreshOutcomeSuccess, now),
	}

	// Act
	failing := FailedCurrentSelection(entries)

	// Assert
	require.Len(t, failing, 1)
	assert.Equal(t, "a1-fail", failing[0].ID)
}
