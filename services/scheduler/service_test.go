package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailfleet/tokenstack/config"
	"github.com/mailfleet/tokenstack/dto"
	"github.com/mailfleet/tokenstack/internal/enum"
	tserrors "github.com/mailfleet/tokenstack/internal/errors"
	"github.com/mailfleet/tokenstack/internal/logger"
	"github.com/mailfleet/tokenstack/internal/models"
	"github.com/mailfleet/tokenstack/internal/utils"
	"github.com/mailfleet/tokenstack/services/refresher"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type fakePolicyRepo struct {
	policy    *models.SchedulePolicy
	saves     int
	markedRun bool
}

func (f *fakePolicyRepo) Get(ctx context.Context) (*models.SchedulePolicy, error) {
	if f.policy == nil {
		f.policy = &models.SchedulePolicy{
			ID:           models.SchedulePolicyID,
			Mode:         enum.ScheduleIntervalDays,
			IntervalDays: 7,
		}
	}
	return f.policy, nil
}

func (f *fakePolicyRepo) Save(ctx context.Context, policy *models.SchedulePolicy) error {
	f.policy = policy
	f.saves++
	return nil
}

func (f *fakePolicyRepo) MarkRun(ctx context.Context, lastRunAt time.Time, nextRunAt *time.Time) error {
	f.policy.LastRunAt = &lastRunAt
	f.policy.NextRunAt = nextRunAt
	f.markedRun = true
	return nil
}

type fakeEngine struct {
	busy    bool
	batches int
	kind    enum.AttemptKind
}

func (f *fakeEngine) Busy() bool {
	return f.busy
}

func (f *fakeEngine) RunBatch(ctx context.Context, accountIDs []string, kind enum.AttemptKind) (*refresher.RunSummary, error) {
	f.batches++
	f.kind = kind
	return &refresher.RunSummary{RunID: "run-1", Kind: kind, Processed: 1, SuccessCount: 1}, nil
}

func newTestScheduler(repo *fakePolicyRepo, engine *fakeEngine) *Service {
	cfg := &config.Config{
		SchedulerConfig: &config.SchedulerConfig{EvaluateIntervalSeconds: 30},
	}
	return NewService(cfg, getLogger(), repo, engine, nil)
}

func TestNextRun_Cron(t *testing.T) {
	// Arrange
	policy := &models.SchedulePolicy{
		Mode:           enum.ScheduleCron,
		CronExpression: "0 2 * * *",
	}
	from := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	// Act
	next, err := NextRun(policy, from)

	// Assert - 02:00 has passed today, so the next firing is tomorrow
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC), *next)
}

func TestNextRun_CronInvalidExpression(t *testing.T) {
	// Arrange
	policy := &models.SchedulePolicy{
		Mode:           enum.ScheduleCron,
		CronExpression: "not-a-cron",
	}

	// Act
	_, err := NextRun(policy, time.Now())

	// Assert
	assert.ErrorIs(t, err, tserrors.ErrInvalidCronExpression)
}

func TestNextRun_IntervalAnchorsOnLastRun(t *testing.T) {
	// Arrange
	lastRun := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := &models.SchedulePolicy{
		Mode:         enum.ScheduleIntervalDays,
		IntervalDays: 7,
		LastRunAt:    &lastRun,
	}
	from := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	// Act
	next, err := NextRun(policy, from)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, lastRun.Add(7*24*time.Hour), *next)
}

func TestNextRun_IntervalOverdueMovesForward(t *testing.T) {
	// Arrange - the anchored firing is already in the past
	lastRun := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	policy := &models.SchedulePolicy{
		Mode:         enum.ScheduleIntervalDays,
		IntervalDays: 7,
		LastRunAt:    &lastRun,
	}
	from := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	// Act
	next, err := NextRun(policy, from)

	// Assert - rebased on from, never in the past
	require.NoError(t, err)
	assert.Equal(t, from.Add(7*24*time.Hour), *next)
}

func TestNextRun_IntervalFallsBackToEnabledAt(t *testing.T) {
	// Arrange
	enabledAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := &models.SchedulePolicy{
		Mode:         enum.ScheduleIntervalDays,
		IntervalDays: 3,
		EnabledAt:    &enabledAt,
	}
	from := enabledAt.Add(time.Hour)

	// Act
	next, err := NextRun(policy, from)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, enabledAt.Add(3*24*time.Hour), *next)
}

func TestService_UpdatePolicy_RejectsInvalidCron(t *testing.T) {
	// Arrange
	repo := &fakePolicyRepo{}
	svc := newTestScheduler(repo, &fakeEngine{})

	// Act
	_, err := svc.UpdatePolicy(context.Background(), &dto.UpdateScheduleRequest{
		Mode:           "cron",
		CronExpression: "61 * * * *",
	})

	// Assert - nothing was persisted
	assert.ErrorIs(t, err, tserrors.ErrInvalidCronExpression)
	assert.Equal(t, 0, repo.saves)
}

func TestService_UpdatePolicy_RejectsIntervalOutOfRange(t *testing.T) {
	// Arrange
	repo := &fakePolicyRepo{}
	svc := newTestScheduler(repo, &fakeEngine{})

	// Act
	_, err := svc.UpdatePolicy(context.Background(), &dto.UpdateScheduleRequest{
		IntervalDays: 120,
	})

	// Assert
	assert.ErrorIs(t, err, tserrors.ErrIntervalOutOfRange)
	assert.Equal(t, 0, repo.saves)
}

func TestService_UpdatePolicy_RejectsCronModeWithoutExpression(t *testing.T) {
	// Arrange
	repo := &fakePolicyRepo{}
	svc := newTestScheduler(repo, &fakeEngine{})

	// Act
	_, err := svc.UpdatePolicy(context.Background(), &dto.UpdateScheduleRequest{
		Mode: "cron",
	})

	// Assert
	assert.ErrorIs(t, err, tserrors.ErrInvalidCronExpression)
}

func TestService_UpdatePolicy_EnableComputesNextRun(t *testing.T) {
	// Arrange
	repo := &fakePolicyRepo{}
	svc := newTestScheduler(repo, &fakeEngine{})

	// Act
	policy, err := svc.UpdatePolicy(context.Background(), &dto.UpdateScheduleRequest{
		Enabled:      utils.BoolPtr(true),
		Mode:         "interval_days",
		IntervalDays: 5,
	})

	// Assert
	require.NoError(t, err)
	assert.True(t, policy.Enabled)
	require.NotNil(t, policy.EnabledAt)
	require.NotNil(t, policy.NextRunAt)
	assert.Equal(t, 1, repo.saves)
	assert.WithinDuration(t, policy.EnabledAt.Add(5*24*time.Hour), *policy.NextRunAt, time.Second)
}

func TestService_UpdatePolicy_DisableClearsNextRun(t *testing.T) {
	// Arrange
	now := time.Now()
	repo := &fakePolicyRepo{policy: &models.SchedulePolicy{
		ID:           models.SchedulePolicyID,
		Enabled:      true,
		Mode:         enum.ScheduleIntervalDays,
		IntervalDays: 7,
		EnabledAt:    &now,
		NextRunAt:    &now,
	}}
	svc := newTestScheduler(repo, &fakeEngine{})

	// Act
	policy, err := svc.UpdatePolicy(context.Background(), &dto.UpdateScheduleRequest{
		Enabled: utils.BoolPtr(false),
	})

	// Assert
	require.NoError(t, err)
	assert.False(t, policy.Enabled)
	assert.Nil(t, policy.NextRunAt)
	assert.Nil(t, policy.EnabledAt)
}

func TestService_Evaluate_DisabledPolicyDoesNothing(t *testing.T) {
	// Arrange
	engine := &fakeEngine{}
	repo := &fakePolicyRepo{policy: &models.SchedulePolicy{
		ID:   models.SchedulePolicyID,
		Mode: enum.ScheduleIntervalDays,
	}}
	svc := newTestScheduler(repo, engine)

	// Act
	svc.Evaluate(context.Background())

	// Assert
	assert.Equal(t, 0, engine.batches)
	assert.Equal(t, 0, repo.saves)
}

func TestService_Evaluate_FiresWhenDue(t *testing.T) {
	// Arrange
	due := time.Now().Add(-time.Minute)
	enabledAt := time.Now().Add(-time.Hour)
	engine := &fakeEngine{}
	repo := &fakePolicyRepo{policy: &models.SchedulePolicy{
		ID:           models.SchedulePolicyID,
		Enabled:      true,
		Mode:         enum.ScheduleIntervalDays,
		IntervalDays: 7,
		EnabledAt:    &enabledAt,
		NextRunAt:    &due,
	}}
	svc := newTestScheduler(repo, engine)

	// Act
	svc.Evaluate(context.Background())

	// Assert
	assert.Equal(t, 1, engine.batches)
	assert.Equal(t, enum.AttemptAuto, engine.kind)
	assert.True(t, repo.markedRun)
	require.NotNil(t, repo.policy.NextRunAt)
	assert.True(t, repo.policy.NextRunAt.After(time.Now()))
}

func TestService_Evaluate_SkipsWhenEngineBusy(t *testing.T) {
	// Arrange
	due := time.Now().Add(-time.Minute)
	engine := &fakeEngine{busy: true}
	repo := &fakePolicyRepo{policy: &models.SchedulePolicy{
		ID:           models.SchedulePolicyID,
		Enabled:      true,
		Mode:         enum.ScheduleIntervalDays,
		IntervalDays: 7,
		NextRunAt:    &due,
	}}
	svc := newTestScheduler(repo, engine)

	// Act
	svc.Evaluate(context.Background())

	// Assert - no batch queued, next firing pushed forward
	assert.Equal(t, 0, engine.batches)
	assert.False(t, repo.markedRun)
	require.NotNil(t, repo.policy.NextRunAt)
	assert.True(t, repo.policy.NextRunAt.After(time.Now()))
}

func TestService_Evaluate_NotDueYet(t *testing.T) {
	// Arrange
	future := time.Now().Add(time.Hour)
	engine := &fakeEngine{}
	repo := &fakePolicyRepo{policy: &models.SchedulePolicy{
		ID:           models.SchedulePolicyID,
		Enabled:      true,
		Mode:         enum.ScheduleIntervalDays,
		IntervalDays: 7,
		NextRunAt:    &future,
	}}
	svc := newTestScheduler(repo, engine)

	// Act
	svc.Evaluate(context.Background())

	// Assert
	assert.Equal(t, 0, engine.batches)
}

func TestService_Evaluate_BootstrapsNextRun(t *testing.T) {
	// Arrange - enabled policy with no next run time yet
	enabledAt := time.Now()
	engine := &fakeEngine{}
	repo := &fakePolicyRepo{policy: &models.SchedulePolicy{
		ID:           models.SchedulePolicyID,
		Enabled:      true,
		Mode:         enum.ScheduleIntervalDays,
		IntervalDays: 7,
		EnabledAt:    &enabledAt,
	}}
	svc := newTestScheduler(repo, engine)

	// Act
	svc.Evaluate(context.Background())

	// Assert - first tick only computes the firing time
	assert.Equal(t, 0, engine.batches)
	require.NotNil(t, repo.policy.NextRunAt)
	assert.WithinDuration(t, enabledAt.Add(7*24*time.Hour), *repo.policy.NextRunAt, time.Second)
}

func TestService_Stop_Idempotent(t *testing.T) {
	// Arrange - losing leadership and server shutdown can both call Stop
	svc := newTestScheduler(&fakePolicyRepo{}, &fakeEngine{})

	// Act
	svc.Stop()

	// Assert
	assert.NotPanics(t, func() { svc.Stop() })
	select {
	case <-svc.stopCh:
	default:
		t.Fatal("stop channel should be closed")
	}
}

func TestService_Preview_ValidExpression(t *testing.T) {
	// Arrange
	svc := newTestScheduler(&fakePolicyRepo{}, &fakeEngine{})

	// Act
	resp := svc.Preview(&dto.PreviewScheduleRequest{Expression: "0 2 * * *", Count: 3})

	// Assert
	assert.True(t, resp.Valid)
	assert.Empty(t, resp.Error)
	require.Len(t, resp.NextRuns, 3)
	for _, at := range resp.NextRuns {
		assert.Equal(t, 2, at.Hour())
		assert.Equal(t, 0, at.Minute())
	}
	assert.True(t, resp.NextRuns[1].After(resp.NextRuns[0]))
}

func TestService_Preview_InvalidExpression(t *testing.T) {
	// Arrange
	svc := newTestScheduler(&fakePolicyRepo{}, &fakeEngine{})

	// Act
	resp := svc.Preview(&dto.PreviewScheduleRequest{Expression: "not-a-cron"})

	// Assert
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, resp.NextRuns)
}
