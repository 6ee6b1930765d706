package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/mailfleet/tokenstack/interfaces"
	"github.com/mailfleet/tokenstack/internal/enum"
	"github.com/mailfleet/tokenstack/internal/models"
	"github.com/mailfleet/tokenstack/internal/tracing"
)

type schedulePolicyRepository struct {
	db *gorm.DB
}

func NewSchedulePolicyRepository(db *gorm.DB) interfaces.SchedulePolicyRepository {
	return &schedulePolicyRepository{db: db}
}

func (r *schedulePolicyRepository) Get(ctx context.Context) (*models.SchedulePolicy, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "schedulePolicyRepository.Get")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var policy models.SchedulePolicy
	err := r.db.WithContext(ctx).
		Where("id = ?", models.SchedulePolicyID).
		First(&policy).Error
	if err == nil {
		return &policy, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to get schedule policy")
	}

	// First read bootstraps the disabled default row
	policy = models.SchedulePolicy{
		ID:           models.SchedulePolicyID,
		Enabled:      false,
		Mode:         enum.ScheduleIntervalDays,
		IntervalDays: 7,
	}
	if err := r.db.WithContext(ctx).Create(&policy).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to create default schedule policy")
	}
	return &policy, nil
}

func (r *schedulePolicyRepository) Save(ctx context.Context, policy *models.SchedulePolicy) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "schedulePolicyRepository.Save")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	policy.ID = models.SchedulePolicyID
	policy.UpdatedAt = time.Now()

	if err := r.db.WithContext(ctx).Save(policy).Error; err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to save schedule policy")
	}
	return nil
}

func (r *schedulePolicyRepository) MarkRun(ctx context.Context, lastRunAt time.Time, nextRunAt *time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "schedulePolicyRepository.MarkRun")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Model(&models.SchedulePolicy{}).
		Where("id = ?", models.SchedulePolicyID).
		Updates(map[string]interface{}{
			"last_run_at": lastRunAt,
			"next_run_at": nextRunAt,
			"updated_at":  time.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to mark schedule run")
	}
	return nil
}
