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

type refreshLogRepository struct {
	db *gorm.DB
}

func NewRefreshLogRepository(db *gorm.DB) interfaces.RefreshLogRepository {
	return &refreshLogRepository{db: db}
}

func (r *refreshLogRepository) Append(ctx context.Context, entry *models.RefreshLog) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "refreshLogRepository.Append")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, entry.AccountID)

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to append refresh log entry")
	}
	return nil
}

func (r *refreshLogRepository) ListSince(ctx context.Context, cutoff time.Time, limit int, failedOnly bool) ([]*models.RefreshLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "refreshLogRepository.ListSince")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	query := r.db.WithContext(ctx).
		Where("created_at >= ?", cutoff).
		Order("created_at desc")
	if failedOnly {
		query = query.Where("outcome = ?", enum.RefreshOutcomeFailed)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []*models.RefreshLog
	if err := query.Find(&entries).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to list refresh log entries")
	}
	return entries, nil
}

func (r *refreshLogRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.RefreshLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "refreshLogRepository.ListByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, accountID)

	query := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []*models.RefreshLog
	if err := query.Find(&entries).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to list account refresh history")
	}
	return entries, nil
}

func (r *refreshLogRepository) ListLatestPerAccount(ctx context.Context) ([]*models.RefreshLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "refreshLogRepository.ListLatestPerAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var entries []*models.RefreshLog
	err := r.db.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (account_id) *
		     FROM refresh_logs
		     ORDER BY account_id, created_at DESC, id DESC`).
		Scan(&entries).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to list latest entries per account")
	}
	return entries, nil
}

func (r *refreshLogRepository) ListAll(ctx context.Context) ([]*models.RefreshLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "refreshLogRepository.ListAll")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var entries []*models.RefreshLog
	err := r.db.WithContext(ctx).
		Order("created_at desc, id desc").
		Find(&entries).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to list refresh log entries")
	}
	return entries, nil
}

func (r *refreshLogRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "refreshLogRepository.DeleteByIDs")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if len(ids) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&models.RefreshLog{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to delete refresh log entries")
	}
	return nil
}

func (r *refreshLogRepository) LatestEntryTime(ctx context.Context) (*time.Time, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "refreshLogRepository.LatestEntryTime")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var entry models.RefreshLog
	err := r.db.WithContext(ctx).
		Order("created_at desc").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to get latest entry time")
	}
	return &entry.CreatedAt, nil
}
