package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/mailfleet/tokenstack/interfaces"
	"github.com/mailfleet/tokenstack/internal/crypto"
	"github.com/mailfleet/tokenstack/internal/enum"
	tserrors "github.com/mailfleet/tokenstack/internal/errors"
	"github.com/mailfleet/tokenstack/internal/models"
	"github.com/mailfleet/tokenstack/internal/tracing"
)

type accountRepository struct {
	db     *gorm.DB
	cipher *crypto.Cipher
}

func NewAccountRepository(db *gorm.DB, cipher *crypto.Cipher) interfaces.AccountRepository {
	return &accountRepository{
		db:     db,
		cipher: cipher,
	}
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var account models.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tserrors.ErrAccountNotFound
		}
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to get account")
	}

	if err := r.decryptAccount(&account); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) ListActive(ctx context.Context) ([]*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.ListActive")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var accounts []*models.Account
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id asc").
		Find(&accounts).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to list active accounts")
	}

	for _, account := range accounts {
		if err := r.decryptAccount(account); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	}
	return accounts, nil
}

func (r *accountRepository) ListActiveByIDs(ctx context.Context, ids []string) ([]*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.ListActiveByIDs")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var accounts []*models.Account
	err := r.db.WithContext(ctx).
		Where("active = ? AND id IN ?", true, ids).
		Order("id asc").
		Find(&accounts).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to list accounts by ids")
	}

	for _, account := range accounts {
		if err := r.decryptAccount(account); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	}
	return accounts, nil
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	// Check for an existing account before creating
	var existing models.Account
	err := r.db.WithContext(ctx).
		Where("email_address = ?", account.EmailAddress).
		First(&existing).Error
	if err == nil {
		span.SetTag("duplicate", true)
		return tserrors.ErrAccountExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to check for existing account")
	}

	if err := r.encryptAccount(account); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to create account")
	}

	// Hand plaintext back to the caller
	return r.decryptAccount(account)
}

func (r *accountRepository) UpdateRefreshStatus(ctx context.Context, id string, status enum.RefreshStatus, at time.Time, rotatedSecret string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.UpdateRefreshStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	updates := map[string]interface{}{
		"refresh_status":  status,
		"last_refresh_at": at,
		"updated_at":      time.Now(),
	}
	if rotatedSecret != "" {
		encrypted, err := r.cipher.Encrypt(rotatedSecret)
		if err != nil {
			tracing.TraceErr(span, err)
			return errors.Wrap(err, "failed to encrypt rotated secret")
		}
		updates["refresh_token"] = encrypted
	}

	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return errors.Wrap(result.Error, "failed to update refresh status")
	}
	if result.RowsAffected == 0 {
		return tserrors.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) CountActive(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.CountActive")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("active = ?", true).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, errors.Wrap(err, "failed to count active accounts")
	}
	return count, nil
}

func (r *accountRepository) CountActiveByStatus(ctx context.Context, status enum.RefreshStatus) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.CountActiveByStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("active = ? AND refresh_status = ?", true, status).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, errors.Wrap(err, "failed to count accounts by status")
	}
	return count, nil
}

func (r *accountRepository) encryptAccount(account *models.Account) error {
	var err error
	if account.RefreshToken != "" {
		if account.RefreshToken, err = r.cipher.Encrypt(account.RefreshToken); err != nil {
			return errors.Wrap(err, "failed to encrypt refresh token")
		}
	}
	if account.ClientID != "" {
		if account.ClientID, err = r.cipher.Encrypt(account.ClientID); err != nil {
			return errors.Wrap(err, "failed to encrypt client id")
		}
	}
	if account.Password != "" {
		if account.Password, err = r.cipher.Encrypt(account.Password); err != nil {
			return errors.Wrap(err, "failed to encrypt password")
		}
	}
	return nil
}

func (r *accountRepository) decryptAccount(account *models.Account) error {
	var err error
	if account.RefreshToken != "" {
		if account.RefreshToken, err = r.cipher.Decrypt(account.RefreshToken); err != nil {
			return errors.Wrap(err, "failed to decrypt refresh token")
		}
	}
	if account.ClientID != "" {
		if account.ClientID, err = r.cipher.Decrypt(account.ClientID); err != nil {
			return errors.Wrap(err, "failed to decrypt client id")
		}
	}
	if account.Password != "" {
		if account.Password, err = r.cipher.Decrypt(account.Password); err != nil {
			return errors.Wrap(err, "failed to decrypt password")
		}
	}
	return nil
}
