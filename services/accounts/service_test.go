package accounts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailfleet/tokenstack/dto"
	"github.com/mailfleet/tokenstack/internal/enum"
	tserrors "github.com/mailfleet/tokenstack/internal/errors"
	"github.com/mailfleet/tokenstack/internal/logger"
	"github.com/mailfleet/tokenstack/internal/models"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts []*models.Account
}

func (f *fakeAccountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	for _, a := range f.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, tserrors.ErrAccountNotFound
}

func (f *fakeAccountRepo) ListActive(ctx context.Context) ([]*models.Account, error) {
	var out []*models.Account
	for _, a := range f.accounts {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) ListActiveByIDs(ctx context.Context, ids []string) ([]*models.Account, error) {
	return nil, nil
}

func (f *fakeAccountRepo) Create(ctx context.Context, account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.EmailAddress == account.EmailAddress {
			return tserrors.ErrAccountExists
		}
	}
	f.accounts = append(f.accounts, account)
	return nil
}

func (f *fakeAccountRepo) UpdateRefreshStatus(ctx context.Context, id string, status enum.RefreshStatus, at time.Time, rotatedSecret string) error {
	return nil
}

func (f *fakeAccountRepo) CountActive(ctx context.Context) (int64, error) {
	return int64(len(f.accounts)), nil
}

func (f *fakeAccountRepo) CountActiveByStatus(ctx context.Context, status enum.RefreshStatus) (int64, error) {
	return 0, nil
}

func TestParseCredentialLine(t *testing.T) {
	// Act
	account, err := ParseCredentialLine("user@outlook.com----pa55w0rd----client-123----0.refresh-token-value")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "user@outlook.com", account.EmailAddress)
	assert.Equal(t, "pa55w0rd", account.Password)
	assert.Equal(t, "client-123", account.ClientID)
	assert.Equal(t, "0.refresh-token-value", account.RefreshToken)
	assert.True(t, account.Active)
}

func TestParseCredentialLine_EmptyPasswordAllowed(t *testing.T) {
	// Act
	account, err := ParseCredentialLine("user@outlook.com--------client-123----rt-value")

	// Assert
	require.NoError(t, err)
	assert.Empty(t, account.Password)
}

func TestParseCredentialLine_WrongFieldCount(t *testing.T) {
	// Act
	_, err := ParseCredentialLine("user@outlook.com----pa55w0rd----client-123")

	// Assert
	assert.Error(t, err)
}

func TestParseCredentialLine_MissingRequiredField(t *testing.T) {
	// Act
	_, err := ParseCredentialLine("user@outlook.com----pa55w0rd--------rt-value")

	// Assert
	assert.Error(t, err)
}

func TestFormatCredentialLine_RoundTrip(t *testing.T) {
	// Arrange
	account := &models.Account{
		EmailAddress: "user@outlook.com",
		Password:     "pa55w0rd",
		ClientID:     "client-123",
		RefreshToken: "rt-value",
	}

	// Act
	line := FormatCredentialLine(account)
	parsed, err := ParseCredentialLine(line)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, account.EmailAddress, parsed.EmailAddress)
	assert.Equal(t, account.Password, parsed.Password)
	assert.Equal(t, account.ClientID, parsed.ClientID)
	assert.Equal(t, account.RefreshToken, parsed.RefreshToken)
}

func TestService_Import(t *testing.T) {
	// Arrange
	repo := &fakeAccountRepo{}
	svc := NewService(getLogger(), repo)

	text := "one@outlook.com----pw1----c1----rt1\r\n" +
		"two@outlook.com----pw2----c2----rt2\n" +
		"\n" +
		"malformed-line\n" +
		"one@outlook.com----pw1----c1----rt1\n"

	// Act
	resp, err := svc.Import(context.Background(), &dto.ImportAccountsRequest{Text: text, GroupID: "g1"})

	// Assert - duplicates and malformed rows are skipped, blanks ignored
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Added)
	assert.Equal(t, 2, resp.Skipped)
	require.Len(t, repo.accounts, 2)
	assert.Equal(t, "g1", repo.accounts[0].GroupID)
	assert.True(t, repo.accounts[0].Active)
}

func TestService_Export(t *testing.T) {
	// Arrange
	repo := &fakeAccountRepo{accounts: []*models.Account{
		{EmailAddress: "one@outlook.com", Password: "pw1", ClientID: "c1", RefreshToken: "rt1-rotated", Active: true},
		{EmailAddress: "two@outlook.com", Password: "pw2", ClientID: "c2", RefreshToken: "rt2", Active: false},
	}}
	svc := NewService(getLogger(), repo)

	// Act
	text, err := svc.Export(context.Background(), "")

	// Assert - only active accounts, with current refresh secrets
	require.NoError(t, err)
	assert.Equal(t, "one@outlook.com----pw1----c1----rt1-rotated\n", text)
}

func TestService_Export_GroupFilter(t *testing.T) {
	// Arrange
	repo := &fakeAccountRepo{accounts: []*models.Account{
		{EmailAddress: "one@outlook.com", ClientID: "c1", RefreshToken: "rt1", GroupID: "g1", Active: true},
		{EmailAddress: "two@outlook.com", ClientID: "c2", RefreshToken: "rt2", GroupID: "g2", Active: true},
	}}
	svc := NewService(getLogger(), repo)

	// Act
	text, err := svc.Export(context.Background(), "g2")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "two@outlook.com--------c2----rt2\n", text)
}

func TestService_ImportExport_RoundTrip(t *testing.T) {
	// Arrange
	repo := &fakeAccountRepo{}
	svc := NewService(getLogger(), repo)
	original := "one@outlook.com----pw1----c1----rt1\ntwo@outlook.com----pw2----c2----rt2\n"

	// Act
	_, err := svc.Import(context.Background(), &dto.ImportAccountsRequest{Text: original})
	require.NoError(t, err)
	exported, err := svc.Export(context.Background(), "")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, original, exported)
}
