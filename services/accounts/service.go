package accounts

import (
	"context"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailfleet/tokenstack/dto"
	"github.com/mailfleet/tokenstack/interfaces"
	tserrors "github.com/mailfleet/tokenstack/internal/errors"
	"github.com/mailfleet/tokenstack/internal/logger"
	"github.com/mailfleet/tokenstack/internal/models"
	"github.com/mailfleet/tokenstack/internal/tracing"
)

// fieldSeparator splits the credential line format:
// email----password----client_id----refresh_token
const fieldSeparator = "----"

// Service handles bulk credential import and export.
type Service struct {
	log      logger.Logger
	accounts interfaces.AccountRepository
}

func NewService(log logger.Logger, accounts interfaces.AccountRepository) *Service {
	return &Service{
		log:      log,
		accounts: accounts,
	}
}

// Import parses credential lines and stores each as an active account.
// Malformed lines and duplicate email addresses are skipped, not fatal.
func (s *Service) Import(ctx context.Context, req *dto.ImportAccountsRequest) (*dto.ImportAccountsResponse, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AccountsService.Import")
	defer span.Finish()
	tracing.TagComponentService(span)

	resp := &dto.ImportAccountsResponse{}

	for _, line := range strings.Split(req.Text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}

		account, err := ParseCredentialLine(line)
		if err != nil {
			s.log.Warnf("Skipping malformed credential line: %v", err)
			resp.Skipped++
			continue
		}
		account.GroupID = req.GroupID

		err = s.accounts.Create(ctx, account)
		if err != nil {
			if errors.Is(err, tserrors.ErrAccountExists) {
				resp.Skipped++
				continue
			}
			tracing.TraceErr(span, err)
			return nil, err
		}
		resp.Added++
	}

	s.log.Infof("Credential import done: %d added, %d skipped", resp.Added, resp.Skipped)
	return resp, nil
}

// Export renders active accounts back into the credential line format, with
// current (possibly rotated) refresh secrets. A non-empty groupID restricts
// the dump to that group.
func (s *Service) Export(ctx context.Context, groupID string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AccountsService.Export")
	defer span.Finish()
	tracing.TagComponentService(span)

	active, err := s.accounts.ListActive(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	var b strings.Builder
	for _, account := range active {
		if groupID != "" && account.GroupID != groupID {
			continue
		}
		b.WriteString(FormatCredentialLine(account))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// ParseCredentialLine splits one import row into an account. Password may be
// empty; the email, client id and refresh token fields may not.
func ParseCredentialLine(line string) (*models.Account, error) {
	parts := strings.Split(line, fieldSeparator)
	if len(parts) != 4 {
		return nil, errors.Errorf("expected 4 fields, got %d", len(parts))
	}

	email := strings.TrimSpace(parts[0])
	clientID := strings.TrimSpace(parts[2])
	refreshToken := strings.TrimSpace(parts[3])
	if email == "" || clientID == "" || refreshToken == "" {
		return nil, errors.New("email, client id and refresh token are required")
	}

	return &models.Account{
		EmailAddress: email,
		Password:     strings.TrimSpace(parts[1]),
		ClientID:     clientID,
		RefreshToken: refreshToken,
		Active:       true,
	}, nil
}

// FormatCredentialLine is the inverse of ParseCredentialLine.
func FormatCredentialLine(account *models.Account) string {
	return strings.Join([]string{
		account.EmailAddress,
		account.Password,
		account.ClientID,
		account.RefreshToken,
	}, fieldSeparator)
}
