package refresher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailfleet/tokenstack/dto"
	"github.com/mailfleet/tokenstack/interfaces"
	"github.com/mailfleet/tokenstack/internal/enum"
	tserrors "github.com/mailfleet/tokenstack/internal/errors"
	"github.com/mailfleet/tokenstack/internal/logger"
	"github.com/mailfleet/tokenstack/internal/models"
	"github.com/mailfleet/tokenstack/internal/tracing"
	"github.com/mailfleet/tokenstack/services/provider"
)

// HistoryIndex is the slice of the history service the engine needs: retention
// pruning after a batch and the currently-failing selection for retry runs.
type HistoryIndex interface {
	Prune(ctx context.Context) (int, error)
	ListFailedCurrent(ctx context.Context) ([]*models.RefreshLog, error)
}

// Service is the refresh engine. It owns the process-wide run lock: at most
// one batch (scheduled or manual) executes at a time, and a second start
// attempt fails immediately with ErrRunInProgress instead of queuing.
type Service struct {
	log      logger.Logger
	accounts interfaces.AccountRepository
	ledger   interfaces.RefreshLogRepository
	provider interfaces.ProviderClient
	history  HistoryIndex
	events   interfaces.EventPublisher
	hub      *ProgressHub

	mu          sync.Mutex
	running     bool
	current     *RunState
	lastSummary *RunSummary
}

func NewService(
	log logger.Logger,
	accounts interfaces.AccountRepository,
	ledger interfaces.RefreshLogRepository,
	providerClient interfaces.ProviderClient,
	history HistoryIndex,
	events interfaces.EventPublisher,
	hub *ProgressHub,
) *Service {
	return &Service{
		log:      log,
		accounts: accounts,
		ledger:   ledger,
		provider: providerClient,
		history:  history,
		events:   events,
		hub:      hub,
	}
}

// Hub exposes the progress feed for the streaming handler.
func (s *Service) Hub() *ProgressHub {
	return s.hub
}

// StartFullRun snapshots all active accounts and starts a batch over them in
// the background. Returns ErrRunInProgress when a batch is already active.
func (s *Service) StartFullRun(ctx context.Context, kind enum.AttemptKind) (*dto.StartRunResponse, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RefresherService.StartFullRun")
	defer span.Finish()
	tracing.TagComponentService(span)

	accounts, err := s.accounts.ListActive(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return s.startRun(accounts, kind)
}

// StartRetryRun starts a batch restricted to currently failing accounts
// (accounts whose latest ledger entry is a failure).
func (s *Service) StartRetryRun(ctx context.Context) (*dto.StartRunResponse, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RefresherService.StartRetryRun")
	defer span.Finish()
	tracing.TagComponentService(span)

	failing, err := s.history.ListFailedCurrent(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if len(failing) == 0 {
		return nil, tserrors.ErrNoFailingAccounts
	}

	ids := make([]string, 0, len(failing))
	for _, entry := range failing {
		ids = append(ids, entry.AccountID)
	}

	accounts, err := s.accounts.ListActiveByIDs(ctx, ids)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, tserrors.ErrNoFailingAccounts
	}

	return s.startRun(accounts, enum.AttemptRetry)
}

// RunBatch executes a batch synchronously over the given account ids.
// Used by the scheduler, which wants completion before recomputing fire times.
func (s *Service) RunBatch(ctx context.Context, accountIDs []string, kind enum.AttemptKind) (*RunSummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RefresherService.RunBatch")
	defer span.Finish()
	tracing.TagComponentService(span)

	var accounts []*models.Account
	var err error
	if accountIDs == nil {
		accounts, err = s.accounts.ListActive(ctx)
	} else {
		accounts, err = s.accounts.ListActiveByIDs(ctx, accountIDs)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	state, err := s.begin(accounts, kind)
	if err != nil {
		return nil, err
	}
	return s.drain(ctx, state, accounts), nil
}

// RefreshOne refreshes a single account synchronously. It holds the same run
// lock as batches, so status writes never race with an in-flight batch.
func (s *Service) RefreshOne(ctx context.Context, accountID string, kind enum.AttemptKind) (*Outcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RefresherService.RefreshOne")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagEntity(span, accountID)

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	state, err := s.begin([]*models.Account{account}, kind)
	if err != nil {
		return nil, err
	}

	summary := s.drain(ctx, state, []*models.Account{account})
	outcome := &Outcome{
		AccountID:    account.ID,
		EmailAddress: account.EmailAddress,
		Outcome:      enum.RefreshOutcomeSuccess,
	}
	if summary.FailureCount > 0 {
		outcome.Outcome = enum.RefreshOutcomeFailed
		// The ledger entry for this attempt carries the detail
		entries, lerr := s.ledger.ListByAccount(ctx, account.ID, 1)
		if lerr == nil && len(entries) > 0 {
			outcome.ErrorDetail = entries[0].ErrorDetail
		}
	}
	return outcome, nil
}

// Status returns stats inputs owned by the engine.
func (s *Service) Status() (running bool, current *RunState, last *RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		stateCopy := *s.current
		current = &stateCopy
	}
	if s.lastSummary != nil {
		summaryCopy := *s.lastSummary
		last = &summaryCopy
	}
	return s.running, current, last
}

// Busy reports whether a batch is active. Used by the scheduler to skip a
// firing instead of queuing a second batch.
func (s *Service) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) startRun(accounts []*models.Account, kind enum.AttemptKind) (*dto.StartRunResponse, error) {
	state, err := s.begin(accounts, kind)
	if err != nil {
		return nil, err
	}

	// The batch runs detached from the request context: once started it
	// drains its full snapshot even if the caller disconnects.
	go func() {
		defer tracing.RecoverAndLogToJaeger(s.log)
		span, ctx := tracing.StartTracerSpan(context.Background(), "RefresherService.runBatch")
		defer span.Finish()
		tracing.TagComponentService(span)
		s.drain(ctx, state, accounts)
	}()

	return &dto.StartRunResponse{RunID: state.RunID, Total: state.Total}, nil
}

// begin acquires the run lock and installs fresh run state, or fails fast.
func (s *Service) begin(accounts []*models.Account, kind enum.AttemptKind) (*RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, tserrors.ErrRunInProgress
	}

	state := &RunState{
		RunID:     uuid.New().String(),
		Kind:      kind,
		Total:     len(accounts),
		StartedAt: time.Now(),
	}
	s.running = true
	s.current = state
	return state, nil
}

// drain processes the full snapshot in order, releases the lock in all exit
// paths, and emits the terminal summary event.
func (s *Service) drain(ctx context.Context, state *RunState, accounts []*models.Account) *RunSummary {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.current = nil
		s.mu.Unlock()
	}()

	s.log.Infof("Refresh run %s started: %d account(s), kind=%s", state.RunID, state.Total, state.Kind)

	for _, account := range accounts {
		outcome := s.refreshAccount(ctx, account, state.Kind)

		s.mu.Lock()
		state.Processed++
		state.CurrentEmail = account.EmailAddress
		if outcome.Outcome == enum.RefreshOutcomeSuccess {
			state.Success++
		} else {
			state.Failed++
		}
		event := dto.ProgressEvent{
			RunID:        state.RunID,
			Processed:    state.Processed,
			Total:        state.Total,
			CurrentEmail: account.EmailAddress,
			Status:       outcome.Outcome.String(),
			Error:        outcome.ErrorDetail,
		}
		s.mu.Unlock()

		s.hub.Publish(event)
	}

	summary := &RunSummary{
		RunID:        state.RunID,
		Kind:         state.Kind,
		Processed:    state.Processed,
		SuccessCount: state.Success,
		FailureCount: state.Failed,
		StartedAt:    state.StartedAt,
		FinishedAt:   time.Now(),
	}

	s.mu.Lock()
	s.lastSummary = summary
	s.mu.Unlock()

	s.hub.Publish(dto.ProgressEvent{
		RunID:        summary.RunID,
		Processed:    summary.Processed,
		Total:        state.Total,
		Done:         true,
		SuccessCount: summary.SuccessCount,
		FailureCount: summary.FailureCount,
		StartedAt:    &summary.StartedAt,
		FinishedAt:   &summary.FinishedAt,
	})

	s.log.Infof("Refresh run %s finished: %d ok, %d failed", summary.RunID, summary.SuccessCount, summary.FailureCount)

	if s.history != nil {
		if pruned, err := s.history.Prune(ctx); err != nil {
			s.log.Warnf("History pruning after run %s failed: %v", summary.RunID, err)
		} else if pruned > 0 {
			s.log.Infof("Pruned %d history entries after run %s", pruned, summary.RunID)
		}
	}

	if s.events != nil {
		if err := s.events.PublishRunCompleted(ctx, summary.RunID, summary); err != nil {
			s.log.Warnf("Failed to publish run completed event: %v", err)
		}
	}

	return summary
}

// refreshAccount exercises the provider for one account and records the
// outcome. An individual failure never aborts the surrounding batch.
func (s *Service) refreshAccount(ctx context.Context, account *models.Account, kind enum.AttemptKind) *Outcome {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RefresherService.refreshAccount")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagEntity(span, account.ID)

	outcome := &Outcome{
		AccountID:    account.ID,
		EmailAddress: account.EmailAddress,
	}

	now := time.Now()
	token, err := s.provider.Refresh(ctx, account.ClientID, account.RefreshToken)
	if err != nil {
		tracing.TraceErr(span, err)
		outcome.Outcome = enum.RefreshOutcomeFailed
		outcome.ErrorDetail = refreshErrorDetail(err)

		if uerr := s.accounts.UpdateRefreshStatus(ctx, account.ID, enum.RefreshStatusFailed, now, ""); uerr != nil {
			s.log.Errorf("Failed to store refresh status for %s: %v", account.EmailAddress, uerr)
		}
	} else {
		outcome.Outcome = enum.RefreshOutcomeSuccess

		// Persist the rotated secret when the provider returned one
		if uerr := s.accounts.UpdateRefreshStatus(ctx, account.ID, enum.RefreshStatusSuccess, now, token.RefreshToken); uerr != nil {
			s.log.Errorf("Failed to store refresh status for %s: %v", account.EmailAddress, uerr)
		}
	}

	entry := &models.RefreshLog{
		AccountID:    account.ID,
		EmailAddress: account.EmailAddress,
		AttemptKind:  kind,
		Outcome:      outcome.Outcome,
		ErrorDetail:  outcome.ErrorDetail,
		CreatedAt:    now,
	}
	if aerr := s.ledger.Append(ctx, entry); aerr != nil {
		s.log.Errorf("Failed to append history entry for %s: %v", account.EmailAddress, aerr)
	}

	return outcome
}

func refreshErrorDetail(err error) string {
	var perr *provider.Error
	if errors.As(err, &perr) {
		if perr.Kind == provider.ErrorKindInvalidGrant {
			return "re-authorization required: " + perr.Message
		}
		return perr.Message
	}
	return err.Error()
}
