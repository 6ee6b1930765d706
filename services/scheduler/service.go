package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/mailfleet/tokenstack/config"
	"github.com/mailfleet/tokenstack/dto"
	"github.com/mailfleet/tokenstack/interfaces"
	"github.com/mailfleet/tokenstack/internal/enum"
	tserrors "github.com/mailfleet/tokenstack/internal/errors"
	"github.com/mailfleet/tokenstack/internal/logger"
	"github.com/mailfleet/tokenstack/internal/models"
	"github.com/mailfleet/tokenstack/internal/tracing"
	"github.com/mailfleet/tokenstack/internal/utils"
	"github.com/mailfleet/tokenstack/services/refresher"
)

const (
	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second

	minIntervalDays = 1
	maxIntervalDays = 90
)

// RefreshEngine is the slice of the refresh engine the scheduler needs.
type RefreshEngine interface {
	Busy() bool
	RunBatch(ctx context.Context, accountIDs []string, kind enum.AttemptKind) (*refresher.RunSummary, error)
}

// Service owns unattended refresh runs. It re-reads the persisted policy on
// every evaluation tick, so configuration changes take effect without a
// restart. In multi-replica deployments only the elected leader evaluates.
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	policies interfaces.SchedulePolicyRepository
	engine   RefreshEngine
	k8s      kubernetes.Interface
	cron     *cronv3.Cron
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewService(
	cfg *config.Config,
	log logger.Logger,
	policies interfaces.SchedulePolicyRepository,
	engine RefreshEngine,
	k8s kubernetes.Interface,
) *Service {
	return &Service{
		cfg:      cfg,
		log:      log,
		policies: policies,
		engine:   engine,
		k8s:      k8s,
		stopCh:   make(chan struct{}),
	}
}

// Start begins policy evaluation with leader election.
// If k8s is nil, it will start in local mode without leader election.
func (s *Service) Start(podName, namespace string) error {
	if s.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		s.log.Info("Starting scheduler in local mode")
		s.startCron()
		return nil
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      "tokenstack-scheduler-leader",
			Namespace: namespace,
		},
		Client: s.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	errCh := make(chan error, 1)

	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					s.startCron()
				},
				OnStoppedLeading: func() {
					s.log.Info("Leader lost - stopping scheduler")
					s.Stop()
				},
				OnNewLeader: func(identity string) {
					s.log.Infof("New scheduler leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}

		le.Run(context.Background())
	}()

	// Wait briefly to see if leader election fails immediately
	select {
	case err := <-errCh:
		s.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		s.startCron()
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Stop gracefully stops the scheduler. Safe to call more than once: losing
// leadership and server shutdown may both trigger it.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if s.cron != nil {
			s.log.Info("Stopping scheduler")
			ctx := s.cron.Stop()
			// Wait for an in-flight evaluation to finish
			<-ctx.Done()
		}
		close(s.stopCh)
	})
}

// startCron registers the evaluation tick on a cron runner.
func (s *Service) startCron() {
	interval := s.cfg.SchedulerConfig.EvaluateIntervalSeconds
	if interval <= 0 {
		interval = 30
	}

	c := cronv3.New(
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	)

	schedule := fmt.Sprintf("@every %ds", interval)
	if _, err := c.AddFunc(schedule, func() {
		defer tracing.RecoverAndLogToJaeger(s.log)
		s.Evaluate(context.Background())
	}); err != nil {
		s.log.Fatalf("Could not register schedule evaluation job: %v", err)
	}

	c.Start()
	s.cron = c
	s.log.Infof("Scheduler started, evaluating policy every %ds", interval)
}

// Evaluate performs one policy check and fires a batch when due. It is safe
// to call concurrently with API traffic; the engine's run lock arbitrates.
func (s *Service) Evaluate(ctx context.Context) {
	span, ctx := tracing.StartTracerSpan(ctx, "SchedulerService.Evaluate")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	policy, err := s.policies.Get(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("Failed to load schedule policy: %v", err)
		return
	}
	if !policy.Enabled {
		return
	}

	now := time.Now()

	if policy.NextRunAt == nil {
		next, err := NextRun(policy, now)
		if err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("Cannot compute next run time: %v", err)
			return
		}
		policy.NextRunAt = next
		if err := s.policies.Save(ctx, policy); err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("Failed to store next run time: %v", err)
		}
		return
	}

	if now.Before(*policy.NextRunAt) {
		return
	}

	// A manual run already in flight counts as this firing: skip it and
	// move on to the next slot rather than queuing.
	if s.engine.Busy() {
		s.log.Info("Scheduled refresh skipped, a run is already in progress")
		s.rescheduleFrom(ctx, policy, now)
		return
	}

	s.log.Info("Scheduled refresh firing")
	summary, err := s.engine.RunBatch(ctx, nil, enum.AttemptAuto)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("Scheduled refresh failed to start: %v", err)
		s.rescheduleFrom(ctx, policy, now)
		return
	}

	finished := time.Now()
	policy.LastRunAt = &finished
	next, nerr := NextRun(policy, finished)
	if nerr != nil {
		tracing.TraceErr(span, nerr)
		s.log.Errorf("Cannot compute next run time: %v", nerr)
	}
	if err := s.policies.MarkRun(ctx, finished, next); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("Failed to record scheduled run: %v", err)
	}

	s.log.Infof("Scheduled refresh run %s finished: %d ok, %d failed",
		summary.RunID, summary.SuccessCount, summary.FailureCount)
}

func (s *Service) rescheduleFrom(ctx context.Context, policy *models.SchedulePolicy, from time.Time) {
	next, err := NextRun(policy, from)
	if err != nil {
		s.log.Errorf("Cannot compute next run time: %v", err)
		return
	}
	policy.NextRunAt = next
	if err := s.policies.Save(ctx, policy); err != nil {
		s.log.Errorf("Failed to store next run time: %v", err)
	}
}

// GetPolicy returns the persisted policy, bootstrapping the default row.
func (s *Service) GetPolicy(ctx context.Context) (*models.SchedulePolicy, error) {
	return s.policies.Get(ctx)
}

// UpdatePolicy validates and persists operator changes. The next run time is
// recomputed immediately so the change is visible in the response.
func (s *Service) UpdatePolicy(ctx context.Context, req *dto.UpdateScheduleRequest) (*models.SchedulePolicy, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "SchedulerService.UpdatePolicy")
	defer span.Finish()
	tracing.TagComponentService(span)

	policy, err := s.policies.Get(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if req.Mode != "" {
		mode, ok := enum.ParseScheduleMode(req.Mode)
		if !ok {
			return nil, tserrors.ErrInvalidScheduleMode
		}
		policy.Mode = mode
	}
	if req.IntervalDays != 0 {
		if req.IntervalDays < minIntervalDays || req.IntervalDays > maxIntervalDays {
			return nil, tserrors.ErrIntervalOutOfRange
		}
		policy.IntervalDays = req.IntervalDays
	}
	if req.CronExpression != "" {
		if _, err := cronv3.ParseStandard(req.CronExpression); err != nil {
			tracing.TraceErr(span, err)
			return nil, tserrors.ErrInvalidCronExpression
		}
		policy.CronExpression = req.CronExpression
	}
	if policy.Mode == enum.ScheduleCron && policy.CronExpression == "" {
		return nil, tserrors.ErrInvalidCronExpression
	}

	if req.Enabled != nil && *req.Enabled != policy.Enabled {
		policy.Enabled = *req.Enabled
		if policy.Enabled {
			policy.EnabledAt = utils.TimePtr(time.Now())
		} else {
			policy.EnabledAt = nil
			policy.NextRunAt = nil
		}
	}

	if policy.Enabled {
		next, err := NextRun(policy, time.Now())
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		policy.NextRunAt = next
	}

	if err := s.policies.Save(ctx, policy); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return policy, nil
}

// Preview validates a cron expression and returns its next firing times.
// A bad expression is reported in the response, not as an error.
func (s *Service) Preview(req *dto.PreviewScheduleRequest) *dto.PreviewScheduleResponse {
	count := req.Count
	if count <= 0 {
		count = 5
	}
	if count > 20 {
		count = 20
	}

	sched, err := cronv3.ParseStandard(req.Expression)
	if err != nil {
		return &dto.PreviewScheduleResponse{Valid: false, Error: err.Error()}
	}

	runs := make([]time.Time, 0, count)
	at := time.Now()
	for i := 0; i < count; i++ {
		at = sched.Next(at)
		runs = append(runs, at)
	}
	return &dto.PreviewScheduleResponse{Valid: true, NextRuns: runs}
}

// NextRun computes when the policy should fire next, strictly after from.
// Interval mode anchors on the last run, falling back to the enable time and
// finally to from itself, so an overdue policy fires on the next tick.
func NextRun(policy *models.SchedulePolicy, from time.Time) (*time.Time, error) {
	switch policy.Mode {
	case enum.ScheduleCron:
		sched, err := cronv3.ParseStandard(policy.CronExpression)
		if err != nil {
			return nil, tserrors.ErrInvalidCronExpression
		}
		next := sched.Next(from)
		return &next, nil

	case enum.ScheduleIntervalDays:
		days := policy.IntervalDays
		if days < minIntervalDays {
			return nil, tserrors.ErrIntervalOutOfRange
		}
		anchor := from
		if policy.LastRunAt != nil {
			anchor = *policy.LastRunAt
		} else if policy.EnabledAt != nil {
			anchor = *policy.EnabledAt
		}
		next := anchor.Add(time.Duration(days) * 24 * time.Hour)
		if !next.After(from) {
			next = from.Add(time.Duration(days) * 24 * time.Hour)
		}
		return &next, nil
	}

	return nil, tserrors.ErrInvalidScheduleMode
}
