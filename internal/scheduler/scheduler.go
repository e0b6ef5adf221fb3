package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/pricebook/internal/clock"
	invoicedomain "github.com/smallbiznis/pricebook/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/pricebook/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobInvoiceRun = "invoice_run"

var ErrInvalidConfig = errors.New("invalid scheduler config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config
	InvoiceSvc invoicedomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Scheduler runs the monthly invoice batch on a cron spec.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	invoiceSvc invoicedomain.Service
	obsMetrics *obsmetrics.Metrics
	cron       *cron.Cron

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.InvoiceSvc == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	log := p.Log.Named("scheduler")

	s := &Scheduler{
		log:        log,
		cfg:        cfg,
		genID:      p.GenID,
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
		obsMetrics: p.ObsMetrics,
		ctx:        context.Background(),
	}
	if cfg.Spec == "" {
		return s, nil
	}

	cronLog := cronLogger{log: log.Sugar()}
	s.cron = cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := s.cron.AddFunc(cfg.Spec, func() {
		_, _ = s.RunInvoiceJob(s.baseContext())
	}); err != nil {
		return nil, fmt.Errorf("%w: spec %q: %v", ErrInvalidConfig, cfg.Spec, err)
	}
	return s, nil
}

// Enabled reports whether a cron spec is configured.
func (s *Scheduler) Enabled() bool {
	return s.cron != nil
}

func (s *Scheduler) Start() {
	if s.cron == nil {
		return
	}
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("scheduler started", zap.String("spec", s.cfg.Spec))
}

// Stop cancels running jobs and waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// RunInvoiceJob invoices every organization for the calendar month before
// the current one.
func (s *Scheduler) RunInvoiceJob(parent context.Context) (*invoicedomain.GenerateAllResult, error) {
	start, end := PreviousMonth(s.clock.Now())

	var result *invoicedomain.GenerateAllResult
	err := s.runJob(parent, jobInvoiceRun, s.cfg.JobTimeout, func(ctx context.Context) error {
		var err error
		result, err = s.invoiceSvc.GenerateAll(ctx, start, end)
		if result == nil {
			return err
		}

		run := jobRunFromContext(ctx)
		run.generated = len(result.Generated)
		run.skipped = len(result.Skipped)
		run.failed = len(result.Failed)
		for _, failure := range result.Failed {
			s.logger(ctx).Error("invoice generation failed",
				zap.String("org_id", failure.OrganizationID.String()),
				zap.String("reason", failure.Reason),
				zap.Time("period_start", start),
				zap.Time("period_end", end),
			)
		}
		return err
	})
	return result, err
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name)
	s.logger(ctx).Info("scheduler.job.start")

	err := fn(ctx)
	s.obsMetrics.ObserveJob(name, start, err)
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// Deadline and shutdown are logged, not returned.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	s.logger(ctx).Error("job failed", zap.Error(err))
	return fmt.Errorf("%s: %w", name, err)
}

// PreviousMonth returns the first and last instant of the calendar month
// before now, in UTC. The end is inclusive at microsecond precision.
func PreviousMonth(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := thisMonth.AddDate(0, -1, 0)
	return start, thisMonth.Add(-time.Microsecond)
}
