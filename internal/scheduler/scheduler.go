// Package scheduler runs the daily accrual sweep: every invoice touched
// inside the current close-of-day window gets at most one fresh
// INVOICE_UPDATED snapshot.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/taxledger/internal/clock"
	invoicedomain "github.com/smallbiznis/taxledger/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/taxledger/internal/ledger/domain"
	"github.com/smallbiznis/taxledger/internal/ledger/recorder"
	"github.com/smallbiznis/taxledger/internal/orgcontext"
	"github.com/smallbiznis/taxledger/internal/period"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Recorder *recorder.Service
	Repo     ledgerdomain.Repository
	Periods  period.Resolver
	Clock    clock.Clock
	Config   Config `optional:"true"`
}

type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	recorder *recorder.Service
	repo     ledgerdomain.Repository
	periods  period.Resolver
	clock    clock.Clock
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Recorder == nil || p.Repo == nil || p.Periods == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler"),
		cfg:      p.Config.withDefaults(),
		recorder: p.Recorder,
		repo:     p.Repo,
		periods:  p.Periods,
		clock:    p.Clock,
	}, nil
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()
	return s.AccrualSweepJob(ctx)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("accrual sweep run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// AccrualSweepJob lists invoices updated inside the current close-of-day
// window and records an accrual snapshot for each, skipping invoices that
// already have one for the window. The candidate set is bounded by the
// window, so it is materialized up front; writes while a cursor is open
// would contend on the same tables.
func (s *Scheduler) AccrualSweepJob(ctx context.Context) error {
	now := s.clock.Now()
	windowStart := s.periods.CloseOfDayWindow(now)

	var candidates []struct {
		ID    snowflake.ID
		OrgID snowflake.ID
	}
	err := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Select("id", "org_id").
		Where("status <> ? AND updated_at >= ?", invoicedomain.InvoiceStatusDraft, windowStart).
		Order("id ASC").
		Scan(&candidates).Error
	if err != nil {
		return err
	}

	var (
		jobErr    error
		processed int
		skipped   int
	)
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			jobErr = errors.Join(jobErr, ctx.Err())
			break
		}
		if processed >= s.cfg.BatchSize {
			// Leave the remainder for the next tick.
			break
		}
		invoiceID, orgID := candidate.ID, candidate.OrgID

		done, err := s.repo.HasEventSince(ctx, s.db, orgID, invoiceID, ledgerdomain.EventInvoiceUpdated, windowStart)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		if done {
			skipped++
			continue
		}

		orgCtx := orgcontext.WithOrgID(ctx, orgID)
		if _, err := s.recorder.RecordAccrual(orgCtx, orgID, invoiceID, nil); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Warn("accrual sweep failed for invoice",
				zap.String("org_id", orgID.String()),
				zap.String("invoice_id", invoiceID.String()),
				zap.Error(err),
			)
			continue
		}
		processed++
	}

	s.log.Info("accrual sweep finished",
		zap.Int("processed", processed),
		zap.Int("skipped", skipped),
		zap.Time("window_start", windowStart),
	)
	return jobErr
}
