package service

import (
    "context"
    "errors"
    "time"

    "github.com/robfig/cron/v3"
    "go.uber.org/zap"
)

// Sweeper periodically completes elapsed reservations and expires prepaid
// reservations whose payment never arrived.
type Sweeper struct {
    svc        *ReservationService
    pendingTTL time.Duration
    schedule   string
    log        *zap.Logger
    cron       *cron.Cron
}

// NewSweeper builds a sweeper running on a standard five-field cron
// schedule, e.g. "*/1 * * * *".  A zero pendingTTL disables expiry.
func NewSweeper(svc *ReservationService, schedule string, pendingTTL time.Duration, logger *zap.Logger) *Sweeper {
    if logger == nil {
        logger = zap.NewNop()
    }
    if schedule == "" {
        schedule = "@every 1m"
    }
    return &Sweeper{svc: svc, pendingTTL: pendingTTL, schedule: schedule, log: logger}
}

// Start registers the job and starts the scheduler in the background.
func (w *Sweeper) Start() error {
    if w.cron != nil {
        return errors.New("sweeper already started")
    }
    c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
    if _, err := c.AddFunc(w.schedule, func() { w.RunOnce(context.Background()) }); err != nil {
        return err
    }
    w.cron = c
    c.Start()
    w.log.Info("reservation sweeper started", zap.String("schedule", w.schedule))
    return nil
}

// Stop halts the scheduler and waits for a running sweep to finish or ctx
// to expire.
func (w *Sweeper) Stop(ctx context.Context) {
    if w.cron == nil {
        return
    }
    done := w.cron.Stop()
    select {
    case <-done.Done():
    case <-ctx.Done():
    }
}

// RunOnce performs a single sweep.  Errors are logged; the next tick tries
// again.
func (w *Sweeper) RunOnce(ctx context.Context) (completed, expired int) {
    now := w.svc.now()
    completed, err := w.svc.CompleteElapsed(ctx, now)
    if err != nil {
        w.log.Warn("complete elapsed reservations", zap.Error(err))
    }
    if w.pendingTTL > 0 {
        expired, err = w.svc.ExpireStalePending(ctx, now.Add(-w.pendingTTL))
        if err != nil {
            w.log.Warn("expire stale pending reservations", zap.Error(err))
        }
    }
    if completed > 0 || expired > 0 {
        w.log.Info("reservation sweep", zap.Int("completed", completed), zap.Int("expired", expired))
    }
    return completed, expired
}
