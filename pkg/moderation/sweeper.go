package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultRetention is how long rejected proposals are kept.
const DefaultRetention = 72 * time.Hour

const (
	defaultSweepLockKey = "moderation:sweeper"
	defaultSweepLockTTL = time.Hour
)

// Sweepable is a kind whose expired rejected proposals can be purged.
type Sweepable interface {
	Kind() Kind
	SweepRejected(ctx context.Context, before time.Time) (SweepResult, error)
}

// SweepResult is the outcome of sweeping one kind.
type SweepResult struct {
	Kind          Kind `json:"kind"`
	Deleted       int  `json:"deleted"`
	Failed        int  `json:"failed"`
	AssetFailures int  `json:"asset_failures"`
}

// SweepReport is the outcome of one sweeper run.
type SweepReport struct {
	Skipped bool          `json:"skipped"`
	Cutoff  time.Time     `json:"cutoff"`
	Results []SweepResult `json:"results"`
}

// Deleted returns the number of proposals removed across kinds.
func (r SweepReport) Deleted() int {
	n := 0
	for _, res := range r.Results {
		n += res.Deleted
	}
	return n
}

// SweepRejected deletes rejected proposals created before the cutoff along
// with their staged assets. Failures are logged and counted; the batch
// carries on.
func (e *Engine[T]) SweepRejected(ctx context.Context, before time.Time) (SweepResult, error) {
	res := SweepResult{Kind: e.Kind()}
	expired, err := e.backend.Proposals().List(ctx, ProposalFilter{AuthCode: AuthRejected, CreatedBefore: before})
	if err != nil {
		return res, fmt.Errorf("list expired %s proposals: %w", e.Kind(), err)
	}

	for _, p := range expired {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := e.backend.Proposals().DeleteRejected(ctx, p.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			e.logger.Warn("failed to delete rejected proposal", "proposal_id", p.ID, "error", err)
			res.Failed++
			continue
		}
		res.Deleted++
		if p.StagedAsset != "" && !e.releaseAsset(ctx, p.ID, p.StagedAsset) {
			res.AssetFailures++
		}
	}
	return res, nil
}

// Sweeper purges expired rejected proposals on a daily schedule. Runs never
// overlap within a process; a Locker extends that across processes.
type Sweeper struct {
	targets   []Sweepable
	retention time.Duration
	at        time.Duration
	locker    Locker
	lockKey   string
	lockTTL   time.Duration
	logger    *slog.Logger
	now       func() time.Time

	running sync.Mutex
	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
}

// SweeperOption configures a Sweeper
type SweeperOption func(*Sweeper)

// WithRetention sets how long rejected proposals are kept
func WithRetention(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithDailyAt sets the wall-clock time of day the sweeper runs at, given as
// hours and minutes past midnight
func WithDailyAt(offset time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if offset >= 0 && offset < 24*time.Hour {
			s.at = offset
		}
	}
}

// WithLocker guards runs with a distributed lock
func WithLocker(locker Locker, key string, ttl time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.locker = locker
		if key != "" {
			s.lockKey = key
		}
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithSweepLogger sets the logger
func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// WithSweepClock overrides the time source
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

// NewSweeper creates a sweeper over targets.
func NewSweeper(targets []Sweepable, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		targets:   targets,
		retention: DefaultRetention,
		lockKey:   defaultSweepLockKey,
		lockTTL:   defaultSweepLockTTL,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sweeper")
	return s
}

// RunOnce sweeps every target. A run that finds another one in progress is
// skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	if !s.running.TryLock() {
		s.logger.Info("sweep already running, skipping")
		return SweepReport{Skipped: true}, nil
	}
	defer s.running.Unlock()

	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, s.lockKey, s.lockTTL)
		if err != nil {
			return SweepReport{}, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			s.logger.Info("sweep lock held elsewhere, skipping")
			return SweepReport{Skipped: true}, nil
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), s.lockKey); err != nil {
				s.logger.Warn("failed to release sweep lock", "error", err)
			}
		}()
	}

	report := SweepReport{Cutoff: s.now().UTC().Add(-s.retention)}
	var errs []error
	for _, target := range s.targets {
		res, err := target.SweepRejected(ctx, report.Cutoff)
		report.Results = append(report.Results, res)
		if err != nil {
			s.logger.Error("sweep failed", "kind", target.Kind(), "error", err)
			errs = append(errs, err)
		}
	}

	s.logger.Info("sweep finished", "cutoff", report.Cutoff, "deleted", report.Deleted())
	return report, errors.Join(errs...)
}

// NextRun returns the first scheduled run strictly after now.
func (s *Sweeper) NextRun(now time.Time) time.Time {
	next := s.slot(now.Year(), now.Month(), now.Day(), now.Location())
	if !next.After(now) {
		next = s.slot(now.Year(), now.Month(), now.Day()+1, now.Location())
	}
	return next
}

// slot is the configured wall-clock time on the given day.
func (s *Sweeper) slot(year int, month time.Month, day int, loc *time.Location) time.Time {
	h := int(s.at / time.Hour)
	m := int(s.at % time.Hour / time.Minute)
	sec := int(s.at % time.Minute / time.Second)
	return time.Date(year, month, day, h, m, sec, 0, loc)
}

// Start runs the sweeper in the background until ctx is done or Stop is
// called. Calling Start on a started sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	stop := make(chan struct{})
	s.stop = stop

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			now := s.now()
			next := s.NextRun(now)
			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
				if _, err := s.RunOnce(ctx); err != nil {
					s.logger.Error("scheduled sweep failed", "error", err)
				}
			}
		}
	}()
	s.logger.Info("sweeper started", "next_run", s.NextRun(s.now()))
}

// Stop stops a started sweeper and waits for a run in progress to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
}
