package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Promoter runs one promotion sweep.
type Promoter interface {
	PromoteSuggestions(ctx context.Context) (*PromotionResult, error)
}

// Scheduler runs the promotion sweep on a cron schedule.
type Scheduler struct {
	promoter Promoter
	cron     *cron.Cron
	timeout  time.Duration
	mu       sync.Mutex
	running  bool
}

// DefaultSweepTimeout bounds a single scheduled sweep.
const DefaultSweepTimeout = 5 * time.Minute

// NewScheduler registers the sweep under spec, a standard five-field cron
// expression or a descriptor such as "@hourly".
func NewScheduler(promoter Promoter, spec string, timeout time.Duration) (*Scheduler, error) {
	if timeout <= 0 {
		timeout = DefaultSweepTimeout
	}
	s := &Scheduler{
		promoter: promoter,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		timeout:  timeout,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid promotion schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running sweeps in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("Promotion scheduler started", "next_run", s.Next())
}

// Stop halts the schedule and waits for a running sweep to finish or ctx
// to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		slog.Warn("Promotion scheduler stop timed out")
	}
}

// Next returns when the next sweep runs, or zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// run executes one sweep; overlapping runs are skipped.
func (s *Scheduler) run() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		slog.Warn("Promotion sweep still running; skipping this tick")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.promoter.PromoteSuggestions(ctx); err != nil {
		slog.Error("Scheduled promotion sweep failed", "error", err)
	}
}
