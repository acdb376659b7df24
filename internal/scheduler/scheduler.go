// Package scheduler triggers ingestion runs on an interval and on demand,
// never more than one at a time.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/deusflow/newsagg/internal/ingest"
	"github.com/deusflow/newsagg/internal/logger"
)

var ErrAlreadyRunning = errors.New("ingestion already running")

type Runner interface {
	Run(ctx context.Context) (ingest.Report, error)
}

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerStartup   Trigger = "startup"
)

type RunState struct {
	Running         bool      `json:"running"`
	CurrentTrigger  Trigger   `json:"current_trigger,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	LastCompletedAt time.Time `json:"last_completed_at"`
	LastDurationMS  int64     `json:"last_duration_ms"`
	LastTrigger     Trigger   `json:"last_trigger,omitempty"`
	LastRunID       string    `json:"last_run_id,omitempty"`
	LastInserted    int       `json:"last_inserted"`
	LastError       string    `json:"last_error,omitempty"`
	Runs            int       `json:"runs"`
}

type Scheduler struct {
	interval time.Duration
	runner   Runner
	log      *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	state   RunState
}

// New returns a scheduler running runner every interval. A zero interval
// disables periodic runs; RunNow still works.
func New(interval time.Duration, runner Runner, log *slog.Logger) *Scheduler {
	if log == nil {
		log = logger.Discard()
	}
	return &Scheduler{
		interval: interval,
		runner:   runner,
		log:      log.With("component", "scheduler"),
		now:      time.Now,
	}
}

// Start runs once immediately and then on every tick until ctx is done.
// The returned channel is closed when the loop exits.
func (s *Scheduler) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if s.interval <= 0 {
		s.log.Info("periodic ingestion disabled")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		s.runLogged(ctx, TriggerStartup)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.log.Info("periodic ingestion enabled", "interval", s.interval)
		for {
			select {
			case <-ctx.Done():
				s.log.Info("scheduler stopped")
				return
			case <-ticker.C:
				s.runLogged(ctx, TriggerScheduled)
			}
		}
	}()
	return done
}

func (s *Scheduler) runLogged(ctx context.Context, trigger Trigger) {
	if _, err := s.run(ctx, trigger); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			s.log.Info("tick skipped, previous run still going")
			return
		}
		s.log.Error("ingestion run failed", "trigger", trigger, "error", err)
	}
}

// RunNow runs ingestion in the caller's goroutine. ErrAlreadyRunning is
// returned when another run is in progress.
func (s *Scheduler) RunNow(ctx context.Context) (ingest.Report, error) {
	return s.run(ctx, TriggerManual)
}

func (s *Scheduler) run(ctx context.Context, trigger Trigger) (ingest.Report, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ingest.Report{}, ErrAlreadyRunning
	}
	start := s.now()
	s.running = true
	s.state.Running = true
	s.state.CurrentTrigger = trigger
	s.state.StartedAt = start
	s.mu.Unlock()

	s.log.Info("ingestion started", "trigger", trigger)
	report, err := s.runner.Run(ctx)
	took := s.now().Sub(start)

	s.mu.Lock()
	s.running = false
	s.state.Running = false
	s.state.CurrentTrigger = ""
	s.state.LastCompletedAt = s.now()
	s.state.LastDurationMS = took.Milliseconds()
	s.state.LastTrigger = trigger
	s.state.LastRunID = report.RunID
	s.state.LastInserted = report.Inserted
	s.state.Runs++
	s.state.LastError = ""
	if err != nil {
		s.state.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		return report, err
	}
	s.log.Info("ingestion finished", "trigger", trigger, "run_id", report.RunID,
		"inserted", report.Inserted, "took", took.Round(time.Millisecond))
	return report, nil
}

func (s *Scheduler) Snapshot() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
