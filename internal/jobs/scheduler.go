// Package jobs runs the periodic maintenance work of the server.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler-related errors
var (
	ErrSchedulerRunning = errors.New("scheduler is already running")
	ErrEmptyJobName     = errors.New("job name cannot be empty")
)

// defaultJobTimeout bounds a single run of any job.
const defaultJobTimeout = 4 * time.Minute

// Scheduler wraps a cron runner whose jobs never overlap themselves
// ARCHITECTURAL DISCOVERY: SkipIfStillRunning keeps a slow sweep from stacking
// up behind the next tick; Recover keeps one panicking job from killing the rest
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	timeout time.Duration
	names   map[cron.EntryID]string
}

// NewScheduler creates a stopped scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		timeout: defaultJobTimeout,
		names:   make(map[cron.EntryID]string),
	}
}

// Add registers fn under a cron spec ("@every 5m", "15 2 * * *", ...). Every
// run gets its own context bounded by the job timeout.
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context)) error {
	if name == "" {
		return ErrEmptyJobName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	timeout := s.timeout
	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		fn(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s (%q): %w", name, spec, err)
	}
	s.names[id] = name
	log.Printf("Job scheduled: name=%s schedule=%q", name, spec)
	return nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerRunning
	}
	s.cron.Start()
	s.running = true
	log.Printf("Job scheduler started with %d jobs", len(s.names))
	return nil
}

// Stop prevents new runs and waits for running jobs or ctx, whichever comes
// first. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
		log.Printf("Job scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job scheduler stop: %w", ctx.Err())
	}
}

// Jobs returns the names of scheduled jobs with their next run time.
func (s *Scheduler) Jobs() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make(map[string]time.Time, len(s.names))
	for _, entry := range s.cron.Entries() {
		jobs[s.names[entry.ID]] = entry.Next
	}
	return jobs
}
