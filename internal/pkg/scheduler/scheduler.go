// Package scheduler runs the billing sweeps in-process on a cron schedule,
// as an alternative to an external trigger calling the cron endpoints.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler wraps robfig/cron with UTC schedules and skip-if-still-running.
type Scheduler struct {
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	entryIDs map[string]cron.EntryID
	stopOnce sync.Once
}

func New() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		ctx:      ctx,
		cancel:   cancel,
		entryIDs: make(map[string]cron.EntryID),
	}
}

// Register adds job. Registering the same name twice is a no-op.
func (s *Scheduler) Register(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entryIDs[job.Name]; exists {
		return nil
	}
	if job.Schedule == "" {
		return fmt.Errorf("job %q has no schedule", job.Name)
	}
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}

	j := job
	entryID, err := s.cron.AddFunc(j.Schedule, func() { s.execute(j) })
	if err != nil {
		return fmt.Errorf("invalid cron expression for %q: %w", job.Name, err)
	}
	s.entryIDs[job.Name] = entryID
	log.Infof("[Scheduler] Registered job %q (schedule=%s UTC)", job.Name, job.Schedule)
	return nil
}

func (s *Scheduler) execute(job Job) {
	started := time.Now()
	if err := job.Run(s.ctx); err != nil {
		log.Errorf("[Scheduler] Job %q failed after %s: %v", job.Name, time.Since(started), err)
		return
	}
	log.Infof("[Scheduler] Job %q finished in %s", job.Name, time.Since(started))
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Infof("[Scheduler] Started with %d jobs", s.JobCount())
}

// Stop cancels running jobs' context and waits for them to return. Safe to
// call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.cron.Stop().Done()
		log.Info("[Scheduler] Stopped")
	})
}

func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entryIDs)
}

// Next returns the next activation time of the named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entryIDs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}
