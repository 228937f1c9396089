package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
)

// Runner performs one weekly run.
type Runner interface {
	RunWeekly(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) RunWeekly(ctx context.Context) error { return f(ctx) }

// Scheduler triggers the weekly run on a cron schedule.
type Scheduler struct {
	Cron   *cron.Cron
	Runner Runner
	Ctx    context.Context

	running sync.Mutex
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, runner Runner) *Scheduler {
	return &Scheduler{
		Cron:   cron.New(cron.WithSeconds()),
		Runner: runner,
		Ctx:    ctx,
	}
}

// Register adds the weekly task.
func (s *Scheduler) Register(weeklyCron string) error {
	if _, err := s.Cron.AddFunc(weeklyCron, s.weeklyTask); err != nil {
		return fmt.Errorf("register weekly task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	for _, e := range s.Cron.Entries() {
		log.Printf("[INFO] scheduler started, next run %s", e.Next.Format("2006-01-02 15:04 MST"))
	}
}

// Stop stops the cron scheduler and waits for a running task to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunWeeklyNow executes the weekly task immediately (for manual trigger / RUN_ON_START).
func (s *Scheduler) RunWeeklyNow() {
	s.weeklyTask()
}

func (s *Scheduler) weeklyTask() {
	if !s.running.TryLock() {
		log.Println("[WARN] weekly run still in progress, skipping")
		return
	}
	defer s.running.Unlock()

	if err := s.Ctx.Err(); err != nil {
		log.Printf("[WARN] weekly run skipped: %v", err)
		return
	}
	log.Println("[INFO] running weekly task")
	if err := s.Runner.RunWeekly(s.Ctx); err != nil {
		log.Printf("[ERROR] weekly run: %v", err)
	}
}
