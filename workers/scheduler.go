package workers

import (
	"context"
	"fmt"
	"time"

	"raildrops/config"
	"raildrops/models"
	"raildrops/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/logger"
)

// EligibilityScanner finds ended giveaways that still need a winner.
type EligibilityScanner interface {
	FindEligibleGiveaways(ctx context.Context, now time.Time) ([]string, error)
}

// ScanAndDispatch queues winner selection for every eligible giveaway.
func ScanAndDispatch(ctx context.Context, scanner EligibilityScanner, d *Dispatcher, chunkSize int) (*models.BatchRun, error) {
	ids, err := scanner.FindEligibleGiveaways(ctx, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("scan eligible giveaways: %w", err)
	}
	return d.Dispatch(ctx, ids, chunkSize)
}

// Scheduler owns the daily winner selection and notification jobs.
type Scheduler struct {
	sched      gocron.Scheduler
	winners    *services.WinnerService
	dispatcher *Dispatcher
	chunkSize  int
}

func NewScheduler(cfg config.Config, winners *services.WinnerService, dispatcher *Dispatcher) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warningf("[SCHEDULER] ⚠️ Unknown timezone %q, falling back to UTC", cfg.Timezone)
		loc = time.UTC
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{
		sched:      sched,
		winners:    winners,
		dispatcher: dispatcher,
		chunkSize:  cfg.ChunkSize,
	}, nil
}

// Start registers the jobs and starts the scheduler. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context, cfg config.Config) error {
	selH, selM := config.ParseClock(cfg.SelectionAt, 3, 0)
	notH, notM := config.ParseClock(cfg.NotifyAt, 9, 0)

	if _, err := s.sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(selH, selM, 0))),
		gocron.NewTask(func() { s.selectWinners(ctx) }),
		gocron.WithName("select-winners"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("schedule winner selection: %w", err)
	}

	if _, err := s.sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(notH, notM, 0))),
		gocron.NewTask(func() { s.notifyWinners(ctx) }),
		gocron.WithName("notify-winners"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("schedule winner notification: %w", err)
	}

	s.sched.Start()
	logger.Infof("[SCHEDULER] ⏰ Winner selection daily at %02d:%02d, notification at %02d:%02d (%s)",
		selH, selM, notH, notM, cfg.Timezone)
	return nil
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

func (s *Scheduler) selectWinners(ctx context.Context) {
	run, err := ScanAndDispatch(ctx, s.winners, s.dispatcher, s.chunkSize)
	if err != nil {
		logger.Errorf("[SCHEDULER] ❌ Winner selection failed: %v", err)
		return
	}
	logger.Infof("[SCHEDULER] ✅ Dispatched %d giveaways for winner selection (task %s)", run.TotalGiveaways, run.ID)
}

func (s *Scheduler) notifyWinners(ctx context.Context) {
	n, err := s.winners.NotifyPendingWinners(ctx)
	if err != nil {
		logger.Errorf("[SCHEDULER] ❌ Winner notification failed: %v", err)
		return
	}
	logger.Infof("[SCHEDULER] 📣 Marked %d winner(s) as notified", n)
}
