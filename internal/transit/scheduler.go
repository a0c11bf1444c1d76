package transit

import (
	"context"
	"log/slog"
	"time"

	"sevibus.transitlab.org/internal/clock"
	"sevibus.transitlab.org/internal/logging"
)

// syncRunTimeout bounds one full pipeline run. The address phase dominates:
// at ~1 stop/s a city-wide backlog still finishes well within this.
const syncRunTimeout = 2 * time.Hour

// Scheduler fires the full sync pipeline once a week at a fixed UTC
// day/hour/minute.
type Scheduler struct {
	service *Service
	clock   clock.Clock
	logger  *slog.Logger

	day    time.Weekday
	hour   int
	minute int

	stop chan struct{}
	done chan struct{}
}

// NewScheduler builds a scheduler; Start must be called to arm it.
func NewScheduler(service *Service, clk clock.Clock, logger *slog.Logger, day time.Weekday, hour, minute int) *Scheduler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		service: service,
		clock:   clk,
		logger:  logger,
		day:     day,
		hour:    hour,
		minute:  minute,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start arms the scheduler in a background goroutine.
func (sch *Scheduler) Start() {
	go sch.run()
}

// Stop disarms the scheduler and waits for the goroutine to exit. A pipeline
// run already in flight finishes; only the timer is cancelled.
func (sch *Scheduler) Stop() {
	close(sch.stop)
	<-sch.done
}

func (sch *Scheduler) run() {
	defer close(sch.done)

	for {
		now := sch.clock.Now()
		next := nextRun(now, sch.day, sch.hour, sch.minute)
		logging.LogOperation(sch.logger, "sync_scheduled",
			slog.Time("next_run", next))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-sch.stop:
			timer.Stop()
			return
		case <-timer.C:
			sch.runPipeline()
		}
	}
}

func (sch *Scheduler) runPipeline() {
	ctx, cancel := context.WithTimeout(context.Background(), syncRunTimeout)
	defer cancel()
	ctx = logging.WithLogger(ctx, sch.logger)

	logging.LogOperation(sch.logger, "weekly_sync_starting")
	result, err := sch.service.SyncAll(ctx)
	if err != nil {
		logging.LogError(sch.logger, "weekly sync aborted", err)
		return
	}
	logging.LogOperation(sch.logger, "weekly_sync_complete",
		slog.Int("stops", result.Stops),
		slog.Int("lines", result.Lines),
		slog.Int("memberships", result.Memberships),
		slog.Int("addresses_ok", result.Addresses.OK),
		slog.Int("addresses_errors", result.Addresses.Errors))
}

// nextRun computes the next occurrence of the weekly slot strictly after
// now, in UTC.
func nextRun(now time.Time, day time.Weekday, hour, minute int) time.Time {
	now = now.UTC()
	daysAhead := (int(day) - int(now.Weekday()) + 7) % 7
	candidate := time.Date(now.Year(), now.Month(), now.Day()+daysAhead,
		hour, minute, 0, 0, time.UTC)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}
