package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/store"
)

// Sweeper names a backend that needs expired entries removed by hand.
type Sweeper struct {
	Name string
	store.ExpirySweeper
}

// HousekeepingService periodically drops expired revocations and sessions
// from backends that have no native TTL (sqlite, in-process memory).
type HousekeepingService struct {
	Sweepers []Sweeper
	Logger   *slog.Logger
	Interval time.Duration

	now func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults interval to 1 hour when it is not positive.
func NewHousekeepingService(logger *slog.Logger, interval time.Duration, sweepers ...Sweeper) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Sweepers: sweepers,
		Logger:   logger,
		Interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background until Stop is called.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "sweepers", len(s.Sweepers))
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup runs every sweeper once. A failing sweeper does not stop the
// others. It returns the total number of entries removed.
func (s *HousekeepingService) Cleanup(ctx context.Context) int64 {
	now := s.now()
	s.Logger.Debug("starting housekeeping cleanup")

	var total int64
	var ok int
	for _, sw := range s.Sweepers {
		n, err := sw.DeleteExpired(ctx, now)
		if err != nil {
			s.Logger.Error("housekeeping sweep failed", "sweeper", sw.Name, "error", err)
			continue
		}
		ok++
		total += n
		if n > 0 {
			s.Logger.Debug("removed expired entries", "sweeper", sw.Name, "count", n)
		}
	}

	s.Logger.Info("housekeeping cleanup completed", "successful_cleanups", ok, "removed", total)
	return total
}
