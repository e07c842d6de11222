package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aceportal/formflow/core"
	"github.com/aceportal/formflow/core/notification"
)

// Scheduler periodically asks the dispatcher for due campaigns and sends them.
// "Which campaigns are due" stays a pure query on the dispatcher side; only the
// clock and the tick live here.
type Scheduler struct {
	notifSvc *notification.Service
	logger   core.Logger
	interval time.Duration
	stop     chan struct{}
}

func New(notifSvc *notification.Service, logger core.Logger, conf *core.Config) *Scheduler {
	return &Scheduler{
		notifSvc: notifSvc,
		logger:   logger,
		interval: conf.Channels.SchedulerInterval,
		stop:     make(chan struct{}),
	}
}

// Start runs the tick loop until Stop is called.
func (s *Scheduler) Start() {
	go func() {
		s.logger.Info(fmt.Sprintf("scheduler started, ticking every %s", s.interval))
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.tick()
			case <-s.stop:
				s.logger.Info("scheduler stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	sent, err := s.notifSvc.DispatchDue(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("dispatching due campaigns", err)
		return
	}
	if sent > 0 {
		s.logger.Info(fmt.Sprintf("dispatched %d due campaign(s)", sent))
	}
}
