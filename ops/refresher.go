// ABOUTME: Background refresher that polls the remote service on a schedule
// ABOUTME: Keeps the local snapshot store warm between explicit reads
package ops

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// refreshTimeout bounds one background refresh run.
const refreshTimeout = 2 * time.Minute

// Refresher runs RefreshNow on a cron schedule.
type Refresher struct {
	session *Session
	cron    *cron.Cron
	logger  *log.Logger
}

// NewRefresher creates a refresher for the session. Start must be
// called to begin polling.
func NewRefresher(session *Session, logger *log.Logger) *Refresher {
	if logger == nil {
		logger = log.Default()
	}
	return &Refresher{
		session: session,
		cron:    cron.New(),
		logger:  logger.With("component", "refresher"),
	}
}

// Start schedules background refreshes. The schedule uses cron syntax,
// including descriptors like "@every 10m".
func (r *Refresher) Start(schedule string) error {
	_, err := r.cron.AddFunc(schedule, r.run)
	if err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("background refresh scheduled", "schedule", schedule)
	return nil
}

// Stop halts polling and waits for an in-flight run to finish.
func (r *Refresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	result := r.session.RefreshNow(ctx)
	if !result.Success {
		r.logger.Warn("background refresh failed", "error", result.Error)
		return
	}
	r.logger.Debug("background refresh completed")
}
