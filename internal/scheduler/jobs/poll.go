package jobs

import (
	"context"
	"time"

	"github.com/wonny/tailgame/internal/calendar"
	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/internal/scheduler"
	"github.com/wonny/tailgame/pkg/logger"
)

// Cycler runs one refresh cycle
type Cycler interface {
	Cycle(ctx context.Context) (*contracts.Dashboard, error)
	Now() time.Time
	Calendar() *calendar.Calendar
}

// PollJob drives the refresh loop.
// The trading variant runs only inside trading time, the idle variant only outside it.
type PollJob struct {
	cycler   Cycler
	schedule string
	trading  bool
	logger   *logger.Logger
}

// NewTradingPollJob polls quotes during the session
func NewTradingPollJob(c Cycler, schedule string, log *logger.Logger) *PollJob {
	return &PollJob{cycler: c, schedule: schedule, trading: true, logger: log}
}

// NewIdlePollJob keeps the dashboard clock fresh outside the session
func NewIdlePollJob(c Cycler, schedule string, log *logger.Logger) *PollJob {
	return &PollJob{cycler: c, schedule: schedule, trading: false, logger: log}
}

// Name returns the job name
func (j *PollJob) Name() string {
	if j.trading {
		return "poll_trading"
	}
	return "poll_idle"
}

// Schedule returns the cron schedule
func (j *PollJob) Schedule() string {
	return j.schedule
}

// Run executes one cycle when the session state matches the variant
func (j *PollJob) Run(ctx context.Context) error {
	trading, reason := j.cycler.Calendar().IsTradingTime(j.cycler.Now())
	if trading != j.trading {
		return scheduler.ErrSkipped
	}

	dash, err := j.cycler.Cycle(ctx)
	if err != nil {
		return err
	}

	j.logger.WithFields(map[string]interface{}{
		"job":    j.Name(),
		"status": dash.Status,
		"phase":  dash.Phase,
		"reason": reason,
	}).Debug("Poll cycle completed")

	if dash.Status == contracts.StatusFailed {
		j.logger.WithField("error", dash.Error).Warn("Quote fetch failed this cycle")
	}
	return nil
}
