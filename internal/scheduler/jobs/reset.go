package jobs

import (
	"context"

	"github.com/wonny/tailgame/pkg/logger"
)

// DailyResetJob rolls the session over at midnight
type DailyResetJob struct {
	cycler Cycler
	logger *logger.Logger
}

// NewDailyResetJob creates a new daily reset job
func NewDailyResetJob(c Cycler, log *logger.Logger) *DailyResetJob {
	return &DailyResetJob{cycler: c, logger: log}
}

// Name returns the job name
func (j *DailyResetJob) Name() string {
	return "daily_reset"
}

// Schedule returns the cron schedule (midnight)
func (j *DailyResetJob) Schedule() string {
	return "0 0 0 * * *"
}

// Run triggers a cycle so the session rolls to the new trade date
func (j *DailyResetJob) Run(ctx context.Context) error {
	dash, err := j.cycler.Cycle(ctx)
	if err != nil {
		return err
	}
	j.logger.WithField("trade_date", dash.TradeDate).Info("Daily reset completed")
	return nil
}
