package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tailgame/internal/calendar"
	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/internal/scheduler"
	"github.com/wonny/tailgame/pkg/logger"
)

var cst = time.FixedZone("CST", 8*3600)

type fakeCycler struct {
	now   time.Time
	cal   *calendar.Calendar
	err   error
	calls int
}

func (f *fakeCycler) Cycle(context.Context) (*contracts.Dashboard, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &contracts.Dashboard{TradeDate: f.now.Format("2006-01-02"), Status: contracts.StatusRealData}, nil
}

func (f *fakeCycler) Now() time.Time                { return f.now }
func (f *fakeCycler) Calendar() *calendar.Calendar { return f.cal }

func newCycler(now time.Time) *fakeCycler {
	return &fakeCycler{now: now, cal: calendar.New(cst, nil)}
}

func TestTradingPollJob(t *testing.T) {
	c := newCycler(time.Date(2026, 3, 2, 14, 0, 0, 0, cst))
	job := NewTradingPollJob(c, "*/30 * 9-15 * * MON-FRI", logger.Nop())

	assert.Equal(t, "poll_trading", job.Name())
	assert.Equal(t, "*/30 * 9-15 * * MON-FRI", job.Schedule())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, c.calls)

	c.now = time.Date(2026, 3, 2, 12, 0, 0, 0, cst)
	assert.ErrorIs(t, job.Run(context.Background()), scheduler.ErrSkipped)
	assert.Equal(t, 1, c.calls)
}

func TestIdlePollJob(t *testing.T) {
	c := newCycler(time.Date(2026, 3, 7, 10, 0, 0, 0, cst)) // Saturday
	job := NewIdlePollJob(c, "0 * * * * *", logger.Nop())

	assert.Equal(t, "poll_idle", job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, c.calls)

	c.now = time.Date(2026, 3, 2, 10, 0, 0, 0, cst)
	assert.ErrorIs(t, job.Run(context.Background()), scheduler.ErrSkipped)
}

func TestPollJobPropagatesError(t *testing.T) {
	c := newCycler(time.Date(2026, 3, 2, 14, 0, 0, 0, cst))
	c.err = errors.New("boom")
	job := NewTradingPollJob(c, "* * * * * *", logger.Nop())

	assert.EqualError(t, job.Run(context.Background()), "boom")
}

func TestDailyResetJob(t *testing.T) {
	c := newCycler(time.Date(2026, 3, 3, 0, 0, 0, 0, cst))
	job := NewDailyResetJob(c, logger.Nop())

	assert.Equal(t, "daily_reset", job.Name())
	assert.Equal(t, "0 0 0 * * *", job.Schedule())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, c.calls)
}
