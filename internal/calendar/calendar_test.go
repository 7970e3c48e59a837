package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cst = time.FixedZone("CST", 8*3600)

// 2026-03-02 is a Monday
func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, cst)
}

func TestIsTradingTime(t *testing.T) {
	cal := New(cst, []string{"2026-03-04"})

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"before open", at(2, 9, 29), false},
		{"open", at(2, 9, 30), true},
		{"morning", at(2, 10, 15), true},
		{"morning close inclusive", at(2, 11, 30), true},
		{"lunch", at(2, 11, 31), false},
		{"afternoon open", at(2, 13, 0), true},
		{"tail", at(2, 14, 45), true},
		{"close inclusive", at(2, 15, 0), true},
		{"after close", at(2, 15, 1), false},
		{"saturday", at(7, 10, 0), false},
		{"sunday", at(8, 14, 0), false},
		{"holiday", at(4, 10, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := cal.IsTradingTime(tt.t)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestIsTradingTimeConvertsZone(t *testing.T) {
	cal := New(cst, nil)
	// 06:00 UTC == 14:00 CST
	ok, _ := cal.IsTradingTime(time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC))
	assert.True(t, ok)
}

func TestPeriod(t *testing.T) {
	cal := New(cst, nil)
	assert.Equal(t, PeriodMorning, cal.Period(at(2, 9, 0)))
	assert.Equal(t, PeriodMorning, cal.Period(at(2, 11, 30)))
	assert.Equal(t, PeriodClosed, cal.Period(at(2, 12, 0)))
	assert.Equal(t, PeriodAfternoon, cal.Period(at(2, 13, 0)))
	assert.Equal(t, PeriodAfternoon, cal.Period(at(2, 15, 0)))
	assert.Equal(t, PeriodClosed, cal.Period(at(2, 15, 1)))
	assert.Equal(t, PeriodClosed, cal.Period(at(2, 8, 59)))
}

func TestMinutesToClose(t *testing.T) {
	cal := New(cst, nil)
	assert.Equal(t, -1, cal.MinutesToClose(at(2, 13, 59)))
	assert.Equal(t, 60, cal.MinutesToClose(at(2, 14, 0)))
	assert.Equal(t, 15, cal.MinutesToClose(at(2, 14, 45)))
	assert.Equal(t, 0, cal.MinutesToClose(at(2, 15, 0)))
	assert.Equal(t, -1, cal.MinutesToClose(at(2, 10, 0)))
}

func TestTradeDateAndTradingDay(t *testing.T) {
	cal := New(cst, []string{"2026-10-01"})
	assert.Equal(t, "2026-03-02", cal.TradeDate(at(2, 23, 59)))
	assert.True(t, cal.IsTradingDay(at(2, 0, 0)))
	assert.False(t, cal.IsTradingDay(at(7, 0, 0)))
	assert.False(t, cal.IsTradingDay(time.Date(2026, 10, 1, 10, 0, 0, 0, cst)))
}

func TestHM(t *testing.T) {
	hm, err := ParseHM("13:30")
	require.NoError(t, err)
	assert.Equal(t, HM{13, 30}, hm)
	assert.Equal(t, "13:30", hm.String())

	assert.True(t, HM{13, 30}.Within(HM{13, 30}, HM{14, 0}))
	assert.True(t, HM{13, 59}.Within(HM{13, 30}, HM{14, 0}))
	assert.False(t, HM{14, 0}.Within(HM{13, 30}, HM{14, 0}))

	_, err = ParseHM("25:00")
	assert.Error(t, err)
}

func TestSwitchClock(t *testing.T) {
	base := NewFixedClock(time.Date(2026, 3, 2, 10, 11, 12, 0, cst))
	clock := NewSwitchClock(base)

	assert.Equal(t, base.Now(), clock.Now())

	require.NoError(t, clock.Simulate(14, 30))
	now := clock.Now()
	assert.Equal(t, time.Date(2026, 3, 2, 14, 30, 0, 0, cst), now)
	sim, hm := clock.Simulated()
	assert.True(t, sim)
	assert.Equal(t, HM{14, 30}, hm)

	assert.Error(t, clock.Simulate(24, 0))

	clock.Real()
	assert.Equal(t, base.Now(), clock.Now())
}
