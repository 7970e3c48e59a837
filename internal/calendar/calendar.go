package calendar

import (
	"fmt"
	"time"
)

// Period labels shown on the dashboard
const (
	PeriodMorning   = "早盘"
	PeriodAfternoon = "午盘"
	PeriodClosed    = "休市"
)

// Session boundaries of the Shanghai/Shenzhen continuous auction
var (
	MorningOpen    = HM{9, 30}
	MorningClose   = HM{11, 30}
	AfternoonOpen  = HM{13, 0}
	AfternoonClose = HM{15, 0}
)

// HM is a wall-clock hour:minute
type HM struct {
	Hour   int
	Minute int
}

// ParseHM parses "HH:MM"
func ParseHM(s string) (HM, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return HM{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return HM{t.Hour(), t.Minute()}, nil
}

// Of returns the hour:minute of t
func Of(t time.Time) HM {
	return HM{t.Hour(), t.Minute()}
}

// Minutes since midnight
func (h HM) Minutes() int {
	return h.Hour*60 + h.Minute
}

// Before reports whether h is strictly earlier than o
func (h HM) Before(o HM) bool {
	return h.Minutes() < o.Minutes()
}

// Within reports start <= h < end
func (h HM) Within(start, end HM) bool {
	return !h.Before(start) && h.Before(end)
}

func (h HM) String() string {
	return fmt.Sprintf("%02d:%02d", h.Hour, h.Minute)
}

// Calendar answers trading-day and trading-time questions in exchange time
// ⭐ SSOT: every time gate reads through this type
type Calendar struct {
	loc      *time.Location
	holidays map[string]bool
}

// New creates a calendar for loc. Holidays are "2006-01-02" dates on which the
// exchange is closed although it is a weekday.
func New(loc *time.Location, holidays []string) *Calendar {
	if loc == nil {
		loc = time.FixedZone("CST", 8*3600)
	}
	set := make(map[string]bool, len(holidays))
	for _, d := range holidays {
		set[d] = true
	}
	return &Calendar{loc: loc, holidays: set}
}

// Location returns the exchange time zone
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// TradeDate returns the YYYY-MM-DD date of t in exchange time
func (c *Calendar) TradeDate(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// IsTradingDay reports weekday and not a listed holiday
func (c *Calendar) IsTradingDay(t time.Time) bool {
	t = t.In(c.loc)
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !c.holidays[t.Format("2006-01-02")]
}

// IsTradingTime reports whether t falls in 09:30-11:30 or 13:00-15:00
// (both ends inclusive) of a trading day, with a short reason.
func (c *Calendar) IsTradingTime(t time.Time) (bool, string) {
	t = t.In(c.loc)
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false, "周末休市"
	}
	if c.holidays[t.Format("2006-01-02")] {
		return false, "节假日休市"
	}

	hm := Of(t)
	if !hm.Before(MorningOpen) && !MorningClose.Before(hm) {
		return true, "交易时间"
	}
	if !hm.Before(AfternoonOpen) && !AfternoonClose.Before(hm) {
		return true, "交易时间"
	}
	return false, "非交易时间"
}

// Period labels the half-day t belongs to
func (c *Calendar) Period(t time.Time) string {
	hm := Of(t.In(c.loc))
	switch {
	case !hm.Before(HM{9, 0}) && !MorningClose.Before(hm):
		return PeriodMorning
	case !hm.Before(AfternoonOpen) && !AfternoonClose.Before(hm):
		return PeriodAfternoon
	default:
		return PeriodClosed
	}
}

// MinutesToClose returns whole minutes until 15:00 during the last trading
// hour, or -1 outside it.
func (c *Calendar) MinutesToClose(t time.Time) int {
	t = t.In(c.loc)
	if c.Period(t) != PeriodAfternoon || t.Hour() < 14 {
		return -1
	}
	closeAt := time.Date(t.Year(), t.Month(), t.Day(), AfternoonClose.Hour, AfternoonClose.Minute, 0, 0, c.loc)
	left := int(closeAt.Sub(t) / time.Minute)
	if left < 0 {
		return 0
	}
	return left
}
