package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/tailgame/internal/calendar"
	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/pkg/logger"
)

var (
	// ErrNoCandidate is returned by manual picks before any candidate was scored
	ErrNoCandidate = errors.New("no candidate available")
	// ErrLocked is returned when the day's final pick is already locked
	ErrLocked = errors.New("final pick already locked")
)

// Recommendation phases shown on the dashboard
const (
	PhaseRecommend = "可推荐"
	PhaseLock      = "需锁定"
	PhaseWatch     = "观察中"
)

// Windows are the wall-clock gates of the day
type Windows struct {
	FirstStart calendar.HM
	FirstEnd   calendar.HM
	LockAt     calendar.HM
}

// DefaultWindows returns 13:30-14:00 for the first pick and 14:30 for the lock
func DefaultWindows() Windows {
	return Windows{
		FirstStart: calendar.HM{Hour: 13, Minute: 30},
		FirstEnd:   calendar.HM{Hour: 14, Minute: 0},
		LockAt:     calendar.HM{Hour: 14, Minute: 30},
	}
}

// Validate checks FirstStart < FirstEnd <= LockAt
func (w Windows) Validate() error {
	if !w.FirstStart.Before(w.FirstEnd) {
		return fmt.Errorf("first window %s-%s is empty", w.FirstStart, w.FirstEnd)
	}
	if w.LockAt.Before(w.FirstEnd) {
		return fmt.Errorf("lock time %s is inside the first window", w.LockAt)
	}
	return nil
}

// InFirst reports hm in [FirstStart, FirstEnd)
func (w Windows) InFirst(hm calendar.HM) bool {
	return hm.Within(w.FirstStart, w.FirstEnd)
}

// AtLock reports hm >= LockAt
func (w Windows) AtLock(hm calendar.HM) bool {
	return !hm.Before(w.LockAt)
}

// Phase labels hm
func (w Windows) Phase(hm calendar.HM) string {
	switch {
	case w.InFirst(hm):
		return PhaseRecommend
	case w.AtLock(hm):
		return PhaseLock
	default:
		return PhaseWatch
	}
}

// View renders the windows as "HH:MM" strings
func (w Windows) View() contracts.Windows {
	return contracts.Windows{
		FirstStart: w.FirstStart.String(),
		FirstEnd:   w.FirstEnd.String(),
		LockAt:     w.LockAt.String(),
	}
}

// Candidate is the current top-ranked stock with its provenance
type Candidate struct {
	Stock  contracts.ScoredStock
	Sector string // strongest sector, or the whole-market label
	Source contracts.DataSource
}

func (c *Candidate) pick(kind contracts.PickKind, at time.Time, auto bool) *contracts.Pick {
	p := contracts.NewPick(kind, &c.Stock, c.Source, at, auto)
	p.Sector = c.Sector
	return p
}

// State is a copy of the session for rendering
type State struct {
	TradeDate string
	First     *contracts.Pick
	Final     *contracts.Pick
	Locked    bool
	Candidate *Candidate
	Status    contracts.SourceStatus
	LastFetch time.Time
	Attempts  int
}

// Session holds one trading day of picks and enforces the time gates
// ⭐ SSOT: first/final pick mutation happens only here
type Session struct {
	mu      sync.Mutex
	windows Windows
	events  *EventLog
	logger  *logger.Logger

	tradeDate string
	first     *contracts.Pick
	final     *contracts.Pick
	locked    bool
	candidate *Candidate
	status    contracts.SourceStatus
	lastFetch time.Time
	attempts  int
}

// New creates an empty session
func New(windows Windows, events *EventLog, log *logger.Logger) *Session {
	if events == nil {
		events = NewEventLog(DefaultLogSize)
	}
	return &Session{
		windows: windows,
		events:  events,
		logger:  log.Component("session"),
		status:  contracts.StatusUnknown,
	}
}

// Windows returns the configured gates
func (s *Session) Windows() Windows {
	return s.windows
}

// Events returns the event log
func (s *Session) Events() *EventLog {
	return s.events
}

// Rollover starts a new day when date differs from the session's trade date.
// It reports whether state was cleared.
func (s *Session) Rollover(now time.Time, date string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tradeDate == date {
		return false
	}
	previous := s.tradeDate
	s.resetLocked(date)
	if previous == "" {
		return false
	}

	s.events.Clear()
	s.events.Add(now, "系统", "新交易日开始，已清空历史数据")
	s.logger.WithFields(map[string]interface{}{
		"previous": previous,
		"date":     date,
	}).Info("New trading day")
	return true
}

func (s *Session) resetLocked(date string) {
	s.tradeDate = date
	s.first = nil
	s.final = nil
	s.locked = false
	s.candidate = nil
	s.status = contracts.StatusUnknown
	s.lastFetch = time.Time{}
	s.attempts = 0
}

// Restore loads persisted picks of the current trade date, e.g. after a restart
func (s *Session) Restore(first, final *contracts.Pick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if first != nil && first.TradeDate == s.tradeDate {
		s.first = first
	}
	if final != nil && final.TradeDate == s.tradeDate {
		s.final = final
		s.locked = true
	}
}

// RecordFetch stores the outcome of a data fetch
func (s *Session) RecordFetch(at time.Time, status contracts.SourceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.lastFetch = at
	s.attempts++
}

// Evaluate records the candidate and applies the automatic gates: the first
// pick inside the first window, the final pick and lock at or after the lock
// time. Picks are only made from real data. It returns the picks created.
func (s *Session) Evaluate(now time.Time, cand *Candidate, status contracts.SourceStatus) []*contracts.Pick {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.candidate = cand
	s.status = status
	if cand == nil || !status.IsReal() {
		return nil
	}

	hm := calendar.Of(now)
	var created []*contracts.Pick

	if s.windows.InFirst(hm) && s.first == nil {
		s.first = cand.pick(contracts.PickFirst, now, true)
		created = append(created, s.first)
		s.events.Add(now, "自动推荐", "生成首次推荐: "+cand.Stock.Name)
		s.logger.WithField("code", cand.Stock.Code).Info("First pick generated")
	}

	if s.windows.AtLock(hm) && !s.locked {
		s.final = cand.pick(contracts.PickFinal, now, true)
		s.locked = true
		created = append(created, s.final)
		s.events.Add(now, "自动推荐", "锁定最终推荐: "+cand.Stock.Name)
		s.logger.WithField("code", cand.Stock.Code).Info("Final pick locked")
	}

	return created
}

// SetFirst makes the current candidate the first pick
func (s *Session) SetFirst(now time.Time) (*contracts.Pick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate == nil {
		return nil, ErrNoCandidate
	}
	if s.locked {
		return nil, ErrLocked
	}
	s.first = s.candidate.pick(contracts.PickFirst, now, false)
	s.events.Add(now, "手动操作", "设置上午推荐")
	return s.first, nil
}

// Lock makes the current candidate the final pick and locks the day
func (s *Session) Lock(now time.Time) (*contracts.Pick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate == nil {
		return nil, ErrNoCandidate
	}
	if s.locked {
		return nil, ErrLocked
	}
	s.final = s.candidate.pick(contracts.PickFinal, now, false)
	s.locked = true
	s.events.Add(now, "手动操作", "设置最终锁定")
	return s.final, nil
}

// Clear drops both picks and unlocks the day
func (s *Session) Clear(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.first = nil
	s.final = nil
	s.locked = false
	s.events.Add(now, "手动操作", "清除所有推荐")
}

// State returns a copy of the session
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		TradeDate: s.tradeDate,
		Locked:    s.locked,
		Status:    s.status,
		LastFetch: s.lastFetch,
		Attempts:  s.attempts,
	}
	if s.first != nil {
		p := *s.first
		st.First = &p
	}
	if s.final != nil {
		p := *s.final
		st.Final = &p
	}
	if s.candidate != nil {
		c := *s.candidate
		st.Candidate = &c
	}
	return st
}
