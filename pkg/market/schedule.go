package market

import (
	"fmt"
	"sync"
	"time"
)

type Status string

const (
	StatusClosed     Status = "closed"
	StatusPremarket  Status = "premarket"
	StatusOpen       Status = "open"
	StatusAfterhours Status = "afterhours"
)

// Mode decides which sessions count as open for trading.
type Mode string

const (
	ModeRegular  Mode = "regular"
	ModeExtended Mode = "extended"
	ModeAlways   Mode = "always"
)

// Session boundaries, minutes after local midnight.
const (
	premarketOpen   = 4 * 60
	regularOpen     = 9*60 + 30
	regularClose    = 16 * 60
	afterhoursClose = 20 * 60
)

// Schedule answers calendar questions in the exchange time zone.
type Schedule struct {
	loc  *time.Location
	mode Mode

	mu       sync.Mutex
	holidays map[int]map[string]struct{}
}

func NewSchedule(mode Mode, timezone string) (*Schedule, error) {
	switch mode {
	case ModeRegular, ModeExtended, ModeAlways:
	case "":
		mode = ModeRegular
	default:
		return nil, fmt.Errorf("unknown schedule mode %q", mode)
	}
	if timezone == "" {
		timezone = "America/New_York"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", timezone, err)
	}
	return &Schedule{loc: loc, mode: mode, holidays: make(map[int]map[string]struct{})}, nil
}

func (s *Schedule) Mode() Mode { return s.mode }

func (s *Schedule) Location() *time.Location { return s.loc }

func (s *Schedule) IsHoliday(t time.Time) bool {
	t = t.In(s.loc)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.holidays[t.Year()]
	if !ok {
		set = make(map[string]struct{})
		for _, h := range Holidays(t.Year(), s.loc) {
			set[h.Format(time.DateOnly)] = struct{}{}
		}
		s.holidays[t.Year()] = set
	}
	_, hit := set[t.Format(time.DateOnly)]
	return hit
}

func (s *Schedule) IsTradingDay(t time.Time) bool {
	t = t.In(s.loc)
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !s.IsHoliday(t)
}

// NextTradingDay returns midnight of the first trading day strictly after t.
func (s *Schedule) NextTradingDay(t time.Time) time.Time {
	day := midnight(t.In(s.loc)).AddDate(0, 0, 1)
	for !s.IsTradingDay(day) {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

func (s *Schedule) Status(t time.Time) Status {
	t = t.In(s.loc)
	if !s.IsTradingDay(t) {
		return StatusClosed
	}
	switch m := t.Hour()*60 + t.Minute(); {
	case m < premarketOpen:
		return StatusClosed
	case m < regularOpen:
		return StatusPremarket
	case m < regularClose:
		return StatusOpen
	case m < afterhoursClose:
		return StatusAfterhours
	default:
		return StatusClosed
	}
}

// IsOpen is the trading predicate for the configured mode.
func (s *Schedule) IsOpen(t time.Time) bool {
	switch s.mode {
	case ModeAlways:
		return true
	case ModeExtended:
		return s.Status(t) != StatusClosed
	default:
		return s.Status(t) == StatusOpen
	}
}

// NextOpen returns t when the market is open, otherwise the start of the next tradable session.
func (s *Schedule) NextOpen(t time.Time) time.Time {
	if s.IsOpen(t) {
		return t
	}
	start := regularOpen
	if s.mode == ModeExtended {
		start = premarketOpen
	}
	local := t.In(s.loc)
	today := midnight(local).Add(time.Duration(start) * time.Minute)
	if s.IsTradingDay(local) && local.Before(today) {
		return today
	}
	return s.NextTradingDay(local).Add(time.Duration(start) * time.Minute)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
