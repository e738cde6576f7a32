package util

import (
	"time"

	"github.com/anc5557/kis-mcp/internal/domain"
)

// KRX regular session and extended-hours boundaries, KST.
var (
	premarketStart = clock{8, 30}
	marketOpen     = clock{9, 0}
	marketClose    = clock{15, 30}
	afterHoursEnd  = clock{18, 0}
)

type clock struct {
	hour, min int
}

func (c clock) String() string {
	return time.Date(0, 1, 1, c.hour, c.min, 0, 0, time.UTC).Format("15:04")
}

func (c clock) minutes() int { return c.hour*60 + c.min }

// TradingCalendar provides KRX market-hours awareness. Weekends are closed;
// exchange holidays are not tracked locally, so a holiday reports as a
// trading day with whatever phase the clock implies.
type TradingCalendar struct {
	loc *time.Location
}

// NewTradingCalendar creates a TradingCalendar pinned to Asia/Seoul. If the
// zone database is unavailable it falls back to a fixed KST offset.
func NewTradingCalendar() *TradingCalendar {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		loc = time.FixedZone("KST", 9*60*60)
	}
	return &TradingCalendar{loc: loc}
}

// IsTradingDay reports whether t falls on a KRX trading day.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	wd := t.In(tc.loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// Phase returns the session phase at time t.
func (tc *TradingCalendar) Phase(t time.Time) domain.MarketPhase {
	if !tc.IsTradingDay(t) {
		return domain.PhaseClosed
	}
	kt := t.In(tc.loc)
	m := kt.Hour()*60 + kt.Minute()
	switch {
	case m < premarketStart.minutes():
		return domain.PhaseClosed
	case m < marketOpen.minutes():
		return domain.PhasePremarket
	case m < marketClose.minutes():
		return domain.PhaseOpen
	case m < afterHoursEnd.minutes():
		return domain.PhaseAftermarket
	default:
		return domain.PhaseClosed
	}
}

// Status returns the full market status snapshot at time t.
func (tc *TradingCalendar) Status(t time.Time) domain.MarketStatus {
	kt := t.In(tc.loc)
	return domain.MarketStatus{
		IsTradingDay:   tc.IsTradingDay(t),
		Phase:          tc.Phase(t),
		CurrentTime:    kt.Format("2006-01-02 15:04:05 KST"),
		MarketOpen:     marketOpen.String(),
		MarketClose:    marketClose.String(),
		PremarketStart: premarketStart.String(),
		AftermarketEnd: afterHoursEnd.String(),
	}
}
