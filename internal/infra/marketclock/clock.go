package marketclock

import (
	"log/slog"
	"strings"
	"time"

	"github.com/scmhub/calendar"

	"github.com/yanqian/cashtags/internal/domain/tape"
)

const defaultMIC = "xnys"

// Clock answers whether an exchange is in its regular session.
type Clock struct {
	calendar *calendar.Calendar
	loc      *time.Location
}

// New loads the calendar for mic (ISO 10383, e.g. xnys). Unknown codes fall back to NYSE,
// and a missing calendar falls back to Mon-Fri 09:30-16:00 New York time.
func New(mic string, logger *slog.Logger) *Clock {
	logger = logger.With("component", "marketclock")
	mic = strings.ToLower(strings.TrimSpace(mic))
	if mic == "" {
		mic = defaultMIC
	}
	cal := calendar.GetCalendar(mic)
	if cal == nil && mic != defaultMIC {
		logger.Warn("unknown market calendar, using NYSE", "mic", mic)
		cal = calendar.GetCalendar(defaultMIC)
	}
	if cal == nil {
		logger.Warn("market calendar unavailable, using weekday session hours")
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.UTC
		}
		return &Clock{loc: loc}
	}
	return &Clock{calendar: cal, loc: cal.Loc}
}

// IsOpen reports whether t falls inside a regular trading session.
func (c *Clock) IsOpen(t time.Time) bool {
	if c.loc != nil {
		t = t.In(c.loc)
	}
	if c.calendar != nil {
		return c.calendar.IsOpen(t)
	}
	return weekdaySession(t)
}

func weekdaySession(t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}

var _ tape.Clock = (*Clock)(nil)
