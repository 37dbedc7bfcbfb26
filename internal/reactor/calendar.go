package reactor

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var calendarParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCalendar parses an OnCalendar= style expression into a schedule.
// Accepts standard cron syntax (with an optional leading seconds field)
// rather than systemd's own calendar-event grammar.
func ParseCalendar(expr string) (cron.Schedule, error) {
	sched, err := calendarParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("reactor: parse calendar expression %q: %w", expr, err)
	}
	return sched, nil
}

// AddOnCalendar registers a repeating timer source driven by a parsed
// cron.Schedule, re-arming itself after every fire via sched.Next.
func (r *Reactor) AddOnCalendar(sched cron.Schedule, priority Priority, dispatch Dispatch) Token {
	now := time.Now()
	next := func(t time.Time) time.Time { return sched.Next(t) }
	return r.AddCalendar(sched.Next(now), next, priority, dispatch)
}
