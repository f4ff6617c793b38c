package notifications

import (
	"fmt"
	"strings"
	"time"
)

// BatchSchedule aligns daily and weekly digests to fixed local times.
type BatchSchedule struct {
	DailyAt  TimeOfDay
	WeeklyOn time.Weekday
	WeeklyAt TimeOfDay
}

// DefaultBatchSchedule is 09:00 every day and Monday 09:00 every week.
var DefaultBatchSchedule = BatchSchedule{
	DailyAt:  NewTimeOfDay(9, 0),
	WeeklyOn: time.Monday,
	WeeklyAt: NewTimeOfDay(9, 0),
}

// nextDaily returns the first DailyAt strictly after from, in from's location.
func (b BatchSchedule) nextDaily(from time.Time) time.Time {
	next := b.DailyAt.on(from)
	if !next.After(from) {
		next = b.DailyAt.on(from.AddDate(0, 0, 1))
	}
	return next
}

// nextWeekly returns the first WeeklyOn/WeeklyAt strictly after from.
func (b BatchSchedule) nextWeekly(from time.Time) time.Time {
	daysUntil := (int(b.WeeklyOn) - int(from.Weekday()) + 7) % 7
	next := b.WeeklyAt.on(from.AddDate(0, 0, daysUntil))
	if !next.After(from) {
		next = b.WeeklyAt.on(from.AddDate(0, 0, daysUntil+7))
	}
	return next
}

// ParseWeekday parses an English weekday name such as "monday" or "Mon".
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}
