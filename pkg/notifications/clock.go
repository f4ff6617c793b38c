package notifications

import "time"

// Clock tells the engine the time. Tests substitute a fake.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

var systemClock = ClockFunc(time.Now)
