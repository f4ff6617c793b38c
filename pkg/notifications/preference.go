package notifications

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TimeOfDay is a wall-clock time in minutes after midnight.
type TimeOfDay int

// NewTimeOfDay returns hour:minute.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return NewTimeOfDay(hour, minute), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// on returns the instant t falls on the calendar day of day, in day's location.
func (t TimeOfDay) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location())
}

// QuietHours is a daily window [Start, End) in Timezone. The window wraps
// midnight when End is before Start. Start == End is an empty window.
type QuietHours struct {
	Start    TimeOfDay `json:"start" bson:"start"`
	End      TimeOfDay `json:"end" bson:"end"`
	Timezone string    `json:"timezone" bson:"timezone"`
}

// contains reports whether the local wall-clock time of t is inside the window.
func (q QuietHours) contains(local time.Time) bool {
	if q.Start == q.End {
		return false
	}
	now := NewTimeOfDay(local.Hour(), local.Minute())
	if q.Start < q.End {
		return now >= q.Start && now < q.End
	}
	return now >= q.Start || now < q.End
}

// exit returns the first instant after local at which the window ends.
func (q QuietHours) exit(local time.Time) time.Time {
	end := q.End.on(local)
	if !end.After(local) {
		end = q.End.on(local.AddDate(0, 0, 1))
	}
	return end
}

// Preference is a user's configuration for one notification type.
type Preference struct {
	UserID          string      `json:"user_id" bson:"user_id"`
	Type            Type        `json:"type" bson:"type"`
	EnabledChannels ChannelSet  `json:"enabled_channels" bson:"enabled_channels"`
	Frequency       Frequency   `json:"frequency" bson:"frequency"`
	QuietHours      *QuietHours `json:"quiet_hours,omitempty" bson:"quiet_hours,omitempty"`
}

// DefaultPreference applies to users with no stored preference: every
// channel, immediate, no quiet hours.
var DefaultPreference = Preference{
	EnabledChannels: AllChannels,
	Frequency:       FrequencyImmediate,
}

// PreferenceSource looks up preferences. It returns ErrPreferenceNotFound
// when the user has none for the type.
type PreferenceSource interface {
	GetPreference(ctx context.Context, userID string, t Type) (Preference, error)
}

// MemoryPreferences is an in-memory PreferenceSource.
type MemoryPreferences struct {
	mu    sync.RWMutex
	prefs map[string]Preference
}

// NewMemoryPreferences creates an empty source.
func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{prefs: make(map[string]Preference)}
}

func prefKey(userID string, t Type) string { return userID + "\x00" + string(t) }

// Set stores p, replacing any previous preference for the same user and type.
func (m *MemoryPreferences) Set(p Preference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[prefKey(p.UserID, p.Type)] = p
}

func (m *MemoryPreferences) GetPreference(_ context.Context, userID string, t Type) (Preference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prefs[prefKey(userID, t)]
	if !ok {
		return Preference{}, ErrPreferenceNotFound
	}
	return p, nil
}
