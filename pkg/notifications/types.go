package notifications

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Type classifies a notification. It selects the template, the user's
// preference row and the forced-channel policy.
type Type string

const (
	TypeProject     Type = "project"
	TypeTask        Type = "task"
	TypeTeam        Type = "team"
	TypeSystem      Type = "system"
	TypeAchievement Type = "achievement"
	TypeSecurity    Type = "security"
)

// Types lists every notification type.
var Types = []Type{TypeProject, TypeTask, TypeTeam, TypeSystem, TypeAchievement, TypeSecurity}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return slices.Contains(Types, t)
}

// Priority orders notifications due at the same instant. Higher runs first.
type Priority int

const (
	PriorityLow    Priority = -1
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 1
	PriorityUrgent Priority = 2
)

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityNormal: "normal",
	PriorityHigh:   "high",
	PriorityUrgent: "urgent",
}

func (p Priority) String() string {
	if s, ok := priorityNames[p]; ok {
		return s
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Valid reports whether p is one of the four defined levels.
func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

// ParsePriority parses "low", "normal", "high" or "urgent". Empty is normal.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityNormal, nil
	}
	for p, name := range priorityNames {
		if name == s {
			return p, nil
		}
	}
	return PriorityNormal, fmt.Errorf("unknown priority %q", s)
}

func (p Priority) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("unknown priority %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Channel is a delivery medium.
type Channel string

const (
	ChannelInApp   Channel = "in-app"
	ChannelEmail   Channel = "email"
	ChannelPush    Channel = "push"
	ChannelSMS     Channel = "sms"
	ChannelWebhook Channel = "webhook"
)

// Channels lists every channel in a stable order.
var Channels = []Channel{ChannelInApp, ChannelEmail, ChannelPush, ChannelSMS, ChannelWebhook}

func (c Channel) bit() ChannelSet {
	if i := slices.Index(Channels, c); i >= 0 {
		return 1 << i
	}
	return 0
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c.bit() != 0
}

// ChannelSet is an immutable set of channels.
type ChannelSet uint8

// AllChannels contains every channel.
const AllChannels ChannelSet = 1<<5 - 1

// NewChannelSet builds a set, ignoring unknown channels.
func NewChannelSet(chs ...Channel) ChannelSet {
	var s ChannelSet
	for _, c := range chs {
		s |= c.bit()
	}
	return s
}

// ParseChannelSet parses a comma separated list such as "in-app,email".
func ParseChannelSet(s string) (ChannelSet, error) {
	var set ChannelSet
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c := Channel(part)
		if !c.Valid() {
			return 0, fmt.Errorf("unknown channel %q", part)
		}
		set |= c.bit()
	}
	return set, nil
}

func (s ChannelSet) Has(c Channel) bool { return c.bit() != 0 && s&c.bit() != 0 }

func (s ChannelSet) Union(o ChannelSet) ChannelSet { return s | o }

func (s ChannelSet) Intersect(o ChannelSet) ChannelSet { return s & o }

func (s ChannelSet) Empty() bool { return s&AllChannels == 0 }

// List returns the members in the order of Channels.
func (s ChannelSet) List() []Channel {
	out := make([]Channel, 0, len(Channels))
	for _, c := range Channels {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s ChannelSet) String() string {
	parts := make([]string, 0, len(Channels))
	for _, c := range s.List() {
		parts = append(parts, string(c))
	}
	return strings.Join(parts, ",")
}

func (s ChannelSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

func (s *ChannelSet) UnmarshalJSON(b []byte) error {
	var list []Channel
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	var set ChannelSet
	for _, c := range list {
		if !c.Valid() {
			return fmt.Errorf("unknown channel %q", c)
		}
		set |= c.bit()
	}
	*s = set
	return nil
}

// UnmarshalText accepts the comma separated form, used for env config.
func (s *ChannelSet) UnmarshalText(b []byte) error {
	v, err := ParseChannelSet(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Frequency controls when a user receives a notification type.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyNever     Frequency = "never"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyImmediate, FrequencyDaily, FrequencyWeekly, FrequencyNever:
		return true
	}
	return false
}

// Status is the aggregate delivery state of a notification.
type Status string

const (
	StatusQueued             Status = "queued"
	StatusDispatched         Status = "dispatched"
	StatusDelivered          Status = "delivered"
	StatusPartiallyDelivered Status = "partially_delivered"
	StatusFailed             Status = "failed"
	StatusSuppressed         Status = "suppressed"
	StatusSkipped            Status = "skipped"
	StatusCancelled          Status = "cancelled"
)

// Final reports whether no further delivery work will happen.
func (s Status) Final() bool {
	switch s {
	case StatusQueued, StatusDispatched:
		return false
	}
	return true
}

// AttemptState is the state of one channel's delivery.
type AttemptState string

const (
	AttemptPending    AttemptState = "pending"
	AttemptSent       AttemptState = "sent"
	AttemptFailed     AttemptState = "failed"
	AttemptSuppressed AttemptState = "suppressed"
	AttemptCancelled  AttemptState = "cancelled"
)
