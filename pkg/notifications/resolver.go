package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Resolution is where and when a notification goes.
type Resolution struct {
	Channels   ChannelSet
	DispatchAt time.Time
	Frequency  Frequency
}

// Resolver evaluates preferences, batching and quiet hours.
type Resolver struct {
	source   PreferenceSource
	fallback Preference
	policy   ChannelPolicy
	batch    BatchSchedule
	location *time.Location
	logger   *slog.Logger

	zones sync.Map // timezone name -> *time.Location
}

// NewResolver creates a resolver. location is used for batch alignment
// when the user has no timezone; nil means UTC.
func NewResolver(source PreferenceSource, fallback Preference, policy ChannelPolicy, batch BatchSchedule, location *time.Location, log *slog.Logger) *Resolver {
	if location == nil {
		location = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		source:   source,
		fallback: fallback,
		policy:   policy,
		batch:    batch,
		location: location,
		logger:   log,
	}
}

// Resolve returns the channels and dispatch time for a notification of
// type t and priority p submitted for userID at now.
//
// A "never" frequency yields an empty channel set unless the policy marks
// the type unsuppressible. Urgent notifications always dispatch at now.
// Errors from the preference source are returned; a bad timezone is
// logged as a SchedulingError and treated as no quiet hours.
func (r *Resolver) Resolve(ctx context.Context, userID string, t Type, p Priority, now time.Time) (Resolution, error) {
	pref, err := r.preference(ctx, userID, t)
	if err != nil {
		return Resolution{}, err
	}

	freq := pref.Frequency
	if !freq.Valid() {
		freq = FrequencyImmediate
	}
	if freq == FrequencyNever {
		if !r.policy.IsUnsuppressible(t) {
			return Resolution{DispatchAt: now, Frequency: freq}, nil
		}
		freq = FrequencyImmediate
	}

	res := Resolution{
		Channels:   r.policy.Apply(t, pref.EnabledChannels),
		DispatchAt: now,
		Frequency:  freq,
	}
	if p == PriorityUrgent {
		return res, nil
	}

	loc := r.location
	quiet := pref.QuietHours
	if quiet != nil {
		if l, err := r.zone(quiet.Timezone); err != nil {
			r.logger.LogAttrs(ctx, slog.LevelWarn, "ignoring quiet hours with invalid timezone",
				logger.UserID(userID),
				logger.Error(&SchedulingError{UserID: userID, Timezone: quiet.Timezone, Err: err}),
			)
			quiet = nil
		} else {
			loc = l
		}
	}

	local := now.In(loc)
	at := local
	switch freq {
	case FrequencyDaily:
		at = r.batch.nextDaily(local)
	case FrequencyWeekly:
		at = r.batch.nextWeekly(local)
	}
	if quiet != nil && quiet.contains(at) {
		at = quiet.exit(at)
	}

	res.DispatchAt = at.In(now.Location())
	return res, nil
}

func (r *Resolver) preference(ctx context.Context, userID string, t Type) (Preference, error) {
	if r.source == nil {
		return r.fallback, nil
	}
	pref, err := r.source.GetPreference(ctx, userID, t)
	if errors.Is(err, ErrPreferenceNotFound) {
		return r.fallback, nil
	}
	if err != nil {
		return Preference{}, err
	}
	return pref, nil
}

func (r *Resolver) zone(name string) (*time.Location, error) {
	if name == "" {
		return r.location, nil
	}
	if l, ok := r.zones.Load(name); ok {
		return l.(*time.Location), nil
	}
	l, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	r.zones.Store(name, l)
	return l, nil
}
