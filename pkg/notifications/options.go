package notifications

import (
	"log/slog"
	"maps"
	"time"
)

type engineOptions struct {
	clock       Clock
	logger      *slog.Logger
	fallback    Preference
	policy      ChannelPolicy
	retry       RetryPolicy
	poolSizes   map[Channel]int
	sinks       map[Channel]Sink
	addresses   AddressResolver
	preferences PreferenceSource
	templates   *TemplateStore
	dedupIndex  DedupIndex
	dedupWindow time.Duration
	typeWindows map[Type]time.Duration
	failOpen    bool
	counter     UnreadCounter
	observer    Observer
	batch       BatchSchedule
	location    *time.Location
	maxPoll     time.Duration
	sendTimeout time.Duration
	results     int
}

func defaultEngineOptions() engineOptions {
	return engineOptions{
		clock:       systemClock,
		logger:      slog.Default(),
		fallback:    DefaultPreference,
		policy:      DefaultChannelPolicy(),
		retry:       DefaultRetryPolicy(),
		poolSizes:   maps.Clone(DefaultPoolSizes),
		sinks:       make(map[Channel]Sink),
		dedupWindow: DefaultDedupWindow,
		batch:       DefaultBatchSchedule,
		location:    time.UTC,
		maxPoll:     DefaultMaxPoll,
		sendTimeout: 30 * time.Second,
		results:     256,
	}
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

// WithClock replaces the wall clock. Retry timers still use real time.
func WithClock(c Clock) EngineOption {
	return func(o *engineOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDefaultPreference sets the preference used for users without one.
func WithDefaultPreference(p Preference) EngineOption {
	return func(o *engineOptions) { o.fallback = p }
}

// WithChannelPolicy replaces the per-type allowed and forced channel table.
func WithChannelPolicy(p ChannelPolicy) EngineOption {
	return func(o *engineOptions) { o.policy = p }
}

// WithForcedChannels adds set to t's forced channels.
func WithForcedChannels(t Type, set ChannelSet) EngineOption {
	return func(o *engineOptions) {
		o.policy = o.policy.Force(t, o.policy.Forced(t).Union(set))
	}
}

func WithRetryPolicy(p RetryPolicy) EngineOption {
	return func(o *engineOptions) { o.retry = p }
}

// WithPoolSize sets the number of workers for ch.
func WithPoolSize(ch Channel, n int) EngineOption {
	return func(o *engineOptions) {
		if n > 0 {
			o.poolSizes[ch] = n
		}
	}
}

// WithSink registers the sink for ch. Attempts on channels without a sink
// fail permanently with ErrNoSink.
func WithSink(ch Channel, s Sink) EngineOption {
	return func(o *engineOptions) { o.sinks[ch] = s }
}

func WithAddressResolver(r AddressResolver) EngineOption {
	return func(o *engineOptions) { o.addresses = r }
}

// WithPreferenceSource sets where user preferences come from. Without one
// every user gets the default preference.
func WithPreferenceSource(s PreferenceSource) EngineOption {
	return func(o *engineOptions) { o.preferences = s }
}

// WithTemplates sets the template store. Submissions must reference a
// template it holds.
func WithTemplates(t *TemplateStore) EngineOption {
	return func(o *engineOptions) { o.templates = t }
}

// WithDedupIndex replaces the in-memory dedup index, e.g. with Redis.
func WithDedupIndex(idx DedupIndex) EngineOption {
	return func(o *engineOptions) { o.dedupIndex = idx }
}

// WithDedupWindow sets the default suppression window.
func WithDedupWindow(d time.Duration) EngineOption {
	return func(o *engineOptions) { o.dedupWindow = d }
}

// WithTypeDedupWindow overrides the suppression window for t.
func WithTypeDedupWindow(t Type, d time.Duration) EngineOption {
	return func(o *engineOptions) {
		if o.typeWindows == nil {
			o.typeWindows = make(map[Type]time.Duration)
		}
		o.typeWindows[t] = d
	}
}

// WithDedupFailOpen accepts submissions when the dedup index errors.
func WithDedupFailOpen() EngineOption {
	return func(o *engineOptions) { o.failOpen = true }
}

func WithCounter(c UnreadCounter) EngineOption {
	return func(o *engineOptions) { o.counter = c }
}

func WithObserver(obs Observer) EngineOption {
	return func(o *engineOptions) { o.observer = obs }
}

// WithBatchSchedule sets the daily and weekly digest times.
func WithBatchSchedule(b BatchSchedule) EngineOption {
	return func(o *engineOptions) { o.batch = b }
}

// WithLocation sets the zone for batch alignment of users without a
// quiet-hours timezone.
func WithLocation(loc *time.Location) EngineOption {
	return func(o *engineOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithMaxPoll caps how long the dispatch loop sleeps.
func WithMaxPoll(d time.Duration) EngineOption {
	return func(o *engineOptions) { o.maxPoll = d }
}

// WithSendTimeout bounds each sink call.
func WithSendTimeout(d time.Duration) EngineOption {
	return func(o *engineOptions) {
		if d > 0 {
			o.sendTimeout = d
		}
	}
}

// WithResultBuffer sizes the channel between workers and the result collector.
func WithResultBuffer(n int) EngineOption {
	return func(o *engineOptions) {
		if n > 0 {
			o.results = n
		}
	}
}
