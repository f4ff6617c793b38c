package notifications

import (
	"fmt"
	"strings"
	"time"
)

// Config is the environment configuration of the engine. Load it with
// config.Load(&cfg, config.WithPrefix("NOTIFY_")).
type Config struct {
	InAppWorkers   int `env:"INAPP_WORKERS" envDefault:"8"`
	EmailWorkers   int `env:"EMAIL_WORKERS" envDefault:"4"`
	PushWorkers    int `env:"PUSH_WORKERS" envDefault:"4"`
	SMSWorkers     int `env:"SMS_WORKERS" envDefault:"2"`
	WebhookWorkers int `env:"WEBHOOK_WORKERS" envDefault:"4"`

	RetryBase        time.Duration `env:"RETRY_BASE" envDefault:"2s"`
	RetryMaxDelay    time.Duration `env:"RETRY_MAX_DELAY" envDefault:"5m"`
	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"6"`
	RetryJitter      float64       `env:"RETRY_JITTER" envDefault:"0.2"`

	DedupWindow time.Duration `env:"DEDUP_WINDOW" envDefault:"5m"`
	// DedupWindows overrides the window per type, e.g. "security:1m,task:10m".
	DedupWindows  map[string]string `env:"DEDUP_WINDOWS" envKeyValSeparator:":"`
	DedupFailOpen bool              `env:"DEDUP_FAIL_OPEN" envDefault:"false"`

	DailyAt  string `env:"DAILY_AT" envDefault:"09:00"`
	WeeklyOn string `env:"WEEKLY_ON" envDefault:"monday"`
	WeeklyAt string `env:"WEEKLY_AT" envDefault:"09:00"`
	Timezone string `env:"TIMEZONE" envDefault:"UTC"`

	MaxPoll      time.Duration `env:"SCHEDULER_MAX_POLL" envDefault:"30s"`
	SendTimeout  time.Duration `env:"SEND_TIMEOUT" envDefault:"30s"`
	ResultBuffer int           `env:"RESULT_BUFFER" envDefault:"256"`

	TemplatesFile string `env:"TEMPLATES_FILE"`
}

// Options converts the configuration into engine options.
func (c Config) Options() ([]EngineOption, error) {
	daily, err := ParseTimeOfDay(c.DailyAt)
	if err != nil {
		return nil, fmt.Errorf("daily batch time: %w", err)
	}
	weekday, err := ParseWeekday(c.WeeklyOn)
	if err != nil {
		return nil, fmt.Errorf("weekly batch day: %w", err)
	}
	weekly, err := ParseTimeOfDay(c.WeeklyAt)
	if err != nil {
		return nil, fmt.Errorf("weekly batch time: %w", err)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}

	opts := []EngineOption{
		WithPoolSize(ChannelInApp, c.InAppWorkers),
		WithPoolSize(ChannelEmail, c.EmailWorkers),
		WithPoolSize(ChannelPush, c.PushWorkers),
		WithPoolSize(ChannelSMS, c.SMSWorkers),
		WithPoolSize(ChannelWebhook, c.WebhookWorkers),
		WithRetryPolicy(RetryPolicy{
			MaxAttempts: c.RetryMaxAttempts,
			Backoff: ExponentialBackoff{
				Initial:      c.RetryBase,
				Max:          c.RetryMaxDelay,
				Multiplier:   2,
				JitterFactor: c.RetryJitter,
			},
			MaxDelay: c.RetryMaxDelay,
		}),
		WithDedupWindow(c.DedupWindow),
		WithBatchSchedule(BatchSchedule{DailyAt: daily, WeeklyOn: weekday, WeeklyAt: weekly}),
		WithLocation(loc),
		WithMaxPoll(c.MaxPoll),
		WithSendTimeout(c.SendTimeout),
		WithResultBuffer(c.ResultBuffer),
	}
	for name, raw := range c.DedupWindows {
		t := Type(strings.TrimSpace(name))
		if !t.Valid() {
			return nil, fmt.Errorf("dedup window: unknown type %q", name)
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("dedup window for %s: %w", t, err)
		}
		opts = append(opts, WithTypeDedupWindow(t, d))
	}
	if c.DedupFailOpen {
		opts = append(opts, WithDedupFailOpen())
	}
	return opts, nil
}
