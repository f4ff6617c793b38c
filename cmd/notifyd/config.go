package main

import (
	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/mongo"
	"github.com/dmitrymomot/notifykit/pkg/mq"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/notifications/sinks"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/redis"
)

const envPrefix = "NOTIFY_"

// appConfig is everything notifyd reads from NOTIFY_* variables. Empty
// connection URLs switch the matching component to its in-memory or
// disabled form.
type appConfig struct {
	Env         string `env:"ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"notifyd"`
	UserHeader  string `env:"USER_HEADER" envDefault:"X-User-ID"`
	StreamBuf   int    `env:"STREAM_BUFFER" envDefault:"16"`

	Engine  notifications.Config
	HTTP    httpserver.Config
	PG      pg.Config
	Redis   redis.Config
	Mongo   mongo.Config
	MQ      mq.Config
	Email   email.Config
	Mail    sinks.EmailConfig
	Webhook sinks.WebhookConfig
	SMS     sinks.SMSConfig
	Push    sinks.PushConfig
}

func loadConfig(opts ...config.Option) (appConfig, error) {
	var cfg appConfig
	err := config.Load(&cfg, append([]config.Option{config.WithPrefix(envPrefix)}, opts...)...)
	return cfg, err
}
