package sinks

import (
	"time"

	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

type EmailConfig struct {
	Product string `env:"EMAIL_PRODUCT_NAME" envDefault:"Notifykit"`
	Footer  string `env:"EMAIL_FOOTER" envDefault:"You receive this email because of your notification settings."`
}

type WebhookConfig struct {
	Secret  string                `env:"WEBHOOK_SECRET"`
	Timeout time.Duration         `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
	Breaker webhook.BreakerConfig `envPrefix:"WEBHOOK_BREAKER_"`
}

type SMSConfig struct {
	GatewayURL string                `env:"SMS_GATEWAY_URL"`
	Secret     string                `env:"SMS_GATEWAY_SECRET"`
	From       string                `env:"SMS_FROM"`
	Timeout    time.Duration         `env:"SMS_TIMEOUT" envDefault:"10s"`
	Breaker    webhook.BreakerConfig `envPrefix:"SMS_BREAKER_"`
}

type PushConfig struct {
	// RoutingPrefix is followed by the notification type, e.g. "push.task".
	RoutingPrefix string `env:"PUSH_ROUTING_PREFIX" envDefault:"push."`
}
