// Command notifyd runs the notification engine behind an HTTP API.
//
// Configuration comes from NOTIFY_* environment variables (and ./.env).
// PostgreSQL, Redis, MongoDB and RabbitMQ are each optional: without a
// connection URL the engine falls back to in-memory storage, or leaves
// the channel without a sink.
package main

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/mongo"
	"github.com/dmitrymomot/notifykit/pkg/mq"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/notifications/httpapi"
	"github.com/dmitrymomot/notifykit/pkg/notifications/mongoprefs"
	"github.com/dmitrymomot/notifykit/pkg/notifications/pgstore"
	"github.com/dmitrymomot/notifykit/pkg/notifications/redisstore"
	"github.com/dmitrymomot/notifykit/pkg/notifications/sinks"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/redis"
	"github.com/dmitrymomot/notifykit/pkg/requestid"
	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

//go:embed templates.yaml
var defaultTemplates []byte

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "notifyd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.ServiceName),
		logger.WithContextExtractors(requestid.LogAttr),
	)
	slog.SetDefault(log)

	opts, err := cfg.Engine.Options()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	opts = append(opts, notifications.WithLogger(log))

	templates, err := loadTemplates(cfg.Engine.TemplatesFile)
	if err != nil {
		return err
	}
	opts = append(opts, notifications.WithTemplates(templates))

	var checks []httpserver.Check

	// Notification store.
	var store notifications.Store = notifications.NewMemoryStore()
	if cfg.PG.ConnectionString != "" {
		pool, err := pg.Connect(ctx, cfg.PG)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pgstore.Migrate(ctx, pool, cfg.PG, log); err != nil {
			return err
		}
		store = pgstore.New(pool)
		checks = append(checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})
	} else {
		log.Warn("postgres not configured, notifications are kept in memory")
	}

	// Dedup index and unread counters.
	if cfg.Redis.ConnectionURL != "" {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		opts = append(opts,
			notifications.WithDedupIndex(redisstore.NewDedupIndex(client, cfg.Redis.KeyPrefix)),
			notifications.WithCounter(redisstore.NewUnreadCounter(client, cfg.Redis.KeyPrefix)),
		)
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	}

	// Preferences and contact addresses.
	if cfg.Mongo.ConnectionURL != "" {
		client, err := mongo.New(ctx, cfg.Mongo)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.WithoutCancel(ctx)) }()

		db := client.Database(cfg.Mongo.Database)
		prefs := mongoprefs.New(db, mongoprefs.DefaultCollection)
		addresses := mongoprefs.NewAddresses(db, mongoprefs.DefaultAddressCollection)
		if err := prefs.EnsureIndexes(ctx); err != nil {
			return err
		}
		if err := addresses.EnsureIndexes(ctx); err != nil {
			return err
		}
		opts = append(opts,
			notifications.WithPreferenceSource(prefs),
			notifications.WithAddressResolver(addresses),
		)
		checks = append(checks, httpserver.Check{Name: "mongo", Fn: mongo.Healthcheck(client)})
	} else {
		log.Warn("mongodb not configured, every user gets the default preference")
	}

	// Channel sinks.
	inApp := notifications.NewInAppSink(cfg.StreamBuf)
	defer func() { _ = inApp.Close() }()
	opts = append(opts, notifications.WithSink(notifications.ChannelInApp, inApp))

	mailer, err := email.NewSender(cfg.Email)
	if err != nil {
		return err
	}
	opts = append(opts, notifications.WithSink(notifications.ChannelEmail, sinks.NewEmailSink(mailer, cfg.Mail)))

	hooks := webhook.NewSender()
	opts = append(opts, notifications.WithSink(notifications.ChannelWebhook, sinks.NewWebhookSink(hooks, cfg.Webhook)))
	if cfg.SMS.GatewayURL != "" {
		opts = append(opts, notifications.WithSink(notifications.ChannelSMS, sinks.NewSMSSink(hooks, cfg.SMS)))
	}

	if cfg.MQ.URL != "" {
		publisher, err := mq.NewPublisher(cfg.MQ)
		if err != nil {
			return err
		}
		defer func() { _ = publisher.Close() }()
		opts = append(opts, notifications.WithSink(notifications.ChannelPush, sinks.NewPushSink(publisher, cfg.Push)))
		checks = append(checks, httpserver.Check{Name: "rabbitmq", Fn: publisher.Healthcheck})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	opts = append(opts, notifications.WithObserver(metrics.New(reg)))

	engine, err := notifications.NewEngine(store, opts...)
	if err != nil {
		return err
	}

	api := httpapi.New(engine,
		httpapi.WithLogger(log),
		httpapi.WithStream(inApp),
		httpapi.WithUserResolver(httpapi.HeaderUser(cfg.UserHeader)),
	)

	r := chi.NewRouter()
	r.Use(requestid.Middleware, middleware.Recoverer)
	r.Get("/healthz", httpserver.Liveness())
	r.Get("/readyz", httpserver.Readiness(log, cfg.HTTP.CheckTimeout, checks...))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Mount("/v1/notifications", api.Handle())

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(engine.Run(ctx))
	g.Go(func() error { return srv.Run(ctx, r) })
	return g.Wait()
}

func loadTemplates(path string) (*notifications.TemplateStore, error) {
	if path == "" {
		return notifications.LoadTemplates(bytes.NewReader(defaultTemplates))
	}
	return notifications.LoadTemplatesFile(path)
}
