// Package httpserver runs an HTTP server for the lifetime of a context and
// provides liveness and readiness handlers.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	r := chi.NewRouter()
//	r.Get("/healthz", httpserver.Liveness())
//	r.Get("/readyz", httpserver.Readiness(log, cfg.HTTP.CheckTimeout,
//		httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)},
//		httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)},
//	))
//	g.Go(func() error { return srv.Run(ctx, r) })
//
// Run returns nil after a clean shutdown, ErrStart when the listener fails
// and ErrShutdown when connections outlive the shutdown timeout. Signal
// handling belongs to the caller, usually signal.NotifyContext in main.
package httpserver
