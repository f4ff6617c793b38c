// Package pgstore persists notifications and delivery attempts in
// PostgreSQL through pgx.
//
// Apply the schema once at startup, then hand the store to the engine:
//
//	pool, err := pg.Connect(ctx, cfg.PG)
//	if err != nil {
//		return err
//	}
//	if err := pgstore.Migrate(ctx, pool, cfg.PG, log); err != nil {
//		return err
//	}
//	engine, err := notifications.NewEngine(pgstore.New(pool), opts...)
//
// Status changes, read marks and deletes report how the unread count
// moved in the same statement, so unread counters stay exact under
// concurrent writers.
package pgstore
