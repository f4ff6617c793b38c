package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/pg"
)

// DB is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store implements notifications.Store.
type Store struct {
	db DB
}

var _ notifications.Store = (*Store)(nil)

// New returns a store over db. Run Migrate first.
func New(db DB) *Store {
	return &Store{db: db}
}

const notificationColumns = `id, type, priority, title, template_ref, template_data, recipient_id,
	correlation_id, dedup_key, channels, status, read, read_at, created_at, dispatch_at`

const attemptColumns = `id, notification_id, user_id, channel, state, attempt_count, last_error,
	next_retry_at, created_at, updated_at`

// Excluded from unread counts, matching Notification.CountsAsUnread.
const uncountedStatuses = `('suppressed', 'cancelled')`

func (s *Store) Save(ctx context.Context, n notifications.Notification) error {
	const q = `INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, read = EXCLUDED.read, read_at = EXCLUDED.read_at`

	_, err := s.db.Exec(ctx, q,
		n.ID, string(n.Type), int16(n.Priority), n.Title, n.TemplateRef, n.TemplateData, n.RecipientID,
		n.CorrelationID, n.DedupKey, int32(n.Channels), string(n.Status), n.Read, n.ReadAt,
		n.CreatedAt, n.DispatchAt,
	)
	if err != nil {
		return errors.Join(ErrQueryFailed, fmt.Errorf("save notification %s: %w", n.ID, err))
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (notifications.Notification, error) {
	row := s.db.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	n, err := scanNotification(row)
	if pg.IsNotFoundError(err) {
		return notifications.Notification{}, notifications.ErrNotFound
	}
	return n, err
}

func (s *Store) SetStatus(ctx context.Context, id string, status notifications.Status) (int, error) {
	const q = `UPDATE notifications n SET status = $2
		FROM (SELECT id, status, read FROM notifications WHERE id = $1 FOR UPDATE) prev
		WHERE n.id = prev.id
		RETURNING prev.status, prev.read`

	var (
		prev string
		read bool
	)
	err := s.db.QueryRow(ctx, q, id, string(status)).Scan(&prev, &read)
	if pg.IsNotFoundError(err) {
		return 0, notifications.ErrNotFound
	}
	if err != nil {
		return 0, errors.Join(ErrQueryFailed, fmt.Errorf("set status of %s: %w", id, err))
	}
	before := counted(notifications.Status(prev), read)
	after := counted(status, read)
	switch {
	case before && !after:
		return -1, nil
	case !before && after:
		return 1, nil
	}
	return 0, nil
}

func (s *Store) SaveAttempts(ctx context.Context, attempts ...notifications.DeliveryAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	// Attempts of deleted notifications are dropped, not rejected.
	const q = `INSERT INTO delivery_attempts (` + attemptColumns + `)
		SELECT $1::text, $2::text, $3::text, $4::text, $5::text, $6::int, $7::text,
			$8::timestamptz, $9::timestamptz, $10::timestamptz
		WHERE EXISTS (SELECT 1 FROM notifications WHERE id = $2::text)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			attempt_count = EXCLUDED.attempt_count,
			last_error = EXCLUDED.last_error,
			next_retry_at = EXCLUDED.next_retry_at,
			updated_at = EXCLUDED.updated_at`

	batch := &pgx.Batch{}
	for _, a := range attempts {
		batch.Queue(q,
			a.ID, a.NotificationID, a.UserID, string(a.Channel), string(a.State), a.AttemptCount,
			a.LastError, a.NextRetryAt, a.CreatedAt, a.UpdatedAt,
		)
	}

	br := s.db.SendBatch(ctx, batch)
	for _, a := range attempts {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return errors.Join(ErrQueryFailed, fmt.Errorf("save attempt %s: %w", a.ID, err))
		}
	}
	if err := br.Close(); err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	return nil
}

func (s *Store) Attempts(ctx context.Context, notificationID string) ([]notifications.DeliveryAttempt, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+attemptColumns+` FROM delivery_attempts WHERE notification_id = $1 ORDER BY created_at, id`,
		notificationID)
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	return collectAttempts(rows)
}

func (s *Store) AttemptsFor(ctx context.Context, notificationIDs []string) (map[string][]notifications.DeliveryAttempt, error) {
	out := make(map[string][]notifications.DeliveryAttempt, len(notificationIDs))
	if len(notificationIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+attemptColumns+` FROM delivery_attempts WHERE notification_id = ANY($1) ORDER BY created_at, id`,
		notificationIDs)
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	attempts, err := collectAttempts(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range attempts {
		out[a.NotificationID] = append(out[a.NotificationID], a)
	}
	return out, nil
}

func (s *Store) QueryPending(ctx context.Context) ([]notifications.Notification, []notifications.DeliveryAttempt, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE status = 'queued' ORDER BY created_at, id`)
	if err != nil {
		return nil, nil, errors.Join(ErrQueryFailed, err)
	}
	queued, err := collectNotifications(rows)
	if err != nil {
		return nil, nil, err
	}

	rows, err = s.db.Query(ctx, `SELECT `+attemptColumns+` FROM delivery_attempts
		WHERE state = 'pending' OR (state = 'failed' AND next_retry_at IS NOT NULL)
		ORDER BY created_at, id`)
	if err != nil {
		return nil, nil, errors.Join(ErrQueryFailed, err)
	}
	pending, err := collectAttempts(rows)
	if err != nil {
		return nil, nil, err
	}
	return queued, pending, nil
}

func (s *Store) List(ctx context.Context, userID string, opts notifications.ListOptions) ([]notifications.Notification, error) {
	q, args := listQuery(userID, opts)
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	return collectNotifications(rows)
}

// listQuery builds the filtered, newest-first page for userID.
func listQuery(userID string, opts notifications.ListOptions) (string, []any) {
	var b strings.Builder
	args := []any{userID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	b.WriteString(`SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1`)
	if !opts.IncludeSuppressed {
		b.WriteString(` AND status <> 'suppressed'`)
	}
	if opts.OnlyUnread {
		b.WriteString(` AND NOT read`)
	}
	if opts.Since != nil {
		b.WriteString(` AND created_at >= ` + arg(*opts.Since))
	}
	if len(opts.Types) > 0 {
		types := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			types[i] = string(t)
		}
		b.WriteString(` AND type = ANY(` + arg(types) + `)`)
	}
	b.WriteString(` ORDER BY created_at DESC, id DESC`)
	if opts.Limit > 0 {
		b.WriteString(` LIMIT ` + arg(opts.Limit))
	}
	if opts.Offset > 0 {
		b.WriteString(` OFFSET ` + arg(opts.Offset))
	}
	return b.String(), args
}

func (s *Store) MarkRead(ctx context.Context, userID, id string, at time.Time) (bool, error) {
	var status string
	err := s.db.QueryRow(ctx,
		`UPDATE notifications SET read = TRUE, read_at = $3
		WHERE id = $1 AND recipient_id = $2 AND NOT read
		RETURNING status`,
		id, userID, at).Scan(&status)
	if err == nil {
		return counted(notifications.Status(status), false), nil
	}
	if !pg.IsNotFoundError(err) {
		return false, errors.Join(ErrQueryFailed, err)
	}

	// Nothing updated: either already read or not the user's.
	var exists bool
	err = s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND recipient_id = $2)`,
		id, userID).Scan(&exists)
	if err != nil {
		return false, errors.Join(ErrQueryFailed, err)
	}
	if !exists {
		return false, notifications.ErrNotFound
	}
	return false, nil
}

func (s *Store) MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`WITH marked AS (
			UPDATE notifications SET read = TRUE, read_at = $2
			WHERE recipient_id = $1 AND NOT read
			RETURNING status
		)
		SELECT count(*) FROM marked WHERE status NOT IN `+uncountedStatuses,
		userID, at).Scan(&n)
	if err != nil {
		return 0, errors.Join(ErrQueryFailed, err)
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, userID string, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int
	err := s.db.QueryRow(ctx,
		`WITH removed AS (
			DELETE FROM notifications WHERE recipient_id = $1 AND id = ANY($2)
			RETURNING status, read
		)
		SELECT count(*) FROM removed WHERE NOT read AND status NOT IN `+uncountedStatuses,
		userID, ids).Scan(&n)
	if err != nil {
		return 0, errors.Join(ErrQueryFailed, err)
	}
	return n, nil
}

func (s *Store) UnreadCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT recipient_id, count(*) FROM notifications
		WHERE NOT read AND status NOT IN `+uncountedStatuses+`
		GROUP BY recipient_id`)
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			user string
			n    int
		)
		if err := rows.Scan(&user, &n); err != nil {
			return nil, errors.Join(ErrScanFailed, err)
		}
		counts[user] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	return counts, nil
}

func counted(status notifications.Status, read bool) bool {
	return notifications.Notification{Status: status, Read: read}.CountsAsUnread()
}

func scanNotification(row pgx.Row) (notifications.Notification, error) {
	var (
		n        notifications.Notification
		typ      string
		priority int16
		channels int32
		status   string
	)
	err := row.Scan(
		&n.ID, &typ, &priority, &n.Title, &n.TemplateRef, &n.TemplateData, &n.RecipientID,
		&n.CorrelationID, &n.DedupKey, &channels, &status, &n.Read, &n.ReadAt, &n.CreatedAt, &n.DispatchAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return n, err
		}
		return n, errors.Join(ErrScanFailed, err)
	}
	n.Type = notifications.Type(typ)
	n.Priority = notifications.Priority(priority)
	n.Channels = notifications.ChannelSet(channels)
	n.Status = notifications.Status(status)
	n.CreatedAt = n.CreatedAt.UTC()
	n.DispatchAt = n.DispatchAt.UTC()
	return n, nil
}

func scanAttempt(row pgx.Row) (notifications.DeliveryAttempt, error) {
	var (
		a       notifications.DeliveryAttempt
		channel string
		state   string
	)
	err := row.Scan(
		&a.ID, &a.NotificationID, &a.UserID, &channel, &state, &a.AttemptCount, &a.LastError,
		&a.NextRetryAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return a, errors.Join(ErrScanFailed, err)
	}
	a.Channel = notifications.Channel(channel)
	a.State = notifications.AttemptState(state)
	return a, nil
}

func collectNotifications(rows pgx.Rows) ([]notifications.Notification, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (notifications.Notification, error) {
		return scanNotification(row)
	})
}

func collectAttempts(rows pgx.Rows) ([]notifications.DeliveryAttempt, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (notifications.DeliveryAttempt, error) {
		return scanAttempt(row)
	})
}
