// Package journal keeps an append-only audit trail of mailbox lifecycle
// events. It never stores session state.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/tempmailbot/core/logger"
)

// Kind names a journal event.
type Kind string

const (
	KindMailboxCreated  Kind = "mailbox.created"
	KindMailboxReplaced Kind = "mailbox.replaced"
	KindMailboxDeleted  Kind = "mailbox.deleted"
	KindUserVerified    Kind = "user.verified"
	KindBroadcastSent   Kind = "broadcast.sent"
)

// Event is one journal row.
type Event struct {
	Kind      Kind      `db:"kind"`
	UserID    int64     `db:"user_id"`
	Address   string    `db:"address"`
	Detail    string    `db:"detail"`
	CreatedAt time.Time `db:"created_at"`
}

// Journal records events.
type Journal interface {
	Record(ctx context.Context, ev Event) error
	Ping(ctx context.Context) error
}

// Noop discards every event. It is used when no database is configured.
type Noop struct{}

func (Noop) Record(context.Context, Event) error { return nil }
func (Noop) Ping(context.Context) error         { return nil }

const insertEvent = `INSERT INTO mailbox_events (kind, user_id, address, detail, created_at)
VALUES (:kind, :user_id, :address, :detail, :created_at)`

// Postgres writes events to the mailbox_events table.
type Postgres struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgres wraps an open connection. Migrations must already be applied.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// Record inserts ev, stamping CreatedAt when it is zero.
func (p *Postgres) Record(ctx context.Context, ev Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = p.now()
	}
	ev.CreatedAt = ev.CreatedAt.UTC()

	start := time.Now()
	_, err := p.db.NamedExecContext(ctx, insertEvent, ev)
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("op", string(ev.Kind)),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		logger.Warn(ctx, "journal", "journal.record", append(attrs, slog.String("err", err.Error()))...)
		return fmt.Errorf("journal: record %s: %w", ev.Kind, err)
	}
	logger.Debug(ctx, "journal", "journal.record", attrs...)
	return nil
}

// Ping verifies the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
