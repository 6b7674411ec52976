package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlmock "gopkg.in/DATA-DOG/go-sqlmock.v1"
)

func newMockJournal(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p := NewPostgres(sqlx.NewDb(db, "postgres"))
	p.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return p, mock
}

func TestRecordInsertsEvent(t *testing.T) {
	p, mock := newMockJournal(t)
	mock.ExpectExec("INSERT INTO mailbox_events").
		WithArgs("mailbox.created", int64(42), "user1@example.com", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := p.Record(context.Background(), Event{
		Kind:    KindMailboxCreated,
		UserID:  42,
		Address: "user1@example.com",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordWrapsErrors(t *testing.T) {
	p, mock := newMockJournal(t)
	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO mailbox_events").WillReturnError(boom)

	err := p.Record(context.Background(), Event{Kind: KindUserVerified, UserID: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "user.verified")
}

func TestNoop(t *testing.T) {
	var j Journal = Noop{}
	assert.NoError(t, j.Record(context.Background(), Event{Kind: KindBroadcastSent}))
	assert.NoError(t, j.Ping(context.Background()))
}
