package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/kafkax"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []kafka.Message
	closed    bool
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{msgs: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func event(id string) kafka.Message {
	topic := "healpoint.appointment.booked.v1"
	return kafka.Message{
		Topic:   topic,
		Offset:  1,
		Headers: kafkax.EventMeta{EventID: id, EventType: topic}.Headers(),
	}
}

func TestProcess_HandlesNewEventInsideTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inbox_events").
		WithArgs("evt-1", "healpoint.appointment.booked.v1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	calls := 0
	c := New(newFakeReader(), mock, testLogger(), func(ctx context.Context, q db.DBTX, msg kafka.Message) error {
		calls++
		_, err := q.Exec(ctx, "INSERT INTO notifications (event_id) VALUES ($1)", "evt-1")
		return err
	})

	require.NoError(t, c.Process(context.Background(), event("evt-1")))
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcess_SkipsDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inbox_events").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	calls := 0
	c := New(newFakeReader(), mock, testLogger(), func(context.Context, db.DBTX, kafka.Message) error {
		calls++
		return nil
	})

	require.NoError(t, c.Process(context.Background(), event("evt-1")))
	assert.Zero(t, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcess_HandlerErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inbox_events").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	c := New(newFakeReader(), mock, testLogger(), func(context.Context, db.DBTX, kafka.Message) error {
		return boom
	})

	assert.ErrorIs(t, c.Process(context.Background(), event("evt-1")), boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_CommitsOffsetAfterProcessing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for range 2 {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO inbox_events").WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()
	}

	reader := newFakeReader(event("evt-1"), event("evt-2"))
	c := New(reader, mock, testLogger(), func(context.Context, db.DBTX, kafka.Message) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	select {
	case <-reader.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("reader was not drained")
	}
	cancel()
	<-done

	reader.mu.Lock()
	defer reader.mu.Unlock()
	require.Len(t, reader.committed, 2)
	assert.Equal(t, "evt-2", kafkax.ExtractEventMeta(reader.committed[1]).EventID)
	assert.True(t, reader.closed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_LeavesOffsetOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("db down"))

	reader := newFakeReader(event("evt-1"))
	c := New(reader, mock, testLogger(), func(context.Context, db.DBTX, kafka.Message) error { return nil })
	c.backoff = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	select {
	case <-reader.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("reader was not drained")
	}
	cancel()
	<-done

	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Empty(t, reader.committed)
}
