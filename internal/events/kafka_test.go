package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"carelink/backend/internal/domain"
	"carelink/backend/internal/notify"
)

type fakeWriter struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	writeFn func(msg kafka.Message) error
	closed  bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		if f.writeFn != nil {
			if err := f.writeFn(m); err != nil {
				return err
			}
		}
		f.msgs = append(f.msgs, m)
	}
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWriter) snapshot() []kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Message(nil), f.msgs...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestPublisher_WritesKeyedStatusChanges(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, "carelink.appointment-status", discardLogger(), 16)

	n := notify.New(discardLogger())
	n.Subscribe(p.Handle)

	at := time.Date(2025, 11, 9, 0, 0, 0, 0, time.UTC)
	n.Publish(domain.StatusChange{AppointmentID: "a1", From: domain.StatusNew, To: domain.StatusConfirmed, Actor: domain.ActorCaregiver, At: at})
	n.Publish(domain.StatusChange{AppointmentID: "a1", From: domain.StatusConfirmed, To: domain.StatusInProgress, Actor: domain.ActorCaregiver, At: at})

	require.NoError(t, p.Close())
	require.True(t, w.closed)

	msgs := w.snapshot()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		require.Equal(t, "a1", string(m.Key))
		require.Equal(t, EventStatusChanged, header(m, "event_type"))
		require.NotEmpty(t, header(m, "event_id"))
	}

	var first domain.StatusChange
	require.NoError(t, json.Unmarshal(msgs[0].Value, &first))
	require.Equal(t, domain.StatusConfirmed, first.To)
	require.True(t, first.At.Equal(at))
}

func TestPublisher_WriteFailureDoesNotStopDelivery(t *testing.T) {
	calls := 0
	w := &fakeWriter{writeFn: func(msg kafka.Message) error {
		calls++
		if calls == 1 {
			return errors.New("broker unavailable")
		}
		return nil
	}}
	p := newPublisher(w, "t", discardLogger(), 16)

	p.Handle(domain.StatusChange{AppointmentID: "a1", To: domain.StatusCancelled})
	p.Handle(domain.StatusChange{AppointmentID: "a2", To: domain.StatusCancelled})
	require.NoError(t, p.Close())

	msgs := w.snapshot()
	require.Len(t, msgs, 1)
	require.Equal(t, "a2", string(msgs[0].Key))
}

func TestPublisher_HandleAfterCloseIsIgnored(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, "t", discardLogger(), 1)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	p.Handle(domain.StatusChange{AppointmentID: "a1"})
	require.Empty(t, w.snapshot())
}
