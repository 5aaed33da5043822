// Package events forwards appointment status changes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"carelink/backend/internal/domain"
)

const EventStatusChanged = "appointment.status_changed"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher queues status changes and writes them to one topic from a
// single goroutine, keyed by appointment id so a booking's changes stay
// ordered within a partition. Changes arriving while the queue is full are
// dropped and logged.
type Publisher struct {
	writer  messageWriter
	topic   string
	log     *slog.Logger
	timeout time.Duration

	queue   chan domain.StatusChange
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func NewPublisher(brokers []string, topic string, log *slog.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return newPublisher(w, topic, log, 256)
}

func newPublisher(w messageWriter, topic string, log *slog.Logger, buffer int) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{
		writer:  w,
		topic:   topic,
		log:     log.With(slog.String("component", "kafka_publisher"), slog.String("topic", topic)),
		timeout: 5 * time.Second,
		queue:   make(chan domain.StatusChange, buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go p.run()
	return p
}

// Handle enqueues change. It never blocks, so it is safe to pass directly
// to a notifier subscription.
func (p *Publisher) Handle(change domain.StatusChange) {
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.queue <- change:
	default:
		p.log.Warn("status change dropped, queue full", slog.String("appointment_id", change.AppointmentID))
	}
}

func (p *Publisher) run() {
	defer close(p.stopped)
	for {
		select {
		case change := <-p.queue:
			p.write(change)
		case <-p.done:
			for {
				select {
				case change := <-p.queue:
					p.write(change)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) write(change domain.StatusChange) {
	msg, err := message(change)
	if err != nil {
		p.log.Error("encode status change failed", slog.String("appointment_id", change.AppointmentID), slog.Any("err", err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("kafka write failed",
			slog.String("appointment_id", change.AppointmentID),
			slog.String("to", string(change.To)),
			slog.Any("err", err),
		)
	}
}

func message(change domain.StatusChange) (kafka.Message, error) {
	payload, err := json.Marshal(change)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(change.AppointmentID),
		Value: payload,
		Time:  change.At,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(uuid.NewString())},
			{Key: "event_type", Value: []byte(EventStatusChanged)},
		},
	}, nil
}

// Close flushes queued changes and closes the writer.
func (p *Publisher) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		err = p.waitDrained()
		if cerr := p.writer.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	})
	return err
}

func (p *Publisher) waitDrained() error {
	deadline := time.NewTimer(p.timeout)
	defer deadline.Stop()
	select {
	case <-p.stopped:
		return nil
	case <-deadline.C:
		return errors.New("kafka publisher: queue not drained before close")
	}
}
