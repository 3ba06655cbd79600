// Package events publishes domain events for the notification pipeline.
// Delivery is best effort: a failed publish never fails the operation that
// produced the event.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

const (
	TypeFileShared      = "FILE_SHARED"
	TypeVersionUploaded = "VERSION_UPLOADED"
	TypeVersionReverted = "VERSION_REVERTED"
)

var ErrCantPublish = errors.New("can't publish event")

type Event struct {
	Type       string    `json:"type"`
	ItemID     string    `json:"item_id"`
	ItemType   string    `json:"item_type,omitempty"`
	ItemName   string    `json:"item_name,omitempty"`
	Actor      string    `json:"actor"`
	Recipient  string    `json:"recipient,omitempty"`
	Message    string    `json:"message,omitempty"`
	VersionID  string    `json:"version_id,omitempty"`
	Version    *uint     `json:"version_number,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e *Event) error
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes events as JSON to a single Kafka topic, keyed by item id so
// events about one item stay ordered.
type Producer struct {
	w writer
	l *log.Entry
}

func NewProducer(brokers []string, topic string, l *log.Entry) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: 10 * time.Second,
			ReadTimeout:  10 * time.Second,
		},
		l: l.WithField("topic", topic),
	}
}

func (p *Producer) Publish(ctx context.Context, e *Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		p.l.WithError(err).Error("can't marshal event")
		return ErrCantPublish
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.ItemID),
		Value: value,
		Time:  e.OccurredAt,
	})
	if err != nil {
		p.l.WithError(err).WithField("event", e.Type).Error(ErrCantPublish)
		return ErrCantPublish
	}
	p.l.WithField("event", e.Type).WithField("item_id", e.ItemID).Debug("event published")
	return nil
}

func (p *Producer) Close() error {
	return p.w.Close()
}

// Nop drops every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, *Event) error { return nil }

// Notify publishes e and only logs a failure.
func Notify(ctx context.Context, p Publisher, l *log.Entry, e *Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		l.WithError(err).WithField("event", e.Type).Warn("event dropped")
	}
}
