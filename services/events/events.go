// Package events delivers billing ledger events to Kafka and to connected
// portal clients.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"danceportal_go/services/billing"
	"danceportal_go/services/websocket"

	skafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Writer is the subset of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// KafkaPublisher writes ledger events keyed by family id, so one family's
// events stay ordered within a partition.
type KafkaPublisher struct {
	writer Writer
}

// NewKafkaPublisher connects a writer to brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &skafka.Writer{
		Addr:         skafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &skafka.Hash{},
		RequiredAcks: skafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w}
}

// NewKafkaPublisherWithWriter allows injecting a test writer.
func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev billing.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := skafka.Message{
		Key:     []byte(strconv.FormatUint(uint64(ev.FamilyID), 10)),
		Value:   b,
		Headers: []skafka.Header{{Key: "type", Value: []byte(ev.Type)}},
		Time:    ev.OccurredAt,
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// HubPublisher pushes each event to the family's open websocket connections.
type HubPublisher struct {
	hub *websocket.Hub
}

func NewHubPublisher(hub *websocket.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(_ context.Context, ev billing.Event) error {
	p.hub.BroadcastToFamily(ev.FamilyID, websocket.Message{Type: ev.Type, Data: ev})
	return nil
}

// Multi fans an event out to several publishers. Every publisher is tried;
// the errors are joined.
type Multi []billing.Publisher

func (m Multi) Publish(ctx context.Context, ev billing.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Logging records each event at debug level. Used when Kafka is not configured.
type Logging struct{}

func (Logging) Publish(_ context.Context, ev billing.Event) error {
	logrus.WithFields(logrus.Fields{
		"type":          ev.Type,
		"family_id":     ev.FamilyID,
		"entries":       len(ev.EntryIDs),
		"balance_cents": ev.BalanceCents,
	}).Debug("ledger event")
	return nil
}
