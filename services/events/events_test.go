package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"danceportal_go/services/billing"
	"danceportal_go/services/websocket"

	skafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWriter is a test writer that records messages written.
type fakeWriter struct {
	msgs   []skafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...skafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func sampleEvent() billing.Event {
	return billing.Event{
		Type:         billing.EventLedgerPosted,
		FamilyID:     42,
		EntryIDs:     []uint{7, 8},
		BalanceCents: 2500,
		OccurredAt:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisherKeysByFamily(t *testing.T) {
	fw := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(fw)

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, fw.msgs, 1)
	msg := fw.msgs[0]
	assert.Equal(t, "42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, billing.EventLedgerPosted, string(msg.Headers[0].Value))

	var decoded billing.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, sampleEvent(), decoded)

	require.NoError(t, p.Close())
	assert.True(t, fw.closed)
}

func TestMultiTriesEveryPublisher(t *testing.T) {
	failing := &fakeWriter{err: errors.New("broker down")}
	ok := &fakeWriter{}
	m := Multi{NewKafkaPublisherWithWriter(failing), NewKafkaPublisherWithWriter(ok)}

	err := m.Publish(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "broker down")
	assert.Len(t, ok.msgs, 1)
}

func TestHubPublisherReachesFamilyClients(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	p := NewHubPublisher(hub)
	assert.NoError(t, p.Publish(context.Background(), sampleEvent()))
	assert.NoError(t, Logging{}.Publish(context.Background(), sampleEvent()))
}
