package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type stubWriter struct {
	topic string
	msgs  []kafka.Message
	err   error
}

func (s *stubWriter) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	if s.err != nil {
		return s.err
	}
	s.topic = topic
	s.msgs = append(s.msgs, msgs...)
	return nil
}

func TestKafkaPublisherKeysByUser(t *testing.T) {
	writer := &stubWriter{}
	pub := NewKafkaPublisher(writer, "userstate.changed")

	occurred := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := pub.Publish(context.Background(), StateChanged{
		Domain:     "tutorial_status",
		UserID:     "user-1",
		Kind:       "durable",
		Source:     "save",
		OccurredAt: occurred,
	})
	require.NoError(t, err)
	require.Equal(t, "userstate.changed", writer.topic)
	require.Len(t, writer.msgs, 1)

	msg := writer.msgs[0]
	require.Equal(t, "user-1", string(msg.Key))
	eventType, err := EventType(msg)
	require.NoError(t, err)
	require.Equal(t, TypeStateChanged, eventType)

	var decoded StateChanged
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, "tutorial_status", decoded.Domain)
	require.True(t, occurred.Equal(decoded.OccurredAt))
}

func TestKafkaPublisherPropagatesWriteErrors(t *testing.T) {
	writer := &stubWriter{err: errors.New("broker down")}
	pub := NewKafkaPublisher(writer, "userstate.changed")

	err := pub.Publish(context.Background(), StateChanged{UserID: "user-1"})
	require.EqualError(t, err, "broker down")
}

func TestRequestResetTagsEventType(t *testing.T) {
	writer := &stubWriter{}
	err := RequestReset(context.Background(), writer, "userstate.reset", ResetRequested{
		Domain: "tutorial_status",
		UserID: "user-2",
	})
	require.NoError(t, err)
	require.Equal(t, "userstate.reset", writer.topic)

	eventType, err := EventType(writer.msgs[0])
	require.NoError(t, err)
	require.Equal(t, TypeResetRequested, eventType)
}

func TestEventTypeMissingHeader(t *testing.T) {
	_, err := EventType(kafka.Message{})
	require.Error(t, err)
}
