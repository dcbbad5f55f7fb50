package events

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer lazily manages writers per topic.
type KafkaProducer struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// WriteMessages writes messages to the given topic, creating a writer if necessary.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writerForTopic(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writerForTopic(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	p.writers[topic] = writer
	return writer
}

// Close releases all writers.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}

type messageWriter interface {
	WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error
}

// KafkaPublisher publishes StateChanged events to a single topic, keyed by user id
// so one user's changes stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher constructs a KafkaPublisher over writer.
func NewKafkaPublisher(writer messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topic: topic}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, evt StateChanged) error {
	msg, err := NewMessage(TypeStateChanged, evt.UserID, evt)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, p.topic, msg)
}

// RequestReset publishes a reset command to topic.
func RequestReset(ctx context.Context, writer messageWriter, topic string, req ResetRequested) error {
	msg, err := NewMessage(TypeResetRequested, req.UserID, req)
	if err != nil {
		return err
	}
	return writer.WriteMessages(ctx, topic, msg)
}
