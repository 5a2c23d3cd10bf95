package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"example.com/wellness/internal/events"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaNotifier.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes DataUpdated events to a topic. The writer is
// created on first use.
type KafkaNotifier struct {
	brokers []string
	topic   string

	mu     sync.Mutex
	writer MessageWriter
}

// NewKafkaNotifier creates a KafkaNotifier for topic.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{brokers: brokers, topic: topic}
}

// NewKafkaNotifierWithWriter uses a caller-supplied writer.
func NewKafkaNotifierWithWriter(writer MessageWriter, topic string) *KafkaNotifier {
	return &KafkaNotifier{topic: topic, writer: writer}
}

// DataUpdated writes evt as a JSON record keyed by pass id.
func (k *KafkaNotifier) DataUpdated(ctx context.Context, evt events.DataUpdated) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode data updated event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.PassID),
		Value: payload,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(events.TypeDataUpdated)},
			{Key: "pass_id", Value: []byte(evt.PassID)},
		},
	}
	if err := k.writerLocked().WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish data updated event: %w", err)
	}
	return nil
}

func (k *KafkaNotifier) writerLocked() MessageWriter {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer == nil {
		k.writer = &kafka.Writer{
			Addr:         kafka.TCP(k.brokers...),
			Topic:        k.topic,
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			Async:        false,
		}
	}
	return k.writer
}

// Close releases the writer.
func (k *KafkaNotifier) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer == nil {
		return nil
	}
	err := k.writer.Close()
	k.writer = nil
	return err
}
