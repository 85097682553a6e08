package message

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/Shopify/sarama"

	"github.com/janelia-flyem/pixstore/pix"
)

// KafkaMaxMessageSize is the max message size in bytes for a Kafka message.
const KafkaMaxMessageSize = 980 * pix.Kilo

// DefaultKafkaTopic receives events when no topic is configured.
const DefaultKafkaTopic = "pixstore-events"

// KafkaConfig is the [kafka] configuration section.  Events are only sent
// when Servers is non-empty.
type KafkaConfig struct {
	Servers []string
	Topic   string
}

// KafkaNotifier is a Subscriber that records every event it handles to a
// Kafka topic.  It never answers events, so it can be combined with
// subscribers that do.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
}

var topicCleaner = regexp.MustCompile(`[^a-zA-Z0-9\._\-]+`)

func kafkaTopic(topic string) string {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	return topicCleaner.ReplaceAllString(topic, "-")
}

// NewKafkaNotifier connects a synchronous producer to the configured servers.
func NewKafkaNotifier(kc KafkaConfig) (*KafkaNotifier, error) {
	if len(kc.Servers) == 0 {
		return nil, fmt.Errorf("no kafka servers configured")
	}
	config := sarama.NewConfig()
	config.Producer.MaxMessageBytes = KafkaMaxMessageSize
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(kc.Servers, config)
	if err != nil {
		return nil, err
	}
	k := NewKafkaNotifierWithProducer(producer, kc.Topic)
	pix.Infof("Kafka topic for storage events: %s\n", k.topic)
	return k, nil
}

// NewKafkaNotifierWithProducer uses an existing producer.
func NewKafkaNotifierWithProducer(producer sarama.SyncProducer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: kafkaTopic(topic)}
}

// kafkaEvent is the JSON record sent for each event.
type kafkaEvent struct {
	Event       string
	Time        int64  // unix nanoseconds
	ID          string `json:",omitempty"`
	PixelsID    int64  `json:",omitempty"`
	PixelsPath  string `json:",omitempty"`
	PyramidPath string `json:",omitempty"`
}

// Handle sends the event.  Send failures are logged, not returned, since the
// record is informational.
func (k *KafkaNotifier) Handle(ctx context.Context, e Event) error {
	rec := kafkaEvent{Event: e.Topic(), Time: time.Now().UnixNano()}
	if mp, ok := e.(*MissingPyramid); ok {
		rec.ID = mp.ID
		rec.Time = mp.Time.UnixNano()
		rec.PixelsID = mp.PixelsID()
		rec.PixelsPath = mp.PixelsPath
		rec.PyramidPath = mp.PyramidPath
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(e.Topic()),
		Value: sarama.ByteEncoder(value),
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		pix.Errorf("error on kafka send of %q event: %v\n", e.Topic(), err)
	}
	return nil
}

// Close flushes and closes the producer.
func (k *KafkaNotifier) Close() error {
	if err := k.producer.Close(); err != nil {
		pix.Errorf("Kafka producer had error on close: %v\n", err)
		return err
	}
	pix.Infof("Successfully shut down kafka producer.\n")
	return nil
}
