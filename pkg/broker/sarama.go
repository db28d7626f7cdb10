package broker

import (
	"context"
	"strconv"

	"github.com/IBM/sarama"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/events"
)

// SaramaPublisher writes event batches with a sarama sync producer.
type SaramaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewSaramaPublisher dials brokers with acks from all in-sync replicas.
func NewSaramaPublisher(brokers []string, topic string) (*SaramaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewSaramaPublisherFrom(producer, topic), nil
}

// NewSaramaPublisherFrom wraps an existing producer.
func NewSaramaPublisherFrom(producer sarama.SyncProducer, topic string) *SaramaPublisher {
	return &SaramaPublisher{producer: producer, topic: topic}
}

func (p *SaramaPublisher) Publish(_ context.Context, batch []*events.Event) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(batch))
	for _, ev := range batch {
		key, value, err := encode(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.ByteEncoder(key),
			Value: sarama.ByteEncoder(value),
			Headers: []sarama.RecordHeader{
				{Key: []byte("type"), Value: []byte(ev.Type)},
				{Key: []byte("seq"), Value: []byte(strconv.FormatUint(ev.Seq, 10))},
			},
		})
	}
	return p.producer.SendMessages(msgs)
}

func (p *SaramaPublisher) Close() error {
	return p.producer.Close()
}
