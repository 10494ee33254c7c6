package notifier

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"exchange/internal/models"
)

// KafkaPublisher публикует события сделок в Kafka для downstream
// потребителей (аналитика, история торгов).
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaPublisher создает publisher. brokers - адреса брокеров,
// topic - топик событий сделок.
func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		log: log,
	}
}

// PublishDeals публикует сделки; ключ партиционирования - код пары,
// чтобы сделки одной пары читались в порядке создания.
func (p *KafkaPublisher) PublishDeals(ctx context.Context, deals []*models.Deal) error {
	messages := make([]kafka.Message, 0, len(deals))
	for _, deal := range deals {
		value, err := json.Marshal(deal)
		if err != nil {
			return err
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(deal.PairCode),
			Value: value,
		})
	}
	return p.writer.WriteMessages(ctx, messages...)
}

// Close закрывает writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
