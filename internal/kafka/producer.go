package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// messageWriter подмножество kafka.Writer, которое нужно продюсеру.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer реализует Publisher поверх segmentio/kafka-go.
type Producer struct {
	writer       messageWriter
	writeTimeout time.Duration
	log          *logger.Logger
}

// NewProducer создает и настраивает новый продюсер Kafka.
func NewProducer(cfg *Config, log *logger.Logger) (*Producer, error) {
	if !cfg.Enabled() {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.WriteTimeout,
	}

	log.Infow("Kafka producer initialized", "brokers", cfg.Brokers)
	return newProducer(writer, cfg.WriteTimeout, log), nil
}

func newProducer(w messageWriter, writeTimeout time.Duration, log *logger.Logger) *Producer {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Producer{writer: w, writeTimeout: writeTimeout, log: log}
}

// PublishSubscriptionChanged ключ сообщения Stripe ID подписки, чтобы события
// одной подписки попадали в одну партицию.
func (p *Producer) PublishSubscriptionChanged(ctx context.Context, evt SubscriptionChanged) error {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	return p.publish(ctx, TopicSubscriptionChanged, evt.StripeSubscriptionID, evt)
}

// PublishConnectionHealthChanged ключ сообщения ID дашборда.
func (p *Producer) PublishConnectionHealthChanged(ctx context.Context, evt ConnectionHealthChanged) error {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	return p.publish(ctx, TopicConnectionHealthChanged, strconv.FormatInt(evt.DashboardID, 10), evt)
}

func (p *Producer) publish(ctx context.Context, topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(topic)},
		},
		Time: time.Now(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(writeCtx, message); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			p.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", topic, "key", key)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		p.log.Errorw("Failed to write message to Kafka", "error", err, "topic", topic, "key", key)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	p.log.Debugw("Published message to Kafka", "topic", topic, "key", key)
	return nil
}

// Close закрывает соединение Kafka Writer.
func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		p.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	p.log.Infow("Kafka producer writer closed successfully")
	return nil
}

var (
	_ Publisher = (*Producer)(nil)
	_ Publisher = NopPublisher{}
)
