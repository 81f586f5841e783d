package kafka

import (
	"errors"
	"fmt"

	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/IBM/sarama"
)

// RequiredTopics топики, которые публикует сервис.
func RequiredTopics() []string {
	return []string{TopicSubscriptionChanged, TopicConnectionHealthChanged}
}

// EnsureTopics создает недостающие топики через административный клиент Sarama.
func EnsureTopics(cfg *Config, log *logger.Logger) error {
	if !cfg.Enabled() {
		return errors.New("kafka broker address is empty")
	}

	admin, err := sarama.NewClusterAdmin(cfg.Brokers, NewSaramaConfig(cfg))
	if err != nil {
		log.Errorw("Failed to connect to Kafka for topic setup", "brokers", cfg.Brokers, "error", err)
		return fmt.Errorf("kafka admin connection failed: %w", err)
	}
	defer admin.Close()

	return ensureTopics(admin, cfg, log)
}

// topicAdmin подмножество sarama.ClusterAdmin для создания топиков.
type topicAdmin interface {
	ListTopics() (map[string]sarama.TopicDetail, error)
	CreateTopic(topic string, detail *sarama.TopicDetail, validateOnly bool) error
}

func ensureTopics(admin topicAdmin, cfg *Config, log *logger.Logger) error {
	existing, err := admin.ListTopics()
	if err != nil {
		log.Errorw("Failed to list Kafka topics", "error", err)
		return fmt.Errorf("kafka list topics failed: %w", err)
	}

	for _, topic := range RequiredTopics() {
		if _, ok := existing[topic]; ok {
			log.Debugw("Topic already exists", "topic", topic)
			continue
		}

		detail := &sarama.TopicDetail{
			NumPartitions:     cfg.NumPartitions,
			ReplicationFactor: cfg.ReplicationFactor,
		}
		if err := admin.CreateTopic(topic, detail, false); err != nil {
			if errors.Is(err, sarama.ErrTopicAlreadyExists) {
				log.Warnw("Topic already existed during creation attempt", "topic", topic)
				continue
			}
			log.Errorw("Failed to create topic", "topic", topic, "error", err)
			return fmt.Errorf("kafka create topic %s failed: %w", topic, err)
		}
		log.Infow("Kafka topic created", "topic", topic, "partitions", cfg.NumPartitions)
	}

	return nil
}
