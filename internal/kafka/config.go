package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

// Топики событий интеграционного слоя
const (
	TopicSubscriptionChanged     = "subscription.changed"
	TopicConnectionHealthChanged = "connection.health_changed"
)

// Config конфигурация для Kafka
type Config struct {
	Brokers           []string
	ClientID          string
	NumPartitions     int32
	ReplicationFactor int16
	WriteTimeout      time.Duration
}

// NewConfig создает новую конфигурацию Kafka
func NewConfig(brokers []string) *Config {
	return &Config{
		Brokers:           brokers,
		ClientID:          "steadybooks-integration",
		NumPartitions:     3,
		ReplicationFactor: 1,
		WriteTimeout:      10 * time.Second,
	}
}

// Enabled true, если настроен хотя бы один брокер.
func (c *Config) Enabled() bool {
	for _, b := range c.Brokers {
		if b != "" {
			return true
		}
	}
	return false
}

// NewSaramaConfig создает конфигурацию Sarama для административного клиента.
func NewSaramaConfig(cfg *Config) *sarama.Config {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Version = sarama.V3_3_0_0
	saramaConfig.ClientID = cfg.ClientID
	saramaConfig.Admin.Timeout = 15 * time.Second
	saramaConfig.Admin.Retry.Max = 3
	saramaConfig.Net.DialTimeout = 10 * time.Second

	return saramaConfig
}
