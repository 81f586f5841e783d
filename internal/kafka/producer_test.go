package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestProducer_PublishSubscriptionChanged(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, time.Second, logger.NewNop())

	err := p.PublishSubscriptionChanged(context.Background(), SubscriptionChanged{
		WebhookType:          domain.WebhookEventSubscriptionUpdated,
		TenantID:             "tenant-1",
		StripeSubscriptionID: "sub_1",
		Plan:                 domain.PlanBusiness,
		Status:               domain.SubscriptionStatusActive,
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, TopicSubscriptionChanged, msg.Topic)
	assert.Equal(t, "sub_1", string(msg.Key))

	var evt SubscriptionChanged
	require.NoError(t, json.Unmarshal(msg.Value, &evt))
	assert.NotEmpty(t, evt.EventID)
	assert.Equal(t, domain.PlanBusiness, evt.Plan)
}

func TestProducer_PublishConnectionHealthChangedKeyedByDashboard(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, time.Second, logger.NewNop())

	require.NoError(t, p.PublishConnectionHealthChanged(context.Background(), ConnectionHealthChanged{
		DashboardID: 42,
		From:        domain.ConnectionStatusConnected,
		To:          domain.ConnectionStatusExpired,
	}))

	require.Len(t, w.messages, 1)
	assert.Equal(t, TopicConnectionHealthChanged, w.messages[0].Topic)
	assert.Equal(t, "42", string(w.messages[0].Key))
}

func TestProducer_WriteError(t *testing.T) {
	p := newProducer(&recordingWriter{err: errors.New("broker down")}, time.Second, logger.NewNop())

	err := p.PublishConnectionHealthChanged(context.Background(), ConnectionHealthChanged{DashboardID: 1})
	assert.ErrorContains(t, err, "broker down")
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(NewConfig(nil), logger.NewNop())
	assert.Error(t, err)
}
