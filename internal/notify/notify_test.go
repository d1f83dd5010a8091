package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/geekuality/posti-delivery-dates/internal/view"
)

func TestNoopPublisher(t *testing.T) {
	t.Parallel()

	p := NewNoopPublisher()
	err := p.Publish(context.Background(), "00100", view.View{PostalCode: "00100"})
	assert.NoError(t, err)
}

func TestGetTopicPrefix(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{
			name: "unset prefix uses default",
			want: DefaultTopicPrefix,
		},
		{
			name:   "configured prefix wins",
			prefix: "home/delivery",
			want:   "home/delivery",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &MQTTConfig{TopicPrefix: tt.prefix}
			assert.Equal(t, tt.want, cfg.GetTopicPrefix())
		})
	}
}

func TestNewMQTTPublisherUnreachableBroker(t *testing.T) {
	t.Parallel()

	_, err := NewMQTTPublisher(&MQTTConfig{
		Broker: "tcp://127.0.0.1:1",
	})
	assert.Error(t, err)
}
