// Package notify publishes recomputed delivery views to external consumers.
// The MQTT publisher is optional; a no-op publisher stands in when
// notifications are disabled.
package notify

import (
	"context"

	"github.com/geekuality/posti-delivery-dates/internal/view"
)

// Config holds the notification settings.
type Config struct {
	MQTT *MQTTConfig `yaml:"mqtt,omitempty"`
}

// noopPublisher drops every view.
type noopPublisher struct{}

// NewNoopPublisher returns a publisher that does nothing.
func NewNoopPublisher() view.Publisher {
	return &noopPublisher{}
}

func (*noopPublisher) Publish(_ context.Context, _ string, _ view.View) error {
	return nil
}
