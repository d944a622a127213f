// Package events publishes marketplace events to interested consumers.
package events

import (
	"context"
	"time"
)

// Event types.
const (
	SaleCreated   = "sale.created"
	SaleCompleted = "sale.completed"
	SaleCancelled = "sale.cancelled"
)

// Envelope is the JSON body of every published event.
type Envelope struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// Publisher sends events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
	Close() error
}

// Noop discards every event. It is used when no broker is configured.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, string, interface{}) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }
