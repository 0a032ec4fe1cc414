package observability

import (
	"context"
	"sync"
)

// Publisher ships event envelopes to the message bus.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error
}

var (
	publisherMu      sync.RWMutex
	defaultPublisher Publisher
)

func SetPublisher(publisher Publisher) {
	publisherMu.Lock()
	defer publisherMu.Unlock()
	defaultPublisher = publisher
}

// PublishEvent is a no-op until SetPublisher is called.
func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	publisherMu.RLock()
	publisher := defaultPublisher
	publisherMu.RUnlock()
	if publisher == nil {
		return nil
	}

	err := publisher.PublishJSON(ctx, routingKey, message, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
