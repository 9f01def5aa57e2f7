package notification

import (
	"context"
	"sync"
	"time"

	"parley/models"

	"go.uber.org/zap"
)

// InjectableTransport adds an injection queue in front of a real transport.
// Injected replies are returned first; a failing inner fetch does not lose them.
type InjectableTransport struct {
	inner  Transport
	logger *zap.Logger

	mu      sync.Mutex
	pending []models.InboundMessage
}

func NewInjectableTransport(inner Transport, logger *zap.Logger) *InjectableTransport {
	return &InjectableTransport{inner: inner, logger: logger}
}

func (t *InjectableTransport) Send(ctx context.Context, msg models.OutboundMessage) error {
	return t.inner.Send(ctx, msg)
}

func (t *InjectableTransport) Inject(msg models.InboundMessage) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	t.mu.Lock()
	t.pending = append(t.pending, msg)
	t.mu.Unlock()
}

func (t *InjectableTransport) FetchNewMessages(ctx context.Context) ([]models.InboundMessage, error) {
	t.mu.Lock()
	out := t.pending
	t.pending = nil
	t.mu.Unlock()

	fetched, err := t.inner.FetchNewMessages(ctx)
	if err != nil {
		if len(out) == 0 {
			return nil, err
		}
		t.logger.Warn("Inbox fetch failed, returning injected replies only", zap.Error(err))
		return out, nil
	}
	return append(out, fetched...), nil
}
