package notification

import (
	"context"
	"strings"
	"sync"
	"time"

	"parley/models"
)

// MemoryTransport records outbound messages and hands back injected replies.
type MemoryTransport struct {
	Now func() time.Time

	mu      sync.Mutex
	outbox  []models.OutboundMessage
	pending []models.InboundMessage
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{Now: time.Now}
}

func (m *MemoryTransport) Send(_ context.Context, msg models.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.SentAt.IsZero() {
		msg.SentAt = m.now()
	}
	m.outbox = append(m.outbox, msg)
	return nil
}

// FetchNewMessages drains the injected replies.
func (m *MemoryTransport) FetchNewMessages(_ context.Context) ([]models.InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending
	m.pending = nil
	return out, nil
}

func (m *MemoryTransport) Inject(msg models.InboundMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = m.now()
	}
	m.pending = append(m.pending, msg)
}

// Outbox returns a copy of every message sent so far.
func (m *MemoryTransport) Outbox() []models.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OutboundMessage(nil), m.outbox...)
}

// SentTo returns the messages addressed to addr, case-insensitively.
func (m *MemoryTransport) SentTo(addr string) []models.OutboundMessage {
	var out []models.OutboundMessage
	for _, msg := range m.Outbox() {
		if strings.EqualFold(msg.To, addr) {
			out = append(out, msg)
		}
	}
	return out
}

func (m *MemoryTransport) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}
