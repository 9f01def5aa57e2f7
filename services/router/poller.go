// Package router polls the transport for replies and hands each one to the
// negotiation it belongs to.
package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"parley/models"
	"parley/services/negotiation"
	"parley/services/notification"

	"go.uber.org/zap"
)

const (
	DefaultInterval  = 30 * time.Second
	DefaultBatchSize = 25
)

// ReplyHandler is the part of the engine the poller drives.
type ReplyHandler interface {
	HandleReply(ctx context.Context, id, sender, raw string) (*negotiation.Outcome, error)
}

// Poller fetches new messages on every tick, queues them behind any backlog
// and routes at most BatchSize of them.
type Poller struct {
	Transport notification.Transport
	Handler   ReplyHandler
	Interval  time.Duration
	BatchSize int
	Logger    *zap.Logger

	mu      sync.Mutex
	backlog []models.InboundMessage

	stopOnce sync.Once
	stop     chan struct{}
}

func NewPoller(tr notification.Transport, h ReplyHandler, interval time.Duration, batch int, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		Transport: tr,
		Handler:   h,
		Interval:  interval,
		BatchSize: batch,
		Logger:    logger,
		stop:      make(chan struct{}),
	}
}

// Run polls until ctx is cancelled or Stop is called.
func (p *Poller) Run(ctx context.Context) {
	p.Logger.Info("Reply poller started", zap.Duration("interval", p.Interval), zap.Int("batch", p.BatchSize))

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.Logger.Info("Reply poller shutdown signal received")
			return
		case <-p.stop:
			p.Logger.Info("Reply poller stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Tick runs one poll and returns how many messages it routed.
func (p *Poller) Tick(ctx context.Context) int {
	fresh, err := p.Transport.FetchNewMessages(ctx)
	if err != nil {
		p.Logger.Error("Failed to fetch new messages", zap.Error(err))
	}

	p.mu.Lock()
	p.backlog = append(p.backlog, fresh...)
	n := len(p.backlog)
	if n > p.BatchSize {
		n = p.BatchSize
	}
	batch := append([]models.InboundMessage(nil), p.backlog[:n]...)
	p.backlog = p.backlog[n:]
	left := len(p.backlog)
	p.mu.Unlock()

	if left > 0 {
		p.Logger.Debug("Messages deferred to a later tick", zap.Int("backlog", left))
	}
	for _, msg := range batch {
		if ctx.Err() != nil {
			p.requeue(msg)
			continue
		}
		p.route(ctx, msg)
	}
	return len(batch)
}

// Backlog reports how many fetched messages are still waiting.
func (p *Poller) Backlog() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.backlog)
}

func (p *Poller) requeue(msg models.InboundMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backlog = append(p.backlog, msg)
}

func (p *Poller) route(ctx context.Context, msg models.InboundMessage) {
	token := TokenFor(msg)
	if token == "" {
		p.Logger.Debug("No request token in message, dropping", zap.String("sender", msg.Sender), zap.String("subject", msg.Subject))
		return
	}
	logger := p.Logger.With(zap.String("requestID", token), zap.String("sender", msg.Sender))

	out, err := p.Handler.HandleReply(ctx, token, msg.Sender, msg.Body)
	var unknown *negotiation.UnknownRequestError
	switch {
	case errors.As(err, &unknown):
		logger.Warn("Reply for unknown request dropped")
	case errors.Is(err, negotiation.ErrRequestClosed):
		logger.Info("Reply for closed request ignored")
	case out == nil:
		logger.Error("Failed to handle reply", zap.Error(err))
	default:
		fields := []zap.Field{zap.String("result", string(out.Result)), zap.String("status", string(out.Status))}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		if out.Degraded != nil {
			fields = append(fields, zap.NamedError("degraded", out.Degraded))
		}
		if out.EventErr != nil {
			fields = append(fields, zap.NamedError("eventErr", out.EventErr))
		}
		logger.Info("Reply routed", fields...)
	}
}
