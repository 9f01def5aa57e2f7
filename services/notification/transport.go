// Package notification carries scheduling messages to and from participants.
package notification

import (
	"context"
	"fmt"
	"strings"

	"parley/config"
	"parley/models"

	"go.uber.org/zap"
)

// Transport sends messages and returns replies that arrived since the last fetch.
type Transport interface {
	Send(ctx context.Context, msg models.OutboundMessage) error
	FetchNewMessages(ctx context.Context) ([]models.InboundMessage, error)
}

// Injector accepts replies delivered out of band, such as through the inbound webhook.
type Injector interface {
	Inject(msg models.InboundMessage)
}

// NewTransport selects the backend named by TRANSPORT_BACKEND. The returned
// transport always implements Injector.
func NewTransport(cfg config.Config, dedup Deduper, logger *zap.Logger) (Transport, error) {
	switch strings.ToLower(cfg.TransportBackend) {
	case "", "memory":
		logger.Info("Using in-memory transport")
		return NewMemoryTransport(), nil
	case "mail", "email":
		if cfg.MailFromAddress == "" {
			return nil, fmt.Errorf("MAIL_FROM_ADDRESS is required for the mail transport")
		}
		mt := NewMailTransport(MailSettings{
			SMTPHost:     cfg.SMTPHost,
			SMTPPort:     cfg.SMTPPort,
			SMTPUser:     cfg.SMTPUser,
			SMTPPassword: cfg.SMTPPassword,
			IMAPHost:     cfg.IMAPHost,
			IMAPPort:     cfg.IMAPPort,
			IMAPUser:     cfg.IMAPUser,
			IMAPPassword: cfg.IMAPPassword,
			FromAddress:  cfg.MailFromAddress,
			FromName:     cfg.MailFromName,
		}, dedup, logger)
		logger.Info("Using mail transport",
			zap.String("smtp", cfg.SMTPHost),
			zap.String("imap", cfg.IMAPHost),
			zap.String("from", cfg.MailFromAddress))
		return NewInjectableTransport(mt, logger), nil
	}
	return nil, fmt.Errorf("unknown transport backend %q", cfg.TransportBackend)
}
