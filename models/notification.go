package models

import "time"

// OutboundMessage is one message the scheduler sends.
type OutboundMessage struct {
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	ReplyHint string    `json:"replyHint,omitempty"` // Reply-To for mail transports
	RequestID string    `json:"requestId,omitempty"`
	SentAt    time.Time `json:"sentAt"`
}

// InboundMessage is one message fetched from the transport.
type InboundMessage struct {
	ID         string    `json:"id,omitempty"` // transport message id, used for dedup
	Sender     string    `json:"sender" binding:"required"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body" binding:"required"`
	ReceivedAt time.Time `json:"receivedAt"`
}
