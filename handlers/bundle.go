package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	OperatorSecret string

	// Negotiation endpoints
	InitiateHandler gin.HandlerFunc
	SummaryHandler  gin.HandlerFunc
	GetHandler      gin.HandlerFunc
	CancelHandler   gin.HandlerFunc

	// Webhook transport
	InboundHandler gin.HandlerFunc

	HealthHandler gin.HandlerFunc
}

// NewHandlerBundle wires a NegotiationHandler into the bundle.
func NewHandlerBundle(h *NegotiationHandler, operatorSecret string) *HandlerBundle {
	return &HandlerBundle{
		OperatorSecret:  operatorSecret,
		InitiateHandler: h.InitiateHandler,
		SummaryHandler:  h.SummaryHandler,
		GetHandler:      h.GetHandler,
		CancelHandler:   h.CancelHandler,
		InboundHandler:  h.InboundHandler,
		HealthHandler:   HealthHandler,
	}
}
