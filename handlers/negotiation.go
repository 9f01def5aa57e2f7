package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"parley/models"
	"parley/services/negotiation"
	"parley/services/notification"
	"parley/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultDurationMinutes applies when an initiation omits the interview length.
const DefaultDurationMinutes = 60

// NegotiationService is the part of the engine the operator API drives.
type NegotiationService interface {
	Initiate(ctx context.Context, p negotiation.InitiateParams) (*models.Request, error)
	Cancel(ctx context.Context, id, reason string) (*negotiation.Outcome, error)
	Get(id string) (*models.Request, error)
	Summary() negotiation.RunSummary
}

// NegotiationHandler serves the operator endpoints.
type NegotiationHandler struct {
	Service  NegotiationService
	Injector notification.Injector // nil disables the inbound webhook
	Logger   *zap.Logger
}

func NewNegotiationHandler(svc NegotiationService, injector notification.Injector, logger *zap.Logger) *NegotiationHandler {
	return &NegotiationHandler{Service: svc, Injector: injector, Logger: logger}
}

type initiateRequest struct {
	Requester       string `json:"requester" binding:"required"`
	Respondent      string `json:"respondent" binding:"required"`
	Subject         string `json:"subject" binding:"required"`
	DurationMinutes int    `json:"durationMinutes"`
}

// InitiateHandler starts a negotiation and returns the registered request.
func (h *NegotiationHandler) InitiateHandler(c *gin.Context) {
	var input initiateRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid input", err.Error())
		return
	}
	if input.DurationMinutes == 0 {
		input.DurationMinutes = DefaultDurationMinutes
	}

	req, err := h.Service.Initiate(c.Request.Context(), negotiation.InitiateParams{
		Requester:  strings.TrimSpace(input.Requester),
		Respondent: strings.TrimSpace(input.Respondent),
		Subject:    strings.TrimSpace(input.Subject),
		Duration:   time.Duration(input.DurationMinutes) * time.Minute,
	})
	if err != nil {
		h.respondError(c, "Failed to start negotiation", err)
		return
	}

	h.Logger.Info("Negotiation initiated via API", zap.String("requestID", req.ID), zap.String("operator", c.GetString("operator")))
	c.JSON(http.StatusCreated, req)
}

// SummaryHandler lists every request of this run.
func (h *NegotiationHandler) SummaryHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.Service.Summary())
}

func (h *NegotiationHandler) GetHandler(c *gin.Context) {
	req, err := h.Service.Get(c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to fetch negotiation", err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// CancelHandler closes a live negotiation on the operator's behalf.
func (h *NegotiationHandler) CancelHandler(c *gin.Context) {
	var input struct {
		Reason string `json:"reason"`
	}
	// An empty body is fine.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			utils.JSONError(c, http.StatusBadRequest, "Invalid input", err.Error())
			return
		}
	}

	out, err := h.Service.Cancel(c.Request.Context(), c.Param("id"), strings.TrimSpace(input.Reason))
	if err != nil {
		h.respondError(c, "Failed to cancel negotiation", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type inboundRequest struct {
	Sender    string `json:"sender" binding:"required"`
	Subject   string `json:"subject"`
	Body      string `json:"body" binding:"required"`
	RequestID string `json:"requestId"`
}

// InboundHandler queues a reply for the poller, as if it had arrived by mail.
// When requestId is given and the body carries no tagged line, one is appended.
func (h *NegotiationHandler) InboundHandler(c *gin.Context) {
	if h.Injector == nil {
		utils.JSONError(c, http.StatusNotImplemented, "Inbound webhook disabled", "the configured transport does not accept injected replies")
		return
	}
	var input inboundRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid input", err.Error())
		return
	}

	body := input.Body
	if input.RequestID != "" && !strings.Contains(body, models.TokenLine(input.RequestID)) {
		body += "\n\n" + models.TokenLine(input.RequestID)
	}
	h.Injector.Inject(models.InboundMessage{
		Sender:     strings.TrimSpace(input.Sender),
		Subject:    input.Subject,
		Body:       body,
		ReceivedAt: time.Now(),
	})

	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *NegotiationHandler) respondError(c *gin.Context, message string, err error) {
	utils.JSONError(c, StatusForError(err), message, err.Error())
}

// StatusForError maps engine errors onto HTTP statuses.
func StatusForError(err error) int {
	var (
		verr *negotiation.ValidationError
		uerr *negotiation.UnavailableError
		nerr *negotiation.UnknownRequestError
		terr *models.TransitionError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &nerr):
		return http.StatusNotFound
	case errors.Is(err, negotiation.ErrRequestClosed), errors.As(err, &terr):
		return http.StatusConflict
	case errors.As(err, &uerr):
		if uerr.Err != nil {
			return http.StatusBadGateway
		}
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
