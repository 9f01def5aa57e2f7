package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parley/models"
	"parley/services/negotiation"
	"parley/services/notification"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockService struct {
	mock.Mock
}

func (m *mockService) Initiate(ctx context.Context, p negotiation.InitiateParams) (*models.Request, error) {
	args := m.Called(ctx, p)
	req, _ := args.Get(0).(*models.Request)
	return req, args.Error(1)
}

func (m *mockService) Cancel(ctx context.Context, id, reason string) (*negotiation.Outcome, error) {
	args := m.Called(ctx, id, reason)
	out, _ := args.Get(0).(*negotiation.Outcome)
	return out, args.Error(1)
}

func (m *mockService) Get(id string) (*models.Request, error) {
	args := m.Called(id)
	req, _ := args.Get(0).(*models.Request)
	return req, args.Error(1)
}

func (m *mockService) Summary() negotiation.RunSummary {
	return m.Called().Get(0).(negotiation.RunSummary)
}

func newRouter(h *NegotiationHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/negotiations", h.InitiateHandler)
	r.GET("/api/negotiations", h.SummaryHandler)
	r.GET("/api/negotiations/:id", h.GetHandler)
	r.POST("/api/negotiations/:id/cancel", h.CancelHandler)
	r.POST("/api/inbound", h.InboundHandler)
	return r
}

func do(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestInitiateHandler(t *testing.T) {
	svc := &mockService{}
	created := models.NewRequest("req_abc", "hiring@example.com", "candidate@example.com", "SRE", 45*time.Minute, time.Now())
	svc.On("Initiate", mock.Anything, negotiation.InitiateParams{
		Requester:  "hiring@example.com",
		Respondent: "candidate@example.com",
		Subject:    "SRE",
		Duration:   45 * time.Minute,
	}).Return(created, nil)

	r := newRouter(NewNegotiationHandler(svc, nil, zap.NewNop()))
	w := do(r, http.MethodPost, "/api/negotiations", gin.H{
		"requester": " hiring@example.com ", "respondent": "candidate@example.com", "subject": "SRE", "durationMinutes": 45,
	})

	require.Equal(t, http.StatusCreated, w.Code)
	var got models.Request
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "req_abc", got.ID)
}

func TestInitiateHandler_DefaultDuration(t *testing.T) {
	svc := &mockService{}
	svc.On("Initiate", mock.Anything, mock.MatchedBy(func(p negotiation.InitiateParams) bool {
		return p.Duration == time.Hour
	})).Return(models.NewRequest("req_abc", "a@example.com", "b@example.com", "SRE", time.Hour, time.Now()), nil)

	r := newRouter(NewNegotiationHandler(svc, nil, zap.NewNop()))
	w := do(r, http.MethodPost, "/api/negotiations", gin.H{"requester": "a@example.com", "respondent": "b@example.com", "subject": "SRE"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestInitiateHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &negotiation.ValidationError{Field: "requester", Reason: "bad"}, http.StatusBadRequest},
		{"no slots", &negotiation.UnavailableError{Identity: "a@example.com"}, http.StatusUnprocessableEntity},
		{"calendar down", &negotiation.UnavailableError{Identity: "a@example.com", Err: errors.New("503")}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			svc.On("Initiate", mock.Anything, mock.Anything).Return(nil, tt.err)
			r := newRouter(NewNegotiationHandler(svc, nil, zap.NewNop()))
			w := do(r, http.MethodPost, "/api/negotiations", gin.H{"requester": "a@example.com", "respondent": "b@example.com", "subject": "SRE"})
			assert.Equal(t, tt.status, w.Code)
		})
	}

	r := newRouter(NewNegotiationHandler(&mockService{}, nil, zap.NewNop()))
	w := do(r, http.MethodPost, "/api/negotiations", gin.H{"requester": "a@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAndCancelHandlers(t *testing.T) {
	svc := &mockService{}
	svc.On("Get", "req_missing").Return(nil, &negotiation.UnknownRequestError{ID: "req_missing"})
	svc.On("Cancel", mock.Anything, "req_abc", "role filled").
		Return(&negotiation.Outcome{RequestID: "req_abc", Result: negotiation.ResultCancelled, Status: models.StatusCancelled}, nil)
	svc.On("Cancel", mock.Anything, "req_done", "").Return(nil, negotiation.ErrRequestClosed)
	r := newRouter(NewNegotiationHandler(svc, nil, zap.NewNop()))

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/negotiations/req_missing", nil).Code)

	w := do(r, http.MethodPost, "/api/negotiations/req_abc/cancel", gin.H{"reason": "role filled"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"result":"cancelled"`)

	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/api/negotiations/req_done/cancel", nil).Code)
}

func TestSummaryHandler(t *testing.T) {
	svc := &mockService{}
	svc.On("Summary").Return(negotiation.RunSummary{
		Requests:     []models.RequestSummary{{ID: "req_abc", Status: models.StatusConfirmed}},
		ByStatus:     map[models.Status]int{models.StatusConfirmed: 1},
		MessagesSent: 3,
	})
	w := do(newRouter(NewNegotiationHandler(svc, nil, zap.NewNop())), http.MethodGet, "/api/negotiations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"messagesSent":3`)
}

func TestInboundHandler(t *testing.T) {
	tr := notification.NewMemoryTransport()
	r := newRouter(NewNegotiationHandler(&mockService{}, tr, zap.NewNop()))

	w := do(r, http.MethodPost, "/api/inbound", gin.H{"sender": "candidate@example.com", "body": "Monday at 10am", "requestId": "req_abc"})
	require.Equal(t, http.StatusAccepted, w.Code)

	msgs, err := tr.FetchNewMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Monday at 10am\n\n"+models.TokenLine("req_abc"), msgs[0].Body)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/inbound", gin.H{"sender": "x@example.com"}).Code)

	disabled := newRouter(NewNegotiationHandler(&mockService{}, nil, zap.NewNop()))
	assert.Equal(t, http.StatusNotImplemented, do(disabled, http.MethodPost, "/api/inbound", gin.H{"sender": "x@example.com", "body": "hi"}).Code)
}
