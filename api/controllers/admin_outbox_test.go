package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retroquest/storefront-backend/pkg/db/models"
	"github.com/retroquest/storefront-backend/pkg/enums"
)

type stubDeadLetters struct {
	rows []models.OutboxDLQ
	err  error

	called     bool
	lastReason enums.OutboxDLQErrorReason
	lastLimit  int
}

func (s *stubDeadLetters) ListByReason(ctx context.Context, reason enums.OutboxDLQErrorReason, limit int) ([]models.OutboxDLQ, error) {
	s.called, s.lastReason, s.lastLimit = true, reason, limit
	return s.rows, s.err
}

func TestAdminDeadLettersFiltersByReason(t *testing.T) {
	msg := "topic missing"
	dlq := &stubDeadLetters{rows: []models.OutboxDLQ{{
		EventID:      uuid.New(),
		EventType:    enums.EventOrderPaid,
		AggregateID:  uuid.New(),
		ErrorReason:  enums.DeadLetterUnroutable,
		ErrorMessage: &msg,
		AttemptCount: 3,
		FailedAt:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}}}

	resp := httptest.NewRecorder()
	AdminDeadLetters(dlq, nil).ServeHTTP(resp, adminRequest(http.MethodGet, "/api/admin/outbox/dead-letters?reason=unroutable&limit=5", "", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, enums.DeadLetterUnroutable, dlq.lastReason)
	assert.Equal(t, 5, dlq.lastLimit)

	var body struct {
		Data []struct {
			Reason     string `json:"reason"`
			Message    string `json:"message"`
			Replayable bool   `json:"replayable"`
			Attempts   int    `json:"attempts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "unroutable", body.Data[0].Reason)
	assert.Equal(t, "topic missing", body.Data[0].Message)
	assert.True(t, body.Data[0].Replayable)
	assert.Equal(t, 3, body.Data[0].Attempts)
}

func TestAdminDeadLettersRejectsUnknownReason(t *testing.T) {
	dlq := &stubDeadLetters{}

	resp := httptest.NewRecorder()
	AdminDeadLetters(dlq, nil).ServeHTTP(resp, adminRequest(http.MethodGet, "/api/admin/outbox/dead-letters?reason=lost", "", nil))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.False(t, dlq.called)
}

func TestAdminDeadLettersHidesStoreFailure(t *testing.T) {
	dlq := &stubDeadLetters{err: errors.New("connection refused")}

	resp := httptest.NewRecorder()
	AdminDeadLetters(dlq, nil).ServeHTTP(resp, adminRequest(http.MethodGet, "/api/admin/outbox/dead-letters", "", nil))

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.NotContains(t, resp.Body.String(), "connection refused")
	assert.Zero(t, dlq.lastReason)
	assert.Equal(t, 50, dlq.lastLimit)
}
