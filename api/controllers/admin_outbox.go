package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/retroquest/storefront-backend/api/responses"
	"github.com/retroquest/storefront-backend/api/validators"
	"github.com/retroquest/storefront-backend/pkg/db/models"
	"github.com/retroquest/storefront-backend/pkg/enums"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/logger"
)

const maxDeadLetterPage = 200

// DeadLetterLister reads parked outbox events.
type DeadLetterLister interface {
	ListByReason(ctx context.Context, reason enums.OutboxDLQErrorReason, limit int) ([]models.OutboxDLQ, error)
}

type deadLetterView struct {
	EventID    uuid.UUID                  `json:"event_id"`
	EventType  enums.OutboxEventType      `json:"event_type"`
	OrderID    uuid.UUID                  `json:"order_id"`
	Reason     enums.OutboxDLQErrorReason `json:"reason"`
	Message    string                     `json:"message,omitempty"`
	Attempts   int                        `json:"attempts"`
	Replayable bool                       `json:"replayable"`
	FailedAt   time.Time                  `json:"failed_at"`
}

// AdminDeadLetters lists the newest dead-lettered order events, optionally
// narrowed with ?reason=.
func AdminDeadLetters(dlq DeadLetterLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dlq == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter store unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, maxDeadLetterPage)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var reason enums.OutboxDLQErrorReason
		if raw := strings.TrimSpace(r.URL.Query().Get("reason")); raw != "" {
			if reason, err = enums.ParseDeadLetterReason(raw); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason filter").
					WithDetails(map[string]any{"field": "reason"}))
				return
			}
		}

		rows, err := dlq.ListByReason(r.Context(), reason, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list dead letters"))
			return
		}

		views := make([]deadLetterView, 0, len(rows))
		for _, row := range rows {
			view := deadLetterView{
				EventID:    row.EventID,
				EventType:  row.EventType,
				OrderID:    row.AggregateID,
				Reason:     row.ErrorReason,
				Attempts:   row.AttemptCount,
				Replayable: row.ErrorReason.Replayable(),
				FailedAt:   row.FailedAt,
			}
			if row.ErrorMessage != nil {
				view.Message = *row.ErrorMessage
			}
			views = append(views, view)
		}
		responses.WriteSuccess(w, views)
	}
}
