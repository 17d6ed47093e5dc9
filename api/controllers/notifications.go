package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/retroquest/storefront-backend/api/middleware"
	"github.com/retroquest/storefront-backend/api/responses"
	"github.com/retroquest/storefront-backend/api/validators"
	"github.com/retroquest/storefront-backend/internal/notifications"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/logger"
)

// inboxHandler resolves the calling user before handing off to fn. Every
// inbox route is scoped to the caller, so nothing here takes a user id.
func inboxHandler(svc notifications.Service, logg *logger.Logger, fn func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := fn(w, r, actor.UserID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
		}
	}
}

// NotificationsList pages through the caller's inbox. ?unread=true narrows
// it to unread entries; the unread total is reported either way.
func NotificationsList(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inboxHandler(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		page, err := validators.ParsePageParams(r)
		if err != nil {
			return err
		}
		unreadOnly, err := validators.ParseQueryBool(r, "unread")
		if err != nil {
			return err
		}

		result, err := svc.List(r.Context(), notifications.ListParams{
			UserID:     userID,
			Limit:      page.Limit,
			Cursor:     page.Cursor,
			UnreadOnly: unreadOnly,
		})
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, result)
		return nil
	})
}

func NotificationMarkRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inboxHandler(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		notificationID, err := validators.ParseUUIDParam(r, "notificationId")
		if err != nil {
			return err
		}
		if err := svc.MarkRead(r.Context(), userID, notificationID); err != nil {
			return err
		}
		responses.WriteSuccess(w, map[string]any{"read": true})
		return nil
	})
}

func NotificationsMarkAllRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inboxHandler(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		count, err := svc.MarkAllRead(r.Context(), userID)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, map[string]any{"updated": count})
		return nil
	})
}
