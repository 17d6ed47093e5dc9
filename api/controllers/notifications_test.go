package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retroquest/storefront-backend/internal/notifications"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
)

type recordingInbox struct {
	err error

	lastList notifications.ListParams
	lastUser uuid.UUID
	lastRead uuid.UUID
}

func (s *recordingInbox) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	s.lastList = params
	return &notifications.ListResult{Unread: 2}, s.err
}

func (s *recordingInbox) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	s.lastUser, s.lastRead = userID, notificationID
	return s.err
}

func (s *recordingInbox) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	s.lastUser = userID
	return 4, s.err
}

func TestNotificationsListScopesToCaller(t *testing.T) {
	inbox := &recordingInbox{}

	resp := httptest.NewRecorder()
	NotificationsList(inbox, nil).ServeHTTP(resp, adminRequest(http.MethodGet, "/api/notifications?unread=1&limit=5&cursor=abc", "", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotEqual(t, uuid.Nil, inbox.lastList.UserID)
	assert.True(t, inbox.lastList.UnreadOnly)
	assert.Equal(t, 5, inbox.lastList.Limit)
	assert.Equal(t, "abc", inbox.lastList.Cursor)
	assert.Contains(t, resp.Body.String(), `"unread":2`)
}

func TestNotificationsListRejectsBadUnreadFlag(t *testing.T) {
	inbox := &recordingInbox{}

	resp := httptest.NewRecorder()
	NotificationsList(inbox, nil).ServeHTTP(resp, adminRequest(http.MethodGet, "/api/notifications?unread=maybe", "", nil))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, uuid.Nil, inbox.lastList.UserID)
}

func TestNotificationMarkReadSurfacesNotFound(t *testing.T) {
	id := uuid.New()
	inbox := &recordingInbox{err: pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")}

	resp := httptest.NewRecorder()
	req := adminRequest(http.MethodPut, "/api/notifications/"+id.String()+"/read", "", map[string]string{"notificationId": id.String()})
	NotificationMarkRead(inbox, nil).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, id, inbox.lastRead)
}

func TestNotificationsRequireCaller(t *testing.T) {
	inbox := &recordingInbox{}

	resp := httptest.NewRecorder()
	NotificationsMarkAllRead(inbox, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPut, "/api/notifications/read-all", nil))

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, uuid.Nil, inbox.lastUser)
}
