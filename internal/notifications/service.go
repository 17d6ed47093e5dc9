package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/retroquest/storefront-backend/pkg/db/models"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/pagination"
)

// Service is the customer-facing inbox.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult is one inbox page. Unread counts the whole inbox, not the page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor,omitempty"`
	Unread int64                 `json:"unread"`
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, errors.New("notifications repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func requireUser(userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if err := requireUser(params.UserID); err != nil {
		return nil, err
	}
	q := inboxQuery{UserID: params.UserID, Limit: params.Limit, UnreadOnly: params.UnreadOnly}
	if params.Cursor != "" {
		after, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor").
				WithDetails(map[string]any{"field": "cursor"})
		}
		q.After = after
	}

	page, err := s.repo.Page(ctx, q)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransientStore, err, "list notifications")
	}
	unread, err := s.repo.CountUnread(ctx, params.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransientStore, err, "count unread notifications")
	}

	out := &ListResult{Items: page.Items, Unread: unread}
	if out.Items == nil {
		out.Items = []models.Notification{}
	}
	if page.Next != nil {
		out.Cursor = pagination.EncodeCursor(*page.Next)
	}
	return out, nil
}

// MarkRead is idempotent: marking an already read notification succeeds.
func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	outcome, err := s.repo.MarkRead(ctx, userID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeTransientStore, err, "mark notification read")
	}
	if outcome == readMissing {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}
	n, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeTransientStore, err, "mark notifications read")
	}
	return n, nil
}
