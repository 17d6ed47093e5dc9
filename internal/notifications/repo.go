package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/retroquest/storefront-backend/pkg/db/models"
	"github.com/retroquest/storefront-backend/pkg/pagination"
)

// Repository is the notification inbox store.
type Repository interface {
	Create(ctx context.Context, notification *models.Notification) (bool, error)
	Page(ctx context.Context, q inboxQuery) (inboxPage, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (readOutcome, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
}

type inboxQuery struct {
	UserID     uuid.UUID
	Limit      int
	After      *pagination.Cursor
	UnreadOnly bool
}

type inboxPage struct {
	Items []models.Notification
	Next  *pagination.Cursor
}

type readOutcome int

const (
	readMissing readOutcome = iota
	readAlready
	readMarked
)

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) inbox(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
}

// Create is a no-op when a notification for the same event already exists;
// the boolean reports whether a row was written.
func (r *gormRepository) Create(ctx context.Context, notification *models.Notification) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(notification)
	return res.RowsAffected > 0, res.Error
}

// Page returns the newest notifications first, keyset-paginated on (created_at, id).
func (r *gormRepository) Page(ctx context.Context, q inboxQuery) (inboxPage, error) {
	size := pagination.NormalizeLimit(q.Limit)
	query := r.inbox(ctx, q.UserID)
	if q.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if after := q.After; after != nil {
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}

	var rows []models.Notification
	if err := query.Order("created_at DESC").Order("id DESC").Limit(pagination.LimitWithBuffer(size)).Find(&rows).Error; err != nil {
		return inboxPage{}, err
	}
	page := inboxPage{Items: rows}
	if len(rows) > size {
		page.Items = rows[:size]
		last := page.Items[size-1]
		page.Next = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return page, nil
}

func (r *gormRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.inbox(ctx, userID).Where("read_at IS NULL").Count(&n).Error
	return n, err
}

// MarkRead stamps read_at once; a second call reports readAlready and keeps
// the first timestamp.
func (r *gormRepository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (readOutcome, error) {
	var row models.Notification
	err := r.inbox(ctx, userID).Where("id = ?", notificationID).Select("id", "read_at").Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return readMissing, nil
	}
	if err != nil {
		return readMissing, err
	}
	if row.ReadAt != nil {
		return readAlready, nil
	}
	res := r.inbox(ctx, userID).Where("id = ? AND read_at IS NULL", notificationID).UpdateColumn("read_at", now)
	if res.Error != nil {
		return readMissing, res.Error
	}
	if res.RowsAffected == 0 {
		return readAlready, nil
	}
	return readMarked, nil
}

func (r *gormRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	res := r.inbox(ctx, userID).Where("read_at IS NULL").UpdateColumn("read_at", now)
	return res.RowsAffected, res.Error
}
