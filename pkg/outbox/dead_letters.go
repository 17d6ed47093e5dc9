package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/retroquest/storefront-backend/pkg/db/models"
	"github.com/retroquest/storefront-backend/pkg/enums"
)

const defaultDeadLetterPage = 50

// DLQRepository parks order events the publisher stopped retrying.
type DLQRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db, now: time.Now}
}

// DeadLetter copies event into outbox_dlq inside tx. A second dead letter
// for the same event id is ignored so a replayed batch cannot duplicate it.
func (r *DLQRepository) DeadLetter(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !reason.IsValid() {
		return errors.New("invalid dead letter reason: " + reason.String())
	}
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		AttemptCount:  event.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	if cause != nil {
		msg := truncate(cause.Error())
		entry.ErrorMessage = &msg
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&entry).Error
}

func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByReason returns the newest dead letters, optionally narrowed to one reason.
func (r *DLQRepository) ListByReason(ctx context.Context, reason enums.OutboxDLQErrorReason, limit int) ([]models.OutboxDLQ, error) {
	if limit <= 0 {
		limit = defaultDeadLetterPage
	}
	query := r.db.WithContext(ctx).Order("failed_at DESC").Limit(limit)
	if reason != "" {
		query = query.Where("error_reason = ?", reason)
	}
	var rows []models.OutboxDLQ
	return rows, query.Find(&rows).Error
}

// PurgeBefore drops dead letters that failed before cutoff.
func (r *DLQRepository) PurgeBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}
