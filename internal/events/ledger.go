package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ProcessedEvent is one row of the idempotency ledger: an external event
// identifier whose side effects have been fully applied.
type ProcessedEvent struct {
	ID          uint      `gorm:"primaryKey"`
	EventID     string    `gorm:"column:event_id;not null;uniqueIndex:idx_processed_events_event_id"`
	EventType   string    `gorm:"type:varchar(100);not null;index"`
	ProcessedAt time.Time `gorm:"not null"`
}

// Ledger provides exactly-once-effect execution for at-least-once-delivered
// events. The dedupe check, the handler's mutations, and the ledger insert
// all run in one database transaction.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// RunOnce executes fn at most once per eventID. If the event was already
// processed it returns ErrAlreadyProcessed without calling fn. If fn fails,
// nothing is recorded and the whole transaction rolls back, so the source's
// redelivery will retry from scratch.
func (l *Ledger) RunOnce(ctx context.Context, eventID, eventType string, fn func(tx *gorm.DB) error) error {
	if eventID == "" {
		return Permanent(errors.New("event has no identifier"))
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ProcessedEvent
		err := tx.Where("event_id = ?", eventID).First(&existing).Error
		if err == nil {
			return ErrAlreadyProcessed
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("ledger lookup for %s: %w", eventID, err)
		}

		if err := fn(tx); err != nil {
			return err
		}

		rec := ProcessedEvent{
			EventID:     eventID,
			EventType:   eventType,
			ProcessedAt: time.Now(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			// A concurrent delivery of the same event won the insert race;
			// its transaction carries the side effects, ours rolls back.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyProcessed
			}
			return fmt.Errorf("record processed event %s: %w", eventID, err)
		}
		return nil
	})

	return err
}

// Seen reports whether an event identifier is already in the ledger.
func (l *Ledger) Seen(ctx context.Context, eventID string) (bool, error) {
	var count int64
	if err := l.db.WithContext(ctx).Model(&ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
