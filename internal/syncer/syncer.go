package syncer

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/internal/domain/billing"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/consumers"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/memberships"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/subscriptions"
	"github.com/danimalnelson/membership-saas-sub000/internal/events"
)

// Synchronizer translates processor-side subscription lifecycle events into
// the local one-row-per-plan model. One external subscription object fans
// out to N local rows; every pass must leave the whole set consistent.
type Synchronizer struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Synchronizer {
	return &Synchronizer{log: log}
}

// CheckoutData is the typed view of a completed checkout the dispatcher
// hands to the create path.
type CheckoutData struct {
	TenantID             uint
	SessionID            string
	StripeSubscriptionID string
	StripeCustomerID     string
	CustomerEmail        string
	CustomerName         string
	CustomerPhone        string
	PlanIDs              []uint
	Status               string
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	EventTime            time.Time
}

// SubscriptionState is the typed view of a subscription update or deletion.
type SubscriptionState struct {
	TenantID             uint
	StripeSubscriptionID string
	Status               string
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	CancelAtPeriodEnd    bool
	PausedAt             *time.Time
	EventTime            time.Time
}

// Notification is a pending fire-and-forget message the caller dispatches
// after the enclosing transaction commits.
type Notification struct {
	Kind        string // started | paused | cancelled | payment_failed
	Email       string
	PlanName    string
	AmountCents int64
	Currency    string
}

// Result reports what a sync pass changed.
type Result struct {
	CreatedRows   int
	UpdatedRows   int
	Notifications []Notification
}

// CreateFromCheckout runs the fan-out create path: resolve-or-create the
// consumer by email, then one Subscription row plus one subscription_created
// Transaction per plan. The whole fan-out shares the caller's transaction,
// so an unresolvable plan rolls back everything.
func (s *Synchronizer) CreateFromCheckout(tx *gorm.DB, data CheckoutData) (Result, error) {
	var res Result

	if data.StripeSubscriptionID == "" {
		return res, events.Permanent(errors.New("checkout session has no subscription"))
	}
	if len(data.PlanIDs) == 0 {
		return res, events.Permanent(errors.New("checkout metadata carries no plan ids"))
	}
	if data.CustomerEmail == "" {
		return res, events.Permanent(errors.New("checkout has no customer email"))
	}

	consumer, err := s.resolveConsumer(tx, data)
	if err != nil {
		return res, err
	}

	for _, planID := range data.PlanIDs {
		var plan memberships.Plan
		if err := tx.Where("id = ? AND tenant_id = ?", planID, data.TenantID).First(&plan).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Partial fan-out is a correctness violation: fail the whole
				// pass so nothing from this checkout is committed.
				return res, events.Permanent(fmt.Errorf("plan %d not found for tenant %d", planID, data.TenantID))
			}
			return res, fmt.Errorf("load plan %d: %w", planID, err)
		}

		var existing subscriptions.Subscription
		err := tx.Where("consumer_id = ? AND plan_id = ? AND stripe_subscription_id = ?",
			consumer.ID, plan.ID, data.StripeSubscriptionID).First(&existing).Error
		if err == nil {
			// Replayed delivery; row already exists.
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return res, fmt.Errorf("check existing subscription: %w", err)
		}

		sub := subscriptions.Subscription{
			TenantID:             data.TenantID,
			PlanID:               plan.ID,
			ConsumerID:           consumer.ID,
			StripeSubscriptionID: data.StripeSubscriptionID,
			Status:               data.Status,
			CurrentPeriodStart:   data.CurrentPeriodStart,
			CurrentPeriodEnd:     data.CurrentPeriodEnd,
			LastSyncedAt:         s.syncTime(data.EventTime),
		}
		if err := tx.Create(&sub).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Concurrent delivery created it first.
				continue
			}
			return res, fmt.Errorf("create subscription for plan %d: %w", plan.ID, err)
		}

		txn := billing.Transaction{
			TenantID:       data.TenantID,
			ConsumerID:     consumer.ID,
			SubscriptionID: &sub.ID,
			AmountCents:    0,
			Currency:       plan.Currency,
			Type:           billing.TypeSubscriptionCreated,
			Description:    fmt.Sprintf("Subscribed to %s", plan.Name),
		}
		if err := tx.Create(&txn).Error; err != nil {
			return res, fmt.Errorf("record subscription_created for plan %d: %w", plan.ID, err)
		}

		res.CreatedRows++
		res.Notifications = append(res.Notifications, Notification{
			Kind:     "started",
			Email:    consumer.Email,
			PlanName: plan.Name,
		})
	}

	return res, nil
}

// resolveConsumer looks up the consumer by email and creates it if missing.
// Two deliveries racing on a new email both reach the create; the loser hits
// the unique index and re-fetches the winner's row.
func (s *Synchronizer) resolveConsumer(tx *gorm.DB, data CheckoutData) (*consumers.Consumer, error) {
	var consumer consumers.Consumer
	err := tx.Where("email = ?", data.CustomerEmail).First(&consumer).Error
	if err == nil {
		return &consumer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("look up consumer %s: %w", data.CustomerEmail, err)
	}

	consumer = consumers.Consumer{
		Email: data.CustomerEmail,
		Name:  data.CustomerName,
		Phone: data.CustomerPhone,
	}
	if data.StripeCustomerID != "" {
		consumer.StripeCustomerID = &data.StripeCustomerID
	}
	if err := tx.Create(&consumer).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if err := tx.Where("email = ?", data.CustomerEmail).First(&consumer).Error; err != nil {
				return nil, fmt.Errorf("re-fetch consumer after conflict: %w", err)
			}
			return &consumer, nil
		}
		return nil, fmt.Errorf("create consumer %s: %w", data.CustomerEmail, err)
	}
	return &consumer, nil
}

// ApplyState runs the update/cancel fan-out: every local row sharing the
// external identifier gets the same status, period, cancel flag and pause
// state in one statement. An unknown external identifier is a no-op so an
// "updated" that outran its "created" does not error; the rows appear on
// redelivery. A state older than last_synced_at is skipped so a stale
// delivery cannot regress a newer status.
func (s *Synchronizer) ApplyState(tx *gorm.DB, state SubscriptionState) (Result, error) {
	var res Result

	if state.StripeSubscriptionID == "" {
		return res, events.Permanent(errors.New("subscription event has no identifier"))
	}

	var rows []subscriptions.Subscription
	q := tx.Where("stripe_subscription_id = ?", state.StripeSubscriptionID)
	if state.TenantID != 0 {
		q = q.Where("tenant_id = ?", state.TenantID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return res, fmt.Errorf("load rows for %s: %w", state.StripeSubscriptionID, err)
	}
	if len(rows) == 0 {
		s.log.Info().
			Str("stripe_subscription_id", state.StripeSubscriptionID).
			Msg("subscription event references unknown external id, skipping")
		return res, nil
	}

	if !state.EventTime.IsZero() && state.EventTime.Before(rows[0].LastSyncedAt) {
		s.log.Info().
			Str("stripe_subscription_id", state.StripeSubscriptionID).
			Time("event_time", state.EventTime).
			Time("last_synced_at", rows[0].LastSyncedAt).
			Msg("stale subscription event, skipping")
		return res, nil
	}

	prevStatus := rows[0].Status
	updates := map[string]interface{}{
		"status":               state.Status,
		"current_period_start": state.CurrentPeriodStart,
		"current_period_end":   state.CurrentPeriodEnd,
		"cancel_at_period_end": state.CancelAtPeriodEnd,
		"paused_at":            state.PausedAt,
		"last_synced_at":       s.syncTime(state.EventTime),
	}
	if err := tx.Model(&subscriptions.Subscription{}).
		Where("stripe_subscription_id = ?", state.StripeSubscriptionID).
		Updates(updates).Error; err != nil {
		return res, fmt.Errorf("update rows for %s: %w", state.StripeSubscriptionID, err)
	}
	res.UpdatedRows = len(rows)

	// Lifecycle activity records and notifications, once per row, only on an
	// actual status change so replays stay silent.
	if prevStatus != state.Status {
		var lifecycle string
		var kind string
		switch state.Status {
		case subscriptions.StatusCanceled:
			lifecycle, kind = billing.TypeSubscriptionCancelled, "cancelled"
		case subscriptions.StatusPaused:
			lifecycle, kind = billing.TypeSubscriptionPaused, "paused"
		}
		if lifecycle != "" {
			for i := range rows {
				row := rows[i]
				var plan memberships.Plan
				if err := tx.Where("id = ?", row.PlanID).First(&plan).Error; err != nil {
					return res, fmt.Errorf("load plan %d: %w", row.PlanID, err)
				}
				var consumer consumers.Consumer
				if err := tx.Where("id = ?", row.ConsumerID).First(&consumer).Error; err != nil {
					return res, fmt.Errorf("load consumer %d: %w", row.ConsumerID, err)
				}

				txn := billing.Transaction{
					TenantID:       row.TenantID,
					ConsumerID:     row.ConsumerID,
					SubscriptionID: &row.ID,
					Currency:       plan.Currency,
					Type:           lifecycle,
					Description:    fmt.Sprintf("%s: %s", lifecycle, plan.Name),
				}
				if err := tx.Create(&txn).Error; err != nil {
					return res, fmt.Errorf("record %s for subscription %d: %w", lifecycle, row.ID, err)
				}
				res.Notifications = append(res.Notifications, Notification{
					Kind:     kind,
					Email:    consumer.Email,
					PlanName: plan.Name,
				})
			}
		}
	}

	return res, nil
}

// Cancel marks every row for the external identifier canceled with
// cancel-at-period-end set; rows are kept for the activity feed and refund
// targeting.
func (s *Synchronizer) Cancel(tx *gorm.DB, state SubscriptionState) (Result, error) {
	state.Status = subscriptions.StatusCanceled
	state.CancelAtPeriodEnd = true
	return s.ApplyState(tx, state)
}

func (s *Synchronizer) syncTime(eventTime time.Time) time.Time {
	if eventTime.IsZero() {
		return time.Now()
	}
	return eventTime
}
