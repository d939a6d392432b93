package subscriptions

import "time"

// Mirrored Stripe subscription statuses.
const (
	StatusActive     = "active"
	StatusTrialing   = "trialing"
	StatusPastDue    = "past_due"
	StatusCanceled   = "canceled"
	StatusPaused     = "paused"
	StatusUnpaid     = "unpaid"
	StatusIncomplete = "incomplete"
)

// Subscription is one local row per purchased Plan. A multi-plan checkout
// produces several rows sharing the same StripeSubscriptionID; every sync
// pass must leave the whole set with identical status/period fields.
type Subscription struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	TenantID   uint `gorm:"not null;index:idx_subscriptions_tenant" json:"tenant_id"`
	PlanID     uint `gorm:"not null;uniqueIndex:idx_subscriptions_consumer_plan_sub,priority:2" json:"plan_id"`
	ConsumerID uint `gorm:"not null;uniqueIndex:idx_subscriptions_consumer_plan_sub,priority:1" json:"consumer_id"`

	StripeSubscriptionID string `gorm:"column:stripe_subscription_id;not null;index:idx_subscriptions_stripe_sub;uniqueIndex:idx_subscriptions_consumer_plan_sub,priority:3" json:"stripe_subscription_id"`

	Status             string     `gorm:"type:varchar(20);not null" json:"status"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	CancelAtPeriodEnd  bool       `gorm:"not null;default:false" json:"cancel_at_period_end"`
	PausedAt           *time.Time `json:"paused_at,omitempty"`
	LastSyncedAt       time.Time  `json:"last_synced_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
