package billing

import "time"

// Transaction types. Lifecycle types (subscription_*) are zero-amount
// activity records; charge/refund/payout_fee carry money.
const (
	TypeCharge                = "charge"
	TypeRefund                = "refund"
	TypePayoutFee             = "payout_fee"
	TypeSubscriptionCreated   = "subscription_created"
	TypeSubscriptionCancelled = "subscription_cancelled"
	TypeSubscriptionPaused    = "subscription_paused"
)

// Transaction records financial and lifecycle activity for a tenant.
// Exactly one subscription_created row exists per local Subscription row,
// which is what lets the activity feed offer a distinct refund target per
// plan even when several plans share one external subscription.
type Transaction struct {
	ID             uint  `gorm:"primaryKey" json:"id"`
	TenantID       uint  `gorm:"not null;index:idx_transactions_tenant" json:"tenant_id"`
	ConsumerID     uint  `gorm:"not null;index:idx_transactions_consumer" json:"consumer_id"`
	SubscriptionID *uint `gorm:"index:idx_transactions_subscription" json:"subscription_id,omitempty"`

	AmountCents int64  `gorm:"not null" json:"amount_cents"`
	Currency    string `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Type        string `gorm:"type:varchar(30);not null;index" json:"type"`
	Description string `gorm:"type:text" json:"description"`

	// Stripe charge / payment intent / refund reference. Unique when
	// present so webhook replays cannot double-record money movement.
	StripeReference *string `gorm:"column:stripe_reference;uniqueIndex:idx_transactions_stripe_reference" json:"stripe_reference,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
