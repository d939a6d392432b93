package memberships

import "time"

// Billing anchor policy for a membership: new subscriptions either start
// billing immediately or are anchored to the next interval boundary so the
// whole cohort renews together.
const (
	AnchorImmediate    = "immediate"
	AnchorNextInterval = "next_interval"
)

// Membership groups the plans a tenant sells under one billing policy.
// Whether a consumer may hold two plans at once is decided here, not on the
// individual plan.
type Membership struct {
	ID                 uint   `gorm:"primaryKey" json:"id"`
	TenantID           uint   `gorm:"not null;index:idx_memberships_tenant" json:"tenant_id"`
	Name               string `gorm:"not null" json:"name"`
	Interval           string `gorm:"type:varchar(10);not null" json:"interval"` // month | year
	BillingAnchor      string `gorm:"type:varchar(20);not null;default:'immediate'" json:"billing_anchor"`
	AllowMultiplePlans bool   `gorm:"not null;default:false" json:"allow_multiple_plans"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Plan struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	TenantID     uint   `gorm:"not null;index:idx_plans_tenant" json:"tenant_id"`
	MembershipID uint   `gorm:"not null;index:idx_plans_membership" json:"membership_id"`
	Name         string `gorm:"not null" json:"name"`

	// Minor currency units, matching what Stripe reports.
	PriceCents int64  `gorm:"not null" json:"price_cents"`
	Currency   string `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Interval   string `gorm:"type:varchar(10);not null" json:"interval"`

	MaxSubscribers *int `gorm:"column:max_subscribers" json:"max_subscribers,omitempty"`

	// Immutable once any subscription references it; price changes mint a
	// new Stripe price and archive this one (see PlanPriceHistory).
	StripePriceID   string `gorm:"column:stripe_price_id;not null;uniqueIndex:idx_plans_stripe_price_id" json:"stripe_price_id"`
	StripeProductID string `gorm:"column:stripe_product_id" json:"stripe_product_id"`

	Archived bool `gorm:"not null;default:false" json:"archived"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlanPriceHistory is the append-only record of every Stripe price a plan
// has carried.
type PlanPriceHistory struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	PlanID        uint      `gorm:"not null;index:idx_plan_price_history_plan" json:"plan_id"`
	StripePriceID string    `gorm:"column:stripe_price_id;not null" json:"stripe_price_id"`
	PriceCents    int64     `gorm:"not null" json:"price_cents"`
	Currency      string    `gorm:"type:varchar(3);not null" json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
}
