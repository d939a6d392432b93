package consumers

import "time"

// Consumer is a person subscribing to a tenant's plans. Email is the join
// key reported by checkout events, so it must be unique; concurrent webhook
// deliveries for a new consumer race on this index and the loser re-fetches.
type Consumer struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Email string `gorm:"not null;uniqueIndex:idx_consumers_email" json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`

	StripeCustomerID *string `gorm:"column:stripe_customer_id" json:"stripe_customer_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
