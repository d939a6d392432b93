package tenants

import (
	"time"

	"gorm.io/datatypes"

	"github.com/danimalnelson/membership-saas-sub000/internal/domain/onboarding"
)

type Tenant struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	Name   string `gorm:"not null" json:"name"`
	Slug   string `gorm:"not null;uniqueIndex:idx_tenants_slug" json:"slug"`
	Email  string `gorm:"not null" json:"email"`
	Status string `gorm:"type:varchar(40);not null;default:'CREATED'" json:"status"`

	StripeAccountID *string `gorm:"column:stripe_account_id;uniqueIndex:idx_tenants_stripe_account_id" json:"stripe_account_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Tenant) OnboardingStatus() onboarding.Status {
	return onboarding.Status(t.Status)
}

// StatusTransition is one entry of a tenant's append-only transition log.
// Rows are only ever inserted, never updated or deleted.
type StatusTransition struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	TenantID          uint           `gorm:"not null;index:idx_status_transitions_tenant" json:"tenant_id"`
	FromStatus        string         `gorm:"type:varchar(40);not null" json:"from_status"`
	ToStatus          string         `gorm:"type:varchar(40);not null" json:"to_status"`
	Reason            string         `gorm:"type:text;not null" json:"reason"`
	TriggeringEventID *string        `gorm:"type:varchar(191)" json:"triggering_event_id,omitempty"`
	Snapshot          datatypes.JSON `gorm:"type:jsonb" json:"snapshot,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}
