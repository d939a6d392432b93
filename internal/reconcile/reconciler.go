package reconcile

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/internal/domain/onboarding"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/tenants"
)

// Reconciler moves a tenant's onboarding status toward what the latest
// processor account snapshot says it should be. It is the only writer of
// Tenant.Status and the transition log.
type Reconciler struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Reconciler {
	return &Reconciler{log: log}
}

// Result reports what a reconcile pass did.
type Result struct {
	From    onboarding.Status
	To      onboarding.Status
	Applied bool
}

// Apply computes the status the snapshot implies, checks it against the
// transition table, and persists the tenant update plus an append-only log
// row inside tx. An invalid transition is logged and skipped, never an
// error: stale or out-of-order snapshots must not fail the enclosing
// webhook, and must not move the tenant backward.
func (r *Reconciler) Apply(tx *gorm.DB, tenant *tenants.Tenant, snap *onboarding.AccountSnapshot, reason string, eventID string) (Result, error) {
	from := tenant.OnboardingStatus()
	to := onboarding.DetermineStatus(from, snap)

	res := Result{From: from, To: to}
	if to == from {
		return res, nil
	}

	if !onboarding.IsValidTransition(from, to) {
		r.log.Warn().
			Uint("tenant_id", tenant.ID).
			Str("from", string(from)).
			Str("to", string(to)).
			Str("event_id", eventID).
			Msg("ignoring invalid onboarding transition")
		return res, nil
	}

	entry := tenants.StatusTransition{
		TenantID:   tenant.ID,
		FromStatus: string(from),
		ToStatus:   string(to),
		Reason:     reason,
	}
	if eventID != "" {
		entry.TriggeringEventID = &eventID
	}
	if snap != nil {
		if raw, err := json.Marshal(snap); err == nil {
			entry.Snapshot = raw
		}
	}

	if err := tx.Model(&tenants.Tenant{}).
		Where("id = ?", tenant.ID).
		Update("status", string(to)).Error; err != nil {
		return res, fmt.Errorf("update tenant %d status: %w", tenant.ID, err)
	}
	if err := tx.Create(&entry).Error; err != nil {
		return res, fmt.Errorf("append transition log for tenant %d: %w", tenant.ID, err)
	}

	tenant.Status = string(to)
	res.Applied = true

	r.log.Info().
		Uint("tenant_id", tenant.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("event_id", eventID).
		Msg("onboarding status transition applied")
	return res, nil
}

// Advance applies a manually initiated transition (signup details collected,
// account created, abandonment) that does not come from an account snapshot.
// Same transition-table guard, same append-only log.
func (r *Reconciler) Advance(tx *gorm.DB, tenant *tenants.Tenant, to onboarding.Status, reason string) (Result, error) {
	from := tenant.OnboardingStatus()
	res := Result{From: from, To: to}
	if to == from {
		return res, nil
	}
	if !onboarding.IsValidTransition(from, to) {
		r.log.Warn().
			Uint("tenant_id", tenant.ID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("ignoring invalid onboarding transition")
		return res, nil
	}

	entry := tenants.StatusTransition{
		TenantID:   tenant.ID,
		FromStatus: string(from),
		ToStatus:   string(to),
		Reason:     reason,
	}
	if err := tx.Model(&tenants.Tenant{}).
		Where("id = ?", tenant.ID).
		Update("status", string(to)).Error; err != nil {
		return res, fmt.Errorf("update tenant %d status: %w", tenant.ID, err)
	}
	if err := tx.Create(&entry).Error; err != nil {
		return res, fmt.Errorf("append transition log for tenant %d: %w", tenant.ID, err)
	}

	tenant.Status = string(to)
	res.Applied = true
	return res, nil
}
