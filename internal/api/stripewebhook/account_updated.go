package stripewebhooks

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v75"
	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/internal/events"
	"github.com/danimalnelson/membership-saas-sub000/internal/infra/stripeapi"
)

// handleAccountUpdated feeds the latest connected-account snapshot to the
// onboarding reconciler.
func (h *Handler) handleAccountUpdated(tx *gorm.DB, event *stripe.Event) error {
	var acct stripe.Account
	if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
		return events.Permanent(fmt.Errorf("decode account payload: %w", err))
	}

	tenant, err := h.tenantForEvent(tx, event)
	if err != nil {
		return err
	}
	if tenant == nil {
		// Accounts we did not provision; nothing to reconcile.
		h.log.Info().
			Str("stripe_account_id", event.Account).
			Str("event_id", event.ID).
			Msg("account.updated for unknown tenant, ignoring")
		return nil
	}

	snap := stripeapi.SnapshotFromAccount(&acct)
	_, err = h.reconciler.Apply(tx, tenant, snap, "processor account snapshot changed", event.ID)
	return err
}
