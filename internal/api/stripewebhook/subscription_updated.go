package stripewebhooks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v75"
	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/internal/events"
	"github.com/danimalnelson/membership-saas-sub000/internal/infra/stripeapi"
	"github.com/danimalnelson/membership-saas-sub000/internal/syncer"
)

// handleSubscriptionUpdated applies the reported state to every local row
// sharing the external subscription identifier.
func (h *Handler) handleSubscriptionUpdated(tx *gorm.DB, event *stripe.Event, pending *syncer.Result) error {
	state, err := h.subscriptionState(tx, event)
	if err != nil {
		return err
	}

	res, err := h.syncer.ApplyState(tx, state)
	if err != nil {
		return err
	}
	pending.Notifications = append(pending.Notifications, res.Notifications...)
	return nil
}

// handleSubscriptionDeleted cancels the whole local row set; rows are kept
// for the activity feed and refund targeting.
func (h *Handler) handleSubscriptionDeleted(tx *gorm.DB, event *stripe.Event, pending *syncer.Result) error {
	state, err := h.subscriptionState(tx, event)
	if err != nil {
		return err
	}

	res, err := h.syncer.Cancel(tx, state)
	if err != nil {
		return err
	}
	pending.Notifications = append(pending.Notifications, res.Notifications...)
	return nil
}

func (h *Handler) subscriptionState(tx *gorm.DB, event *stripe.Event) (syncer.SubscriptionState, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return syncer.SubscriptionState{}, events.Permanent(fmt.Errorf("decode subscription payload: %w", err))
	}

	state := syncer.SubscriptionState{
		StripeSubscriptionID: sub.ID,
		Status:               stripeapi.NormalizeSubscriptionStatus(&sub),
		CurrentPeriodStart:   time.Unix(sub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:     time.Unix(sub.CurrentPeriodEnd, 0),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		EventTime:            time.Unix(event.Created, 0),
	}

	// pause_collection presence is the pause signal; whether the tenant or
	// the processor's own dunning initiated it is not distinguishable here.
	if sub.PauseCollection != nil && sub.PauseCollection.Behavior != "" {
		state.PausedAt = syncer.PauseTimestamp(nil)
	}

	tenant, err := h.tenantForEvent(tx, event)
	if err != nil {
		return state, err
	}
	if tenant != nil {
		state.TenantID = tenant.ID
	}
	return state, nil
}
