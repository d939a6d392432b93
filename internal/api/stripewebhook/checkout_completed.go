package stripewebhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v75"
	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/internal/events"
	"github.com/danimalnelson/membership-saas-sub000/internal/infra/stripeapi"
	"github.com/danimalnelson/membership-saas-sub000/internal/syncer"
)

// handleCheckoutCompleted runs the fan-out create path: one local
// Subscription row per plan id encoded in the session metadata.
func (h *Handler) handleCheckoutCompleted(ctx context.Context, tx *gorm.DB, event *stripe.Event, pending *syncer.Result) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return events.Permanent(fmt.Errorf("decode checkout session payload: %w", err))
	}

	tenant, err := h.tenantForEvent(tx, event)
	if err != nil {
		return err
	}
	if tenant == nil {
		return events.Permanent(fmt.Errorf("checkout for unknown connected account %s", event.Account))
	}

	if session.Subscription == nil || session.Subscription.ID == "" {
		return events.Permanent(errors.New("checkout session missing subscription"))
	}

	// Enrich from the processor: the webhook payload does not carry the
	// subscription's period fields.
	subData, err := h.sc.GetSubscription(session.Subscription.ID, event.Account)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", session.Subscription.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	planIDs, err := planIDsFromMetadata(session.Metadata)
	if err != nil {
		return events.Permanent(err)
	}

	data := syncer.CheckoutData{
		TenantID:             tenant.ID,
		SessionID:            session.ID,
		StripeSubscriptionID: subData.ID,
		PlanIDs:              planIDs,
		Status:               stripeapi.NormalizeSubscriptionStatus(subData),
		CurrentPeriodStart:   time.Unix(subData.CurrentPeriodStart, 0),
		CurrentPeriodEnd:     time.Unix(subData.CurrentPeriodEnd, 0),
		EventTime:            time.Unix(event.Created, 0),
	}
	if session.Customer != nil {
		data.StripeCustomerID = session.Customer.ID
	}
	if session.CustomerDetails != nil {
		data.CustomerEmail = session.CustomerDetails.Email
		data.CustomerName = session.CustomerDetails.Name
		data.CustomerPhone = session.CustomerDetails.Phone
	}

	res, err := h.syncer.CreateFromCheckout(tx, data)
	if err != nil {
		return err
	}
	pending.Notifications = append(pending.Notifications, res.Notifications...)
	return nil
}

// planIDsFromMetadata parses the comma-separated plan id list our checkout
// endpoint stamps on the session.
func planIDsFromMetadata(md map[string]string) ([]uint, error) {
	if md == nil || strings.TrimSpace(md["plan_ids"]) == "" {
		return nil, errors.New("checkout metadata missing plan_ids")
	}
	parts := strings.Split(md["plan_ids"], ",")
	ids := make([]uint, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed plan id %q in checkout metadata", part)
		}
		ids = append(ids, uint(id))
	}
	if len(ids) == 0 {
		return nil, errors.New("checkout metadata missing plan_ids")
	}
	return ids, nil
}
