package stripewebhooks

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v75"
	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/internal/events"
	"github.com/danimalnelson/membership-saas-sub000/internal/syncer"
)

// handleInvoicePaid appends a charge record for the billing period,
// idempotent on the payment reference.
func (h *Handler) handleInvoicePaid(tx *gorm.DB, event *stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return events.Permanent(fmt.Errorf("decode invoice payload: %w", err))
	}
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		// One-off invoices are out of scope.
		return nil
	}

	tenant, err := h.tenantForEvent(tx, event)
	if err != nil {
		return err
	}
	if tenant == nil {
		h.log.Info().
			Str("event_id", event.ID).
			Msg("invoice.paid for unknown tenant, ignoring")
		return nil
	}

	ref := inv.ID
	if inv.PaymentIntent != nil && inv.PaymentIntent.ID != "" {
		ref = inv.PaymentIntent.ID
	}

	return h.syncer.RecordCharge(tx, syncer.ChargeData{
		TenantID:             tenant.ID,
		StripeSubscriptionID: inv.Subscription.ID,
		StripeReference:      ref,
		AmountCents:          inv.AmountPaid,
		Currency:             string(inv.Currency),
		Description:          "Subscription payment",
	})
}

// handleInvoicePaymentFailed queues a payment-failed notification. No local
// status change happens here; the subscription's own updated event carries
// the past_due transition.
func (h *Handler) handleInvoicePaymentFailed(tx *gorm.DB, event *stripe.Event, pending *syncer.Result) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return events.Permanent(fmt.Errorf("decode invoice payload: %w", err))
	}
	if inv.CustomerEmail == "" {
		return nil
	}

	pending.Notifications = append(pending.Notifications, syncer.Notification{
		Kind:        "payment_failed",
		Email:       inv.CustomerEmail,
		AmountCents: inv.AmountDue,
		Currency:    string(inv.Currency),
	})
	return nil
}

// handleChargeRefunded appends a refund record, idempotent on the refund
// reference. Refunds issued through the dashboard land here too, where the
// unique reference keeps them single-counted.
func (h *Handler) handleChargeRefunded(tx *gorm.DB, event *stripe.Event) error {
	var ch stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
		return events.Permanent(fmt.Errorf("decode charge payload: %w", err))
	}

	tenant, err := h.tenantForEvent(tx, event)
	if err != nil {
		return err
	}
	if tenant == nil {
		return nil
	}

	chargeRef := ch.ID
	if ch.PaymentIntent != nil && ch.PaymentIntent.ID != "" {
		chargeRef = ch.PaymentIntent.ID
	}

	refundID := ""
	if ch.Refunds != nil && len(ch.Refunds.Data) > 0 {
		refundID = ch.Refunds.Data[0].ID
	}
	if refundID == "" {
		return nil
	}

	return h.syncer.RecordRefund(tx, syncer.RefundData{
		TenantID:        tenant.ID,
		StripeReference: refundID,
		ChargeReference: chargeRef,
		AmountCents:     ch.AmountRefunded,
		Currency:        string(ch.Currency),
		Description:     "Refund",
	})
}
