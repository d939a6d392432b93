package subscriptionsapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v75"
	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/internal/domain/billing"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/subscriptions"
	"github.com/danimalnelson/membership-saas-sub000/internal/infra/stripeapi"
	"github.com/danimalnelson/membership-saas-sub000/internal/notify"
	"github.com/danimalnelson/membership-saas-sub000/internal/syncer"
)

// Handler serves the dashboard's imperative subscription commands. Each
// command performs the processor call first, then routes the returned object
// through the same synchronizer the webhook path uses, so the confirming
// webhook arrives as a harmless replay instead of racing the UI update.
type Handler struct {
	db       *gorm.DB
	sc       *stripeapi.Client
	syncer   *syncer.Synchronizer
	notifier notify.Notifier
	log      zerolog.Logger
}

func NewHandler(db *gorm.DB, sc *stripeapi.Client, sync *syncer.Synchronizer, notifier notify.Notifier, log zerolog.Logger) *Handler {
	return &Handler{db: db, sc: sc, syncer: sync, notifier: notifier, log: log}
}

// List returns the tenant's subscription rows for the dashboard.
func (h *Handler) List(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")

	var rows []subscriptions.Subscription
	if err := h.db.Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscriptions"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Transactions returns the tenant's activity feed.
func (h *Handler) Transactions(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")

	var rows []billing.Transaction
	if err := h.db.Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load transactions"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) Pause(c *gin.Context) {
	h.command(c, func(sub *subscriptions.Subscription, stripeAccount string) (*stripe.Subscription, error) {
		return h.sc.PauseSubscription(sub.StripeSubscriptionID, stripeAccount)
	})
}

func (h *Handler) Resume(c *gin.Context) {
	h.command(c, func(sub *subscriptions.Subscription, stripeAccount string) (*stripe.Subscription, error) {
		return h.sc.ResumeSubscription(sub.StripeSubscriptionID, stripeAccount)
	})
}

func (h *Handler) Cancel(c *gin.Context) {
	h.command(c, func(sub *subscriptions.Subscription, stripeAccount string) (*stripe.Subscription, error) {
		return h.sc.CancelSubscriptionAtPeriodEnd(sub.StripeSubscriptionID, stripeAccount)
	})
}

// command runs one pause/resume/cancel action: processor first, local state
// second. Local state is untouched if the processor call fails.
func (h *Handler) command(c *gin.Context, act func(*subscriptions.Subscription, string) (*stripe.Subscription, error)) {
	tenantID := c.GetUint("tenant_id")
	stripeAccount := c.GetString("stripe_account_id")

	var sub subscriptions.Subscription
	if err := h.db.Where("id = ? AND tenant_id = ?", c.Param("id"), tenantID).First(&sub).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
		return
	}

	updated, err := act(&sub, stripeAccount)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Processor rejected the request: " + err.Error()})
		return
	}

	state := stateFromStripe(tenantID, updated)
	var res syncer.Result
	err = h.db.Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = h.syncer.ApplyState(tx, state)
		return err
	})
	if err != nil {
		// The processor applied the change; the confirming webhook will
		// bring local state in line on redelivery.
		h.log.Error().Err(err).
			Str("stripe_subscription_id", sub.StripeSubscriptionID).
			Msg("local sync after command failed, webhook will reconcile")
		c.JSON(http.StatusAccepted, gin.H{"status": "pending"})
		return
	}

	h.dispatch(res)
	c.JSON(http.StatusOK, gin.H{"status": state.Status, "updated_rows": res.UpdatedRows})
}

// Refund issues a refund against a charge Transaction and records the
// mirror refund row. The charge.refunded webhook dedupes on the refund
// reference when it lands.
func (h *Handler) Refund(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")
	stripeAccount := c.GetString("stripe_account_id")

	var original billing.Transaction
	if err := h.db.Where("id = ? AND tenant_id = ? AND type = ?", c.Param("id"), tenantID, billing.TypeCharge).
		First(&original).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Charge not found"})
		return
	}
	if original.StripeReference == nil || *original.StripeReference == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "Charge has no processor reference to refund"})
		return
	}

	params := &stripe.RefundParams{}
	if strings.HasPrefix(*original.StripeReference, "pi_") {
		params.PaymentIntent = original.StripeReference
	} else {
		params.Charge = original.StripeReference
	}

	refund, err := h.sc.CreateRefund(params, stripeAccount)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Processor rejected the refund: " + err.Error()})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		return h.syncer.RecordRefund(tx, syncer.RefundData{
			TenantID:        tenantID,
			StripeReference: refund.ID,
			ChargeReference: *original.StripeReference,
			AmountCents:     refund.Amount,
			Currency:        string(refund.Currency),
			Description:     "Refund issued from dashboard",
		})
	})
	if err != nil {
		h.log.Error().Err(err).Str("refund_id", refund.ID).Msg("refund recorded at processor but not locally")
		c.JSON(http.StatusAccepted, gin.H{"status": "pending", "refund_id": refund.ID})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "refunded", "refund_id": refund.ID})
}

func (h *Handler) dispatch(res syncer.Result) {
	for _, n := range res.Notifications {
		switch n.Kind {
		case "started":
			h.notifier.SubscriptionStarted(n.Email, n.PlanName)
		case "paused":
			h.notifier.SubscriptionPaused(n.Email, n.PlanName)
		case "cancelled":
			h.notifier.SubscriptionCancelled(n.Email, n.PlanName)
		}
	}
}

func stateFromStripe(tenantID uint, sub *stripe.Subscription) syncer.SubscriptionState {
	state := syncer.SubscriptionState{
		TenantID:             tenantID,
		StripeSubscriptionID: sub.ID,
		Status:               stripeapi.NormalizeSubscriptionStatus(sub),
		CurrentPeriodStart:   time.Unix(sub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:     time.Unix(sub.CurrentPeriodEnd, 0),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
	if sub.PauseCollection != nil && sub.PauseCollection.Behavior != "" {
		state.PausedAt = syncer.PauseTimestamp(nil)
	}
	return state
}
