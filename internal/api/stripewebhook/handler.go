package stripewebhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/webhook"
	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/config"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/tenants"
	"github.com/danimalnelson/membership-saas-sub000/internal/events"
	"github.com/danimalnelson/membership-saas-sub000/internal/infra/stripeapi"
	"github.com/danimalnelson/membership-saas-sub000/internal/notify"
	"github.com/danimalnelson/membership-saas-sub000/internal/reconcile"
	"github.com/danimalnelson/membership-saas-sub000/internal/syncer"
)

const maxBodyBytes = 65536

// Handler is the webhook dispatcher: it verifies payload authenticity,
// deduplicates through the ledger, routes by event type, and maps handler
// failures onto Stripe's retry semantics.
type Handler struct {
	cfg        *config.Config
	db         *gorm.DB
	ledger     *events.Ledger
	reconciler *reconcile.Reconciler
	syncer     *syncer.Synchronizer
	sc         *stripeapi.Client
	notifier   notify.Notifier
	log        zerolog.Logger
}

func NewHandler(cfg *config.Config, db *gorm.DB, ledger *events.Ledger, rec *reconcile.Reconciler, sync *syncer.Synchronizer, sc *stripeapi.Client, notifier notify.Notifier, log zerolog.Logger) *Handler {
	return &Handler{
		cfg:        cfg,
		db:         db,
		ledger:     ledger,
		reconciler: rec,
		syncer:     sync,
		sc:         sc,
		notifier:   notifier,
		log:        log,
	}
}

func (h *Handler) HandleWebhook(c *gin.Context) {
	payload, err := readBody(c, maxBodyBytes)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
		return
	}

	// Authenticity first: nothing is parsed before the signature and the
	// timestamp-tolerance window check out.
	event, err := webhook.ConstructEventWithTolerance(
		payload,
		c.GetHeader("Stripe-Signature"),
		h.cfg.StripeWebhookSecret,
		h.cfg.WebhookTolerance,
	)
	if err != nil {
		h.log.Warn().Err(err).Msg("stripe signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature verification failed"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.WebhookHandlerTimeout)
	defer cancel()

	// Notifications collected during processing fire only after the
	// transaction commits; a rolled-back mutation must not email anyone.
	var pending syncer.Result

	err = h.ledger.RunOnce(ctx, event.ID, string(event.Type), func(tx *gorm.DB) error {
		return h.route(ctx, tx, &event, &pending)
	})

	switch {
	case err == nil:
		h.dispatchNotifications(pending)
		c.JSON(http.StatusOK, gin.H{"status": "processed"})
	case errors.Is(err, events.ErrAlreadyProcessed):
		// Retried delivery of something we already applied.
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
	case events.IsPermanent(err):
		// Immediate retry will not help, but the event stays out of the
		// ledger so a corrected redelivery can still succeed.
		h.log.Error().Err(err).
			Str("event_id", event.ID).
			Str("type", string(event.Type)).
			Msg("webhook processing failed permanently; manual intervention needed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).
			Str("event_id", event.ID).
			Str("type", string(event.Type)).
			Msg("webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// route parses the payload into its typed shape and hands it to exactly one
// handler. Unknown event types are acknowledged and ignored so new processor
// event types never cause failures.
func (h *Handler) route(ctx context.Context, tx *gorm.DB, event *stripe.Event, pending *syncer.Result) error {
	switch event.Type {
	case "account.updated":
		return h.handleAccountUpdated(tx, event)
	case "checkout.session.completed":
		return h.handleCheckoutCompleted(ctx, tx, event, pending)
	case "customer.subscription.updated":
		return h.handleSubscriptionUpdated(tx, event, pending)
	case "customer.subscription.deleted":
		return h.handleSubscriptionDeleted(tx, event, pending)
	case "invoice.paid":
		return h.handleInvoicePaid(tx, event)
	case "invoice.payment_failed":
		return h.handleInvoicePaymentFailed(tx, event, pending)
	case "charge.refunded":
		return h.handleChargeRefunded(tx, event)
	default:
		h.log.Info().
			Str("type", string(event.Type)).
			Str("event_id", event.ID).
			Msg("webhook ignored (unhandled type)")
		return nil
	}
}

// tenantForEvent resolves the tenant owning the connected account an event
// was delivered for.
func (h *Handler) tenantForEvent(tx *gorm.DB, event *stripe.Event) (*tenants.Tenant, error) {
	if event.Account == "" {
		return nil, nil
	}
	var tenant tenants.Tenant
	err := tx.Where("stripe_account_id = ?", event.Account).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

func (h *Handler) dispatchNotifications(res syncer.Result) {
	for _, n := range res.Notifications {
		switch n.Kind {
		case "started":
			h.notifier.SubscriptionStarted(n.Email, n.PlanName)
		case "paused":
			h.notifier.SubscriptionPaused(n.Email, n.PlanName)
		case "cancelled":
			h.notifier.SubscriptionCancelled(n.Email, n.PlanName)
		case "payment_failed":
			h.notifier.PaymentFailed(n.Email, n.AmountCents, n.Currency)
		}
	}
}

func readBody(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	return io.ReadAll(c.Request.Body)
}
