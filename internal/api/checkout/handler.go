package checkoutapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v75"
	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/config"
	"github.com/danimalnelson/membership-saas-sub000/internal/api/plans"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/memberships"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/onboarding"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/tenants"
	"github.com/danimalnelson/membership-saas-sub000/internal/infra/stripeapi"
)

type Handler struct {
	cfg *config.Config
	db  *gorm.DB
	sc  *stripeapi.Client
	log zerolog.Logger
}

func NewHandler(cfg *config.Config, db *gorm.DB, sc *stripeapi.Client, log zerolog.Logger) *Handler {
	return &Handler{cfg: cfg, db: db, sc: sc, log: log}
}

// CreateSession builds a Stripe Checkout session on the tenant's connected
// account for one or more plans of a single membership. The plan id list is
// stamped into the session metadata; the webhook's fan-out create path reads
// it back.
func (h *Handler) CreateSession(c *gin.Context) {
	var body struct {
		TenantSlug string `json:"tenant"`
		PlanIDs    []uint `json:"plan_ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.TenantSlug == "" || len(body.PlanIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant and plan_ids are required"})
		return
	}

	var tenant tenants.Tenant
	if err := h.db.Where("slug = ?", body.TenantSlug).First(&tenant).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown tenant"})
		return
	}
	if tenant.OnboardingStatus() != onboarding.StatusComplete || tenant.StripeAccountID == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "This business is not accepting payments yet"})
		return
	}

	planSet, membership, err := h.resolvePlans(tenant.ID, body.PlanIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(planSet))
	idStrs := make([]string, 0, len(planSet))
	for _, plan := range planSet {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(plan.StripePriceID),
			Quantity: stripe.Int64(1),
		})
		idStrs = append(idStrs, strconv.FormatUint(uint64(plan.ID), 10))
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(h.cfg.AppURL + "/" + tenant.Slug + "/joined"),
		CancelURL:  stripe.String(h.cfg.AppURL + "/" + tenant.Slug + "?canceled=1"),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems:  lineItems,
		Metadata: map[string]string{
			"plan_ids":      strings.Join(idStrs, ","),
			"is_multi_plan": strconv.FormatBool(len(planSet) > 1),
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"plan_ids": strings.Join(idStrs, ","),
			},
		},
	}

	// Cohort memberships anchor every subscription to the next interval
	// boundary so the whole group renews together.
	if membership.BillingAnchor == memberships.AnchorNextInterval {
		anchor := nextIntervalBoundary(time.Now(), membership.Interval)
		params.SubscriptionData.BillingCycleAnchor = stripe.Int64(anchor.Unix())
		params.SubscriptionData.ProrationBehavior = stripe.String("create_prorations")
	}

	session, err := h.sc.NewCheckoutSession(params, *tenant.StripeAccountID)
	if err != nil {
		h.log.Error().Err(err).Uint("tenant_id", tenant.ID).Msg("checkout session creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": session.URL})
}

// resolvePlans loads every requested plan and enforces the owning
// membership's policy: all plans in one membership, multiple plans only when
// the membership allows it, and per-plan subscriber caps.
func (h *Handler) resolvePlans(tenantID uint, planIDs []uint) ([]memberships.Plan, *memberships.Membership, error) {
	planSet := make([]memberships.Plan, 0, len(planIDs))
	var membership memberships.Membership

	for i, id := range planIDs {
		var plan memberships.Plan
		if err := h.db.Where("id = ? AND tenant_id = ? AND archived = ?", id, tenantID, false).First(&plan).Error; err != nil {
			return nil, nil, fmt.Errorf("unknown plan %d", id)
		}

		if i == 0 {
			if err := h.db.Where("id = ?", plan.MembershipID).First(&membership).Error; err != nil {
				return nil, nil, fmt.Errorf("plan %d has no membership", id)
			}
		} else if plan.MembershipID != membership.ID {
			return nil, nil, fmt.Errorf("plans must belong to the same membership")
		}

		if plan.MaxSubscribers != nil {
			count, err := plansapi.ActiveSubscriberCount(h.db, plan.ID)
			if err != nil {
				return nil, nil, fmt.Errorf("could not check availability for plan %d", id)
			}
			if count >= int64(*plan.MaxSubscribers) {
				return nil, nil, fmt.Errorf("plan %q is full", plan.Name)
			}
		}

		planSet = append(planSet, plan)
	}

	if len(planSet) > 1 && !membership.AllowMultiplePlans {
		return nil, nil, fmt.Errorf("this membership allows only one plan at a time")
	}
	return planSet, &membership, nil
}

// nextIntervalBoundary returns the start of the next billing interval in UTC.
func nextIntervalBoundary(now time.Time, interval string) time.Time {
	now = now.UTC()
	if interval == "year" {
		return time.Date(now.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	year, month := now.Year(), now.Month()
	if month == time.December {
		return time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
}
