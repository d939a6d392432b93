package plansapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/internal/domain/memberships"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/subscriptions"
	"github.com/danimalnelson/membership-saas-sub000/internal/infra/stripeapi"
)

type Handler struct {
	db  *gorm.DB
	sc  *stripeapi.Client
	log zerolog.Logger
}

func NewHandler(db *gorm.DB, sc *stripeapi.Client, log zerolog.Logger) *Handler {
	return &Handler{db: db, sc: sc, log: log}
}

// CreateMembership creates a plan group carrying the billing policy.
func (h *Handler) CreateMembership(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")

	var body struct {
		Name               string `json:"name"`
		Interval           string `json:"interval"`
		BillingAnchor      string `json:"billing_anchor"`
		AllowMultiplePlans bool   `json:"allow_multiple_plans"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid membership fields"})
		return
	}
	if body.Interval != "month" && body.Interval != "year" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval must be month or year"})
		return
	}
	if body.BillingAnchor == "" {
		body.BillingAnchor = memberships.AnchorImmediate
	}
	if body.BillingAnchor != memberships.AnchorImmediate && body.BillingAnchor != memberships.AnchorNextInterval {
		c.JSON(http.StatusBadRequest, gin.H{"error": "billing_anchor must be immediate or next_interval"})
		return
	}

	m := memberships.Membership{
		TenantID:           tenantID,
		Name:               body.Name,
		Interval:           body.Interval,
		BillingAnchor:      body.BillingAnchor,
		AllowMultiplePlans: body.AllowMultiplePlans,
	}
	if err := h.db.Create(&m).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create membership"})
		return
	}
	c.JSON(http.StatusCreated, m)
}

// CreatePlan mints the Stripe product and price on the tenant's connected
// account, then stores the local plan referencing them.
func (h *Handler) CreatePlan(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")
	stripeAccount := c.GetString("stripe_account_id")

	var body struct {
		MembershipID   uint   `json:"membership_id"`
		Name           string `json:"name"`
		PriceCents     int64  `json:"price_cents"`
		Currency       string `json:"currency"`
		MaxSubscribers *int   `json:"max_subscribers"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Name == "" || body.PriceCents <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid plan fields"})
		return
	}
	if body.Currency == "" {
		body.Currency = "usd"
	}

	var membership memberships.Membership
	if err := h.db.Where("id = ? AND tenant_id = ?", body.MembershipID, tenantID).First(&membership).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown membership"})
		return
	}

	product, err := h.sc.CreateProduct(body.Name, stripeAccount)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create product"})
		return
	}
	price, err := h.sc.CreatePrice(product.ID, body.Currency, membership.Interval, body.PriceCents, stripeAccount)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create price"})
		return
	}

	plan := memberships.Plan{
		TenantID:        tenantID,
		MembershipID:    membership.ID,
		Name:            body.Name,
		PriceCents:      body.PriceCents,
		Currency:        body.Currency,
		Interval:        membership.Interval,
		MaxSubscribers:  body.MaxSubscribers,
		StripePriceID:   price.ID,
		StripeProductID: product.ID,
	}
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&plan).Error; err != nil {
			return err
		}
		return tx.Create(&memberships.PlanPriceHistory{
			PlanID:        plan.ID,
			StripePriceID: price.ID,
			PriceCents:    body.PriceCents,
			Currency:      body.Currency,
		}).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store plan"})
		return
	}

	c.JSON(http.StatusCreated, plan)
}

// ChangePrice creates a new Stripe price and archives the old one. The old
// price reference is never mutated in place: subscriptions already billing
// on it keep doing so, and the pricing history stays append-only.
func (h *Handler) ChangePrice(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")
	stripeAccount := c.GetString("stripe_account_id")

	var body struct {
		PlanID     uint  `json:"plan_id"`
		PriceCents int64 `json:"price_cents"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.PlanID == 0 || body.PriceCents <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid price fields"})
		return
	}

	var plan memberships.Plan
	if err := h.db.Where("id = ? AND tenant_id = ?", body.PlanID, tenantID).First(&plan).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown plan"})
		return
	}

	newPrice, err := h.sc.CreatePrice(plan.StripeProductID, plan.Currency, plan.Interval, body.PriceCents, stripeAccount)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create new price"})
		return
	}
	if _, err := h.sc.ArchivePrice(plan.StripePriceID, stripeAccount); err != nil {
		h.log.Error().Err(err).Str("price_id", plan.StripePriceID).Msg("failed to archive old price")
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&memberships.Plan{}).
			Where("id = ?", plan.ID).
			Updates(map[string]interface{}{
				"stripe_price_id": newPrice.ID,
				"price_cents":     body.PriceCents,
			}).Error; err != nil {
			return err
		}
		return tx.Create(&memberships.PlanPriceHistory{
			PlanID:        plan.ID,
			StripePriceID: newPrice.ID,
			PriceCents:    body.PriceCents,
			Currency:      plan.Currency,
		}).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store new price"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"plan_id": plan.ID, "stripe_price_id": newPrice.ID})
}

// ListPlans returns a tenant's active plans, publicly consumable by the
// checkout page.
func (h *Handler) ListPlans(c *gin.Context) {
	slug := c.Query("tenant")
	if slug == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant query parameter required"})
		return
	}

	var plansList []memberships.Plan
	err := h.db.
		Joins("JOIN tenants ON tenants.id = plans.tenant_id").
		Where("tenants.slug = ? AND plans.archived = ?", slug, false).
		Order("plans.price_cents ASC").
		Find(&plansList).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load plans"})
		return
	}

	c.JSON(http.StatusOK, plansList)
}

// ActiveSubscriberCount reports how many non-canceled rows a plan carries,
// used by the cap check.
func ActiveSubscriberCount(db *gorm.DB, planID uint) (int64, error) {
	var count int64
	err := db.Model(&subscriptions.Subscription{}).
		Where("plan_id = ? AND status NOT IN ?", planID, []string{
			subscriptions.StatusCanceled,
			subscriptions.StatusIncomplete,
		}).
		Count(&count).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	return count, nil
}
