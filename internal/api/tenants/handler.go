package tenantsapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/config"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/onboarding"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/tenants"
	"github.com/danimalnelson/membership-saas-sub000/internal/infra/stripeapi"
	"github.com/danimalnelson/membership-saas-sub000/internal/reconcile"
)

type Handler struct {
	cfg        *config.Config
	db         *gorm.DB
	sc         *stripeapi.Client
	reconciler *reconcile.Reconciler
	log        zerolog.Logger
}

func NewHandler(cfg *config.Config, db *gorm.DB, sc *stripeapi.Client, rec *reconcile.Reconciler, log zerolog.Logger) *Handler {
	return &Handler{cfg: cfg, db: db, sc: sc, reconciler: rec, log: log}
}

// Register creates a tenant at signup. Status starts at CREATED; everything
// after that goes through the reconciler.
func (h *Handler) Register(c *gin.Context) {
	var body struct {
		Name  string `json:"name"`
		Slug  string `json:"slug"`
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Name == "" || body.Slug == "" || body.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, slug and email are required"})
		return
	}

	tenant := tenants.Tenant{
		Name:   body.Name,
		Slug:   body.Slug,
		Email:  body.Email,
		Status: string(onboarding.StatusCreated),
	}
	if err := h.db.Create(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "slug already taken"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create tenant"})
		return
	}

	c.JSON(http.StatusCreated, tenant)
}

// SubmitDetails records that the tenant finished the business details form.
func (h *Handler) SubmitDetails(c *gin.Context) {
	tenant, ok := h.currentTenant(c)
	if !ok {
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		_, err := h.reconciler.Advance(tx, tenant, onboarding.StatusDetailsCollected, "business details submitted")
		return err
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": tenant.Status})
}

// StartOnboarding provisions the connected account if needed and returns a
// hosted-onboarding link.
func (h *Handler) StartOnboarding(c *gin.Context) {
	tenant, ok := h.currentTenant(c)
	if !ok {
		return
	}

	if tenant.StripeAccountID == nil || *tenant.StripeAccountID == "" {
		acct, err := h.sc.CreateConnectedAccount(tenant.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create payment account"})
			return
		}
		err = h.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&tenants.Tenant{}).
				Where("id = ?", tenant.ID).
				Update("stripe_account_id", acct.ID).Error; err != nil {
				return err
			}
			tenant.StripeAccountID = &acct.ID
			_, err := h.reconciler.Advance(tx, tenant, onboarding.StatusAccountCreated, "connected account created")
			return err
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store payment account"})
			return
		}
	}

	link, err := h.sc.CreateAccountLink(
		*tenant.StripeAccountID,
		h.cfg.AppURL+"/onboarding/refresh",
		h.cfg.AppURL+"/onboarding/return",
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create onboarding link"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		_, err := h.reconciler.Advance(tx, tenant, onboarding.StatusOnboardingRequired, "hosted onboarding link issued")
		return err
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": link.URL, "status": tenant.Status})
}

// Status returns the tenant's onboarding status, the dashboard prompt, and
// the full transition log.
func (h *Handler) Status(c *gin.Context) {
	tenant, ok := h.currentTenant(c)
	if !ok {
		return
	}

	var log []tenants.StatusTransition
	if err := h.db.Where("tenant_id = ?", tenant.ID).
		Order("created_at ASC, id ASC").
		Find(&log).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load transition log"})
		return
	}

	// The most recent persisted snapshot feeds the dashboard prompt.
	var snap *onboarding.AccountSnapshot
	for i := len(log) - 1; i >= 0; i-- {
		if len(log[i].Snapshot) > 0 {
			var s onboarding.AccountSnapshot
			if err := json.Unmarshal(log[i].Snapshot, &s); err == nil {
				snap = &s
			}
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      tenant.Status,
		"next_action": onboarding.NextAction(tenant.OnboardingStatus(), snap),
		"transitions": log,
	})
}

// Resync fetches the live account snapshot from the processor and runs the
// same reconcile path a webhook would, for tenants stuck on a missed event.
func (h *Handler) Resync(c *gin.Context) {
	tenant, ok := h.currentTenant(c)
	if !ok {
		return
	}
	if tenant.StripeAccountID == nil || *tenant.StripeAccountID == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "No payment account to resync"})
		return
	}

	snap, err := h.sc.GetAccountSnapshot(*tenant.StripeAccountID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch account from processor"})
		return
	}

	var result reconcile.Result
	err = h.db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = h.reconciler.Apply(tx, tenant, snap, "manual resync", "")
		return err
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reconcile status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  tenant.Status,
		"applied": result.Applied,
	})
}

func (h *Handler) currentTenant(c *gin.Context) (*tenants.Tenant, bool) {
	tenantID := c.GetUint("tenant_id")
	if tenantID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Tenant not identified"})
		return nil, false
	}
	var tenant tenants.Tenant
	if err := h.db.Where("id = ?", tenantID).First(&tenant).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Tenant not found"})
		return nil, false
	}
	return &tenant, true
}
