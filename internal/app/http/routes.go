package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/config"
	checkoutapi "github.com/danimalnelson/membership-saas-sub000/internal/api/checkout"
	plansapi "github.com/danimalnelson/membership-saas-sub000/internal/api/plans"
	stripewebhooks "github.com/danimalnelson/membership-saas-sub000/internal/api/stripewebhook"
	subscriptionsapi "github.com/danimalnelson/membership-saas-sub000/internal/api/subscriptions"
	tenantsapi "github.com/danimalnelson/membership-saas-sub000/internal/api/tenants"
	"github.com/danimalnelson/membership-saas-sub000/internal/app/http/middleware"
)

// Handlers bundles the constructed handler sets routes are wired to.
type Handlers struct {
	Webhook       *stripewebhooks.Handler
	Tenants       *tenantsapi.Handler
	Plans         *plansapi.Handler
	Checkout      *checkoutapi.Handler
	Subscriptions *subscriptionsapi.Handler
}

func RegisterRoutes(r *gin.Engine, cfg *config.Config, db *gorm.DB, h Handlers) {
	r.POST("/webhook", h.Webhook.HandleWebhook)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Public surface: consumer-facing checkout and plan listing.
	public := r.Group("/")
	public.Use(middleware.SanitizeInputMiddleware())
	public.POST("/tenants", h.Tenants.Register)
	public.GET("/plans", h.Plans.ListPlans)
	public.POST("/checkout", h.Checkout.CreateSession)

	// Tenant dashboard.
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware(cfg.JWTSecret), middleware.SanitizeInputMiddleware())

	auth.POST("/onboarding/details", h.Tenants.SubmitDetails)
	auth.POST("/onboarding/start", h.Tenants.StartOnboarding)
	auth.GET("/onboarding/status", h.Tenants.Status)
	auth.POST("/onboarding/resync", h.Tenants.Resync)

	auth.GET("/subscriptions", h.Subscriptions.List)
	auth.GET("/transactions", h.Subscriptions.Transactions)

	// Billing actions require a payment-ready account.
	ready := auth.Group("/")
	ready.Use(middleware.RequireOnboardingComplete(db))
	ready.POST("/memberships", h.Plans.CreateMembership)
	ready.POST("/plans", h.Plans.CreatePlan)
	ready.POST("/plans/price", h.Plans.ChangePrice)
	ready.POST("/subscriptions/:id/pause", h.Subscriptions.Pause)
	ready.POST("/subscriptions/:id/resume", h.Subscriptions.Resume)
	ready.POST("/subscriptions/:id/cancel", h.Subscriptions.Cancel)
	ready.POST("/transactions/:id/refund", h.Subscriptions.Refund)
}
