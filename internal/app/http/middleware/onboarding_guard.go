package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/internal/domain/onboarding"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/tenants"
)

// RequireOnboardingComplete blocks billing actions until the tenant's
// connected account can actually accept payments.
func RequireOnboardingComplete(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetUint("tenant_id")
		if tenantID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Tenant not identified"})
			return
		}

		var tenant tenants.Tenant
		if err := db.Where("id = ?", tenantID).First(&tenant).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Tenant not found"})
			return
		}

		if tenant.OnboardingStatus() != onboarding.StatusComplete {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":  "Payment account setup is not complete",
				"status": tenant.Status,
			})
			return
		}

		c.Set("stripe_account_id", derefString(tenant.StripeAccountID))
		c.Next()
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
