package stripeapi

import (
	"strings"

	"github.com/stripe/stripe-go/v75"
)

// NormalizeSubscriptionStatus maps Stripe's subscription status onto the set
// we store locally. A subscription with collection paused is reported as
// paused regardless of its nominal status.
func NormalizeSubscriptionStatus(sub *stripe.Subscription) string {
	if sub == nil {
		return "none"
	}
	if sub.PauseCollection != nil && sub.PauseCollection.Behavior != "" {
		return "paused"
	}
	switch strings.TrimSpace(string(sub.Status)) {
	case "active":
		return "active"
	case "trialing":
		return "trialing"
	case "past_due":
		return "past_due"
	case "unpaid":
		return "unpaid"
	case "canceled", "incomplete_expired":
		return "canceled"
	case "incomplete":
		return "incomplete"
	case "paused":
		return "paused"
	default:
		return strings.TrimSpace(string(sub.Status))
	}
}
