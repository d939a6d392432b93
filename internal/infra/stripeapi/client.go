package stripeapi

import (
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"

	"github.com/danimalnelson/membership-saas-sub000/internal/domain/onboarding"
)

// Client wraps the Stripe SDK behind the handful of calls the platform
// makes. Constructed once per process and passed into handlers; nothing here
// touches the SDK's package-level key.
type Client struct {
	api *client.API
}

func New(secretKey string) *Client {
	return &Client{api: client.New(secretKey, nil)}
}

// CreateConnectedAccount provisions an Express account for a tenant.
func (c *Client) CreateConnectedAccount(email string) (*stripe.Account, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	return c.api.Accounts.New(params)
}

// CreateAccountLink mints a hosted-onboarding URL for a connected account.
func (c *Client) CreateAccountLink(accountID, refreshURL, returnURL string) (*stripe.AccountLink, error) {
	return c.api.AccountLinks.New(&stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	})
}

// GetAccountSnapshot fetches a connected account and reduces it to the
// fields the onboarding state machine consumes.
func (c *Client) GetAccountSnapshot(accountID string) (*onboarding.AccountSnapshot, error) {
	acct, err := c.api.Accounts.GetByID(accountID, nil)
	if err != nil {
		return nil, err
	}
	return SnapshotFromAccount(acct), nil
}

// SnapshotFromAccount reduces a Stripe account object to an
// onboarding.AccountSnapshot. Used both for direct fetches and for
// account.updated webhook payloads.
func SnapshotFromAccount(acct *stripe.Account) *onboarding.AccountSnapshot {
	if acct == nil {
		return nil
	}
	snap := &onboarding.AccountSnapshot{
		AccountID:        acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}
	if acct.Requirements != nil {
		snap.DisabledReason = string(acct.Requirements.DisabledReason)
		snap.CurrentlyDue = acct.Requirements.CurrentlyDue
		snap.PastDue = acct.Requirements.PastDue
	}
	return snap
}

// GetCheckoutSession fetches a session with subscription and customer
// expanded, on the tenant's connected account.
func (c *Client) GetCheckoutSession(sessionID, stripeAccount string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{
			Expand: []*string{
				stripe.String("subscription"),
				stripe.String("customer"),
			},
		},
	}
	params.SetStripeAccount(stripeAccount)
	return c.api.CheckoutSessions.Get(sessionID, params)
}

func (c *Client) NewCheckoutSession(params *stripe.CheckoutSessionParams, stripeAccount string) (*stripe.CheckoutSession, error) {
	params.SetStripeAccount(stripeAccount)
	return c.api.CheckoutSessions.New(params)
}

func (c *Client) GetSubscription(subscriptionID, stripeAccount string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.SetStripeAccount(stripeAccount)
	return c.api.Subscriptions.Get(subscriptionID, params)
}

// PauseSubscription voids collection on the subscription until resumed.
func (c *Client) PauseSubscription(subscriptionID, stripeAccount string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior: stripe.String("void"),
		},
	}
	params.SetStripeAccount(stripeAccount)
	params.IdempotencyKey = stripe.String(uuid.NewString())
	return c.api.Subscriptions.Update(subscriptionID, params)
}

// ResumeSubscription clears pause_collection.
func (c *Client) ResumeSubscription(subscriptionID, stripeAccount string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.AddExtra("pause_collection", "")
	params.SetStripeAccount(stripeAccount)
	params.IdempotencyKey = stripe.String(uuid.NewString())
	return c.api.Subscriptions.Update(subscriptionID, params)
}

// CancelSubscriptionAtPeriodEnd flags the subscription to end at the close
// of the current period rather than cutting access immediately.
func (c *Client) CancelSubscriptionAtPeriodEnd(subscriptionID, stripeAccount string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.SetStripeAccount(stripeAccount)
	params.IdempotencyKey = stripe.String(uuid.NewString())
	return c.api.Subscriptions.Update(subscriptionID, params)
}

// CreateRefund refunds a charge or payment intent on the connected account.
func (c *Client) CreateRefund(params *stripe.RefundParams, stripeAccount string) (*stripe.Refund, error) {
	params.SetStripeAccount(stripeAccount)
	params.IdempotencyKey = stripe.String(uuid.NewString())
	return c.api.Refunds.New(params)
}

// GetPaymentIntent fetches a payment intent with its latest charge expanded,
// used to enrich charge records with receipt data.
func (c *Client) GetPaymentIntent(paymentIntentID, stripeAccount string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Expand: []*string{stripe.String("latest_charge")},
		},
	}
	params.SetStripeAccount(stripeAccount)
	return c.api.PaymentIntents.Get(paymentIntentID, params)
}

func (c *Client) CreateProduct(name, stripeAccount string) (*stripe.Product, error) {
	params := &stripe.ProductParams{Name: stripe.String(name)}
	params.SetStripeAccount(stripeAccount)
	return c.api.Products.New(params)
}

func (c *Client) CreatePrice(productID, currency, interval string, amountCents int64, stripeAccount string) (*stripe.Price, error) {
	params := &stripe.PriceParams{
		Product:    stripe.String(productID),
		Currency:   stripe.String(currency),
		UnitAmount: stripe.Int64(amountCents),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(interval),
		},
	}
	params.SetStripeAccount(stripeAccount)
	return c.api.Prices.New(params)
}

// ArchivePrice deactivates a price so no new checkouts can use it. Existing
// subscriptions keep billing on it.
func (c *Client) ArchivePrice(priceID, stripeAccount string) (*stripe.Price, error) {
	params := &stripe.PriceParams{Active: stripe.Bool(false)}
	params.SetStripeAccount(stripeAccount)
	return c.api.Prices.Update(priceID, params)
}
