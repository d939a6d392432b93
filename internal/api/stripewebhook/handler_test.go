package stripewebhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v75"
	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/config"
	"github.com/danimalnelson/membership-saas-sub000/database"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/memberships"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/onboarding"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/subscriptions"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/tenants"
	"github.com/danimalnelson/membership-saas-sub000/internal/events"
	"github.com/danimalnelson/membership-saas-sub000/internal/notify"
	"github.com/danimalnelson/membership-saas-sub000/internal/reconcile"
	"github.com/danimalnelson/membership-saas-sub000/internal/syncer"
)

const testWebhookSecret = "whsec_test_secret"

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func testHandler(t *testing.T, db *gorm.DB) *Handler {
	t.Helper()
	cfg := &config.Config{
		StripeWebhookSecret:   testWebhookSecret,
		WebhookTolerance:      5 * time.Minute,
		WebhookHandlerTimeout: 10 * time.Second,
	}
	log := zerolog.Nop()
	return NewHandler(cfg, db, events.NewLedger(db), reconcile.New(log), syncer.New(log), nil, notify.Noop{}, log)
}

func testRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhook", h.HandleWebhook)
	return r
}

// sign produces a Stripe-Signature header the verifier accepts: an HMAC of
// "<timestamp>.<payload>" keyed with the endpoint secret.
func sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// eventPayload wraps an object payload in a Stripe event envelope. The
// api_version field must match the SDK's pinned version or verification-side
// parsing rejects the event.
func eventPayload(id, eventType, account string, created time.Time, object string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":%q,"account":%q,"created":%d,"api_version":%q,"data":{"object":%s}}`,
		id, eventType, account, created.Unix(), stripe.APIVersion, object,
	))
}

func deliver(r *gin.Engine, payload []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seedTenant(t *testing.T, db *gorm.DB, status onboarding.Status) tenants.Tenant {
	t.Helper()
	acct := "acct_hook1"
	tenant := tenants.Tenant{
		Name:            "Hook Club",
		Slug:            "hook-club",
		Email:           "owner@hookclub.test",
		Status:          string(status),
		StripeAccountID: &acct,
	}
	require.NoError(t, db.Create(&tenant).Error)
	return tenant
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	db := testDB(t)
	r := testRouter(testHandler(t, db))

	payload := eventPayload("evt_sig", "account.updated", "acct_hook1", time.Now(), `{}`)
	w := deliver(r, payload, sign(payload, "whsec_wrong_secret", time.Now()))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Signature verification failed")

	// Nothing lands in the ledger for a rejected delivery.
	var count int64
	require.NoError(t, db.Model(&events.ProcessedEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWebhookRejectsStaleTimestamp(t *testing.T) {
	db := testDB(t)
	r := testRouter(testHandler(t, db))

	payload := eventPayload("evt_old", "account.updated", "acct_hook1", time.Now(), `{}`)
	w := deliver(r, payload, sign(payload, testWebhookSecret, time.Now().Add(-time.Hour)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookAcknowledgesUnknownType(t *testing.T) {
	db := testDB(t)
	h := testHandler(t, db)
	r := testRouter(h)

	payload := eventPayload("evt_unknown", "price.created", "acct_hook1", time.Now(), `{}`)
	w := deliver(r, payload, sign(payload, testWebhookSecret, time.Now()))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "processed")

	// Acknowledged types are still recorded so retries short-circuit.
	seen, err := h.ledger.Seen(context.Background(), "evt_unknown")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestAccountUpdatedAdvancesOnboarding(t *testing.T) {
	db := testDB(t)
	r := testRouter(testHandler(t, db))
	tenant := seedTenant(t, db, onboarding.StatusOnboardingInProgress)

	object := `{"id":"acct_hook1","charges_enabled":true,"details_submitted":true,"requirements":{}}`
	payload := eventPayload("evt_acct_1", "account.updated", "acct_hook1", time.Now(), object)
	w := deliver(r, payload, sign(payload, testWebhookSecret, time.Now()))
	assert.Equal(t, http.StatusOK, w.Code)

	var fresh tenants.Tenant
	require.NoError(t, db.First(&fresh, tenant.ID).Error)
	assert.Equal(t, onboarding.StatusComplete, fresh.OnboardingStatus())

	var logged []tenants.StatusTransition
	require.NoError(t, db.Where("tenant_id = ?", tenant.ID).Find(&logged).Error)
	require.Len(t, logged, 1)
	assert.Equal(t, string(onboarding.StatusOnboardingInProgress), logged[0].FromStatus)
	assert.Equal(t, string(onboarding.StatusComplete), logged[0].ToStatus)
	require.NotNil(t, logged[0].TriggeringEventID)
	assert.Equal(t, "evt_acct_1", *logged[0].TriggeringEventID)
}

func TestAccountUpdatedForUnknownAccountIsAcknowledged(t *testing.T) {
	db := testDB(t)
	r := testRouter(testHandler(t, db))

	object := `{"id":"acct_stranger","charges_enabled":true,"details_submitted":true}`
	payload := eventPayload("evt_acct_2", "account.updated", "acct_stranger", time.Now(), object)
	w := deliver(r, payload, sign(payload, testWebhookSecret, time.Now()))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDuplicateDeliveryAppliesOnce(t *testing.T) {
	db := testDB(t)
	r := testRouter(testHandler(t, db))
	tenant := seedTenant(t, db, onboarding.StatusOnboardingInProgress)

	object := `{"id":"acct_hook1","charges_enabled":true,"details_submitted":true}`
	payload := eventPayload("evt_dup", "account.updated", "acct_hook1", time.Now(), object)
	header := sign(payload, testWebhookSecret, time.Now())

	first := deliver(r, payload, header)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Contains(t, first.Body.String(), "processed")

	second := deliver(r, payload, header)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), "duplicate")

	var logged int64
	require.NoError(t, db.Model(&tenants.StatusTransition{}).
		Where("tenant_id = ?", tenant.ID).Count(&logged).Error)
	assert.EqualValues(t, 1, logged, "redelivery must not re-apply the transition")
}

func TestSubscriptionUpdatedFansOutToAllRows(t *testing.T) {
	db := testDB(t)
	h := testHandler(t, db)
	r := testRouter(h)
	tenant := seedTenant(t, db, onboarding.StatusComplete)

	m := memberships.Membership{TenantID: tenant.ID, Name: "Club", Interval: "month", BillingAnchor: memberships.AnchorImmediate, AllowMultiplePlans: true}
	require.NoError(t, db.Create(&m).Error)
	for i := 0; i < 2; i++ {
		plan := memberships.Plan{
			TenantID:      tenant.ID,
			MembershipID:  m.ID,
			Name:          fmt.Sprintf("Tier %d", i+1),
			PriceCents:    1000,
			Currency:      "usd",
			Interval:      "month",
			StripePriceID: fmt.Sprintf("price_hook_%d", i),
		}
		require.NoError(t, db.Create(&plan).Error)
		_, err := h.syncer.CreateFromCheckout(db, syncer.CheckoutData{
			TenantID:             tenant.ID,
			StripeSubscriptionID: "sub_hook_1",
			CustomerEmail:        "member@x.com",
			PlanIDs:              []uint{plan.ID},
			Status:               subscriptions.StatusTrialing,
			EventTime:            time.Now().Add(-time.Minute),
		})
		require.NoError(t, err)
	}

	object := fmt.Sprintf(
		`{"id":"sub_hook_1","status":"active","cancel_at_period_end":false,"current_period_start":%d,"current_period_end":%d}`,
		time.Now().Unix(), time.Now().Add(30*24*time.Hour).Unix(),
	)
	payload := eventPayload("evt_sub_1", "customer.subscription.updated", "acct_hook1", time.Now(), object)
	w := deliver(r, payload, sign(payload, testWebhookSecret, time.Now()))
	assert.Equal(t, http.StatusOK, w.Code)

	var rows []subscriptions.Subscription
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, subscriptions.StatusActive, row.Status, "both rows must carry the new status")
	}
}

func TestSubscriptionDeletedCancelsRowSet(t *testing.T) {
	db := testDB(t)
	h := testHandler(t, db)
	r := testRouter(h)
	tenant := seedTenant(t, db, onboarding.StatusComplete)

	m := memberships.Membership{TenantID: tenant.ID, Name: "Club", Interval: "month", BillingAnchor: memberships.AnchorImmediate}
	require.NoError(t, db.Create(&m).Error)
	plan := memberships.Plan{TenantID: tenant.ID, MembershipID: m.ID, Name: "Solo", PriceCents: 1000, Currency: "usd", Interval: "month", StripePriceID: "price_hook_solo"}
	require.NoError(t, db.Create(&plan).Error)
	_, err := h.syncer.CreateFromCheckout(db, syncer.CheckoutData{
		TenantID:             tenant.ID,
		StripeSubscriptionID: "sub_hook_2",
		CustomerEmail:        "member@x.com",
		PlanIDs:              []uint{plan.ID},
		Status:               subscriptions.StatusActive,
		EventTime:            time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	object := fmt.Sprintf(
		`{"id":"sub_hook_2","status":"canceled","current_period_start":%d,"current_period_end":%d}`,
		time.Now().Unix(), time.Now().Add(30*24*time.Hour).Unix(),
	)
	payload := eventPayload("evt_sub_del", "customer.subscription.deleted", "acct_hook1", time.Now(), object)
	w := deliver(r, payload, sign(payload, testWebhookSecret, time.Now()))
	assert.Equal(t, http.StatusOK, w.Code)

	var row subscriptions.Subscription
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, subscriptions.StatusCanceled, row.Status)
	assert.True(t, row.CancelAtPeriodEnd)
}

func TestPermanentFailureIsNotRecorded(t *testing.T) {
	db := testDB(t)
	h := testHandler(t, db)
	r := testRouter(h)
	seedTenant(t, db, onboarding.StatusComplete)

	// checkout.session.completed with no subscription or metadata is
	// undecodable into a fan-out; the event must stay out of the ledger so a
	// corrected redelivery can still land.
	object := `{"id":"cs_broken","subscription":null,"metadata":{}}`
	payload := eventPayload("evt_broken", "checkout.session.completed", "acct_hook1", time.Now(), object)
	w := deliver(r, payload, sign(payload, testWebhookSecret, time.Now()))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	seen, err := h.ledger.Seen(context.Background(), "evt_broken")
	require.NoError(t, err)
	assert.False(t, seen)
}
