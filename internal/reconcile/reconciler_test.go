package reconcile

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/database"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/onboarding"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/tenants"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedTenant(t *testing.T, db *gorm.DB, status onboarding.Status) *tenants.Tenant {
	t.Helper()
	acct := "acct_test123"
	tenant := &tenants.Tenant{
		Name:            "Hill Street Climbing",
		Slug:            "hill-street",
		Email:           "owner@hillstreet.test",
		Status:          string(status),
		StripeAccountID: &acct,
	}
	require.NoError(t, db.Create(tenant).Error)
	return tenant
}

func TestApplyRecordsTransitionAndLog(t *testing.T) {
	db := testDB(t)
	rec := New(zerolog.Nop())
	tenant := seedTenant(t, db, onboarding.StatusOnboardingInProgress)

	snap := &onboarding.AccountSnapshot{
		AccountID:        "acct_test123",
		ChargesEnabled:   true,
		DetailsSubmitted: true,
	}

	res, err := rec.Apply(db, tenant, snap, "processor account snapshot changed", "evt_42")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, onboarding.StatusComplete, res.To)

	var stored tenants.Tenant
	require.NoError(t, db.First(&stored, tenant.ID).Error)
	assert.Equal(t, string(onboarding.StatusComplete), stored.Status)

	var log []tenants.StatusTransition
	require.NoError(t, db.Where("tenant_id = ?", tenant.ID).Find(&log).Error)
	require.Len(t, log, 1)
	assert.Equal(t, string(onboarding.StatusOnboardingInProgress), log[0].FromStatus)
	assert.Equal(t, string(onboarding.StatusComplete), log[0].ToStatus)
	require.NotNil(t, log[0].TriggeringEventID)
	assert.Equal(t, "evt_42", *log[0].TriggeringEventID)
	assert.NotEmpty(t, log[0].Snapshot)
}

func TestApplyRejectsBackwardTransition(t *testing.T) {
	db := testDB(t)
	rec := New(zerolog.Nop())
	tenant := seedTenant(t, db, onboarding.StatusComplete)

	// A stale snapshot with no account would compute ONBOARDING_REQUIRED,
	// which the table forbids from ONBOARDING_COMPLETE.
	res, err := rec.Apply(db, tenant, nil, "stale snapshot", "evt_stale")
	require.NoError(t, err, "invalid transitions are skipped, not errors")
	assert.False(t, res.Applied)

	var stored tenants.Tenant
	require.NoError(t, db.First(&stored, tenant.ID).Error)
	assert.Equal(t, string(onboarding.StatusComplete), stored.Status)

	var count int64
	require.NoError(t, db.Model(&tenants.StatusTransition{}).Where("tenant_id = ?", tenant.ID).Count(&count).Error)
	assert.Zero(t, count, "rejected transitions leave no log entry")
}

func TestApplySameStatusIsNoOp(t *testing.T) {
	db := testDB(t)
	rec := New(zerolog.Nop())
	tenant := seedTenant(t, db, onboarding.StatusComplete)

	snap := &onboarding.AccountSnapshot{
		AccountID:        "acct_test123",
		ChargesEnabled:   true,
		DetailsSubmitted: true,
	}
	res, err := rec.Apply(db, tenant, snap, "no change", "evt_same")
	require.NoError(t, err)
	assert.False(t, res.Applied)

	var count int64
	require.NoError(t, db.Model(&tenants.StatusTransition{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAdvanceFollowsTable(t *testing.T) {
	db := testDB(t)
	rec := New(zerolog.Nop())
	tenant := seedTenant(t, db, onboarding.StatusCreated)

	res, err := rec.Advance(db, tenant, onboarding.StatusDetailsCollected, "business details submitted")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, string(onboarding.StatusDetailsCollected), tenant.Status)

	// CREATED is unreachable from DETAILS_COLLECTED.
	res, err = rec.Advance(db, tenant, onboarding.StatusCreated, "backward")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, string(onboarding.StatusDetailsCollected), tenant.Status)
}
