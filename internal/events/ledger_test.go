package events

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ProcessedEvent{}))
	return db
}

func TestRunOnceExecutesHandlerOnce(t *testing.T) {
	db := testDB(t)
	ledger := NewLedger(db)

	calls := 0
	fn := func(tx *gorm.DB) error {
		calls++
		return nil
	}

	require.NoError(t, ledger.RunOnce(context.Background(), "evt_1", "account.updated", fn))
	assert.Equal(t, 1, calls)

	err := ledger.RunOnce(context.Background(), "evt_1", "account.updated", fn)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, 1, calls, "replayed delivery must not re-run the handler")

	seen, err := ledger.Seen(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRunOnceFailureLeavesEventUnprocessed(t *testing.T) {
	db := testDB(t)
	ledger := NewLedger(db)

	boom := errors.New("downstream unavailable")
	err := ledger.RunOnce(context.Background(), "evt_2", "invoice.paid", func(tx *gorm.DB) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	seen, err := ledger.Seen(context.Background(), "evt_2")
	require.NoError(t, err)
	assert.False(t, seen, "failed events stay out of the ledger so redelivery retries")

	// Redelivery succeeds and records it.
	require.NoError(t, ledger.RunOnce(context.Background(), "evt_2", "invoice.paid", func(tx *gorm.DB) error {
		return nil
	}))
	seen, err = ledger.Seen(context.Background(), "evt_2")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRunOnceRejectsEmptyEventID(t *testing.T) {
	ledger := NewLedger(testDB(t))
	err := ledger.RunOnce(context.Background(), "", "x", func(tx *gorm.DB) error { return nil })
	assert.True(t, IsPermanent(err))
}

func TestPermanentErrorWrapping(t *testing.T) {
	base := errors.New("plan 9 not found")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}
