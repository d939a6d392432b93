package syncer

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/internal/domain/billing"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/subscriptions"
)

// ChargeData is the typed view of a paid invoice.
type ChargeData struct {
	TenantID             uint
	StripeSubscriptionID string
	StripeReference      string // payment intent or charge id
	AmountCents          int64
	Currency             string
	Description          string
}

// RefundData is the typed view of a refunded charge.
type RefundData struct {
	TenantID        uint
	StripeReference string // refund id
	ChargeReference string // original charge / payment intent id
	AmountCents     int64
	Currency        string
	Description     string
}

// RecordCharge appends a charge Transaction for a paid invoice, idempotent
// on the external reference. An invoice for an unknown subscription is
// skipped; the rows will exist by the time the invoice is redelivered.
func (s *Synchronizer) RecordCharge(tx *gorm.DB, data ChargeData) error {
	if data.StripeReference == "" {
		return nil
	}

	var row subscriptions.Subscription
	err := tx.Where("stripe_subscription_id = ?", data.StripeSubscriptionID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Info().
				Str("stripe_subscription_id", data.StripeSubscriptionID).
				Msg("invoice for unknown subscription, skipping charge record")
			return nil
		}
		return fmt.Errorf("load subscription for charge: %w", err)
	}

	txn := billing.Transaction{
		TenantID:        row.TenantID,
		ConsumerID:      row.ConsumerID,
		SubscriptionID:  &row.ID,
		AmountCents:     data.AmountCents,
		Currency:        data.Currency,
		Type:            billing.TypeCharge,
		Description:     data.Description,
		StripeReference: &data.StripeReference,
	}
	if err := tx.Create(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return fmt.Errorf("record charge %s: %w", data.StripeReference, err)
	}
	return nil
}

// RecordRefund appends a refund Transaction, idempotent on the refund's
// reference. The consumer is resolved through the original charge record; a
// refund whose charge we never saw is logged and skipped.
func (s *Synchronizer) RecordRefund(tx *gorm.DB, data RefundData) error {
	if data.StripeReference == "" {
		return nil
	}

	var original billing.Transaction
	err := tx.Where("stripe_reference = ? AND type = ?", data.ChargeReference, billing.TypeCharge).
		First(&original).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Info().
				Str("charge_reference", data.ChargeReference).
				Msg("refund for unknown charge, skipping")
			return nil
		}
		return fmt.Errorf("load original charge %s: %w", data.ChargeReference, err)
	}

	txn := billing.Transaction{
		TenantID:        original.TenantID,
		ConsumerID:      original.ConsumerID,
		SubscriptionID:  original.SubscriptionID,
		AmountCents:     -data.AmountCents,
		Currency:        data.Currency,
		Type:            billing.TypeRefund,
		Description:     data.Description,
		StripeReference: &data.StripeReference,
	}
	if err := tx.Create(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return fmt.Errorf("record refund %s: %w", data.StripeReference, err)
	}
	return nil
}

// PauseTimestamp returns when a pause took effect, preferring the
// processor-reported time when present.
func PauseTimestamp(reported *time.Time) *time.Time {
	if reported != nil {
		return reported
	}
	now := time.Now()
	return &now
}
