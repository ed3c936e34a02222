package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"danceportal_go/models"
	"danceportal_go/repository"
	"danceportal_go/services/processor"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	oneTimePaymentMemo = "One time payment"
	paymentLedgerMemo  = "Payment"
)

// OneTimePaymentInput is a family-initiated card charge.
type OneTimePaymentInput struct {
	UserID          uint
	PaymentMethodID uint
	AmountCents     int64
	// IdempotencyKey deduplicates retries of the same request. Generated when empty.
	IdempotencyKey string
}

// FamilyForUser resolves the FamilyID claim of a portal user.
func (s *Service) FamilyForUser(ctx context.Context, userID uint) (uint, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return 0, lookup("user", userID, err)
	}
	if user.FamilyID == nil || *user.FamilyID == 0 {
		return 0, fmt.Errorf("%w: user %d has no family", ErrNotFound, userID)
	}
	return *user.FamilyID, nil
}

// OneTimePayment charges a stored method of the caller's family and records
// the payment. The ledger credit follows the configured PostingPolicy.
func (s *Service) OneTimePayment(ctx context.Context, in OneTimePaymentInput) (*models.Payment, error) {
	if in.AmountCents <= 0 {
		return nil, invalid("payment amount must be positive, got %d", in.AmountCents)
	}
	familyID, err := s.FamilyForUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	key := in.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	} else if existing, err := s.store.GetPaymentByIdempotencyKey(ctx, key); err == nil {
		if existing.FamilyID != familyID || existing.AmountCents != in.AmountCents {
			return nil, badState("idempotency key %q was used for a different payment", key)
		}
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	family, err := s.store.GetFamily(ctx, familyID)
	if err != nil {
		return nil, lookup("family", familyID, err)
	}
	pm, err := s.familyMethod(ctx, s.store, familyID, in.PaymentMethodID)
	if err != nil {
		return nil, err
	}
	if !family.HasProcessorCustomer() {
		return nil, badState("family %d has no processor customer", familyID)
	}

	pctx, cancel := s.processorCtx(ctx)
	intent, err := s.processor.CreatePaymentIntent(pctx, processor.IntentRequest{
		CustomerID:      family.ProcessorCustomerID,
		PaymentMethodID: pm.ProcessorPaymentMethodID,
		AmountCents:     in.AmountCents,
		Currency:        s.currency,
		IdempotencyKey:  key,
		Description:     oneTimePaymentMemo,
		Metadata:        map[string]string{"family_id": strconv.FormatUint(uint64(familyID), 10)},
	})
	cancel()
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"family_id":    familyID,
			"amount_cents": in.AmountCents,
			"retryable":    processor.IsRetryable(err),
		}).Warn("one time payment rejected by processor")
		return nil, upstream("create payment intent", err)
	}

	return s.recordProcessorPayment(ctx, processorPayment{
		familyID:    familyID,
		methodID:    pm.ID,
		source:      models.PaymentSourceOnline,
		amountCents: in.AmountCents,
		memo:        oneTimePaymentMemo,
		key:         key,
		intent:      intent,
	})
}

type processorPayment struct {
	familyID    uint
	methodID    uint
	source      models.PaymentSource
	amountCents int64
	memo        string
	key         string
	intent      *processor.Intent
}

// shouldCredit applies the posting policy to a processor status.
func (s *Service) shouldCredit(status string) bool {
	return s.posting == PostOptimistic || status == processor.StatusSucceeded
}

func (s *Service) recordProcessorPayment(ctx context.Context, pp processorPayment) (*models.Payment, error) {
	methodID := pp.methodID
	key := pp.key
	payment := &models.Payment{
		FamilyID:           pp.familyID,
		PaymentMethodID:    &methodID,
		Source:             pp.source,
		PostedAt:           s.now(),
		AmountCents:        pp.amountCents,
		Memo:               pp.memo,
		ProcessorPaymentID: pp.intent.ID,
		Status:             pp.intent.Status,
		IdempotencyKey:     &key,
	}
	if len(pp.intent.Raw) > 0 {
		payment.ProcessorResponse = datatypes.JSON(pp.intent.Raw)
	}

	credited := s.shouldCredit(pp.intent.Status)
	var posted []models.LedgerEntry
	err := s.store.RunInTx(ctx, func(tx repository.Store) error {
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}
		if !credited {
			return nil
		}
		entry, err := s.creditPayment(ctx, tx, payment, paymentLedgerMemo)
		if err != nil {
			return err
		}
		posted = append(posted, *entry)
		return nil
	})

	fields := logrus.Fields{
		"family_id":    pp.familyID,
		"intent_id":    pp.intent.ID,
		"status":       pp.intent.Status,
		"amount_cents": pp.amountCents,
		"source":       pp.source,
	}
	if err != nil {
		// The processor already holds the charge; the intent id is the reconciliation handle.
		s.log.WithError(err).WithFields(fields).Error("processor payment succeeded upstream but was not recorded")
		return nil, err
	}

	fields["payment_id"] = payment.ID
	fields["credited"] = credited
	entry := s.log.WithFields(fields)
	if credited && !pp.intent.Succeeded() {
		entry.Warn("payment credited before processor reported success")
	} else {
		entry.Info("processor payment recorded")
	}
	s.announce(ctx, posted)
	return payment, nil
}

// SyncPaymentStatus refreshes a processor payment's status and, once it has
// succeeded, posts its credit if the posting policy held it back.
func (s *Service) SyncPaymentStatus(ctx context.Context, paymentID uint) (*models.Payment, error) {
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, lookup("payment", paymentID, err)
	}
	if payment.ProcessorPaymentID == "" {
		return nil, badState("payment %d was not made through the processor", paymentID)
	}

	pctx, cancel := s.processorCtx(ctx)
	intent, err := s.processor.RetrievePaymentIntent(pctx, payment.ProcessorPaymentID)
	cancel()
	if err != nil {
		return nil, upstream("retrieve payment intent", err)
	}

	var posted []models.LedgerEntry
	err = s.store.RunInTx(ctx, func(tx repository.Store) error {
		current, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return lookup("payment", paymentID, err)
		}
		if current.Status != intent.Status {
			current.Status = intent.Status
			if err := tx.UpdatePayment(ctx, current); err != nil {
				return err
			}
		}
		payment = current
		if !intent.Succeeded() {
			return nil
		}
		existing, err := tx.ListLedgerEntries(ctx, repository.LedgerFilter{PaymentID: paymentID})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
		entry, err := s.creditPayment(ctx, tx, current, paymentLedgerMemo)
		if err != nil {
			return err
		}
		posted = append(posted, *entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"status":     payment.Status,
		"credited":   len(posted) > 0,
	}).Info("payment status synced")
	s.announce(ctx, posted)
	return payment, nil
}
