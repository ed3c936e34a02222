package billing

import (
	"context"

	"danceportal_go/models"
	"danceportal_go/repository"

	"github.com/sirupsen/logrus"
)

// PostCharge records a charge and its Debit entry atomically.
func (s *Service) PostCharge(ctx context.Context, familyID uint, kind models.ChargeKind, amountCents int64, memo string) (*models.Charge, error) {
	if !kind.Valid() {
		return nil, invalid("unknown charge kind %q", kind)
	}
	if amountCents <= 0 {
		return nil, invalid("charge amount must be positive, got %d", amountCents)
	}

	var (
		charge *models.Charge
		posted []models.LedgerEntry
	)
	err := s.store.RunInTx(ctx, func(tx repository.Store) error {
		if _, err := tx.GetFamily(ctx, familyID); err != nil {
			return lookup("family", familyID, err)
		}
		c, entry, err := s.recordCharge(ctx, tx, familyID, nil, kind, amountCents, memo)
		if err != nil {
			return err
		}
		charge = c
		posted = append(posted, *entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"family_id":    familyID,
		"charge_id":    charge.ID,
		"kind":         kind,
		"amount_cents": amountCents,
	}).Info("charge posted")
	s.announce(ctx, posted)
	return charge, nil
}

// PostManualPayment records a staff-entered payment and its Credit entry atomically.
func (s *Service) PostManualPayment(ctx context.Context, familyID uint, amountCents int64, memo string) (*models.Payment, error) {
	if amountCents <= 0 {
		return nil, invalid("payment amount must be positive, got %d", amountCents)
	}

	var (
		payment *models.Payment
		posted  []models.LedgerEntry
	)
	err := s.store.RunInTx(ctx, func(tx repository.Store) error {
		if _, err := tx.GetFamily(ctx, familyID); err != nil {
			return lookup("family", familyID, err)
		}
		payment = &models.Payment{
			FamilyID:    familyID,
			Source:      models.PaymentSourceManual,
			PostedAt:    s.now(),
			AmountCents: amountCents,
			Memo:        memo,
			Status:      models.PaymentStatusManual,
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}
		entry, err := s.creditPayment(ctx, tx, payment, memo)
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
		"family_id":    familyID,
		"payment_id":   payment.ID,
		"amount_cents": amountCents,
	}).Info("manual payment posted")
	s.announce(ctx, posted)
	return payment, nil
}

// recordCharge writes a charge and its paired Debit inside tx.
func (s *Service) recordCharge(ctx context.Context, tx repository.Store, familyID uint, invoiceID *uint, kind models.ChargeKind, amountCents int64, memo string) (*models.Charge, *models.LedgerEntry, error) {
	charge := &models.Charge{
		FamilyID:    familyID,
		InvoiceID:   invoiceID,
		PostedAt:    s.now(),
		Kind:        kind,
		AmountCents: amountCents,
		Memo:        memo,
	}
	if err := tx.CreateCharge(ctx, charge); err != nil {
		return nil, nil, err
	}
	entry, err := s.Post(ctx, tx, PostInput{
		FamilyID:    familyID,
		Type:        models.LedgerDebit,
		AmountCents: amountCents,
		Memo:        memo,
		InvoiceID:   invoiceID,
		ChargeID:    &charge.ID,
	})
	if err != nil {
		return nil, nil, err
	}
	return charge, entry, nil
}

// creditPayment posts the Credit entry paired with an already stored payment.
func (s *Service) creditPayment(ctx context.Context, tx repository.Store, p *models.Payment, memo string) (*models.LedgerEntry, error) {
	return s.Post(ctx, tx, PostInput{
		FamilyID:    p.FamilyID,
		Type:        models.LedgerCredit,
		AmountCents: p.AmountCents,
		Memo:        memo,
		PaymentID:   &p.ID,
	})
}
