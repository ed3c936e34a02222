package billing

import (
	"context"

	"danceportal_go/models"
	"danceportal_go/repository"
)

// PostInput describes one ledger entry.
type PostInput struct {
	FamilyID    uint
	Type        models.LedgerEntryType
	AmountCents int64
	Memo        string
	InvoiceID   *uint
	ChargeID    *uint
	PaymentID   *uint
}

// Post appends one immutable ledger entry using tx. The caller must run it in
// the same transaction as the charge or payment it pairs with.
func (s *Service) Post(ctx context.Context, tx repository.Store, in PostInput) (*models.LedgerEntry, error) {
	if !in.Type.Valid() {
		return nil, invalid("unknown ledger entry type %q", in.Type)
	}
	if in.AmountCents <= 0 {
		return nil, invalid("ledger amount must be positive, got %d", in.AmountCents)
	}
	if in.FamilyID == 0 {
		return nil, invalid("ledger entry requires a family")
	}

	entry := &models.LedgerEntry{
		FamilyID:    in.FamilyID,
		InvoiceID:   in.InvoiceID,
		ChargeID:    in.ChargeID,
		PaymentID:   in.PaymentID,
		PostedAt:    s.now(),
		Type:        in.Type,
		AmountCents: in.AmountCents,
		Memo:        in.Memo,
	}
	if err := tx.CreateLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
