package billing

import (
	"context"
	"errors"
	"time"

	"danceportal_go/models"
	"danceportal_go/repository"

	"github.com/sirupsen/logrus"
)

// InvoiceRun summarizes one GenerateInvoices call.
type InvoiceRun struct {
	Count      int    `json:"count"`
	Charges    int    `json:"charges"`
	TotalCents int64  `json:"total_cents"`
	InvoiceIDs []uint `json:"invoice_ids"`
}

// InvoiceDetail is an invoice with the charges generated for it.
type InvoiceDetail struct {
	models.Invoice
	Charges []models.Charge `json:"charges"`
}

// GenerateInvoices creates one Draft invoice per family for the period and
// bills every Active enrollment of the family's students at the class's
// current monthly tuition. The whole run commits as one transaction, and only
// one run may be in flight at a time.
func (s *Service) GenerateInvoices(ctx context.Context, periodStart, periodEnd time.Time) (*InvoiceRun, error) {
	if periodStart.IsZero() || periodEnd.IsZero() {
		return nil, invalid("period start and end are required")
	}
	if !periodEnd.After(periodStart) {
		return nil, invalid("period end %s must be after start %s", periodEnd.Format(time.DateOnly), periodStart.Format(time.DateOnly))
	}

	release, err := s.locker.Acquire(ctx, invoiceRunLockKey, invoiceRunLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	run := &InvoiceRun{}
	var posted []models.LedgerEntry
	err = s.store.RunInTx(ctx, func(tx repository.Store) error {
		families, err := tx.ListFamilies(ctx)
		if err != nil {
			return err
		}
		// Pricing and class names are shared across families.
		classes := map[uint]*classTuition{}
		for _, family := range families {
			inv, entries, err := s.invoiceFamily(ctx, tx, family.ID, periodStart, periodEnd, classes)
			if err != nil {
				return err
			}
			run.Count++
			run.Charges += len(entries)
			run.TotalCents += inv.TotalCents
			run.InvoiceIDs = append(run.InvoiceIDs, inv.ID)
			posted = append(posted, entries...)
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"period_start": periodStart.Format(time.DateOnly),
			"period_end":   periodEnd.Format(time.DateOnly),
		}).Error("invoice run rolled back")
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"period_start": periodStart.Format(time.DateOnly),
		"period_end":   periodEnd.Format(time.DateOnly),
		"invoices":     run.Count,
		"charges":      run.Charges,
		"total_cents":  run.TotalCents,
	}).Info("invoice run committed")
	s.announce(ctx, posted)
	return run, nil
}

type classTuition struct {
	name  string
	cents int64
}

func (s *Service) tuitionFor(ctx context.Context, tx repository.Store, classID uint, cache map[uint]*classTuition) (*classTuition, error) {
	if ct, ok := cache[classID]; ok {
		return ct, nil
	}
	class, err := tx.GetClass(ctx, classID)
	if err != nil {
		return nil, lookup("class", classID, err)
	}
	ct := &classTuition{name: class.Name}
	pricing, err := tx.GetClassPricing(ctx, classID)
	switch {
	case err == nil:
		ct.cents = pricing.MonthlyTuitionCents
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}
	cache[classID] = ct
	return ct, nil
}

func (s *Service) invoiceFamily(ctx context.Context, tx repository.Store, familyID uint, periodStart, periodEnd time.Time, classes map[uint]*classTuition) (*models.Invoice, []models.LedgerEntry, error) {
	inv := &models.Invoice{
		FamilyID:    familyID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Status:      models.InvoiceDraft,
	}
	if err := tx.CreateInvoice(ctx, inv); err != nil {
		return nil, nil, err
	}

	students, err := tx.ListStudents(ctx, familyID)
	if err != nil {
		return nil, nil, err
	}

	var entries []models.LedgerEntry
	for _, student := range students {
		enrollments, err := tx.ListEnrollments(ctx, repository.EnrollmentFilter{
			StudentID: student.ID,
			Status:    models.EnrollmentActive,
		})
		if err != nil {
			return nil, nil, err
		}
		for _, enr := range enrollments {
			ct, err := s.tuitionFor(ctx, tx, enr.ClassID, classes)
			if err != nil {
				return nil, nil, err
			}
			// Unpriced classes add nothing and leave no zero-amount ledger rows.
			if ct.cents <= 0 {
				continue
			}
			invoiceID := inv.ID
			_, entry, err := s.recordCharge(ctx, tx, familyID, &invoiceID, models.ChargeTuition, ct.cents, "Tuition for "+ct.name)
			if err != nil {
				return nil, nil, err
			}
			inv.TotalCents += ct.cents
			entries = append(entries, *entry)
		}
	}

	if inv.TotalCents != 0 {
		if err := tx.UpdateInvoice(ctx, inv); err != nil {
			return nil, nil, err
		}
	}
	return inv, entries, nil
}

// FinalizeInvoice moves a Draft invoice to Finalized.
func (s *Service) FinalizeInvoice(ctx context.Context, invoiceID uint) (*models.Invoice, error) {
	var inv *models.Invoice
	err := s.store.RunInTx(ctx, func(tx repository.Store) error {
		current, err := tx.GetInvoice(ctx, invoiceID)
		if err != nil {
			return lookup("invoice", invoiceID, err)
		}
		if current.Status != models.InvoiceDraft {
			return badState("invoice %d is %s, only draft invoices can be finalized", invoiceID, current.Status)
		}
		now := s.now()
		current.Status = models.InvoiceFinalized
		current.FinalizedAt = &now
		if err := tx.UpdateInvoice(ctx, current); err != nil {
			return err
		}
		inv = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"invoice_id": invoiceID, "family_id": inv.FamilyID}).Info("invoice finalized")
	return inv, nil
}

// GetInvoice returns an invoice and its charges.
func (s *Service) GetInvoice(ctx context.Context, invoiceID uint) (*InvoiceDetail, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, lookup("invoice", invoiceID, err)
	}
	charges, err := s.store.ListCharges(ctx, repository.ChargeFilter{InvoiceID: invoiceID})
	if err != nil {
		return nil, err
	}
	return &InvoiceDetail{Invoice: *inv, Charges: charges}, nil
}

// ListInvoices returns a family's invoices newest first; familyID 0 lists all.
func (s *Service) ListInvoices(ctx context.Context, familyID uint) ([]models.Invoice, error) {
	if familyID != 0 {
		if _, err := s.store.GetFamily(ctx, familyID); err != nil {
			return nil, lookup("family", familyID, err)
		}
	}
	return s.store.ListInvoices(ctx, familyID)
}
