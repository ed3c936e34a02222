package services

import (
	"context"
	"time"

	"danceportal_go/models"
	"danceportal_go/repository"
	"danceportal_go/services/billing"
)

// PortalService is the family-facing facade. Every call names the signed-in
// user; the family is always resolved from that user, never from input.
type PortalService struct {
	billing *billing.Service
	store   repository.Store
	exports *ExportService
}

func NewPortalService(b *billing.Service, exports *ExportService) *PortalService {
	return &PortalService{billing: b, store: b.Store(), exports: exports}
}

func (p *PortalService) family(ctx context.Context, userID uint) (uint, error) {
	return p.billing.FamilyForUser(ctx, userID)
}

// Overview is the portal landing data.
type Overview struct {
	Family  models.Family          `json:"family"`
	Balance billing.Balance        `json:"balance"`
	Aging   billing.Aging          `json:"aging"`
	Autopay *billing.AutopayStatus `json:"autopay"`
}

func (p *PortalService) Overview(ctx context.Context, userID uint) (*Overview, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return nil, err
	}
	family, err := p.store.GetFamily(ctx, familyID)
	if err != nil {
		return nil, missing("family", familyID, err)
	}
	bal, err := p.billing.GetBalance(ctx, familyID)
	if err != nil {
		return nil, err
	}
	aging, err := p.billing.GetAging(ctx, familyID)
	if err != nil {
		return nil, err
	}
	autopay, err := p.billing.GetAutopayStatus(ctx, familyID)
	if err != nil {
		return nil, err
	}
	return &Overview{Family: *family, Balance: *bal, Aging: *aging, Autopay: autopay}, nil
}

func (p *PortalService) Balance(ctx context.Context, userID uint) (*billing.Balance, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.billing.GetBalance(ctx, familyID)
}

func (p *PortalService) Aging(ctx context.Context, userID uint) (*billing.Aging, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.billing.GetAging(ctx, familyID)
}

func (p *PortalService) Ledger(ctx context.Context, userID uint, page, size int) (*billing.LedgerPage, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.billing.GetLedger(ctx, familyID, page, size)
}

func (p *PortalService) PaymentMethods(ctx context.Context, userID uint) ([]models.PaymentMethod, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.billing.ListPaymentMethods(ctx, familyID)
}

// SetupIntent returns the client secret used by the browser to collect a card.
func (p *PortalService) SetupIntent(ctx context.Context, userID uint) (string, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return "", err
	}
	return p.billing.CreateSetupIntent(ctx, familyID)
}

func (p *PortalService) AttachPaymentMethod(ctx context.Context, userID uint, processorMethodID string) (*models.PaymentMethod, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.billing.AttachPaymentMethod(ctx, familyID, processorMethodID)
}

func (p *PortalService) SetDefaultPaymentMethod(ctx context.Context, userID, methodID uint) (*models.PaymentMethod, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.billing.SetDefaultPaymentMethod(ctx, familyID, methodID)
}

// Pay charges a stored method. The billing service resolves the family itself.
func (p *PortalService) Pay(ctx context.Context, userID, methodID uint, amountCents int64, idempotencyKey string) (*models.Payment, error) {
	return p.billing.OneTimePayment(ctx, billing.OneTimePaymentInput{
		UserID:          userID,
		PaymentMethodID: methodID,
		AmountCents:     amountCents,
		IdempotencyKey:  idempotencyKey,
	})
}

func (p *PortalService) AutopayStatus(ctx context.Context, userID uint) (*billing.AutopayStatus, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.billing.GetAutopayStatus(ctx, familyID)
}

func (p *PortalService) EnableAutopay(ctx context.Context, userID uint, in billing.EnableAutopayInput) (*billing.AutopayStatus, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.billing.EnableAutopay(ctx, familyID, in)
}

func (p *PortalService) DisableAutopay(ctx context.Context, userID uint) (*billing.AutopayStatus, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.billing.DisableAutopay(ctx, familyID)
}

// Classes is the public catalog: active classes only.
func (p *PortalService) Classes(ctx context.Context) ([]ClassListing, error) {
	return listClasses(ctx, p.store, true)
}

func (p *PortalService) Students(ctx context.Context, userID uint) ([]models.Student, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.store.ListStudents(ctx, familyID)
}

func (p *PortalService) Enrollments(ctx context.Context, userID uint) ([]FamilyEnrollment, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return nil, err
	}
	return familyEnrollments(ctx, p.store, familyID)
}

func (p *PortalService) Enroll(ctx context.Context, userID, studentID, classID uint) (*models.Enrollment, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return nil, err
	}
	return enroll(ctx, p.store, p.billing.Now(), familyID, studentID, classID)
}

func (p *PortalService) Invoices(ctx context.Context, userID uint) ([]models.Invoice, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.billing.ListInvoices(ctx, familyID)
}

// Invoice returns one of the family's invoices. Other families' invoices
// are reported as not found.
func (p *PortalService) Invoice(ctx context.Context, userID, invoiceID uint) (*billing.InvoiceDetail, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return nil, err
	}
	inv, err := p.billing.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.FamilyID != familyID {
		return nil, missing("invoice", invoiceID, repository.ErrNotFound)
	}
	return inv, nil
}

func (p *PortalService) Statement(ctx context.Context, userID uint, month time.Time) (*billing.Statement, error) {
	familyID, err := p.family(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.billing.GetStatement(ctx, familyID, month)
}

// ExportStatement renders the month's statement and optionally archives it.
func (p *PortalService) ExportStatement(ctx context.Context, userID uint, month time.Time, archive bool) (*ExportFile, error) {
	st, err := p.Statement(ctx, userID, month)
	if err != nil {
		return nil, err
	}
	file, err := p.exports.StatementWorkbook(st)
	if err != nil {
		return nil, err
	}
	if archive {
		if err := p.exports.ArchiveStatement(ctx, st, file); err != nil {
			return nil, err
		}
	}
	return file, nil
}
