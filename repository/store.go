// Package repository declares the persistence port used by the billing core
// and the portal/admin services. database.GormStore and memory.Store implement it.
package repository

import (
	"context"
	"errors"
	"time"

	"danceportal_go/models"
)

// ErrNotFound is returned by every lookup that matches no row.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a unique key (username, idempotency key) is already taken.
var ErrDuplicate = errors.New("duplicate key")

// EnrollmentFilter narrows ListEnrollments. Zero values match everything.
type EnrollmentFilter struct {
	StudentID uint
	ClassID   uint
	Status    models.EnrollmentStatus
}

// ChargeFilter narrows ListCharges.
type ChargeFilter struct {
	FamilyID  uint
	InvoiceID uint
}

// PaymentFilter narrows ListPayments. From is inclusive, To exclusive.
type PaymentFilter struct {
	FamilyID uint
	From     *time.Time
	To       *time.Time
}

// LedgerFilter narrows ListLedgerEntries. From is inclusive, To exclusive.
// FamilyID 0 returns entries of every family.
type LedgerFilter struct {
	FamilyID  uint
	PaymentID uint
	From      *time.Time
	To        *time.Time
}

// Store is a transactional view over the billing tables. Methods called on
// the Store handed to RunInTx's callback share that transaction.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Store) error) error

	// LockFamily loads the family and holds a row lock until the transaction ends.
	LockFamily(ctx context.Context, id uint) (*models.Family, error)

	CreateFamily(ctx context.Context, f *models.Family) error
	GetFamily(ctx context.Context, id uint) (*models.Family, error)
	ListFamilies(ctx context.Context) ([]models.Family, error)
	UpdateFamily(ctx context.Context, f *models.Family) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	CreateStudent(ctx context.Context, s *models.Student) error
	GetStudent(ctx context.Context, id uint) (*models.Student, error)
	// ListStudents returns the students of a family, or all students when familyID is 0.
	ListStudents(ctx context.Context, familyID uint) ([]models.Student, error)

	CreateClass(ctx context.Context, c *models.Class) error
	GetClass(ctx context.Context, id uint) (*models.Class, error)
	ListClasses(ctx context.Context, activeOnly bool) ([]models.Class, error)
	UpdateClass(ctx context.Context, c *models.Class) error
	GetClassPricing(ctx context.Context, classID uint) (*models.ClassPricing, error)
	SaveClassPricing(ctx context.Context, p *models.ClassPricing) error

	CreateEnrollment(ctx context.Context, e *models.Enrollment) error
	GetEnrollment(ctx context.Context, id uint) (*models.Enrollment, error)
	UpdateEnrollment(ctx context.Context, e *models.Enrollment) error
	ListEnrollments(ctx context.Context, f EnrollmentFilter) ([]models.Enrollment, error)

	CreateCharge(ctx context.Context, c *models.Charge) error
	ListCharges(ctx context.Context, f ChargeFilter) ([]models.Charge, error)

	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id uint) (*models.Payment, error)
	GetPaymentByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error)
	UpdatePayment(ctx context.Context, p *models.Payment) error
	ListPayments(ctx context.Context, f PaymentFilter) ([]models.Payment, error)

	CreateLedgerEntry(ctx context.Context, e *models.LedgerEntry) error
	// ListLedgerEntries orders by PostedAt then ID, oldest first.
	ListLedgerEntries(ctx context.Context, f LedgerFilter) ([]models.LedgerEntry, error)
	// PageLedgerEntries orders newest first and returns the total row count.
	PageLedgerEntries(ctx context.Context, familyID uint, page, size int) ([]models.LedgerEntry, int64, error)

	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	GetInvoice(ctx context.Context, id uint) (*models.Invoice, error)
	UpdateInvoice(ctx context.Context, inv *models.Invoice) error
	// ListInvoices returns a family's invoices newest first, or all when familyID is 0.
	ListInvoices(ctx context.Context, familyID uint) ([]models.Invoice, error)

	CreatePaymentMethod(ctx context.Context, pm *models.PaymentMethod) error
	GetPaymentMethod(ctx context.Context, id uint) (*models.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, familyID uint) ([]models.PaymentMethod, error)
	UpdatePaymentMethod(ctx context.Context, pm *models.PaymentMethod) error
	ClearDefaultPaymentMethods(ctx context.Context, familyID uint) error

	GetAutopaySettings(ctx context.Context, familyID uint) (*models.AutopaySettings, error)
	SaveAutopaySettings(ctx context.Context, s *models.AutopaySettings) error
	ListEnabledAutopay(ctx context.Context) ([]models.AutopaySettings, error)
}
