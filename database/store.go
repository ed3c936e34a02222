package database

import (
	"context"
	"errors"

	"danceportal_go/models"
	"danceportal_go/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements repository.Store on a gorm connection. The store
// handed to a RunInTx callback is bound to that transaction.
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

// NewGormStore wraps db. Pass a connection opened with TranslateError to get
// repository.ErrDuplicate on unique key violations.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

var _ repository.Store = (*GormStore)(nil)

func (s *GormStore) with(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// translate maps gorm sentinels onto the repository's.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errors.Join(repository.ErrDuplicate, err)
	}
	return err
}

func (s *GormStore) RunInTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.with(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, inTx: true})
	})
}

func (s *GormStore) LockFamily(ctx context.Context, id uint) (*models.Family, error) {
	var f models.Family
	err := s.with(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&f, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &f, nil
}

func first[T any](db *gorm.DB, conds ...any) (*T, error) {
	var out T
	if err := db.First(&out, conds...).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

// updateExisting saves v only when its row exists, so updates never insert.
func updateExisting(db *gorm.DB, model any, id uint, v any) error {
	var n int64
	if err := db.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return translate(db.Save(v).Error)
}

// families

func (s *GormStore) CreateFamily(ctx context.Context, f *models.Family) error {
	return translate(s.with(ctx).Create(f).Error)
}

func (s *GormStore) GetFamily(ctx context.Context, id uint) (*models.Family, error) {
	return first[models.Family](s.with(ctx), id)
}

func (s *GormStore) ListFamilies(ctx context.Context) ([]models.Family, error) {
	var out []models.Family
	err := s.with(ctx).Order("id").Find(&out).Error
	return out, err
}

func (s *GormStore) UpdateFamily(ctx context.Context, f *models.Family) error {
	return updateExisting(s.with(ctx), &models.Family{}, f.ID, f)
}

// users

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	return translate(s.with(ctx).Create(u).Error)
}

func (s *GormStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return first[models.User](s.with(ctx), id)
}

func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return first[models.User](s.with(ctx).Where("username = ?", username))
}

// students

func (s *GormStore) CreateStudent(ctx context.Context, st *models.Student) error {
	return translate(s.with(ctx).Create(st).Error)
}

func (s *GormStore) GetStudent(ctx context.Context, id uint) (*models.Student, error) {
	return first[models.Student](s.with(ctx), id)
}

func (s *GormStore) ListStudents(ctx context.Context, familyID uint) ([]models.Student, error) {
	q := s.with(ctx).Order("id")
	if familyID != 0 {
		q = q.Where("family_id = ?", familyID)
	}
	var out []models.Student
	return out, q.Find(&out).Error
}

// classes

func (s *GormStore) CreateClass(ctx context.Context, c *models.Class) error {
	return translate(s.with(ctx).Create(c).Error)
}

func (s *GormStore) GetClass(ctx context.Context, id uint) (*models.Class, error) {
	return first[models.Class](s.with(ctx), id)
}

func (s *GormStore) ListClasses(ctx context.Context, activeOnly bool) ([]models.Class, error) {
	q := s.with(ctx).Order("id")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var out []models.Class
	return out, q.Find(&out).Error
}

func (s *GormStore) UpdateClass(ctx context.Context, c *models.Class) error {
	return updateExisting(s.with(ctx), &models.Class{}, c.ID, c)
}

func (s *GormStore) GetClassPricing(ctx context.Context, classID uint) (*models.ClassPricing, error) {
	return first[models.ClassPricing](s.with(ctx).Where("class_id = ?", classID))
}

func (s *GormStore) SaveClassPricing(ctx context.Context, p *models.ClassPricing) error {
	existing, err := s.GetClassPricing(ctx, p.ClassID)
	switch {
	case err == nil:
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		return translate(s.with(ctx).Save(p).Error)
	case errors.Is(err, repository.ErrNotFound):
		return translate(s.with(ctx).Create(p).Error)
	}
	return err
}

// enrollments

func (s *GormStore) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	return translate(s.with(ctx).Create(e).Error)
}

func (s *GormStore) GetEnrollment(ctx context.Context, id uint) (*models.Enrollment, error) {
	return first[models.Enrollment](s.with(ctx), id)
}

func (s *GormStore) UpdateEnrollment(ctx context.Context, e *models.Enrollment) error {
	return updateExisting(s.with(ctx), &models.Enrollment{}, e.ID, e)
}

func (s *GormStore) ListEnrollments(ctx context.Context, f repository.EnrollmentFilter) ([]models.Enrollment, error) {
	q := s.with(ctx).Order("id")
	if f.StudentID != 0 {
		q = q.Where("student_id = ?", f.StudentID)
	}
	if f.ClassID != 0 {
		q = q.Where("class_id = ?", f.ClassID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var out []models.Enrollment
	return out, q.Find(&out).Error
}

// charges

func (s *GormStore) CreateCharge(ctx context.Context, c *models.Charge) error {
	return translate(s.with(ctx).Create(c).Error)
}

func (s *GormStore) ListCharges(ctx context.Context, f repository.ChargeFilter) ([]models.Charge, error) {
	q := s.with(ctx).Order("posted_at, id")
	if f.FamilyID != 0 {
		q = q.Where("family_id = ?", f.FamilyID)
	}
	if f.InvoiceID != 0 {
		q = q.Where("invoice_id = ?", f.InvoiceID)
	}
	var out []models.Charge
	return out, q.Find(&out).Error
}

// payments

func (s *GormStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	return translate(s.with(ctx).Create(p).Error)
}

func (s *GormStore) GetPayment(ctx context.Context, id uint) (*models.Payment, error) {
	return first[models.Payment](s.with(ctx), id)
}

func (s *GormStore) GetPaymentByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	return first[models.Payment](s.with(ctx).Where("idempotency_key = ?", key))
}

func (s *GormStore) UpdatePayment(ctx context.Context, p *models.Payment) error {
	return updateExisting(s.with(ctx), &models.Payment{}, p.ID, p)
}

func (s *GormStore) ListPayments(ctx context.Context, f repository.PaymentFilter) ([]models.Payment, error) {
	q := s.with(ctx).Order("posted_at, id")
	if f.FamilyID != 0 {
		q = q.Where("family_id = ?", f.FamilyID)
	}
	if f.From != nil {
		q = q.Where("posted_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("posted_at < ?", *f.To)
	}
	var out []models.Payment
	return out, q.Find(&out).Error
}

// ledger

func (s *GormStore) CreateLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	return translate(s.with(ctx).Create(e).Error)
}

func (s *GormStore) ListLedgerEntries(ctx context.Context, f repository.LedgerFilter) ([]models.LedgerEntry, error) {
	q := s.with(ctx).Order("posted_at, id")
	if f.FamilyID != 0 {
		q = q.Where("family_id = ?", f.FamilyID)
	}
	if f.PaymentID != 0 {
		q = q.Where("payment_id = ?", f.PaymentID)
	}
	if f.From != nil {
		q = q.Where("posted_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("posted_at < ?", *f.To)
	}
	var out []models.LedgerEntry
	return out, q.Find(&out).Error
}

func (s *GormStore) PageLedgerEntries(ctx context.Context, familyID uint, page, size int) ([]models.LedgerEntry, int64, error) {
	q := s.with(ctx).Model(&models.LedgerEntry{}).Where("family_id = ?", familyID).Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	out := []models.LedgerEntry{}
	err := q.Order("posted_at DESC, id DESC").Offset((page - 1) * size).Limit(size).Find(&out).Error
	return out, total, err
}

// invoices

func (s *GormStore) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	return translate(s.with(ctx).Create(inv).Error)
}

func (s *GormStore) GetInvoice(ctx context.Context, id uint) (*models.Invoice, error) {
	return first[models.Invoice](s.with(ctx), id)
}

func (s *GormStore) UpdateInvoice(ctx context.Context, inv *models.Invoice) error {
	return updateExisting(s.with(ctx), &models.Invoice{}, inv.ID, inv)
}

func (s *GormStore) ListInvoices(ctx context.Context, familyID uint) ([]models.Invoice, error) {
	q := s.with(ctx).Order("id DESC")
	if familyID != 0 {
		q = q.Where("family_id = ?", familyID)
	}
	var out []models.Invoice
	return out, q.Find(&out).Error
}

// payment methods

func (s *GormStore) CreatePaymentMethod(ctx context.Context, pm *models.PaymentMethod) error {
	return translate(s.with(ctx).Create(pm).Error)
}

func (s *GormStore) GetPaymentMethod(ctx context.Context, id uint) (*models.PaymentMethod, error) {
	return first[models.PaymentMethod](s.with(ctx), id)
}

func (s *GormStore) ListPaymentMethods(ctx context.Context, familyID uint) ([]models.PaymentMethod, error) {
	var out []models.PaymentMethod
	err := s.with(ctx).Where("family_id = ?", familyID).Order("id").Find(&out).Error
	return out, err
}

func (s *GormStore) UpdatePaymentMethod(ctx context.Context, pm *models.PaymentMethod) error {
	return updateExisting(s.with(ctx), &models.PaymentMethod{}, pm.ID, pm)
}

func (s *GormStore) ClearDefaultPaymentMethods(ctx context.Context, familyID uint) error {
	return s.with(ctx).Model(&models.PaymentMethod{}).
		Where("family_id = ? AND is_default = ?", familyID, true).
		Update("is_default", false).Error
}

// autopay

func (s *GormStore) GetAutopaySettings(ctx context.Context, familyID uint) (*models.AutopaySettings, error) {
	return first[models.AutopaySettings](s.with(ctx).Where("family_id = ?", familyID))
}

func (s *GormStore) SaveAutopaySettings(ctx context.Context, a *models.AutopaySettings) error {
	return translate(s.with(ctx).Save(a).Error)
}

func (s *GormStore) ListEnabledAutopay(ctx context.Context) ([]models.AutopaySettings, error) {
	var out []models.AutopaySettings
	err := s.with(ctx).Where("enabled = ?", true).Order("family_id").Find(&out).Error
	return out, err
}
