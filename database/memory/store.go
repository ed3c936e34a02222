// Package memory is an id-indexed, in-process implementation of
// repository.Store. Transactions serialize on a single mutex and roll back by
// restoring a snapshot of every collection.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"danceportal_go/models"
	"danceportal_go/repository"
)

type dataset struct {
	seq         map[string]uint
	families    map[uint]models.Family
	users       map[uint]models.User
	students    map[uint]models.Student
	classes     map[uint]models.Class
	pricing     map[uint]models.ClassPricing // keyed by class id
	enrollments map[uint]models.Enrollment
	charges     map[uint]models.Charge
	payments    map[uint]models.Payment
	ledger      map[uint]models.LedgerEntry
	invoices    map[uint]models.Invoice
	methods     map[uint]models.PaymentMethod
	autopay     map[uint]models.AutopaySettings // keyed by family id
}

func newDataset() *dataset {
	return &dataset{
		seq:         map[string]uint{},
		families:    map[uint]models.Family{},
		users:       map[uint]models.User{},
		students:    map[uint]models.Student{},
		classes:     map[uint]models.Class{},
		pricing:     map[uint]models.ClassPricing{},
		enrollments: map[uint]models.Enrollment{},
		charges:     map[uint]models.Charge{},
		payments:    map[uint]models.Payment{},
		ledger:      map[uint]models.LedgerEntry{},
		invoices:    map[uint]models.Invoice{},
		methods:     map[uint]models.PaymentMethod{},
		autopay:     map[uint]models.AutopaySettings{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *dataset) clone() *dataset {
	return &dataset{
		seq:         cloneMap(d.seq),
		families:    cloneMap(d.families),
		users:       cloneMap(d.users),
		students:    cloneMap(d.students),
		classes:     cloneMap(d.classes),
		pricing:     cloneMap(d.pricing),
		enrollments: cloneMap(d.enrollments),
		charges:     cloneMap(d.charges),
		payments:    cloneMap(d.payments),
		ledger:      cloneMap(d.ledger),
		invoices:    cloneMap(d.invoices),
		methods:     cloneMap(d.methods),
		autopay:     cloneMap(d.autopay),
	}
}

func (d *dataset) next(name string) uint {
	d.seq[name]++
	return d.seq[name]
}

// Store implements repository.Store.
type Store struct {
	mu   *sync.Mutex
	d    *dataset
	inTx bool
	now  func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{mu: &sync.Mutex{}, d: newDataset(), now: time.Now}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// RunInTx runs fn with exclusive access. Any error restores every collection
// to its state before fn started. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	tx := &Store{mu: s.mu, d: s.d, inTx: true, now: s.now}
	if err := fn(tx); err != nil {
		*s.d = *snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		*s.d = *snapshot
		return err
	}
	return nil
}

func (s *Store) LockFamily(ctx context.Context, id uint) (*models.Family, error) {
	return s.GetFamily(ctx, id)
}

func (s *Store) stamp(b *models.BaseModel, created bool) {
	now := s.now()
	if created && b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// families

func (s *Store) CreateFamily(_ context.Context, f *models.Family) error {
	defer s.lock()()
	f.ID = s.d.next("families")
	s.stamp(&f.BaseModel, true)
	s.d.families[f.ID] = *f
	return nil
}

func (s *Store) GetFamily(_ context.Context, id uint) (*models.Family, error) {
	defer s.lock()()
	f, ok := s.d.families[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

func (s *Store) ListFamilies(_ context.Context) ([]models.Family, error) {
	defer s.lock()()
	return sortedValues(s.d.families, func(f models.Family) uint { return f.ID }), nil
}

func (s *Store) UpdateFamily(_ context.Context, f *models.Family) error {
	defer s.lock()()
	if _, ok := s.d.families[f.ID]; !ok {
		return repository.ErrNotFound
	}
	s.stamp(&f.BaseModel, false)
	s.d.families[f.ID] = *f
	return nil
}

// users

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	defer s.lock()()
	for _, existing := range s.d.users {
		if existing.Username == u.Username {
			return errDuplicate("users.username")
		}
	}
	u.ID = s.d.next("users")
	s.stamp(&u.BaseModel, true)
	s.d.users[u.ID] = *u
	return nil
}

func (s *Store) GetUser(_ context.Context, id uint) (*models.User, error) {
	defer s.lock()()
	u, ok := s.d.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	defer s.lock()()
	for _, u := range s.d.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

// students

func (s *Store) CreateStudent(_ context.Context, st *models.Student) error {
	defer s.lock()()
	st.ID = s.d.next("students")
	s.stamp(&st.BaseModel, true)
	s.d.students[st.ID] = *st
	return nil
}

func (s *Store) GetStudent(_ context.Context, id uint) (*models.Student, error) {
	defer s.lock()()
	st, ok := s.d.students[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &st, nil
}

func (s *Store) ListStudents(_ context.Context, familyID uint) ([]models.Student, error) {
	defer s.lock()()
	all := sortedValues(s.d.students, func(st models.Student) uint { return st.ID })
	return filter(all, func(st models.Student) bool {
		return familyID == 0 || st.FamilyID == familyID
	}), nil
}

// classes

func (s *Store) CreateClass(_ context.Context, c *models.Class) error {
	defer s.lock()()
	c.ID = s.d.next("classes")
	s.stamp(&c.BaseModel, true)
	s.d.classes[c.ID] = *c
	return nil
}

func (s *Store) GetClass(_ context.Context, id uint) (*models.Class, error) {
	defer s.lock()()
	c, ok := s.d.classes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (s *Store) ListClasses(_ context.Context, activeOnly bool) ([]models.Class, error) {
	defer s.lock()()
	all := sortedValues(s.d.classes, func(c models.Class) uint { return c.ID })
	return filter(all, func(c models.Class) bool { return !activeOnly || c.Active }), nil
}

func (s *Store) UpdateClass(_ context.Context, c *models.Class) error {
	defer s.lock()()
	if _, ok := s.d.classes[c.ID]; !ok {
		return repository.ErrNotFound
	}
	s.stamp(&c.BaseModel, false)
	s.d.classes[c.ID] = *c
	return nil
}

func (s *Store) GetClassPricing(_ context.Context, classID uint) (*models.ClassPricing, error) {
	defer s.lock()()
	p, ok := s.d.pricing[classID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *Store) SaveClassPricing(_ context.Context, p *models.ClassPricing) error {
	defer s.lock()()
	if existing, ok := s.d.pricing[p.ClassID]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		p.ID = s.d.next("pricing")
	}
	s.stamp(&p.BaseModel, true)
	s.d.pricing[p.ClassID] = *p
	return nil
}

// enrollments

func (s *Store) CreateEnrollment(_ context.Context, e *models.Enrollment) error {
	defer s.lock()()
	e.ID = s.d.next("enrollments")
	s.stamp(&e.BaseModel, true)
	s.d.enrollments[e.ID] = *e
	return nil
}

func (s *Store) GetEnrollment(_ context.Context, id uint) (*models.Enrollment, error) {
	defer s.lock()()
	e, ok := s.d.enrollments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (s *Store) UpdateEnrollment(_ context.Context, e *models.Enrollment) error {
	defer s.lock()()
	if _, ok := s.d.enrollments[e.ID]; !ok {
		return repository.ErrNotFound
	}
	s.stamp(&e.BaseModel, false)
	s.d.enrollments[e.ID] = *e
	return nil
}

func (s *Store) ListEnrollments(_ context.Context, f repository.EnrollmentFilter) ([]models.Enrollment, error) {
	defer s.lock()()
	all := sortedValues(s.d.enrollments, func(e models.Enrollment) uint { return e.ID })
	return filter(all, func(e models.Enrollment) bool {
		return (f.StudentID == 0 || e.StudentID == f.StudentID) &&
			(f.ClassID == 0 || e.ClassID == f.ClassID) &&
			(f.Status == "" || e.Status == f.Status)
	}), nil
}

// charges

func (s *Store) CreateCharge(_ context.Context, c *models.Charge) error {
	defer s.lock()()
	c.ID = s.d.next("charges")
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.d.charges[c.ID] = *c
	return nil
}

func (s *Store) ListCharges(_ context.Context, f repository.ChargeFilter) ([]models.Charge, error) {
	defer s.lock()()
	all := sortedValues(s.d.charges, func(c models.Charge) uint { return c.ID })
	return filter(all, func(c models.Charge) bool {
		if f.FamilyID != 0 && c.FamilyID != f.FamilyID {
			return false
		}
		if f.InvoiceID != 0 && (c.InvoiceID == nil || *c.InvoiceID != f.InvoiceID) {
			return false
		}
		return true
	}), nil
}

// payments

func (s *Store) CreatePayment(_ context.Context, p *models.Payment) error {
	defer s.lock()()
	if p.IdempotencyKey != nil {
		for _, existing := range s.d.payments {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *p.IdempotencyKey {
				return errDuplicate("payments.idempotency_key")
			}
		}
	}
	p.ID = s.d.next("payments")
	s.stamp(&p.BaseModel, true)
	s.d.payments[p.ID] = *p
	return nil
}

func (s *Store) GetPayment(_ context.Context, id uint) (*models.Payment, error) {
	defer s.lock()()
	p, ok := s.d.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetPaymentByIdempotencyKey(_ context.Context, key string) (*models.Payment, error) {
	defer s.lock()()
	for _, p := range s.d.payments {
		if p.IdempotencyKey != nil && *p.IdempotencyKey == key {
			p := p
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) UpdatePayment(_ context.Context, p *models.Payment) error {
	defer s.lock()()
	if _, ok := s.d.payments[p.ID]; !ok {
		return repository.ErrNotFound
	}
	s.stamp(&p.BaseModel, false)
	s.d.payments[p.ID] = *p
	return nil
}

func (s *Store) ListPayments(_ context.Context, f repository.PaymentFilter) ([]models.Payment, error) {
	defer s.lock()()
	all := sortedValues(s.d.payments, func(p models.Payment) uint { return p.ID })
	out := filter(all, func(p models.Payment) bool {
		return (f.FamilyID == 0 || p.FamilyID == f.FamilyID) && inRange(p.PostedAt, f.From, f.To)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].PostedAt.Before(out[j].PostedAt) })
	return out, nil
}

// ledger

func (s *Store) CreateLedgerEntry(_ context.Context, e *models.LedgerEntry) error {
	defer s.lock()()
	e.ID = s.d.next("ledger")
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.d.ledger[e.ID] = *e
	return nil
}

func (s *Store) ListLedgerEntries(_ context.Context, f repository.LedgerFilter) ([]models.LedgerEntry, error) {
	defer s.lock()()
	out := filter(s.ledgerAsc(), func(e models.LedgerEntry) bool {
		if f.FamilyID != 0 && e.FamilyID != f.FamilyID {
			return false
		}
		if f.PaymentID != 0 && (e.PaymentID == nil || *e.PaymentID != f.PaymentID) {
			return false
		}
		return inRange(e.PostedAt, f.From, f.To)
	})
	return out, nil
}

func (s *Store) PageLedgerEntries(_ context.Context, familyID uint, page, size int) ([]models.LedgerEntry, int64, error) {
	defer s.lock()()
	entries := filter(s.ledgerAsc(), func(e models.LedgerEntry) bool { return e.FamilyID == familyID })
	total := int64(len(entries))
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	start := (page - 1) * size
	if start >= len(entries) {
		return []models.LedgerEntry{}, total, nil
	}
	end := start + size
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end], total, nil
}

func (s *Store) ledgerAsc() []models.LedgerEntry {
	out := make([]models.LedgerEntry, 0, len(s.d.ledger))
	for _, e := range s.d.ledger {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PostedAt.Equal(out[j].PostedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].PostedAt.Before(out[j].PostedAt)
	})
	return out
}

// invoices

func (s *Store) CreateInvoice(_ context.Context, inv *models.Invoice) error {
	defer s.lock()()
	inv.ID = s.d.next("invoices")
	s.stamp(&inv.BaseModel, true)
	s.d.invoices[inv.ID] = *inv
	return nil
}

func (s *Store) GetInvoice(_ context.Context, id uint) (*models.Invoice, error) {
	defer s.lock()()
	inv, ok := s.d.invoices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &inv, nil
}

func (s *Store) UpdateInvoice(_ context.Context, inv *models.Invoice) error {
	defer s.lock()()
	if _, ok := s.d.invoices[inv.ID]; !ok {
		return repository.ErrNotFound
	}
	s.stamp(&inv.BaseModel, false)
	s.d.invoices[inv.ID] = *inv
	return nil
}

func (s *Store) ListInvoices(_ context.Context, familyID uint) ([]models.Invoice, error) {
	defer s.lock()()
	all := sortedValues(s.d.invoices, func(inv models.Invoice) uint { return inv.ID })
	out := filter(all, func(inv models.Invoice) bool { return familyID == 0 || inv.FamilyID == familyID })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// payment methods

func (s *Store) CreatePaymentMethod(_ context.Context, pm *models.PaymentMethod) error {
	defer s.lock()()
	pm.ID = s.d.next("methods")
	s.stamp(&pm.BaseModel, true)
	s.d.methods[pm.ID] = *pm
	return nil
}

func (s *Store) GetPaymentMethod(_ context.Context, id uint) (*models.PaymentMethod, error) {
	defer s.lock()()
	pm, ok := s.d.methods[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &pm, nil
}

func (s *Store) ListPaymentMethods(_ context.Context, familyID uint) ([]models.PaymentMethod, error) {
	defer s.lock()()
	all := sortedValues(s.d.methods, func(pm models.PaymentMethod) uint { return pm.ID })
	return filter(all, func(pm models.PaymentMethod) bool { return pm.FamilyID == familyID }), nil
}

func (s *Store) UpdatePaymentMethod(_ context.Context, pm *models.PaymentMethod) error {
	defer s.lock()()
	if _, ok := s.d.methods[pm.ID]; !ok {
		return repository.ErrNotFound
	}
	s.stamp(&pm.BaseModel, false)
	s.d.methods[pm.ID] = *pm
	return nil
}

func (s *Store) ClearDefaultPaymentMethods(_ context.Context, familyID uint) error {
	defer s.lock()()
	for id, pm := range s.d.methods {
		if pm.FamilyID == familyID && pm.IsDefault {
			pm.IsDefault = false
			pm.UpdatedAt = s.now()
			s.d.methods[id] = pm
		}
	}
	return nil
}

// autopay

func (s *Store) GetAutopaySettings(_ context.Context, familyID uint) (*models.AutopaySettings, error) {
	defer s.lock()()
	a, ok := s.d.autopay[familyID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (s *Store) SaveAutopaySettings(_ context.Context, a *models.AutopaySettings) error {
	defer s.lock()()
	now := s.now()
	if existing, ok := s.d.autopay[a.FamilyID]; ok {
		a.CreatedAt = existing.CreatedAt
	} else if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	s.d.autopay[a.FamilyID] = *a
	return nil
}

func (s *Store) ListEnabledAutopay(_ context.Context) ([]models.AutopaySettings, error) {
	defer s.lock()()
	all := sortedValues(s.d.autopay, func(a models.AutopaySettings) uint { return a.FamilyID })
	return filter(all, func(a models.AutopaySettings) bool { return a.Enabled }), nil
}

// helpers

func sortedValues[V any](m map[uint]V, id func(V) uint) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out
}

func filter[V any](in []V, keep func(V) bool) []V {
	out := make([]V, 0, len(in))
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(*to) {
		return false
	}
	return true
}

func errDuplicate(index string) error {
	return fmt.Errorf("%w: %s", repository.ErrDuplicate, index)
}
