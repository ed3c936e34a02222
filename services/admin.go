package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"danceportal_go/models"
	"danceportal_go/repository"
	"danceportal_go/services/billing"
	"danceportal_go/utils"

	"github.com/sirupsen/logrus"
)

// AdminService is the staff-facing facade over billing and the studio roster.
type AdminService struct {
	billing *billing.Service
	store   repository.Store
	exports *ExportService
}

func NewAdminService(b *billing.Service, exports *ExportService) *AdminService {
	return &AdminService{billing: b, store: b.Store(), exports: exports}
}

// Billing exposes the billing service for pass-through operations.
func (a *AdminService) Billing() *billing.Service { return a.billing }

// FamilySummary is one row of the families list.
type FamilySummary struct {
	models.Family
	BalanceCents int64 `json:"balance_cents"`
	StudentCount int   `json:"student_count"`
}

// ListFamilies returns every family with its current balance.
func (a *AdminService) ListFamilies(ctx context.Context) ([]FamilySummary, error) {
	positions, err := a.billing.Positions(ctx)
	if err != nil {
		return nil, err
	}
	students, err := a.store.ListStudents(ctx, 0)
	if err != nil {
		return nil, err
	}
	counts := map[uint]int{}
	for _, s := range students {
		counts[s.FamilyID]++
	}
	out := make([]FamilySummary, 0, len(positions))
	for _, p := range positions {
		out = append(out, FamilySummary{
			Family:       p.Family,
			BalanceCents: p.Balance.BalanceCents,
			StudentCount: counts[p.Family.ID],
		})
	}
	return out, nil
}

// CreateFamilyInput is the admin form for a new family account.
type CreateFamilyInput struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email,max=255"`
	Phone string `json:"phone" validate:"max=50"`
	// Username defaults to Email when empty.
	Username string `json:"username" validate:"max=100"`
}

// CreatedFamily carries the temporary password, shown once.
type CreatedFamily struct {
	Family       models.Family   `json:"family"`
	User         utils.UserShort `json:"user"`
	TempPassword string          `json:"temp_password"`
}

// CreateFamily creates the family and its portal login in one transaction.
func (a *AdminService) CreateFamily(ctx context.Context, in CreateFamilyInput) (*CreatedFamily, error) {
	name := utils.SanitizeString(in.Name)
	if name == "" {
		return nil, invalidf("family name is required")
	}
	username := utils.SanitizeString(in.Username)
	if username == "" {
		username = strings.ToLower(utils.SanitizeString(in.Email))
	}
	if username == "" {
		return nil, invalidf("username or email is required")
	}

	temp, err := utils.GenerateTempPassword()
	if err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(temp)
	if err != nil {
		return nil, err
	}

	family := &models.Family{
		Name:  name,
		Email: utils.SanitizeString(in.Email),
		Phone: utils.SanitizeString(in.Phone),
	}
	user := &models.User{
		Username: username,
		Password: hash,
		Email:    family.Email,
		Role:     models.RoleFamily,
		Status:   models.UserActive,
	}
	err = a.store.RunInTx(ctx, func(tx repository.Store) error {
		if err := tx.CreateFamily(ctx, family); err != nil {
			return err
		}
		user.FamilyID = &family.ID
		if err := tx.CreateUser(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return conflictf("username %q is already taken", username)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"family_id": family.ID, "user_id": user.ID}).Info("Family created")
	return &CreatedFamily{Family: *family, User: utils.ToUserShort(user), TempPassword: temp}, nil
}

// FamilyDetail is the admin view of one family.
type FamilyDetail struct {
	Family         models.Family          `json:"family"`
	Balance        billing.Balance        `json:"balance"`
	Aging          billing.Aging          `json:"aging"`
	Students       []models.Student       `json:"students"`
	Enrollments    []FamilyEnrollment     `json:"enrollments"`
	PaymentMethods []models.PaymentMethod `json:"payment_methods"`
	Autopay        *billing.AutopayStatus `json:"autopay"`
}

func (a *AdminService) GetFamily(ctx context.Context, familyID uint) (*FamilyDetail, error) {
	family, err := a.store.GetFamily(ctx, familyID)
	if err != nil {
		return nil, missing("family", familyID, err)
	}
	bal, err := a.billing.GetBalance(ctx, familyID)
	if err != nil {
		return nil, err
	}
	aging, err := a.billing.GetAging(ctx, familyID)
	if err != nil {
		return nil, err
	}
	students, err := a.store.ListStudents(ctx, familyID)
	if err != nil {
		return nil, err
	}
	enrollments, err := familyEnrollments(ctx, a.store, familyID)
	if err != nil {
		return nil, err
	}
	methods, err := a.billing.ListPaymentMethods(ctx, familyID)
	if err != nil {
		return nil, err
	}
	autopay, err := a.billing.GetAutopayStatus(ctx, familyID)
	if err != nil {
		return nil, err
	}
	return &FamilyDetail{
		Family:         *family,
		Balance:        *bal,
		Aging:          *aging,
		Students:       students,
		Enrollments:    enrollments,
		PaymentMethods: methods,
		Autopay:        autopay,
	}, nil
}

// StudentInput is the admin form for a new student.
type StudentInput struct {
	FirstName string     `json:"first_name" validate:"required,max=100"`
	LastName  string     `json:"last_name" validate:"max=100"`
	Birthdate *time.Time `json:"birthdate"`
}

func (a *AdminService) CreateStudent(ctx context.Context, familyID uint, in StudentInput) (*models.Student, error) {
	first := utils.SanitizeString(in.FirstName)
	if first == "" {
		return nil, invalidf("first name is required")
	}
	if _, err := a.store.GetFamily(ctx, familyID); err != nil {
		return nil, missing("family", familyID, err)
	}
	s := &models.Student{
		FamilyID:  familyID,
		FirstName: first,
		LastName:  utils.SanitizeString(in.LastName),
		Birthdate: in.Birthdate,
		Active:    true,
	}
	if err := a.store.CreateStudent(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ListStudents lists a family's students, or every student when familyID is 0.
func (a *AdminService) ListStudents(ctx context.Context, familyID uint) ([]models.Student, error) {
	if familyID != 0 {
		if _, err := a.store.GetFamily(ctx, familyID); err != nil {
			return nil, missing("family", familyID, err)
		}
	}
	return a.store.ListStudents(ctx, familyID)
}

// ClassInput is the admin form for a new class.
type ClassInput struct {
	Name                string `json:"name" validate:"required,max=200"`
	Level               string `json:"level" validate:"max=50"`
	Style               string `json:"style" validate:"max=50"`
	DayOfWeek           int    `json:"day_of_week" validate:"min=0,max=6"`
	StartTime           string `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime             string `json:"end_time" validate:"omitempty,datetime=15:04"`
	Capacity            int    `json:"capacity" validate:"min=0"`
	MonthlyTuitionCents int64  `json:"monthly_tuition_cents" validate:"min=0"`
}

// CreateClass creates an active class with its tuition.
func (a *AdminService) CreateClass(ctx context.Context, in ClassInput) (*ClassListing, error) {
	name := utils.SanitizeString(in.Name)
	switch {
	case name == "":
		return nil, invalidf("class name is required")
	case in.DayOfWeek < 0 || in.DayOfWeek > 6:
		return nil, invalidf("day_of_week must be 0..6, got %d", in.DayOfWeek)
	case in.Capacity < 0:
		return nil, invalidf("capacity must not be negative")
	case in.MonthlyTuitionCents < 0:
		return nil, invalidf("monthly tuition must not be negative")
	}

	class := &models.Class{
		Name:      name,
		Level:     in.Level,
		Style:     in.Style,
		DayOfWeek: in.DayOfWeek,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Capacity:  in.Capacity,
		Active:    true,
	}
	err := a.store.RunInTx(ctx, func(tx repository.Store) error {
		if err := tx.CreateClass(ctx, class); err != nil {
			return err
		}
		return tx.SaveClassPricing(ctx, &models.ClassPricing{ClassID: class.ID, MonthlyTuitionCents: in.MonthlyTuitionCents})
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"class_id": class.ID, "amount_cents": in.MonthlyTuitionCents}).Info("Class created")
	return &ClassListing{Class: *class, MonthlyTuitionCents: in.MonthlyTuitionCents}, nil
}

func (a *AdminService) ListClasses(ctx context.Context) ([]ClassListing, error) {
	return listClasses(ctx, a.store, false)
}

// SetClassPricing replaces the class's monthly tuition. Later invoice runs use the new amount.
func (a *AdminService) SetClassPricing(ctx context.Context, classID uint, cents int64) (*models.ClassPricing, error) {
	if cents < 0 {
		return nil, invalidf("monthly tuition must not be negative")
	}
	if _, err := a.store.GetClass(ctx, classID); err != nil {
		return nil, missing("class", classID, err)
	}
	p := &models.ClassPricing{ClassID: classID, MonthlyTuitionCents: cents}
	if err := a.store.SaveClassPricing(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SetClassActive opens or closes a class. Existing enrollments are untouched.
func (a *AdminService) SetClassActive(ctx context.Context, classID uint, active bool) (*models.Class, error) {
	class, err := a.store.GetClass(ctx, classID)
	if err != nil {
		return nil, missing("class", classID, err)
	}
	class.Active = active
	if err := a.store.UpdateClass(ctx, class); err != nil {
		return nil, err
	}
	return class, nil
}

func (a *AdminService) Enroll(ctx context.Context, familyID, studentID, classID uint) (*models.Enrollment, error) {
	return enroll(ctx, a.store, a.billing.Now(), familyID, studentID, classID)
}

// UpdateEnrollmentStatus ends an active enrollment as completed or canceled.
func (a *AdminService) UpdateEnrollmentStatus(ctx context.Context, enrollmentID uint, status models.EnrollmentStatus) (*models.Enrollment, error) {
	if status != models.EnrollmentCompleted && status != models.EnrollmentCanceled {
		return nil, invalidf("status must be completed or canceled, got %q", status)
	}
	e, err := a.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, missing("enrollment", enrollmentID, err)
	}
	if e.Status != models.EnrollmentActive {
		return nil, conflictf("enrollment %d is already %s", enrollmentID, e.Status)
	}
	now := a.billing.Now()
	e.Status = status
	e.EndDate = &now
	if err := a.store.UpdateEnrollment(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// AgingRow is one family in the aging report.
type AgingRow struct {
	FamilyID     uint   `json:"family_id"`
	FamilyName   string `json:"family_name"`
	BalanceCents int64  `json:"balance_cents"`
	CurrentCents int64  `json:"current_cents"`
	Days30Cents  int64  `json:"days_30_cents"`
	Days60Cents  int64  `json:"days_60_cents"`
	Days90Cents  int64  `json:"days_90_cents"`
}

// AgingReport lists every family's aging, largest balance first.
func (a *AdminService) AgingReport(ctx context.Context) ([]AgingRow, error) {
	positions, err := a.billing.Positions(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]AgingRow, 0, len(positions))
	for _, p := range positions {
		rows = append(rows, AgingRow{
			FamilyID:     p.Family.ID,
			FamilyName:   p.Family.Name,
			BalanceCents: p.Balance.BalanceCents,
			CurrentCents: p.Aging.CurrentCents,
			Days30Cents:  p.Aging.Days30Cents,
			Days60Cents:  p.Aging.Days60Cents,
			Days90Cents:  p.Aging.Days90Cents,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].BalanceCents == rows[j].BalanceCents {
			return rows[i].FamilyID < rows[j].FamilyID
		}
		return rows[i].BalanceCents > rows[j].BalanceCents
	})
	return rows, nil
}

// RevenueDay totals the payments posted on one UTC date.
type RevenueDay struct {
	Date         string `json:"date"`
	RevenueCents int64  `json:"revenue_cents"`
	Payments     int    `json:"payments"`
}

// RevenueReport groups payments posted between the from and to dates,
// both inclusive, by UTC date.
func (a *AdminService) RevenueReport(ctx context.Context, from, to time.Time) ([]RevenueDay, error) {
	from = truncateDay(from)
	to = truncateDay(to)
	if to.Before(from) {
		return nil, invalidf("report end %s is before start %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}
	end := to.AddDate(0, 0, 1)
	payments, err := a.store.ListPayments(ctx, repository.PaymentFilter{From: &from, To: &end})
	if err != nil {
		return nil, err
	}

	byDay := map[string]*RevenueDay{}
	var days []string
	for _, p := range payments {
		key := p.PostedAt.UTC().Format("2006-01-02")
		d, ok := byDay[key]
		if !ok {
			d = &RevenueDay{Date: key}
			byDay[key] = d
			days = append(days, key)
		}
		d.RevenueCents += p.AmountCents
		d.Payments++
	}
	sort.Strings(days)
	out := make([]RevenueDay, 0, len(days))
	for _, k := range days {
		out = append(out, *byDay[k])
	}
	return out, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ExportAging renders the aging report as a workbook.
func (a *AdminService) ExportAging(ctx context.Context) (*ExportFile, error) {
	rows, err := a.AgingReport(ctx)
	if err != nil {
		return nil, err
	}
	return a.exports.AgingWorkbook(rows, a.billing.Now())
}

// ExportRevenue renders the revenue report as a workbook.
func (a *AdminService) ExportRevenue(ctx context.Context, from, to time.Time) (*ExportFile, error) {
	rows, err := a.RevenueReport(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return a.exports.RevenueWorkbook(rows, truncateDay(from), truncateDay(to))
}

// ExportStatement renders a family's monthly statement, archiving it when asked.
func (a *AdminService) ExportStatement(ctx context.Context, familyID uint, month time.Time, archive bool) (*ExportFile, error) {
	st, err := a.billing.GetStatement(ctx, familyID, month)
	if err != nil {
		return nil, err
	}
	file, err := a.exports.StatementWorkbook(st)
	if err != nil {
		return nil, err
	}
	if archive {
		if err := a.exports.ArchiveStatement(ctx, st, file); err != nil {
			return nil, fmt.Errorf("statement archive: %w", err)
		}
	}
	return file, nil
}
