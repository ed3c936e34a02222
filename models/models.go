package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// AppendOnlyModel is embedded by money records that are never updated or deleted.
type AppendOnlyModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
}

// Family is the billing account. Everything monetary hangs off a family id.
type Family struct {
	BaseModel
	Name                string `json:"name" gorm:"size:200;not null"`
	Email               string `json:"email" gorm:"size:255;index"`
	Phone               string `json:"phone" gorm:"size:50"`
	ProcessorCustomerID string `json:"processor_customer_id" gorm:"size:100"`
}

// HasProcessorCustomer reports whether the family can be charged by the processor.
func (f *Family) HasProcessorCustomer() bool {
	return f.ProcessorCustomerID != ""
}

// Student model
type Student struct {
	BaseModel
	FamilyID  uint       `json:"family_id" gorm:"not null;index"`
	FirstName string     `json:"first_name" gorm:"size:100;not null"`
	LastName  string     `json:"last_name" gorm:"size:100"`
	Birthdate *time.Time `json:"birthdate"`
	Active    bool       `json:"active" gorm:"not null"`
}

// FullName joins first and last name.
func (s *Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// Class is a recurring weekly offering.
type Class struct {
	BaseModel
	Name      string `json:"name" gorm:"size:200;not null"`
	Level     string `json:"level" gorm:"size:50"`
	Style     string `json:"style" gorm:"size:50"`
	DayOfWeek int    `json:"day_of_week"` // 0 = Sunday
	StartTime string `json:"start_time" gorm:"size:5"`
	EndTime   string `json:"end_time" gorm:"size:5"`
	Capacity  int    `json:"capacity"`
	Active    bool   `json:"active" gorm:"not null;index"`
}

// ClassPricing holds the single active monthly tuition for a class.
type ClassPricing struct {
	BaseModel
	ClassID             uint  `json:"class_id" gorm:"not null;uniqueIndex"`
	MonthlyTuitionCents int64 `json:"monthly_tuition_cents" gorm:"not null;default:0"`
}

// Enrollment links a student to a class.
type Enrollment struct {
	BaseModel
	StudentID uint             `json:"student_id" gorm:"not null;index"`
	ClassID   uint             `json:"class_id" gorm:"not null;index"`
	StartDate time.Time        `json:"start_date"`
	EndDate   *time.Time       `json:"end_date"`
	Status    EnrollmentStatus `json:"status" gorm:"size:20;not null;default:'active';index"`
}

// Charge is a debit intent. Every charge has exactly one Debit ledger entry.
type Charge struct {
	AppendOnlyModel
	FamilyID    uint       `json:"family_id" gorm:"not null;index"`
	InvoiceID   *uint      `json:"invoice_id" gorm:"index"`
	PostedAt    time.Time  `json:"posted_at" gorm:"not null;index"`
	Kind        ChargeKind `json:"kind" gorm:"size:20;not null"`
	AmountCents int64      `json:"amount_cents" gorm:"not null"`
	Memo        string     `json:"memo" gorm:"size:500"`
}

// Payment is a credit. Status mirrors the processor's payment intent status,
// or "manual" for payments recorded by staff.
type Payment struct {
	BaseModel
	FamilyID           uint           `json:"family_id" gorm:"not null;index"`
	PaymentMethodID    *uint          `json:"payment_method_id"`
	Source             PaymentSource  `json:"source" gorm:"size:20;not null"`
	PostedAt           time.Time      `json:"posted_at" gorm:"not null;index"`
	AmountCents        int64          `json:"amount_cents" gorm:"not null"`
	Memo               string         `json:"memo" gorm:"size:500"`
	ProcessorPaymentID string         `json:"processor_payment_id" gorm:"size:100;index"`
	Status             string         `json:"status" gorm:"size:40;not null"`
	IdempotencyKey     *string        `json:"-" gorm:"size:100;uniqueIndex"`
	ProcessorResponse  datatypes.JSON `json:"-"`
}

// LedgerEntry is the append-only source of truth for balances. The amount is
// always positive; Type carries the sign.
type LedgerEntry struct {
	AppendOnlyModel
	FamilyID    uint            `json:"family_id" gorm:"not null;index"`
	InvoiceID   *uint           `json:"invoice_id" gorm:"index"`
	ChargeID    *uint           `json:"charge_id" gorm:"index"`
	PaymentID   *uint           `json:"payment_id" gorm:"index"`
	PostedAt    time.Time       `json:"posted_at" gorm:"not null;index"`
	Type        LedgerEntryType `json:"type" gorm:"size:10;not null"`
	AmountCents int64           `json:"amount_cents" gorm:"not null"`
	Memo        string          `json:"memo" gorm:"size:500"`
}

// SignedCents returns the entry amount signed so that a positive sum means
// the family owes money.
func (e LedgerEntry) SignedCents() int64 {
	if e.Type == LedgerCredit {
		return -e.AmountCents
	}
	return e.AmountCents
}

// Invoice groups the tuition charges of one billing run.
type Invoice struct {
	BaseModel
	FamilyID    uint          `json:"family_id" gorm:"not null;index"`
	PeriodStart time.Time     `json:"period_start" gorm:"not null"`
	PeriodEnd   time.Time     `json:"period_end" gorm:"not null"`
	Status      InvoiceStatus `json:"status" gorm:"size:20;not null;default:'draft'"`
	TotalCents  int64         `json:"total_cents" gorm:"not null;default:0"`
	FinalizedAt *time.Time    `json:"finalized_at"`
}

// PaymentMethod is a tokenized reference to a processor-held card or bank account.
type PaymentMethod struct {
	BaseModel
	FamilyID                 uint              `json:"family_id" gorm:"not null;index"`
	Processor                string            `json:"processor" gorm:"size:20;not null;default:'stripe'"`
	ProcessorPaymentMethodID string            `json:"processor_payment_method_id" gorm:"size:100;not null;index"`
	Type                     PaymentMethodType `json:"type" gorm:"size:10;not null"`
	Brand                    string            `json:"brand" gorm:"size:50"`
	Last4                    string            `json:"last4" gorm:"size:4"`
	ExpMonth                 int               `json:"exp_month"`
	ExpYear                  int               `json:"exp_year"`
	IsDefault                bool              `json:"is_default" gorm:"not null;default:false"`
}

// AutopaySettings is keyed by family; a family has zero or one row.
type AutopaySettings struct {
	FamilyID               uint      `json:"family_id" gorm:"primaryKey;autoIncrement:false"`
	Enabled                bool      `json:"enabled" gorm:"not null;default:false"`
	DefaultPaymentMethodID *uint     `json:"default_payment_method_id"`
	DraftDay               int       `json:"draft_day" gorm:"not null;default:1"`
	GraceDays              int       `json:"grace_days" gorm:"not null;default:0"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// User is a login identity. Family users carry the FamilyID claim.
type User struct {
	BaseModel
	Username string `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Password string `json:"-" gorm:"size:255;not null"`
	Email    string `json:"email" gorm:"size:255"`
	Role     string `json:"role" gorm:"size:20;not null;default:'family'"`
	FamilyID *uint  `json:"family_id" gorm:"index"`
	Status   string `json:"status" gorm:"size:20;not null;default:'active'"`
}

// ActivityLog model
type ActivityLog struct {
	BaseModel
	UserID     uint           `json:"user_id" gorm:"index"`
	Action     string         `json:"action" gorm:"size:100;not null"`
	Resource   string         `json:"resource" gorm:"size:100;not null"`
	ResourceID uint           `json:"resource_id"`
	Details    datatypes.JSON `json:"details"`
	IPAddress  string         `json:"ip_address" gorm:"size:45"`
	UserAgent  string         `json:"user_agent" gorm:"size:500"`
}

// ArchiveRecord tracks an object written to the archive bucket.
type ArchiveRecord struct {
	BaseModel
	Kind        string     `json:"kind" gorm:"size:30;not null;index"` // activity_logs, statement
	FamilyID    *uint      `json:"family_id" gorm:"index"`
	FileName    string     `json:"file_name" gorm:"size:255;not null"`
	ObjectKey   string     `json:"object_key" gorm:"size:500;not null"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     time.Time  `json:"end_date"`
	RecordCount int        `json:"record_count"`
	FileSize    int64      `json:"file_size"`
	Status      string     `json:"status" gorm:"size:20;not null;default:'pending'"` // pending, completed, failed
	Error       string     `json:"error" gorm:"type:text"`
	CompletedAt *time.Time `json:"completed_at"`
}
