package models

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCanceled  EnrollmentStatus = "canceled"
)

func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentActive, EnrollmentCompleted, EnrollmentCanceled:
		return true
	}
	return false
}

type ChargeKind string

const (
	ChargeTuition    ChargeKind = "tuition"
	ChargeFee        ChargeKind = "fee"
	ChargeAdjustment ChargeKind = "adjustment"
)

func (k ChargeKind) Valid() bool {
	switch k {
	case ChargeTuition, ChargeFee, ChargeAdjustment:
		return true
	}
	return false
}

type LedgerEntryType string

const (
	LedgerDebit  LedgerEntryType = "debit"
	LedgerCredit LedgerEntryType = "credit"
)

func (t LedgerEntryType) Valid() bool {
	return t == LedgerDebit || t == LedgerCredit
}

type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceFinalized InvoiceStatus = "finalized"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceFailed    InvoiceStatus = "failed"
)

type PaymentMethodType string

const (
	PaymentMethodCard PaymentMethodType = "card"
	PaymentMethodBank PaymentMethodType = "bank"
)

// PaymentSource records which path created a payment.
type PaymentSource string

const (
	PaymentSourceManual  PaymentSource = "manual"
	PaymentSourceOnline  PaymentSource = "online"
	PaymentSourceAutopay PaymentSource = "autopay"
)

// PaymentStatusManual is the status of payments recorded by staff.
const PaymentStatusManual = "manual"

// User roles and statuses
const (
	RoleAdmin  = "admin"
	RoleFamily = "family"

	UserActive   = "active"
	UserInactive = "inactive"
)

// Archive kinds
const (
	ArchiveActivityLogs = "activity_logs"
	ArchiveStatement    = "statement"
)
