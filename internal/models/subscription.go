package models

import "time"

// Subscription mirrors the billing provider's subscription object. The
// provider is the source of truth; this record converges to match it
// and is only mutated locally for pending-cancel flags awaiting
// provider confirmation.
type Subscription struct {
	ID                   string
	StripeSubscriptionID string
	OrderID              string
	UserID               string
	ServiceID            *string
	Status               string
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	CancelAtPeriodEnd    bool
	CanceledAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Invoice status constants (provider statuses mapped to internal form)
const (
	InvoiceStatusDraft   = "DRAFT"
	InvoiceStatusPending = "PENDING"
	InvoiceStatusPaid    = "PAID"
	InvoiceStatusFailed  = "FAILED"
	InvoiceStatusVoid    = "VOID"
)

// Invoice is one row per billing-provider invoice, keyed by the
// external invoice id for idempotent upsert.
type Invoice struct {
	ID              string
	StripeInvoiceID string
	OrderID         string
	UserID          string
	Amount          float64
	Status          string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	PaidAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MapInvoiceStatus converts a provider invoice status to internal form
func MapInvoiceStatus(providerStatus string) string {
	switch providerStatus {
	case "draft":
		return InvoiceStatusDraft
	case "open":
		return InvoiceStatusPending
	case "paid":
		return InvoiceStatusPaid
	case "uncollectible":
		return InvoiceStatusFailed
	case "void":
		return InvoiceStatusVoid
	default:
		return InvoiceStatusPending
	}
}

// TerminationCandidate is an expired subscription joined with its order
// and service, as returned by the termination sweep query.
type TerminationCandidate struct {
	OrderID              string
	ServiceID            string
	StripeSubscriptionID string
	RemoteServerID       *int
	CurrentPeriodEnd     time.Time
}
