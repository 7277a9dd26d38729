package models

import "encoding/json"

// Billing provider webhook event types handled by the reconcile service
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"

	EventInvoiceCreated       = "invoice.created"
	EventInvoiceFinalized     = "invoice.finalized"
	EventInvoicePaid          = "invoice.payment_succeeded"
	EventInvoiceFailed        = "invoice.payment_failed"
	EventInvoiceUpcoming      = "invoice.upcoming"
	EventInvoiceVoided        = "invoice.voided"
	EventInvoiceUncollectible = "invoice.marked_uncollectible"
)

// MetadataOrderID is the correlation key the checkout flow embeds in
// every provider subscription so webhook events can be joined back to
// the internal order.
const MetadataOrderID = "orderId"

// BillingReasonSubscriptionCreate marks the first invoice of a new
// subscription; its successful payment triggers provisioning.
const BillingReasonSubscriptionCreate = "subscription_create"

// BillingEvent is the signed webhook envelope from the billing provider
type BillingEvent struct {
	ID   string           `json:"id"`
	Type string           `json:"type"`
	Data BillingEventData `json:"data"`
}

type BillingEventData struct {
	Object json.RawMessage `json:"object"`
}

// BillingInvoice is the provider's invoice object as delivered in
// invoice.* events. Amounts are in cents, timestamps in unix seconds.
type BillingInvoice struct {
	ID            string `json:"id"`
	Subscription  string `json:"subscription"`
	Status        string `json:"status"`
	AmountDue     int64  `json:"amount_due"`
	BillingReason string `json:"billing_reason"`
	PeriodStart   int64  `json:"period_start"`
	PeriodEnd     int64  `json:"period_end"`
}

// BillingSubscription is the provider's subscription object as
// delivered in customer.subscription.* events or fetched directly.
type BillingSubscription struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         int64             `json:"canceled_at"`
	Metadata           map[string]string `json:"metadata"`
}

// OrderID returns the internal order correlation id, or "" when the
// provider object was created outside the checkout flow.
func (s *BillingSubscription) OrderID() string {
	return s.Metadata[MetadataOrderID]
}
