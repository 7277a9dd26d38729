package models

// ==================== Request DTOs ====================

// CancelOrderRequest cancels an order. With TerminateAtPeriodEnd set
// the order stays active until the billing period ends and the server
// is removed by the termination sweep; otherwise cancellation is
// immediate.
type CancelOrderRequest struct {
	TerminateAtPeriodEnd bool `json:"terminate_at_period_end"`
}

// AutoRenewRequest toggles subscription auto-renewal for an order
type AutoRenewRequest struct {
	AutoRenew bool `json:"auto_renew"`
}

// FinalizeCheckoutRequest completes checkout once the payment method
// setup succeeded: it creates the provider subscription and the
// placeholder PENDING service the first payment will promote.
type FinalizeCheckoutRequest struct {
	OrderID       string `json:"order_id" binding:"required"`
	UserID        string `json:"user_id" binding:"required"`
	SetupIntentID string `json:"setup_intent_id" binding:"required"`
}

// PowerActionRequest sends a power signal to a provisioned server
type PowerActionRequest struct {
	Action string `json:"action" binding:"required"`
}

// CommandRequest sends a console command to a provisioned server
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// ==================== Response DTOs ====================

// FinalizeCheckoutResponse reports the created subscription and service
type FinalizeCheckoutResponse struct {
	SubscriptionID string `json:"subscription_id"`
	ServiceID      string `json:"service_id"`
	Status         string `json:"status"`
	Message        string `json:"message"`
}

// WebhookAck acknowledges a processed billing webhook
type WebhookAck struct {
	Received  bool   `json:"received"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// TerminationResult is the batch outcome of one termination sweep.
// Succeeded and Failed hold order ids; a failed remote delete keeps the
// service out of Succeeded so the next sweep retries it.
type TerminationResult struct {
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
}

// OrderResponse is the user-facing order view
type OrderResponse struct {
	ID                   string              `json:"id"`
	Status               string              `json:"status"`
	TotalAmount          float64             `json:"total_amount"`
	AutoRenew            bool                `json:"auto_renew"`
	TerminateAtPeriodEnd bool                `json:"terminate_at_period_end"`
	ServiceID            *string             `json:"service_id,omitempty"`
	Items                []OrderItemResponse `json:"items"`
	Subscription         *SubscriptionInfo   `json:"subscription,omitempty"`
}

type OrderItemResponse struct {
	PlanID    string  `json:"plan_id"`
	PlanName  string  `json:"plan_name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

type SubscriptionInfo struct {
	Status            string `json:"status"`
	CurrentPeriodEnd  string `json:"current_period_end"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}
