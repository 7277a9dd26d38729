package models

import "time"

// Order status constants. Transitions are driven by the reconcile
// service and explicit user cancel/reactivate actions only.
const (
	OrderStatusUnpaid    = "UNPAID"
	OrderStatusPending   = "PENDING"
	OrderStatusActive    = "ACTIVE"
	OrderStatusCancelled = "CANCELLED"
)

// Order represents a checkout order for one or more hosted-service plans
type Order struct {
	ID                   string
	UserID               string
	Status               string
	TotalAmount          float64
	ServiceID            *string
	AutoRenew            bool
	TerminateAtPeriodEnd bool
	CancelledAt          *time.Time
	Items                []OrderItem
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// OrderItem is a purchased plan line. Immutable once the order is paid.
type OrderItem struct {
	ID            string
	OrderID       string
	PlanID        string
	PlanName      string
	ServiceType   string
	Configuration ServiceConfig
	UnitPrice     float64
	Quantity      int
}
