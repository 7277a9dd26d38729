package service

import (
	"context"
	"errors"
	"time"

	"github.com/kratos-host/provisioning-service/internal/models"
)

// Sentinel errors shared by the service layer. Handlers map these to
// HTTP statuses; everything else is treated as an internal failure.
var (
	ErrUnsupported    = errors.New("service type not supported")
	ErrNoCandidates   = errors.New("no nodes available")
	ErrNoFeasibleNode = errors.New("no node can satisfy the resource requirement")
	ErrInvariant      = errors.New("invariant violation")
)

// PanelAPI is the control-plane surface the services depend on
type PanelAPI interface {
	ListNodes(ctx context.Context) ([]models.NodeCandidate, error)
	ListFreeAllocations(ctx context.Context, nodeID int) ([]models.Allocation, error)
	CreateServer(ctx context.Context, params *models.ServerCreateParams) (*models.PanelServer, error)
	DeleteServer(ctx context.Context, serverID int) error
	GetServerUtilization(ctx context.Context, identifier string) (*models.ServerUtilization, error)
	GetConsoleLogs(ctx context.Context, identifier string) ([]string, error)
	SendCommand(ctx context.Context, identifier, command string) error
	SendPowerAction(ctx context.Context, identifier, action string) error
}

// BillingAPI is the billing provider surface the services depend on
type BillingAPI interface {
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	RetrieveSetupIntent(ctx context.Context, intentID string) (status, paymentMethod, customerID string, err error)
	CreatePrice(ctx context.Context, productName string, amountCents int64, currency string) (string, error)
	CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID, orderID string) (*models.BillingSubscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*models.BillingSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	GetSubscription(ctx context.Context, subscriptionID string) (*models.BillingSubscription, error)
}

// Notifier delivers best-effort operational notifications
type Notifier interface {
	Notify(ctx context.Context, title, message string, fields map[string]string)
}

// OrderStore is the order persistence surface
type OrderStore interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetForUser(ctx context.Context, id, userID string) (*models.Order, error)
	Transition(ctx context.Context, id, from, to string) (bool, error)
	SetService(ctx context.Context, id, serviceID string) error
	SetCancelled(ctx context.Context, id string, at time.Time) error
	SetTerminateAtPeriodEnd(ctx context.Context, id string, terminate bool) error
	SetReactivated(ctx context.Context, id string) error
	SetAutoRenew(ctx context.Context, id string, autoRenew bool) error
}

// ServiceStore is the service persistence surface
type ServiceStore interface {
	Create(ctx context.Context, svc *models.Service) error
	GetByID(ctx context.Context, id string) (*models.Service, error)
	GetForUser(ctx context.Context, id, userID string) (*models.Service, error)
	GetPendingByUserAndType(ctx context.Context, userID, serviceType string) (*models.Service, error)
	ActivatePendingByUserAndType(ctx context.Context, userID, serviceType string, remoteServerID, nodeID int) (*models.Service, error)
	UpdateStatus(ctx context.Context, id, status string) error
	MarkCancelled(ctx context.Context, id string, at time.Time) error
	SetPendingCancellation(ctx context.Context, id string, terminationDate time.Time) error
	ClearPendingCancellation(ctx context.Context, id string) error
}

// SubscriptionStore is the subscription-mirror persistence surface
type SubscriptionStore interface {
	Upsert(ctx context.Context, sub *models.Subscription) error
	GetByOrderID(ctx context.Context, orderID string) (*models.Subscription, error)
	GetByStripeID(ctx context.Context, stripeID string) (*models.Subscription, error)
	SetCancelFlags(ctx context.Context, stripeID string, canceledAt time.Time) error
	ClearCancelFlags(ctx context.Context, stripeID string) error
	ListExpiredPendingTermination(ctx context.Context, now time.Time) ([]models.TerminationCandidate, error)
}

// InvoiceStore is the invoice persistence surface
type InvoiceStore interface {
	UpsertByStripeID(ctx context.Context, inv *models.Invoice) error
	GetByStripeID(ctx context.Context, stripeInvoiceID string) (*models.Invoice, error)
}

// DeploymentStore records provisioning attempts for audit
type DeploymentStore interface {
	Create(ctx context.Context, dep *models.ServiceDeployment) error
	AppendLog(ctx context.Context, deploymentID, line string) error
	UpdateStatus(ctx context.Context, deploymentID, status string) error
}
