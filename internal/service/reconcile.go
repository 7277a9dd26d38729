package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kratos-host/provisioning-service/internal/models"
	"github.com/kratos-host/provisioning-service/internal/repository"
)

// ReconcileService converges local order, subscription and service
// state to match the billing provider's, driven by signed webhook
// events. The provider is the source of truth; local writes are either
// pure mirrors or conditional transitions that are safe under redelivery.
type ReconcileService struct {
	orders        OrderStore
	services      ServiceStore
	subscriptions SubscriptionStore
	invoices      InvoiceStore
	billing       BillingAPI
	provisioner   *ProvisionService
	notify        Notifier

	suspendOnFailedPayment bool

	// spawn runs provisioning off the webhook request path. Tests
	// replace it to run inline.
	spawn func(fn func())
}

func NewReconcileService(
	orders OrderStore,
	services ServiceStore,
	subscriptions SubscriptionStore,
	invoices InvoiceStore,
	billing BillingAPI,
	provisioner *ProvisionService,
	notify Notifier,
	suspendOnFailedPayment bool,
) *ReconcileService {
	return &ReconcileService{
		orders:                 orders,
		services:               services,
		subscriptions:          subscriptions,
		invoices:               invoices,
		billing:                billing,
		provisioner:            provisioner,
		notify:                 notify,
		suspendOnFailedPayment: suspendOnFailedPayment,
		spawn:                  func(fn func()) { go fn() },
	}
}

// HandleBillingEvent dispatches one verified webhook event. A nil
// return acknowledges the event; an error tells the provider to retry.
// Events that cannot be correlated to an internal order are dropped
// with a log line and acknowledged, since retrying them can never help.
func (s *ReconcileService) HandleBillingEvent(ctx context.Context, event *models.BillingEvent) error {
	log.Printf("[ReconcileService] Processing event %s (%s)", event.ID, event.Type)

	switch event.Type {
	case models.EventSubscriptionCreated, models.EventSubscriptionUpdated, models.EventSubscriptionDeleted:
		return s.applySubscription(ctx, event)
	case models.EventInvoicePaid:
		return s.handleInvoicePaid(ctx, event)
	case models.EventInvoiceFailed, models.EventInvoiceUncollectible:
		return s.handleInvoiceFailed(ctx, event)
	case models.EventInvoiceCreated, models.EventInvoiceFinalized, models.EventInvoiceVoided:
		return s.recordInvoice(ctx, event)
	case models.EventInvoiceUpcoming:
		log.Printf("[ReconcileService] Upcoming invoice noted for event %s", event.ID)
		return nil
	default:
		log.Printf("[ReconcileService] Ignoring unhandled event type %s", event.Type)
		return nil
	}
}

// applySubscription mirrors a provider subscription object onto the
// local subscription row and moves the order state machine forward.
func (s *ReconcileService) applySubscription(ctx context.Context, event *models.BillingEvent) error {
	var sub models.BillingSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return fmt.Errorf("decode subscription object: %w", err)
	}

	orderID := sub.OrderID()
	if orderID == "" {
		log.Printf("[ReconcileService] Dropping subscription event %s: no order correlation", event.ID)
		return nil
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("[ReconcileService] Dropping subscription event %s: order %s not found", event.ID, orderID)
			return nil
		}
		return fmt.Errorf("get order %s: %w", orderID, err)
	}

	if err := s.mirrorSubscription(ctx, &sub, order); err != nil {
		return err
	}

	switch event.Type {
	case models.EventSubscriptionCreated:
		moved, err := s.orders.Transition(ctx, orderID, models.OrderStatusUnpaid, models.OrderStatusPending)
		if err != nil {
			return fmt.Errorf("transition order %s to pending: %w", orderID, err)
		}
		if moved {
			log.Printf("[ReconcileService] Order %s moved to PENDING", orderID)
		}

	case models.EventSubscriptionDeleted:
		return s.cancelOrderState(ctx, order, &sub)

	case models.EventSubscriptionUpdated:
		if sub.Status == "canceled" {
			return s.cancelOrderState(ctx, order, &sub)
		}
		if sub.CancelAtPeriodEnd {
			canceledAt := time.Now()
			if sub.CanceledAt > 0 {
				canceledAt = time.Unix(sub.CanceledAt, 0)
			}
			if err := s.subscriptions.SetCancelFlags(ctx, sub.ID, canceledAt); err != nil {
				return fmt.Errorf("set cancel flags: %w", err)
			}
		} else {
			if err := s.subscriptions.ClearCancelFlags(ctx, sub.ID); err != nil {
				return fmt.Errorf("clear cancel flags: %w", err)
			}
		}
	}
	return nil
}

func (s *ReconcileService) mirrorSubscription(ctx context.Context, sub *models.BillingSubscription, order *models.Order) error {
	mirror := &models.Subscription{
		StripeSubscriptionID: sub.ID,
		OrderID:              order.ID,
		UserID:               order.UserID,
		ServiceID:            order.ServiceID,
		Status:               sub.Status,
		CurrentPeriodStart:   time.Unix(sub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:     time.Unix(sub.CurrentPeriodEnd, 0),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
	if sub.CanceledAt > 0 {
		t := time.Unix(sub.CanceledAt, 0)
		mirror.CanceledAt = &t
	}
	if err := s.subscriptions.Upsert(ctx, mirror); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", sub.ID, err)
	}
	return nil
}

func (s *ReconcileService) cancelOrderState(ctx context.Context, order *models.Order, sub *models.BillingSubscription) error {
	if order.Status == models.OrderStatusCancelled {
		return nil
	}
	now := time.Now()
	if err := s.orders.SetCancelled(ctx, order.ID, now); err != nil {
		return fmt.Errorf("cancel order %s: %w", order.ID, err)
	}
	if order.ServiceID != nil {
		if err := s.services.MarkCancelled(ctx, *order.ServiceID, now); err != nil {
			return fmt.Errorf("cancel service %s: %w", *order.ServiceID, err)
		}
	}
	if err := s.subscriptions.SetCancelFlags(ctx, sub.ID, now); err != nil {
		return fmt.Errorf("set cancel flags: %w", err)
	}
	log.Printf("[ReconcileService] Order %s cancelled (subscription %s)", order.ID, sub.ID)
	return nil
}

// handleInvoicePaid records the payment and, for the first invoice of a
// new subscription, kicks off provisioning exactly once. Redeliveries
// are harmless: the invoice upsert is idempotent and the order
// transition fires only for the first delivery.
func (s *ReconcileService) handleInvoicePaid(ctx context.Context, event *models.BillingEvent) error {
	var inv models.BillingInvoice
	if err := json.Unmarshal(event.Data.Object, &inv); err != nil {
		return fmt.Errorf("decode invoice object: %w", err)
	}

	order, err := s.correlateInvoice(ctx, &inv, event.ID)
	if err != nil || order == nil {
		return err
	}

	if err := s.upsertInvoice(ctx, &inv, order, models.InvoiceStatusPaid); err != nil {
		return err
	}

	if inv.BillingReason == models.BillingReasonSubscriptionCreate {
		return s.activateAndProvision(ctx, order)
	}

	// Renewal payment. A service suspended for non-payment comes back.
	if order.ServiceID != nil {
		svc, err := s.services.GetByID(ctx, *order.ServiceID)
		if err == nil && svc.Status == models.ServiceStatusSuspended {
			if err := s.services.UpdateStatus(ctx, svc.ID, models.ServiceStatusActive); err != nil {
				return fmt.Errorf("unsuspend service %s: %w", svc.ID, err)
			}
			log.Printf("[ReconcileService] Service %s unsuspended after renewal payment", svc.ID)
		}
	}
	return nil
}

func (s *ReconcileService) activateAndProvision(ctx context.Context, order *models.Order) error {
	moved, err := s.orders.Transition(ctx, order.ID, models.OrderStatusPending, models.OrderStatusActive)
	if err != nil {
		return fmt.Errorf("activate order %s: %w", order.ID, err)
	}
	if !moved {
		log.Printf("[ReconcileService] Order %s already processed, skipping provisioning", order.ID)
		return nil
	}

	serviceType := models.ServiceTypeGameServer
	if len(order.Items) > 0 {
		serviceType = order.Items[0].ServiceType
	}

	svc, err := s.services.GetPendingByUserAndType(ctx, order.UserID, serviceType)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: order %s paid but no pending service exists", ErrInvariant, order.ID)
		}
		return fmt.Errorf("find pending service for order %s: %w", order.ID, err)
	}

	orderID := order.ID
	s.spawn(func() {
		bgctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		activated, err := s.provisioner.Provision(bgctx, svc)
		if err != nil {
			log.Printf("[ReconcileService] Provisioning failed for order %s: %v", orderID, err)
			s.notify.Notify(bgctx, "Provisioning failed",
				fmt.Sprintf("Order %s paid but provisioning failed", orderID),
				map[string]string{"order": orderID, "error": err.Error()})
			return
		}
		if err := s.orders.SetService(bgctx, orderID, activated.ID); err != nil {
			log.Printf("[ReconcileService] Failed to link service %s to order %s: %v", activated.ID, orderID, err)
		}
	})
	return nil
}

func (s *ReconcileService) handleInvoiceFailed(ctx context.Context, event *models.BillingEvent) error {
	var inv models.BillingInvoice
	if err := json.Unmarshal(event.Data.Object, &inv); err != nil {
		return fmt.Errorf("decode invoice object: %w", err)
	}

	order, err := s.correlateInvoice(ctx, &inv, event.ID)
	if err != nil || order == nil {
		return err
	}

	if err := s.upsertInvoice(ctx, &inv, order, models.InvoiceStatusFailed); err != nil {
		return err
	}

	s.notify.Notify(ctx, "Payment failed",
		fmt.Sprintf("Invoice %s for order %s failed to collect", inv.ID, order.ID),
		map[string]string{"order": order.ID, "invoice": inv.ID})

	if s.suspendOnFailedPayment && order.ServiceID != nil {
		if err := s.services.UpdateStatus(ctx, *order.ServiceID, models.ServiceStatusSuspended); err != nil {
			return fmt.Errorf("suspend service %s: %w", *order.ServiceID, err)
		}
		log.Printf("[ReconcileService] Service %s suspended after failed payment", *order.ServiceID)
	}
	return nil
}

func (s *ReconcileService) recordInvoice(ctx context.Context, event *models.BillingEvent) error {
	var inv models.BillingInvoice
	if err := json.Unmarshal(event.Data.Object, &inv); err != nil {
		return fmt.Errorf("decode invoice object: %w", err)
	}

	order, err := s.correlateInvoice(ctx, &inv, event.ID)
	if err != nil || order == nil {
		return err
	}
	return s.upsertInvoice(ctx, &inv, order, models.MapInvoiceStatus(inv.Status))
}

// correlateInvoice resolves the internal order an invoice belongs to.
// The local subscription mirror is tried first; a cache miss falls back
// to fetching the subscription from the provider and reading its
// metadata. A nil, nil return means the event is uncorrelated and must
// be acknowledged without action.
func (s *ReconcileService) correlateInvoice(ctx context.Context, inv *models.BillingInvoice, eventID string) (*models.Order, error) {
	if inv.Subscription == "" {
		log.Printf("[ReconcileService] Dropping invoice event %s: no subscription reference", eventID)
		return nil, nil
	}

	var orderID string
	mirror, err := s.subscriptions.GetByStripeID(ctx, inv.Subscription)
	switch {
	case err == nil:
		orderID = mirror.OrderID
	case errors.Is(err, repository.ErrNotFound):
		sub, err := s.billing.GetSubscription(ctx, inv.Subscription)
		if err != nil {
			return nil, fmt.Errorf("fetch subscription %s: %w", inv.Subscription, err)
		}
		orderID = sub.OrderID()
	default:
		return nil, fmt.Errorf("lookup subscription %s: %w", inv.Subscription, err)
	}

	if orderID == "" {
		log.Printf("[ReconcileService] Dropping invoice event %s: subscription %s has no order correlation", eventID, inv.Subscription)
		return nil, nil
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("[ReconcileService] Dropping invoice event %s: order %s not found", eventID, orderID)
			return nil, nil
		}
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return order, nil
}

func (s *ReconcileService) upsertInvoice(ctx context.Context, inv *models.BillingInvoice, order *models.Order, status string) error {
	row := &models.Invoice{
		StripeInvoiceID: inv.ID,
		OrderID:         order.ID,
		UserID:          order.UserID,
		Amount:          float64(inv.AmountDue) / 100,
		Status:          status,
		PeriodStart:     time.Unix(inv.PeriodStart, 0),
		PeriodEnd:       time.Unix(inv.PeriodEnd, 0),
	}
	if status == models.InvoiceStatusPaid {
		now := time.Now()
		row.PaidAt = &now
	}
	if err := s.invoices.UpsertByStripeID(ctx, row); err != nil {
		return fmt.Errorf("upsert invoice %s: %w", inv.ID, err)
	}
	return nil
}
