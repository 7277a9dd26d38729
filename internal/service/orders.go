package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kratos-host/provisioning-service/internal/models"
	"github.com/kratos-host/provisioning-service/internal/repository"
)

// OrderService handles user-initiated order operations: checkout
// finalization, cancellation, reactivation and auto-renew toggles.
// Every operation that changes billing state talks to the provider
// FIRST and mutates local state only after the provider confirmed, so a
// provider failure never leaves the two sides disagreeing.
type OrderService struct {
	orders        OrderStore
	services      ServiceStore
	subscriptions SubscriptionStore
	billing       BillingAPI
	panel         PanelAPI
	notify        Notifier
}

func NewOrderService(orders OrderStore, services ServiceStore, subscriptions SubscriptionStore, billing BillingAPI, panel PanelAPI, notify Notifier) *OrderService {
	return &OrderService{
		orders:        orders,
		services:      services,
		subscriptions: subscriptions,
		billing:       billing,
		panel:         panel,
		notify:        notify,
	}
}

// FinalizeCheckout completes a checkout after the customer's payment
// method setup succeeded. It creates the provider subscription (with
// the order id stamped into metadata for webhook correlation) and the
// placeholder PENDING service that the first payment will promote.
func (s *OrderService) FinalizeCheckout(ctx context.Context, req *models.FinalizeCheckoutRequest) (*models.FinalizeCheckoutResponse, error) {
	order, err := s.orders.GetForUser(ctx, req.OrderID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.Status != models.OrderStatusUnpaid {
		return nil, fmt.Errorf("%w: order %s is %s, expected UNPAID", ErrInvariant, order.ID, order.Status)
	}
	if len(order.Items) == 0 {
		return nil, fmt.Errorf("%w: order %s has no items", ErrInvariant, order.ID)
	}

	status, paymentMethod, customerID, err := s.billing.RetrieveSetupIntent(ctx, req.SetupIntentID)
	if err != nil {
		return nil, fmt.Errorf("retrieve setup intent: %w", err)
	}
	if status != "succeeded" {
		return nil, fmt.Errorf("%w: setup intent %s is %s, expected succeeded", ErrInvariant, req.SetupIntentID, status)
	}

	item := order.Items[0]
	amountCents := int64(math.Round(order.TotalAmount * 100))
	priceID, err := s.billing.CreatePrice(ctx, item.PlanName, amountCents, "usd")
	if err != nil {
		return nil, fmt.Errorf("create price: %w", err)
	}

	sub, err := s.billing.CreateSubscription(ctx, customerID, priceID, paymentMethod, order.ID)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	log.Printf("[OrderService] Subscription %s created for order %s", sub.ID, order.ID)

	svc := &models.Service{
		ID:     uuid.New().String(),
		Type:   item.ServiceType,
		UserID: order.UserID,
		Status: models.ServiceStatusPending,
		Config: item.Configuration,
	}
	if err := s.services.Create(ctx, svc); err != nil {
		return nil, fmt.Errorf("create pending service: %w", err)
	}

	mirror := &models.Subscription{
		StripeSubscriptionID: sub.ID,
		OrderID:              order.ID,
		UserID:               order.UserID,
		Status:               sub.Status,
		CurrentPeriodStart:   time.Unix(sub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:     time.Unix(sub.CurrentPeriodEnd, 0),
	}
	if err := s.subscriptions.Upsert(ctx, mirror); err != nil {
		return nil, fmt.Errorf("upsert subscription mirror: %w", err)
	}

	return &models.FinalizeCheckoutResponse{
		SubscriptionID: sub.ID,
		ServiceID:      svc.ID,
		Status:         models.OrderStatusPending,
		Message:        "subscription created, awaiting first payment",
	}, nil
}

// CancelOrder cancels an order's subscription. With terminateAtPeriodEnd
// the subscription lapses at the period boundary and the termination
// sweep removes the server later; otherwise the subscription and server
// are torn down immediately.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID string, terminateAtPeriodEnd bool) error {
	order, err := s.orders.GetForUser(ctx, orderID, userID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order.Status == models.OrderStatusCancelled {
		return fmt.Errorf("%w: order %s already cancelled", ErrInvariant, orderID)
	}

	mirror, err := s.subscriptions.GetByOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get subscription for order %s: %w", orderID, err)
	}

	if terminateAtPeriodEnd {
		if _, err := s.billing.SetCancelAtPeriodEnd(ctx, mirror.StripeSubscriptionID, true); err != nil {
			return fmt.Errorf("schedule cancellation: %w", err)
		}
		now := time.Now()
		if err := s.orders.SetTerminateAtPeriodEnd(ctx, orderID, true); err != nil {
			return fmt.Errorf("flag order: %w", err)
		}
		if err := s.subscriptions.SetCancelFlags(ctx, mirror.StripeSubscriptionID, now); err != nil {
			return fmt.Errorf("flag subscription: %w", err)
		}
		if order.ServiceID != nil {
			if err := s.services.SetPendingCancellation(ctx, *order.ServiceID, mirror.CurrentPeriodEnd); err != nil {
				return fmt.Errorf("flag service: %w", err)
			}
		}
		log.Printf("[OrderService] Order %s scheduled for termination at %s", orderID, mirror.CurrentPeriodEnd.Format(time.RFC3339))
		return nil
	}

	if err := s.billing.CancelSubscription(ctx, mirror.StripeSubscriptionID); err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}

	now := time.Now()
	if err := s.orders.SetCancelled(ctx, orderID, now); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if order.ServiceID != nil {
		svc, err := s.services.GetByID(ctx, *order.ServiceID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("get service: %w", err)
		}
		if svc != nil {
			if svc.RemoteServerID != nil {
				if err := s.panel.DeleteServer(ctx, *svc.RemoteServerID); err != nil {
					log.Printf("[OrderService] Failed to delete server %d for cancelled order %s: %v", *svc.RemoteServerID, orderID, err)
				}
			}
			if err := s.services.MarkCancelled(ctx, svc.ID, now); err != nil {
				return fmt.Errorf("cancel service: %w", err)
			}
		}
	}

	log.Printf("[OrderService] Order %s cancelled immediately", orderID)
	s.notify.Notify(ctx, "Order cancelled",
		fmt.Sprintf("Order %s was cancelled by the customer", orderID),
		map[string]string{"order": orderID})
	return nil
}

// Reactivate undoes a scheduled cancellation. The provider call goes
// first: if it fails, no local flag is touched, so the order never
// claims to be active while the provider still plans to lapse it.
func (s *OrderService) Reactivate(ctx context.Context, orderID, userID string) error {
	order, err := s.orders.GetForUser(ctx, orderID, userID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if !order.TerminateAtPeriodEnd && order.Status != models.OrderStatusCancelled {
		return fmt.Errorf("%w: order %s has no pending cancellation", ErrInvariant, orderID)
	}

	mirror, err := s.subscriptions.GetByOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get subscription for order %s: %w", orderID, err)
	}

	sub, err := s.billing.SetCancelAtPeriodEnd(ctx, mirror.StripeSubscriptionID, false)
	if err != nil {
		return fmt.Errorf("reactivate subscription: %w", err)
	}
	if sub.Status == "canceled" {
		return fmt.Errorf("%w: subscription %s already lapsed at the provider", ErrInvariant, mirror.StripeSubscriptionID)
	}

	if err := s.orders.SetReactivated(ctx, orderID); err != nil {
		return fmt.Errorf("reactivate order: %w", err)
	}
	if err := s.subscriptions.ClearCancelFlags(ctx, mirror.StripeSubscriptionID); err != nil {
		return fmt.Errorf("clear subscription flags: %w", err)
	}
	if order.ServiceID != nil {
		if err := s.services.ClearPendingCancellation(ctx, *order.ServiceID); err != nil {
			return fmt.Errorf("clear service flags: %w", err)
		}
	}

	log.Printf("[OrderService] Order %s reactivated", orderID)
	return nil
}

// SetAutoRenew toggles subscription auto-renewal for an order
func (s *OrderService) SetAutoRenew(ctx context.Context, orderID, userID string, autoRenew bool) error {
	order, err := s.orders.GetForUser(ctx, orderID, userID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order.Status != models.OrderStatusActive {
		return fmt.Errorf("%w: order %s is %s, expected ACTIVE", ErrInvariant, orderID, order.Status)
	}

	mirror, err := s.subscriptions.GetByOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get subscription for order %s: %w", orderID, err)
	}

	if _, err := s.billing.SetCancelAtPeriodEnd(ctx, mirror.StripeSubscriptionID, !autoRenew); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if err := s.orders.SetAutoRenew(ctx, orderID, autoRenew); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

// GetOrder returns the user-facing view of an order with its
// subscription state attached when one exists.
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID string) (*models.OrderResponse, error) {
	order, err := s.orders.GetForUser(ctx, orderID, userID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	resp := &models.OrderResponse{
		ID:                   order.ID,
		Status:               order.Status,
		TotalAmount:          order.TotalAmount,
		AutoRenew:            order.AutoRenew,
		TerminateAtPeriodEnd: order.TerminateAtPeriodEnd,
		ServiceID:            order.ServiceID,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, models.OrderItemResponse{
			PlanID:    item.PlanID,
			PlanName:  item.PlanName,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	mirror, err := s.subscriptions.GetByOrderID(ctx, orderID)
	if err == nil {
		resp.Subscription = &models.SubscriptionInfo{
			Status:            mirror.Status,
			CurrentPeriodEnd:  mirror.CurrentPeriodEnd.Format(time.RFC3339),
			CancelAtPeriodEnd: mirror.CancelAtPeriodEnd,
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return resp, nil
}
