package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kratos-host/provisioning-service/internal/models"
)

// TerminationService tears down services whose subscriptions lapsed at
// the end of a billing period. It is driven by an external cron hitting
// the internal API, so a missed run only delays termination.
type TerminationService struct {
	orders        OrderStore
	services      ServiceStore
	subscriptions SubscriptionStore
	panel         PanelAPI
	notify        Notifier
}

func NewTerminationService(orders OrderStore, services ServiceStore, subscriptions SubscriptionStore, panel PanelAPI, notify Notifier) *TerminationService {
	return &TerminationService{
		orders:        orders,
		services:      services,
		subscriptions: subscriptions,
		panel:         panel,
		notify:        notify,
	}
}

// SweepExpired terminates every service whose billing period has ended
// with termination scheduled. The remote server is deleted first; local
// state is only marked cancelled once the control-plane delete
// succeeded, so a failed delete leaves the candidate for the next
// sweep instead of stranding a running server nobody pays for.
func (t *TerminationService) SweepExpired(ctx context.Context) (*models.TerminationResult, error) {
	now := time.Now()
	candidates, err := t.subscriptions.ListExpiredPendingTermination(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list termination candidates: %w", err)
	}

	result := &models.TerminationResult{}
	for _, c := range candidates {
		if c.RemoteServerID != nil {
			if err := t.panel.DeleteServer(ctx, *c.RemoteServerID); err != nil {
				log.Printf("[TerminationService] Failed to delete server %d for order %s, will retry next sweep: %v",
					*c.RemoteServerID, c.OrderID, err)
				result.Failed = append(result.Failed, c.OrderID)
				continue
			}
		}

		if err := t.services.MarkCancelled(ctx, c.ServiceID, now); err != nil {
			log.Printf("[TerminationService] Failed to mark service %s cancelled: %v", c.ServiceID, err)
			result.Failed = append(result.Failed, c.OrderID)
			continue
		}
		if err := t.orders.SetCancelled(ctx, c.OrderID, now); err != nil {
			log.Printf("[TerminationService] Failed to mark order %s cancelled: %v", c.OrderID, err)
			result.Failed = append(result.Failed, c.OrderID)
			continue
		}

		result.Succeeded = append(result.Succeeded, c.OrderID)
		t.notify.Notify(ctx, "Service terminated",
			fmt.Sprintf("Order %s lapsed at period end and its server was removed", c.OrderID),
			map[string]string{
				"order":      c.OrderID,
				"service":    c.ServiceID,
				"period_end": c.CurrentPeriodEnd.Format(time.RFC3339),
			})
	}

	log.Printf("[TerminationService] Sweep complete: %d terminated, %d failed of %d candidates",
		len(result.Succeeded), len(result.Failed), len(candidates))
	return result, nil
}
