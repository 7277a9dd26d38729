package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kratos-host/provisioning-service/internal/models"
)

func terminationFixture(candidates ...models.TerminationCandidate) (*TerminationService, *fakeOrderStore, *fakeServiceStore, *fakePanel, *fakeNotifier) {
	orders := newFakeOrderStore()
	services := newFakeServiceStore()
	subscriptions := newFakeSubscriptionStore()
	subscriptions.expired = candidates
	panel := newFakePanel()
	notify := &fakeNotifier{}
	return NewTerminationService(orders, services, subscriptions, panel, notify), orders, services, panel, notify
}

func TestSweepExpired_TerminatesExpiredServices(t *testing.T) {
	serverID := 7
	svc := pendingGameService("user-1")
	svc.Status = models.ServiceStatusActive
	svc.RemoteServerID = &serverID

	order := unpaidOrder("order-1", "user-1")
	order.Status = models.OrderStatusActive
	order.TerminateAtPeriodEnd = true

	sweep, orders, services, panel, notify := terminationFixture(models.TerminationCandidate{
		OrderID:              "order-1",
		ServiceID:            svc.ID,
		StripeSubscriptionID: "sub_abc",
		RemoteServerID:       &serverID,
		CurrentPeriodEnd:     time.Now().Add(-time.Hour),
	})
	orders.orders["order-1"] = order
	require.NoError(t, services.Create(context.Background(), svc))

	result, err := sweep.SweepExpired(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"order-1"}, result.Succeeded)
	assert.Empty(t, result.Failed)
	assert.Equal(t, []int{7}, panel.deletedServers)

	storedOrder, err := orders.GetByID(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, storedOrder.Status)

	storedSvc, err := services.GetByID(context.Background(), svc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ServiceStatusCancelled, storedSvc.Status)

	assert.Contains(t, notify.titles, "Service terminated")
}

func TestSweepExpired_FailedDeleteKeepsCandidateForNextSweep(t *testing.T) {
	serverID := 7
	svc := pendingGameService("user-1")
	svc.Status = models.ServiceStatusActive

	sweep, orders, services, panel, _ := terminationFixture(models.TerminationCandidate{
		OrderID:        "order-1",
		ServiceID:      svc.ID,
		RemoteServerID: &serverID,
	})
	order := unpaidOrder("order-1", "user-1")
	order.Status = models.OrderStatusActive
	orders.orders["order-1"] = order
	require.NoError(t, services.Create(context.Background(), svc))
	panel.deleteErr = errors.New("panel unreachable")

	result, err := sweep.SweepExpired(context.Background())
	require.NoError(t, err)

	assert.Empty(t, result.Succeeded)
	assert.Equal(t, []string{"order-1"}, result.Failed)

	storedOrder, err := orders.GetByID(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusActive, storedOrder.Status)

	storedSvc, err := services.GetByID(context.Background(), svc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ServiceStatusActive, storedSvc.Status)
}

func TestSweepExpired_NoRemoteServerStillCancels(t *testing.T) {
	svc := pendingGameService("user-1")

	sweep, orders, services, panel, _ := terminationFixture(models.TerminationCandidate{
		OrderID:   "order-1",
		ServiceID: svc.ID,
	})
	order := unpaidOrder("order-1", "user-1")
	order.Status = models.OrderStatusActive
	orders.orders["order-1"] = order
	require.NoError(t, services.Create(context.Background(), svc))

	result, err := sweep.SweepExpired(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"order-1"}, result.Succeeded)
	assert.Empty(t, panel.deletedServers)
}

func TestSweepExpired_EmptySweep(t *testing.T) {
	sweep, _, _, _, _ := terminationFixture()

	result, err := sweep.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Succeeded)
	assert.Empty(t, result.Failed)
}
