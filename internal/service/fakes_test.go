package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kratos-host/provisioning-service/internal/models"
	"github.com/kratos-host/provisioning-service/internal/repository"
)

// ==================== Panel fake ====================

type fakePanel struct {
	mu sync.Mutex

	nodes       []models.NodeCandidate
	nodesErr    error
	allocations map[int][]models.Allocation
	allocErr    map[int]error

	createdServers []*models.ServerCreateParams
	createErr      error
	nextServerID   int

	deletedServers []int
	deleteErr      error

	powerActions []string
	commands     []string
}

func newFakePanel() *fakePanel {
	return &fakePanel{
		allocations:  map[int][]models.Allocation{},
		allocErr:     map[int]error{},
		nextServerID: 100,
	}
}

func (f *fakePanel) ListNodes(ctx context.Context) ([]models.NodeCandidate, error) {
	return f.nodes, f.nodesErr
}

func (f *fakePanel) ListFreeAllocations(ctx context.Context, nodeID int) ([]models.Allocation, error) {
	if err := f.allocErr[nodeID]; err != nil {
		return nil, err
	}
	return f.allocations[nodeID], nil
}

func (f *fakePanel) CreateServer(ctx context.Context, params *models.ServerCreateParams) (*models.PanelServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdServers = append(f.createdServers, params)
	f.nextServerID++
	return &models.PanelServer{
		ID:         f.nextServerID,
		Identifier: fmt.Sprintf("srv-%d", f.nextServerID),
		NodeID:     params.NodeID,
		Status:     "installing",
	}, nil
}

func (f *fakePanel) DeleteServer(ctx context.Context, serverID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedServers = append(f.deletedServers, serverID)
	return nil
}

func (f *fakePanel) GetServerUtilization(ctx context.Context, identifier string) (*models.ServerUtilization, error) {
	return &models.ServerUtilization{State: "running"}, nil
}

func (f *fakePanel) GetConsoleLogs(ctx context.Context, identifier string) ([]string, error) {
	return nil, nil
}

func (f *fakePanel) SendCommand(ctx context.Context, identifier, command string) error {
	f.commands = append(f.commands, command)
	return nil
}

func (f *fakePanel) SendPowerAction(ctx context.Context, identifier, action string) error {
	f.powerActions = append(f.powerActions, action)
	return nil
}

// ==================== Billing fake ====================

type fakeBilling struct {
	setupIntentStatus string
	paymentMethod     string
	customerID        string
	retrieveErr       error

	priceID   string
	priceErr  error
	createErr error

	createdSubs  []string
	subscription *models.BillingSubscription

	cancelAtPeriodEnd []bool
	updateErr         error
	updatedSub        *models.BillingSubscription

	cancelled []string
	cancelErr error

	fetched  map[string]*models.BillingSubscription
	fetchErr error
}

func newFakeBilling() *fakeBilling {
	return &fakeBilling{
		setupIntentStatus: "succeeded",
		paymentMethod:     "pm_test",
		customerID:        "cus_test",
		priceID:           "price_test",
		fetched:           map[string]*models.BillingSubscription{},
	}
}

func (f *fakeBilling) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	return f.customerID, nil
}

func (f *fakeBilling) RetrieveSetupIntent(ctx context.Context, intentID string) (string, string, string, error) {
	return f.setupIntentStatus, f.paymentMethod, f.customerID, f.retrieveErr
}

func (f *fakeBilling) CreatePrice(ctx context.Context, productName string, amountCents int64, currency string) (string, error) {
	return f.priceID, f.priceErr
}

func (f *fakeBilling) CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID, orderID string) (*models.BillingSubscription, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdSubs = append(f.createdSubs, orderID)
	if f.subscription != nil {
		return f.subscription, nil
	}
	return &models.BillingSubscription{
		ID:       "sub_test",
		Customer: customerID,
		Status:   "incomplete",
		Metadata: map[string]string{models.MetadataOrderID: orderID},
	}, nil
}

func (f *fakeBilling) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*models.BillingSubscription, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.cancelAtPeriodEnd = append(f.cancelAtPeriodEnd, cancel)
	if f.updatedSub != nil {
		return f.updatedSub, nil
	}
	return &models.BillingSubscription{ID: subscriptionID, Status: "active", CancelAtPeriodEnd: cancel}, nil
}

func (f *fakeBilling) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, subscriptionID)
	return nil
}

func (f *fakeBilling) GetSubscription(ctx context.Context, subscriptionID string) (*models.BillingSubscription, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if sub, ok := f.fetched[subscriptionID]; ok {
		return sub, nil
	}
	return &models.BillingSubscription{ID: subscriptionID, Metadata: map[string]string{}}, nil
}

// ==================== Notifier fake ====================

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (f *fakeNotifier) Notify(ctx context.Context, title, message string, fields map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
}

// ==================== Store fakes ====================

type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newFakeOrderStore(orders ...*models.Order) *fakeOrderStore {
	s := &fakeOrderStore{orders: map[string]*models.Order{}}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeOrderStore) GetByID(ctx context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (s *fakeOrderStore) GetForUser(ctx context.Context, id, userID string) (*models.Order, error) {
	o, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return o, nil
}

func (s *fakeOrderStore) Transition(ctx context.Context, id, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (s *fakeOrderStore) SetService(ctx context.Context, id, serviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		o.ServiceID = &serviceID
	}
	return nil
}

func (s *fakeOrderStore) SetCancelled(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		o.Status = models.OrderStatusCancelled
		o.CancelledAt = &at
	}
	return nil
}

func (s *fakeOrderStore) SetTerminateAtPeriodEnd(ctx context.Context, id string, terminate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		o.TerminateAtPeriodEnd = terminate
	}
	return nil
}

func (s *fakeOrderStore) SetReactivated(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		o.Status = models.OrderStatusActive
		o.TerminateAtPeriodEnd = false
		o.CancelledAt = nil
	}
	return nil
}

func (s *fakeOrderStore) SetAutoRenew(ctx context.Context, id string, autoRenew bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		o.AutoRenew = autoRenew
	}
	return nil
}

type fakeServiceStore struct {
	mu       sync.Mutex
	services map[string]*models.Service
}

func newFakeServiceStore(services ...*models.Service) *fakeServiceStore {
	s := &fakeServiceStore{services: map[string]*models.Service{}}
	for _, svc := range services {
		s.services[svc.ID] = svc
	}
	return s
}

func (s *fakeServiceStore) Create(ctx context.Context, svc *models.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *svc
	s.services[svc.ID] = &copied
	return nil
}

func (s *fakeServiceStore) GetByID(ctx context.Context, id string) (*models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *svc
	return &copied, nil
}

func (s *fakeServiceStore) GetForUser(ctx context.Context, id, userID string) (*models.Service, error) {
	svc, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if svc.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return svc, nil
}

func (s *fakeServiceStore) GetPendingByUserAndType(ctx context.Context, userID, serviceType string) (*models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range s.services {
		if svc.UserID == userID && svc.Type == serviceType && svc.Status == models.ServiceStatusPending {
			copied := *svc
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *fakeServiceStore) ActivatePendingByUserAndType(ctx context.Context, userID, serviceType string, remoteServerID, nodeID int) (*models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range s.services {
		if svc.UserID == userID && svc.Type == serviceType && svc.Status == models.ServiceStatusPending {
			svc.Status = models.ServiceStatusActive
			svc.RemoteServerID = &remoteServerID
			svc.NodeID = &nodeID
			copied := *svc
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *fakeServiceStore) UpdateStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc, ok := s.services[id]; ok {
		svc.Status = status
	}
	return nil
}

func (s *fakeServiceStore) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc, ok := s.services[id]; ok {
		svc.Status = models.ServiceStatusCancelled
		svc.TerminationDate = &at
	}
	return nil
}

func (s *fakeServiceStore) SetPendingCancellation(ctx context.Context, id string, terminationDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc, ok := s.services[id]; ok {
		svc.PendingCancellation = true
		svc.TerminationDate = &terminationDate
	}
	return nil
}

func (s *fakeServiceStore) ClearPendingCancellation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc, ok := s.services[id]; ok {
		svc.PendingCancellation = false
		svc.TerminationDate = nil
	}
	return nil
}

type fakeSubscriptionStore struct {
	mu         sync.Mutex
	byStripeID map[string]*models.Subscription
	expired    []models.TerminationCandidate
}

func newFakeSubscriptionStore(subs ...*models.Subscription) *fakeSubscriptionStore {
	s := &fakeSubscriptionStore{byStripeID: map[string]*models.Subscription{}}
	for _, sub := range subs {
		s.byStripeID[sub.StripeSubscriptionID] = sub
	}
	return s
}

// Upsert mirrors the repository contract: the internal id is generated
// on first insert, preserved on conflict, and must stay unique across
// rows the way the primary key enforces it.
func (s *fakeSubscriptionStore) Upsert(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byStripeID[sub.StripeSubscriptionID]; ok {
		sub.ID = existing.ID
	} else {
		if sub.ID == "" {
			sub.ID = uuid.New().String()
		}
		for _, row := range s.byStripeID {
			if row.ID == sub.ID {
				return fmt.Errorf("duplicate key value violates unique constraint \"subscriptions_pkey\" (id=%s)", sub.ID)
			}
		}
	}
	copied := *sub
	s.byStripeID[sub.StripeSubscriptionID] = &copied
	return nil
}

func (s *fakeSubscriptionStore) GetByOrderID(ctx context.Context, orderID string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.byStripeID {
		if sub.OrderID == orderID {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *fakeSubscriptionStore) GetByStripeID(ctx context.Context, stripeID string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byStripeID[stripeID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *sub
	return &copied, nil
}

func (s *fakeSubscriptionStore) SetCancelFlags(ctx context.Context, stripeID string, canceledAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.byStripeID[stripeID]; ok {
		sub.CancelAtPeriodEnd = true
		sub.CanceledAt = &canceledAt
	}
	return nil
}

func (s *fakeSubscriptionStore) ClearCancelFlags(ctx context.Context, stripeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.byStripeID[stripeID]; ok {
		sub.CancelAtPeriodEnd = false
		sub.CanceledAt = nil
	}
	return nil
}

func (s *fakeSubscriptionStore) ListExpiredPendingTermination(ctx context.Context, now time.Time) ([]models.TerminationCandidate, error) {
	return s.expired, nil
}

type fakeInvoiceStore struct {
	mu         sync.Mutex
	byStripeID map[string]*models.Invoice
	upserts    int
}

func newFakeInvoiceStore() *fakeInvoiceStore {
	return &fakeInvoiceStore{byStripeID: map[string]*models.Invoice{}}
}

// UpsertByStripeID mirrors the repository contract: the internal id is
// generated on first insert, preserved on conflict, and must stay
// unique across rows the way the primary key enforces it.
func (s *fakeInvoiceStore) UpsertByStripeID(ctx context.Context, inv *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byStripeID[inv.StripeInvoiceID]; ok {
		inv.ID = existing.ID
	} else {
		if inv.ID == "" {
			inv.ID = uuid.New().String()
		}
		for _, row := range s.byStripeID {
			if row.ID == inv.ID {
				return fmt.Errorf("duplicate key value violates unique constraint \"invoices_pkey\" (id=%s)", inv.ID)
			}
		}
	}
	copied := *inv
	s.byStripeID[inv.StripeInvoiceID] = &copied
	s.upserts++
	return nil
}

func (s *fakeInvoiceStore) GetByStripeID(ctx context.Context, stripeInvoiceID string) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byStripeID[stripeInvoiceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *inv
	return &copied, nil
}

type fakeDeploymentStore struct {
	mu       sync.Mutex
	created  []*models.ServiceDeployment
	logs     map[string][]string
	statuses map[string]string
}

func newFakeDeploymentStore() *fakeDeploymentStore {
	return &fakeDeploymentStore{
		logs:     map[string][]string{},
		statuses: map[string]string{},
	}
}

func (s *fakeDeploymentStore) Create(ctx context.Context, dep *models.ServiceDeployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, dep)
	s.statuses[dep.ID] = dep.Status
	return nil
}

func (s *fakeDeploymentStore) AppendLog(ctx context.Context, deploymentID, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[deploymentID] = append(s.logs[deploymentID], line)
	return nil
}

func (s *fakeDeploymentStore) UpdateStatus(ctx context.Context, deploymentID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[deploymentID] = status
	return nil
}
