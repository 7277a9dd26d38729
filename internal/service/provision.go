package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/kratos-host/provisioning-service/internal/catalog"
	"github.com/kratos-host/provisioning-service/internal/models"
)

// ProvisionService turns a paid, PENDING service into a running server
// on the control-plane.
type ProvisionService struct {
	panel       PanelAPI
	selector    *NodeSelector
	services    ServiceStore
	deployments DeploymentStore
	notify      Notifier
}

func NewProvisionService(panel PanelAPI, selector *NodeSelector, services ServiceStore, deployments DeploymentStore, notify Notifier) *ProvisionService {
	return &ProvisionService{
		panel:       panel,
		selector:    selector,
		services:    services,
		deployments: deployments,
		notify:      notify,
	}
}

// Provision creates the remote server for a pending service and
// activates the service record. Only game servers are provisionable;
// any other family fails with ErrUnsupported before a single remote
// call is made. The final activation is an atomic conditional update:
// if another provisioning run already activated the service, the
// just-created server is orphaned and deleted again.
func (p *ProvisionService) Provision(ctx context.Context, svc *models.Service) (*models.Service, error) {
	if svc.Type != models.ServiceTypeGameServer {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, svc.Type)
	}
	cfg := svc.Config.GameServer
	if cfg == nil {
		return nil, fmt.Errorf("%w: service %s has no game server configuration", ErrInvariant, svc.ID)
	}

	deployment := &models.ServiceDeployment{
		ID:        uuid.New().String(),
		ServiceID: svc.ID,
		Status:    "IN_PROGRESS",
	}
	if err := p.deployments.Create(ctx, deployment); err != nil {
		log.Printf("[ProvisionService] Failed to create deployment record for service %s: %v", svc.ID, err)
		deployment = nil
	}

	req := models.ResourceRequirement{
		CPUShare:   cfg.CPUCores * 100,
		MemoryMB:   int64(cfg.RAMGB) * 1024,
		DiskMB:     int64(cfg.DiskGB) * 1024,
		LocationID: cfg.LocationID,
	}

	placement, err := p.selector.Select(ctx, req)
	if err != nil {
		p.failDeployment(ctx, deployment, fmt.Sprintf("node selection failed: %v", err))
		return nil, fmt.Errorf("select node: %w", err)
	}
	p.logDeployment(ctx, deployment, fmt.Sprintf("selected node %d, allocation %d", placement.NodeID, placement.AllocationID))

	params := &models.ServerCreateParams{
		Name:    fmt.Sprintf("%s-%s", cfg.Game, svc.ID[:8]),
		UserRef: svc.UserID,
		NestID:  catalog.NestID(cfg.Game),
		EggID:   catalog.EggID(cfg.Game, cfg.Variant),
		Limits: models.ServerLimits{
			MemoryMB: req.MemoryMB,
			DiskMB:   req.DiskMB,
			CPUShare: req.CPUShare,
			SwapMB:   0,
			IOWeight: 500,
		},
		Environment:  catalog.BuildEnvironment(cfg),
		NodeID:       placement.NodeID,
		AllocationID: placement.AllocationID,
	}

	server, err := p.panel.CreateServer(ctx, params)
	if err != nil {
		p.failDeployment(ctx, deployment, fmt.Sprintf("server creation failed: %v", err))
		p.notify.Notify(ctx, "Provisioning failed",
			fmt.Sprintf("Server creation failed for service %s", svc.ID),
			map[string]string{"service": svc.ID, "error": err.Error()})
		return nil, fmt.Errorf("create server: %w", err)
	}
	p.logDeployment(ctx, deployment, fmt.Sprintf("server %d created on node %d", server.ID, server.NodeID))

	activated, err := p.services.ActivatePendingByUserAndType(ctx, svc.UserID, svc.Type, server.ID, server.NodeID)
	if err != nil {
		// Lost the activation race or the row vanished. The server we
		// created has no owner; remove it rather than leak capacity.
		log.Printf("[ProvisionService] Activation failed for service %s, deleting orphan server %d: %v", svc.ID, server.ID, err)
		if delErr := p.panel.DeleteServer(ctx, server.ID); delErr != nil {
			log.Printf("[ProvisionService] Failed to delete orphan server %d: %v", server.ID, delErr)
		}
		p.failDeployment(ctx, deployment, fmt.Sprintf("activation failed: %v", err))
		return nil, fmt.Errorf("activate service: %w", err)
	}

	p.logDeployment(ctx, deployment, "service activated")
	if deployment != nil {
		if err := p.deployments.UpdateStatus(ctx, deployment.ID, "COMPLETED"); err != nil {
			log.Printf("[ProvisionService] Failed to complete deployment %s: %v", deployment.ID, err)
		}
	}

	log.Printf("[ProvisionService] Service %s activated: server %d on node %d", activated.ID, server.ID, server.NodeID)
	p.notify.Notify(ctx, "Server provisioned",
		fmt.Sprintf("%s server for user %s is live", cfg.Game, svc.UserID),
		map[string]string{"service": activated.ID, "node": fmt.Sprintf("%d", server.NodeID)})

	return activated, nil
}

func (p *ProvisionService) logDeployment(ctx context.Context, dep *models.ServiceDeployment, line string) {
	if dep == nil {
		return
	}
	if err := p.deployments.AppendLog(ctx, dep.ID, line); err != nil {
		log.Printf("[ProvisionService] Failed to append deployment log: %v", err)
	}
}

func (p *ProvisionService) failDeployment(ctx context.Context, dep *models.ServiceDeployment, line string) {
	if dep == nil {
		return
	}
	p.logDeployment(ctx, dep, line)
	if err := p.deployments.UpdateStatus(ctx, dep.ID, "FAILED"); err != nil {
		log.Printf("[ProvisionService] Failed to mark deployment %s failed: %v", dep.ID, err)
	}
}
