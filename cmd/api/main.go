package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kratos-host/provisioning-service/internal/client"
	"github.com/kratos-host/provisioning-service/internal/config"
	"github.com/kratos-host/provisioning-service/internal/db"
	"github.com/kratos-host/provisioning-service/internal/http"
	"github.com/kratos-host/provisioning-service/internal/repository"
	"github.com/kratos-host/provisioning-service/internal/service"
)

func main() {
	log.Println("Starting Provisioning Service...")

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize database
	pool, err := db.New(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Initialize repositories
	orderRepo := repository.NewOrderRepository(pool)
	serviceRepo := repository.NewServiceRepository(pool)
	subscriptionRepo := repository.NewSubscriptionRepository(pool)
	invoiceRepo := repository.NewInvoiceRepository(pool)
	deploymentRepo := repository.NewDeploymentRepository(pool)

	// Initialize clients
	panelClient := client.NewPanelClient(
		cfg.Panel.URL,
		cfg.Panel.AppKey,
		cfg.Panel.ClientKey,
	)

	billingClient := client.NewBillingClient(
		cfg.Billing.APIURL,
		cfg.Billing.SecretKey,
	)

	notifyClient := client.NewNotifyClient(cfg.Notify.WebhookURL)

	// Initialize services
	selector := service.NewNodeSelector(panelClient)

	provisionService := service.NewProvisionService(
		panelClient,
		selector,
		serviceRepo,
		deploymentRepo,
		notifyClient,
	)

	reconcileService := service.NewReconcileService(
		orderRepo,
		serviceRepo,
		subscriptionRepo,
		invoiceRepo,
		billingClient,
		provisionService,
		notifyClient,
		cfg.SuspendOnFailedPayment,
	)

	orderService := service.NewOrderService(
		orderRepo,
		serviceRepo,
		subscriptionRepo,
		billingClient,
		panelClient,
		notifyClient,
	)

	terminationService := service.NewTerminationService(
		orderRepo,
		serviceRepo,
		subscriptionRepo,
		panelClient,
		notifyClient,
	)

	// Initialize HTTP server
	handler := http.NewHandler(orderService, terminationService, serviceRepo, panelClient)
	webhook := http.NewWebhookHandler(reconcileService, cfg.Billing.WebhookSecret, cfg.Billing.SignatureTolerance)
	server := http.NewServer(cfg, pool, handler, webhook)

	// Start server in goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Printf("Server starting on %s", addr)
		if err := server.Run(addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	log.Println("Server exited")
}
