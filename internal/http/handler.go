package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kratos-host/provisioning-service/internal/models"
	"github.com/kratos-host/provisioning-service/internal/repository"
	"github.com/kratos-host/provisioning-service/internal/service"
)

type Handler struct {
	orderService       *service.OrderService
	terminationService *service.TerminationService
	services           service.ServiceStore
	panel              service.PanelAPI
}

func NewHandler(orderService *service.OrderService, terminationService *service.TerminationService, services service.ServiceStore, panel service.PanelAPI) *Handler {
	return &Handler{
		orderService:       orderService,
		terminationService: terminationService,
		services:           services,
		panel:              panel,
	}
}

// writeError maps service errors onto HTTP statuses
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrInvariant):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUnsupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoCandidates), errors.Is(err, service.ErrNoFeasibleNode):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ==================== User API Handlers ====================

// GetOrder returns one of the caller's orders
func (h *Handler) GetOrder(c *gin.Context) {
	userID := c.GetString("userID")
	orderID := c.Param("id")

	resp, err := h.orderService.GetOrder(c.Request.Context(), orderID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CancelOrder cancels an order, immediately or at period end
func (h *Handler) CancelOrder(c *gin.Context) {
	userID := c.GetString("userID")
	orderID := c.Param("id")

	var req models.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.orderService.CancelOrder(c.Request.Context(), orderID, userID, req.TerminateAtPeriodEnd); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ReactivateOrder undoes a scheduled cancellation
func (h *Handler) ReactivateOrder(c *gin.Context) {
	userID := c.GetString("userID")
	orderID := c.Param("id")

	if err := h.orderService.Reactivate(c.Request.Context(), orderID, userID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SetAutoRenew toggles auto-renewal for an order
func (h *Handler) SetAutoRenew(c *gin.Context) {
	userID := c.GetString("userID")
	orderID := c.Param("id")

	var req models.AutoRenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.orderService.SetAutoRenew(c.Request.Context(), orderID, userID, req.AutoRenew); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ==================== Server control handlers ====================

// lookupServer resolves the caller's service and its panel identifier
func (h *Handler) lookupServer(c *gin.Context) (*models.Service, bool) {
	userID := c.GetString("userID")
	serviceID := c.Param("id")

	svc, err := h.services.GetForUser(c.Request.Context(), serviceID, userID)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if svc.RemoteServerID == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "service has no provisioned server"})
		return nil, false
	}
	return svc, true
}

// GetServerStatus returns a live utilization snapshot
func (h *Handler) GetServerStatus(c *gin.Context) {
	svc, ok := h.lookupServer(c)
	if !ok {
		return
	}

	util, err := h.panel.GetServerUtilization(c.Request.Context(), serverIdentifier(svc))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": svc.Status, "utilization": util})
}

// GetServerLogs returns recent console output
func (h *Handler) GetServerLogs(c *gin.Context) {
	svc, ok := h.lookupServer(c)
	if !ok {
		return
	}

	logs, err := h.panel.GetConsoleLogs(c.Request.Context(), serverIdentifier(svc))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// SendPowerAction sends a power signal to the caller's server
func (h *Handler) SendPowerAction(c *gin.Context) {
	svc, ok := h.lookupServer(c)
	if !ok {
		return
	}

	var req models.PowerActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidPowerAction(req.Action) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid power action"})
		return
	}

	if err := h.panel.SendPowerAction(c.Request.Context(), serverIdentifier(svc), req.Action); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SendCommand sends a console command to the caller's server
func (h *Handler) SendCommand(c *gin.Context) {
	svc, ok := h.lookupServer(c)
	if !ok {
		return
	}

	var req models.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.panel.SendCommand(c.Request.Context(), serverIdentifier(svc), req.Command); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ==================== Internal API Handlers ====================

// FinalizeCheckout is called by the storefront once payment setup
// succeeded.
func (h *Handler) FinalizeCheckout(c *gin.Context) {
	var req models.FinalizeCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.orderService.FinalizeCheckout(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// TerminateExpired runs the termination sweep, called by cron
func (h *Handler) TerminateExpired(c *gin.Context) {
	result, err := h.terminationService.SweepExpired(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func serverIdentifier(svc *models.Service) string {
	// Client API endpoints accept the numeric server id as identifier
	return strconv.Itoa(*svc.RemoteServerID)
}
