package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Service status constants
const (
	ServiceStatusPending   = "PENDING"
	ServiceStatusActive    = "ACTIVE"
	ServiceStatusSuspended = "SUSPENDED"
	ServiceStatusCancelled = "CANCELLED"
)

// Service type (product family) constants
const (
	ServiceTypeGameServer = "GAME_SERVER"
	ServiceTypeVPS        = "VPS"
	ServiceTypeDedicated  = "DEDICATED"
)

// Service is a purchased, provisionable unit of compute. It is created
// PENDING when checkout is finalized and promoted to ACTIVE only after
// the control-plane confirms resource creation.
type Service struct {
	ID                  string
	Type                string
	UserID              string
	Status              string
	Config              ServiceConfig
	RemoteServerID      *int
	NodeID              *int
	PendingCancellation bool
	TerminationDate     *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ServiceDeployment is an append-only provisioning attempt record used
// for audit and debugging, never for control flow.
type ServiceDeployment struct {
	ID        string
	ServiceID string
	Status    string
	Logs      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ServiceConfig is the per-product-family configuration blob attached
// to an order item and to the resulting service. It is a tagged
// variant: Family selects which typed payload applies; Raw keeps the
// original blob for families this service does not model yet.
type ServiceConfig struct {
	Family     string            `json:"family"`
	GameServer *GameServerConfig `json:"game_server,omitempty"`
	VPS        *VPSConfig        `json:"vps,omitempty"`
	Raw        json.RawMessage   `json:"raw,omitempty"`
}

// GameServerConfig holds game-server sizing and variant choices.
// Sizes are customer-facing units (cores, GB); conversion to
// control-plane units happens at provisioning time.
type GameServerConfig struct {
	Game       string `json:"game"`
	Variant    string `json:"variant,omitempty"`
	Version    string `json:"version,omitempty"`
	CPUCores   int    `json:"cpu"`
	RAMGB      int    `json:"ram"`
	DiskGB     int    `json:"disk"`
	Slots      int    `json:"slots,omitempty"`
	LocationID int    `json:"location,omitempty"`
}

// VPSConfig is carried for completeness; VPS provisioning is not
// implemented and requests for it fail with ErrUnsupported.
type VPSConfig struct {
	OS       string `json:"os"`
	CPUCores int    `json:"cpu"`
	RAMGB    int    `json:"ram"`
	DiskGB   int    `json:"disk"`
}

// MemoryString renders RAM the way game startup templates expect it
func (c *GameServerConfig) MemoryString() string {
	return strconv.Itoa(c.RAMGB) + "G"
}
