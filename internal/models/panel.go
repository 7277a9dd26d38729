package models

// Power actions accepted by the control-plane
const (
	PowerActionStart   = "start"
	PowerActionStop    = "stop"
	PowerActionRestart = "restart"
	PowerActionKill    = "kill"
)

// ValidPowerAction reports whether action is one the panel accepts
func ValidPowerAction(action string) bool {
	switch action {
	case PowerActionStart, PowerActionStop, PowerActionRestart, PowerActionKill:
		return true
	}
	return false
}

// ServerLimits are the resource caps passed to the control-plane at
// server creation, in panel units (MB, CPU share where 100 = 1 core).
type ServerLimits struct {
	MemoryMB int64
	DiskMB   int64
	CPUShare int
	SwapMB   int64
	IOWeight int
}

// ServerCreateParams is everything the control-plane needs to create a
// server on a previously selected node and allocation.
type ServerCreateParams struct {
	Name         string
	UserRef      string
	NestID       int
	EggID        int
	Limits       ServerLimits
	Environment  map[string]string
	NodeID       int
	AllocationID int
}

// PanelServer is the control-plane's record of a created server
type PanelServer struct {
	ID         int
	Identifier string
	NodeID     int
	Status     string
}

// ServerUtilization is a live resource snapshot for a running server
type ServerUtilization struct {
	State        string
	CPUPercent   float64
	MemoryMB     float64
	DiskMB       float64
	UptimeMillis int64
	NetworkRX    int64
	NetworkTX    int64
}
