package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/kratos-host/provisioning-service/internal/models"
)

// PanelClient talks to the infrastructure control-plane that manages
// nodes, network allocations and game servers. Application-scope calls
// (nodes, users, server lifecycle) use the app key; client-scope calls
// (power, commands, utilization) use the client key.
type PanelClient struct {
	baseURL    string
	appKey     string
	clientKey  string
	httpClient *http.Client
}

// NewPanelClient creates a new control-plane client
func NewPanelClient(baseURL, appKey, clientKey string) *PanelClient {
	return &PanelClient{
		baseURL:   baseURL,
		appKey:    appKey,
		clientKey: clientKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ==================== Wire types ====================

type panelListResponse struct {
	Data []panelObject `json:"data"`
}

type panelObject struct {
	Attributes json.RawMessage `json:"attributes"`
}

type panelNodeAttributes struct {
	ID                 int    `json:"id"`
	Name               string `json:"name"`
	LocationID         int    `json:"location_id"`
	MaintenanceMode    bool   `json:"maintenance_mode"`
	Memory             int64  `json:"memory"`
	MemoryOverallocate int    `json:"memory_overallocate"`
	Disk               int64  `json:"disk"`
	DiskOverallocate   int    `json:"disk_overallocate"`
	AllocatedResources struct {
		Memory int64 `json:"memory"`
		Disk   int64 `json:"disk"`
	} `json:"allocated_resources"`
}

type panelAllocationAttributes struct {
	ID       int    `json:"id"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Assigned bool   `json:"assigned"`
}

type panelUserAttributes struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
}

type panelEggAttributes struct {
	DockerImage   string `json:"docker_image"`
	Startup       string `json:"startup"`
	Relationships struct {
		Variables struct {
			Data []struct {
				Attributes struct {
					EnvVariable  string `json:"env_variable"`
					DefaultValue string `json:"default_value"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"variables"`
	} `json:"relationships"`
}

type panelServerAttributes struct {
	ID         int    `json:"id"`
	Identifier string `json:"identifier"`
	Status     string `json:"status"`
}

// ==================== Application API ====================

// ListNodes fetches every node the control-plane manages. Results are
// never cached: allocation counters move under concurrent buyers.
func (c *PanelClient) ListNodes(ctx context.Context) ([]models.NodeCandidate, error) {
	var list panelListResponse
	if err := c.doApp(ctx, http.MethodGet, "/api/application/nodes", nil, &list); err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	nodes := make([]models.NodeCandidate, 0, len(list.Data))
	for _, obj := range list.Data {
		var attrs panelNodeAttributes
		if err := json.Unmarshal(obj.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("decode node attributes: %w", err)
		}
		nodes = append(nodes, models.NodeCandidate{
			ID:                 attrs.ID,
			Name:               attrs.Name,
			LocationID:         attrs.LocationID,
			Maintenance:        attrs.MaintenanceMode,
			MemoryMB:           attrs.Memory,
			DiskMB:             attrs.Disk,
			MemoryOverallocate: attrs.MemoryOverallocate,
			DiskOverallocate:   attrs.DiskOverallocate,
			AllocatedMemoryMB:  attrs.AllocatedResources.Memory,
			AllocatedDiskMB:    attrs.AllocatedResources.Disk,
		})
	}
	return nodes, nil
}

// ListFreeAllocations fetches the node's unassigned network endpoints
func (c *PanelClient) ListFreeAllocations(ctx context.Context, nodeID int) ([]models.Allocation, error) {
	path := fmt.Sprintf("/api/application/nodes/%d/allocations", nodeID)

	var list panelListResponse
	if err := c.doApp(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, fmt.Errorf("list allocations for node %d: %w", nodeID, err)
	}

	var free []models.Allocation
	for _, obj := range list.Data {
		var attrs panelAllocationAttributes
		if err := json.Unmarshal(obj.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("decode allocation attributes: %w", err)
		}
		if attrs.Assigned {
			continue
		}
		free = append(free, models.Allocation{
			ID:   attrs.ID,
			IP:   attrs.IP,
			Port: attrs.Port,
		})
	}
	return free, nil
}

// CreateServer creates a server on the selected node and allocation.
// The panel user is resolved (or created) from the opaque user
// reference, and the egg's docker image, startup command and variable
// defaults are merged with the caller's environment.
func (c *PanelClient) CreateServer(ctx context.Context, params *models.ServerCreateParams) (*models.PanelServer, error) {
	log.Printf("[PanelClient] Creating server %s on node %d (allocation %d)",
		params.Name, params.NodeID, params.AllocationID)

	panelUserID, err := c.findOrCreateUser(ctx, params.UserRef)
	if err != nil {
		return nil, fmt.Errorf("resolve panel user: %w", err)
	}

	egg, err := c.getEggData(ctx, params.NestID, params.EggID)
	if err != nil {
		return nil, fmt.Errorf("get egg data: %w", err)
	}

	environment := map[string]string{}
	for _, v := range egg.Relationships.Variables.Data {
		environment[v.Attributes.EnvVariable] = v.Attributes.DefaultValue
	}
	for k, v := range params.Environment {
		environment[k] = v
	}

	body := map[string]interface{}{
		"name":         params.Name,
		"user":         panelUserID,
		"egg":          params.EggID,
		"docker_image": egg.DockerImage,
		"startup":      egg.Startup,
		"environment":  environment,
		"limits": map[string]interface{}{
			"memory": params.Limits.MemoryMB,
			"swap":   params.Limits.SwapMB,
			"disk":   params.Limits.DiskMB,
			"io":     params.Limits.IOWeight,
			"cpu":    params.Limits.CPUShare,
		},
		"feature_limits": map[string]interface{}{
			"databases":   0,
			"backups":     0,
			"allocations": 0,
		},
		"allocation": map[string]interface{}{
			"default": params.AllocationID,
		},
		"node": params.NodeID,
	}

	var created panelObject
	if err := c.doApp(ctx, http.MethodPost, "/api/application/servers", body, &created); err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}

	var attrs panelServerAttributes
	if err := json.Unmarshal(created.Attributes, &attrs); err != nil {
		return nil, fmt.Errorf("decode server attributes: %w", err)
	}

	log.Printf("[PanelClient] Server created: id=%d identifier=%s", attrs.ID, attrs.Identifier)
	return &models.PanelServer{
		ID:         attrs.ID,
		Identifier: attrs.Identifier,
		NodeID:     params.NodeID,
		Status:     attrs.Status,
	}, nil
}

// DeleteServer removes a server from the control-plane
func (c *PanelClient) DeleteServer(ctx context.Context, serverID int) error {
	log.Printf("[PanelClient] Deleting server %d", serverID)

	path := fmt.Sprintf("/api/application/servers/%d", serverID)
	if err := c.doApp(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete server %d: %w", serverID, err)
	}
	return nil
}

func (c *PanelClient) findOrCreateUser(ctx context.Context, userRef string) (int, error) {
	path := "/api/application/users?filter[email]=" + url.QueryEscape(userRef)

	var list panelListResponse
	if err := c.doApp(ctx, http.MethodGet, path, nil, &list); err != nil {
		return 0, fmt.Errorf("search users: %w", err)
	}

	if len(list.Data) > 0 {
		var attrs panelUserAttributes
		if err := json.Unmarshal(list.Data[0].Attributes, &attrs); err != nil {
			return 0, fmt.Errorf("decode user attributes: %w", err)
		}
		return attrs.ID, nil
	}

	body := map[string]interface{}{
		"email":      userRef,
		"username":   panelUsername(userRef),
		"first_name": panelUsername(userRef),
		"last_name":  "Kratos",
	}

	var created panelObject
	if err := c.doApp(ctx, http.MethodPost, "/api/application/users", body, &created); err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}

	var attrs panelUserAttributes
	if err := json.Unmarshal(created.Attributes, &attrs); err != nil {
		return 0, fmt.Errorf("decode user attributes: %w", err)
	}

	log.Printf("[PanelClient] Panel user created for %s (id %d)", userRef, attrs.ID)
	return attrs.ID, nil
}

func (c *PanelClient) getEggData(ctx context.Context, nestID, eggID int) (*panelEggAttributes, error) {
	path := fmt.Sprintf("/api/application/nests/%d/eggs/%d?include=variables", nestID, eggID)

	var obj panelObject
	if err := c.doApp(ctx, http.MethodGet, path, nil, &obj); err != nil {
		return nil, err
	}

	var attrs panelEggAttributes
	if err := json.Unmarshal(obj.Attributes, &attrs); err != nil {
		return nil, fmt.Errorf("decode egg attributes: %w", err)
	}
	return &attrs, nil
}

// ==================== Client API ====================

// GetServerUtilization fetches a live resource snapshot
func (c *PanelClient) GetServerUtilization(ctx context.Context, identifier string) (*models.ServerUtilization, error) {
	path := fmt.Sprintf("/api/client/servers/%s/resources", identifier)

	var resp struct {
		Attributes struct {
			CurrentState string `json:"current_state"`
			Resources    struct {
				CPUAbsolute    float64 `json:"cpu_absolute"`
				MemoryBytes    int64   `json:"memory_bytes"`
				DiskBytes      int64   `json:"disk_bytes"`
				Uptime         int64   `json:"uptime"`
				NetworkRXBytes int64   `json:"network_rx_bytes"`
				NetworkTXBytes int64   `json:"network_tx_bytes"`
			} `json:"resources"`
		} `json:"attributes"`
	}

	if err := c.doClient(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get utilization for %s: %w", identifier, err)
	}

	return &models.ServerUtilization{
		State:        resp.Attributes.CurrentState,
		CPUPercent:   resp.Attributes.Resources.CPUAbsolute,
		MemoryMB:     float64(resp.Attributes.Resources.MemoryBytes) / 1048576,
		DiskMB:       float64(resp.Attributes.Resources.DiskBytes) / 1048576,
		UptimeMillis: resp.Attributes.Resources.Uptime,
		NetworkRX:    resp.Attributes.Resources.NetworkRXBytes,
		NetworkTX:    resp.Attributes.Resources.NetworkTXBytes,
	}, nil
}

// GetConsoleLogs fetches recent console output lines
func (c *PanelClient) GetConsoleLogs(ctx context.Context, identifier string) ([]string, error) {
	path := fmt.Sprintf("/api/client/servers/%s/logs", identifier)

	var resp struct {
		Data []string `json:"data"`
	}
	if err := c.doClient(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get console logs for %s: %w", identifier, err)
	}
	return resp.Data, nil
}

// SendCommand sends a console command to a running server
func (c *PanelClient) SendCommand(ctx context.Context, identifier, command string) error {
	path := fmt.Sprintf("/api/client/servers/%s/command", identifier)
	body := map[string]string{"command": command}

	if err := c.doClient(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("send command to %s: %w", identifier, err)
	}
	return nil
}

// SendPowerAction sends a power signal (start, stop, restart, kill)
func (c *PanelClient) SendPowerAction(ctx context.Context, identifier, action string) error {
	if !models.ValidPowerAction(action) {
		return fmt.Errorf("invalid power action %q", action)
	}

	path := fmt.Sprintf("/api/client/servers/%s/power", identifier)
	body := map[string]string{"signal": action}

	if err := c.doClient(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("send %s to %s: %w", action, identifier, err)
	}
	return nil
}

// ==================== Transport ====================

func (c *PanelClient) doApp(ctx context.Context, method, path string, body, out interface{}) error {
	return c.do(ctx, method, path, c.appKey, body, out)
}

func (c *PanelClient) doClient(ctx context.Context, method, path string, body, out interface{}) error {
	return c.do(ctx, method, path, c.clientKey, body, out)
}

func (c *PanelClient) do(ctx context.Context, method, path, key string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("panel returned 404 for %s", path)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("panel returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w (body: %s)", err, string(respBody))
		}
	}
	return nil
}

func panelUsername(userRef string) string {
	name := userRef
	for i := 0; i < len(userRef); i++ {
		if userRef[i] == '@' {
			name = userRef[:i]
			break
		}
	}
	return name
}
