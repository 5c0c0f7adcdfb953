package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/accesoit/flowops/internal/provision/model"
)

// PanelClient drives the management panel's REST API. One service per
// tenant instance; the panel owns the container runtime, DNS and TLS.
type PanelClient struct {
	baseURL    string
	apiKey     string
	project    string
	httpClient *http.Client
}

func NewPanelClient(baseURL, apiKey, project string, timeout time.Duration) *PanelClient {
	return &PanelClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		project: project,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type panelServiceConfig struct {
	Name    string            `json:"name"`
	Project string            `json:"project"`
	Image   string            `json:"image"`
	Domains []panelDomain     `json:"domains"`
	Env     map[string]string `json:"env"`
	Volumes []panelVolume     `json:"volumes"`
	Limits  panelLimits       `json:"resources"`
	Restart string            `json:"restart"`
}

type panelDomain struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	HTTPS bool   `json:"https"`
}

type panelVolume struct {
	Name      string `json:"name"`
	MountPath string `json:"mountPath"`
}

type panelLimits struct {
	CPULimit    string `json:"cpuLimit,omitempty"`
	MemoryLimit string `json:"memoryLimit,omitempty"`
}

type panelCreateResponse struct {
	ID        string `json:"id"`
	ServiceID string `json:"serviceId"`
	Status    string `json:"status"`
}

type panelStatusResponse struct {
	Status          string `json:"status"`
	ContainerStatus string `json:"containerStatus"`
}

func (c *PanelClient) CreateInstance(ctx context.Context, spec CreateSpec) (*CreateResult, error) {
	cfg := panelServiceConfig{
		Name:    "flow-" + spec.Slug,
		Project: c.project,
		Image:   spec.Image,
		Domains: []panelDomain{{Host: spec.Host, Port: 5678, HTTPS: true}},
		Env: map[string]string{
			"N8N_HOST":                spec.Host,
			"N8N_PORT":                "5678",
			"N8N_PROTOCOL":            "https",
			"WEBHOOK_URL":             fmt.Sprintf("https://%s/", spec.Host),
			"N8N_BASIC_AUTH_ACTIVE":   "true",
			"N8N_BASIC_AUTH_USER":     spec.AuthUser,
			"N8N_BASIC_AUTH_PASSWORD": spec.AuthPassword,
			"N8N_ENCRYPTION_KEY":      spec.EncryptionKey,
			"N8N_PAYLOAD_SIZE_MAX":    "16",
		},
		Volumes: []panelVolume{{Name: "flow-data-" + spec.Slug, MountPath: "/home/node/.n8n"}},
		Limits:  panelLimits{CPULimit: spec.CPULimit, MemoryLimit: spec.MemoryLimit},
		Restart: "unless-stopped",
	}

	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode service config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/services", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.RemoteCreationError{Slug: spec.Slug, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &model.RemoteCreationError{
			Slug:   spec.Slug,
			Remote: fmt.Sprintf("panel returned %d: %s", resp.StatusCode, string(raw)),
		}
	}

	var out panelCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &model.RemoteCreationError{Slug: spec.Slug, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	remoteID := out.ID
	if remoteID == "" {
		remoteID = out.ServiceID
	}
	if remoteID == "" {
		remoteID = "service-" + spec.Slug
	}
	status := out.Status
	if status == "" {
		status = "running"
	}

	log.Debug().Str("slug", spec.Slug).Str("remote_service_id", remoteID).Msg("panel service created")

	return &CreateResult{
		RemoteServiceID: remoteID,
		Status:          status,
		URL:             fmt.Sprintf("https://%s", spec.Host),
	}, nil
}

func (c *PanelClient) GetStatus(ctx context.Context, remoteID string) (*RemoteStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/services/"+remoteID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.RemoteOperationError{Op: "status", RemoteID: remoteID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// definitely gone, not a transport failure
		return &RemoteStatus{Status: StatusUnknown, Detail: "service not found on panel"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &model.RemoteOperationError{
			Op:       "status",
			RemoteID: remoteID,
			Remote:   fmt.Sprintf("panel returned %d: %s", resp.StatusCode, string(raw)),
		}
	}

	var out panelStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &model.RemoteOperationError{Op: "status", RemoteID: remoteID, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	status := out.Status
	if status == "" {
		status = StatusUnknown
	}
	return &RemoteStatus{Status: status, Detail: out.ContainerStatus}, nil
}

func (c *PanelClient) StopInstance(ctx context.Context, remoteID string) error {
	return c.post(ctx, "stop", remoteID, c.baseURL+"/api/services/"+remoteID+"/stop")
}

func (c *PanelClient) StartInstance(ctx context.Context, remoteID string) error {
	return c.post(ctx, "start", remoteID, c.baseURL+"/api/services/"+remoteID+"/start")
}

func (c *PanelClient) DeleteInstance(ctx context.Context, remoteID string, purgeData bool) error {
	url := c.baseURL + "/api/services/" + remoteID
	if purgeData {
		url += "?volumes=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &model.RemoteOperationError{Op: "delete", RemoteID: remoteID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return &model.RemoteOperationError{
			Op:       "delete",
			RemoteID: remoteID,
			Remote:   fmt.Sprintf("panel returned %d: %s", resp.StatusCode, string(raw)),
		}
	}
	return nil
}

func (c *PanelClient) post(ctx context.Context, op, remoteID, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &model.RemoteOperationError{Op: op, RemoteID: remoteID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return &model.RemoteOperationError{
			Op:       op,
			RemoteID: remoteID,
			Remote:   fmt.Sprintf("panel returned %d: %s", resp.StatusCode, string(raw)),
		}
	}
	return nil
}
