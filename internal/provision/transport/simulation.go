package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// SimulationClient fulfils the Client contract without a control plane.
// Every operation succeeds immediately with deterministic identifiers so
// the provisioner can run end to end in development and tests.
type SimulationClient struct {
	mu       sync.Mutex
	seq      int64
	services map[string]string // remoteID -> status
}

func NewSimulationClient() *SimulationClient {
	return &SimulationClient{services: make(map[string]string)}
}

func (c *SimulationClient) CreateInstance(ctx context.Context, spec CreateSpec) (*CreateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	remoteID := fmt.Sprintf("sim-%s-%d", spec.Slug, c.seq)
	c.services[remoteID] = "running"

	log.Debug().Str("slug", spec.Slug).Str("remote_service_id", remoteID).Msg("simulated service creation")

	return &CreateResult{
		RemoteServiceID: remoteID,
		Status:          "running",
		URL:             fmt.Sprintf("https://%s", spec.Host),
	}, nil
}

func (c *SimulationClient) GetStatus(ctx context.Context, remoteID string) (*RemoteStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status, ok := c.services[remoteID]
	if !ok {
		return &RemoteStatus{Status: StatusUnknown, Detail: "no such simulated service"}, nil
	}
	return &RemoteStatus{Status: status, Detail: "simulated"}, nil
}

func (c *SimulationClient) StopInstance(ctx context.Context, remoteID string) error {
	c.setStatus(remoteID, "stopped")
	return nil
}

func (c *SimulationClient) StartInstance(ctx context.Context, remoteID string) error {
	c.setStatus(remoteID, "running")
	return nil
}

func (c *SimulationClient) DeleteInstance(ctx context.Context, remoteID string, purgeData bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.services, remoteID)
	return nil
}

func (c *SimulationClient) setStatus(remoteID, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.services[remoteID]; ok {
		c.services[remoteID] = status
	}
}
