package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/accesoit/flowops/internal/config"
)

// StatusUnknown is returned by GetStatus when the remote system has no
// record of the service. Callers use it to distinguish "definitely gone"
// from a transport failure.
const StatusUnknown = "unknown"

// CreateSpec describes the remote instance to bring up.
type CreateSpec struct {
	Slug          string
	Host          string // full hostname the instance will serve
	Image         string
	AuthUser      string
	AuthPassword  string
	EncryptionKey string
	CPULimit      string
	MemoryLimit   string
}

// CreateResult is the control plane's answer to a successful create.
type CreateResult struct {
	RemoteServiceID string
	Status          string
	URL             string
}

// RemoteStatus is a live status answer for one remote service.
type RemoteStatus struct {
	Status string
	Detail string
}

// Client is the contract against a single remote tenant instance. Every
// call carries a bounded timeout via ctx or the implementation's HTTP
// client; a timeout is reported as the same error kind as any other
// remote failure. Implementations are safe for concurrent use.
type Client interface {
	// CreateInstance brings up a new remote service. Not idempotent: the
	// caller owns retry decisions.
	CreateInstance(ctx context.Context, spec CreateSpec) (*CreateResult, error)
	// GetStatus returns StatusUnknown (not an error) when the remote
	// system has no such service.
	GetStatus(ctx context.Context, remoteID string) (*RemoteStatus, error)
	StopInstance(ctx context.Context, remoteID string) error
	StartInstance(ctx context.Context, remoteID string) error
	// DeleteInstance with purgeData also removes persistent volumes.
	// Irreversible. Safe to retry.
	DeleteInstance(ctx context.Context, remoteID string, purgeData bool) error
}

// New selects a client implementation from config.
func New(cfg *config.TransportConfig) (Client, error) {
	switch cfg.Mode {
	case "simulation":
		return NewSimulationClient(), nil
	case "panel", "":
		timeout, err := time.ParseDuration(cfg.Timeout)
		if err != nil || timeout <= 0 {
			timeout = 30 * time.Second
		}
		return NewPanelClient(cfg.Endpoint, cfg.APIKey, cfg.Project, timeout), nil
	default:
		return nil, fmt.Errorf("unknown transport mode: %s", cfg.Mode)
	}
}
