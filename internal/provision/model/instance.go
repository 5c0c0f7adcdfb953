package model

import "time"

// InstanceStatus is the lifecycle state of a tenant instance.
type InstanceStatus string

const (
	StatusCreating  InstanceStatus = "creating"
	StatusRunning   InstanceStatus = "running"
	StatusStopped   InstanceStatus = "stopped"
	StatusError     InstanceStatus = "error"
	StatusCancelled InstanceStatus = "cancelled"
)

// ActiveStatuses are the non-terminal states. At most one instance per
// tenant may be in any of these at a time.
var ActiveStatuses = []InstanceStatus{StatusCreating, StatusRunning, StatusStopped}

// IsActive reports whether the status is non-terminal.
func (s InstanceStatus) IsActive() bool {
	return s == StatusCreating || s == StatusRunning || s == StatusStopped
}

// IsValid reports whether the status is one of the known lifecycle states.
func (s InstanceStatus) IsValid() bool {
	switch s {
	case StatusCreating, StatusRunning, StatusStopped, StatusError, StatusCancelled:
		return true
	}
	return false
}

// TenantInstance is one isolated workflow-engine deployment owned by a tenant.
// Mutated only by the provisioner; route handlers read it.
type TenantInstance struct {
	ID                int64          `json:"id"`
	TenantID          int64          `json:"tenantId"`
	PlanID            *int64         `json:"planId,omitempty"`
	Slug              string         `json:"slug"`
	URL               string         `json:"url"`
	BasicAuthUser     string         `json:"basicAuthUser"`
	BasicAuthPassword string         `json:"basicAuthPassword,omitempty"`
	EncryptionKey     string         `json:"encryptionKey,omitempty"`
	RemoteServiceID   *string        `json:"remoteServiceId,omitempty"`
	Status            InstanceStatus `json:"status"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// Masked returns a copy safe for display: secrets reduced to their last
// four characters. Only Provision may return the plaintext form.
func (i *TenantInstance) Masked() *TenantInstance {
	out := *i
	out.BasicAuthPassword = maskSecret(i.BasicAuthPassword)
	out.EncryptionKey = maskSecret(i.EncryptionKey)
	return &out
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// Tenant is the owning account, read-only to the provisioner.
type Tenant struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Plan is service-tier reference data; informational to the core.
type Plan struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	PriceMonthly float64 `json:"priceMonthly"`
	CPULimit     string  `json:"cpuLimit"`
	MemoryLimit  string  `json:"memoryLimit"`
	Active       bool    `json:"active"`
}

// OperationResult is the outcome of stop/start/delete/toggle.
type OperationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatusReport merges registry metadata with the transport's live answer.
type StatusReport struct {
	InstanceID     int64          `json:"instanceId"`
	RegistryStatus InstanceStatus `json:"registryStatus"`
	RemoteStatus   string         `json:"remoteStatus,omitempty"`
	Detail         string         `json:"detail,omitempty"`
	RemoteChecked  bool           `json:"remoteChecked"`
}
