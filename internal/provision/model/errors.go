package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for missing or conflicting registry state.
var (
	ErrTenantNotFound   = errors.New("tenant not found")
	ErrInstanceNotFound = errors.New("instance not found")
	ErrPlanNotFound     = errors.New("plan not found")

	// ErrConflict means the tenant already has an instance in a
	// non-terminal status.
	ErrConflict = errors.New("tenant already has an active instance")
)

// AuthorizationError means the caller does not own the referenced instance.
type AuthorizationError struct {
	InstanceID int64
	TenantID   int64
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("tenant %d does not own instance %d", e.TenantID, e.InstanceID)
}

// PreconditionError means the operation is invalid for the instance's
// current status.
type PreconditionError struct {
	Op     string
	Status InstanceStatus
	Reason string
}

func (e *PreconditionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s instance in %s state: %s", e.Op, e.Status, e.Reason)
	}
	return fmt.Sprintf("cannot %s instance in %s state", e.Op, e.Status)
}

// RemoteCreationError carries the remote system's raw error text when
// instance creation fails on the control plane.
type RemoteCreationError struct {
	Slug   string
	Remote string
	Err    error
}

func (e *RemoteCreationError) Error() string {
	if e.Remote != "" {
		return fmt.Sprintf("remote creation failed for %s: %s", e.Slug, e.Remote)
	}
	return fmt.Sprintf("remote creation failed for %s: %v", e.Slug, e.Err)
}

func (e *RemoteCreationError) Unwrap() error { return e.Err }

// RemoteOperationError is a non-create transport failure (status, stop,
// start, delete). Timeouts surface here as well.
type RemoteOperationError struct {
	Op       string
	RemoteID string
	Remote   string
	Err      error
}

func (e *RemoteOperationError) Error() string {
	if e.Remote != "" {
		return fmt.Sprintf("remote %s failed for %s: %s", e.Op, e.RemoteID, e.Remote)
	}
	return fmt.Sprintf("remote %s failed for %s: %v", e.Op, e.RemoteID, e.Err)
}

func (e *RemoteOperationError) Unwrap() error { return e.Err }

// ProvisioningError wraps a transport creation failure at the provision
// boundary. The registry row is left in status error for operator
// visibility.
type ProvisioningError struct {
	InstanceID int64
	Err        error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("failed to provision instance %d: %v", e.InstanceID, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }
