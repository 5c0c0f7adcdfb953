package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/accesoit/flowops/internal/provision/credentials"
	"github.com/accesoit/flowops/internal/provision/metrics"
	"github.com/accesoit/flowops/internal/provision/model"
	"github.com/accesoit/flowops/internal/provision/notify"
	"github.com/accesoit/flowops/internal/provision/transport"
)

// Registry is the persisted record of every tenant instance.
type Registry interface {
	CreateInstance(ctx context.Context, inst *model.TenantInstance) error
	GetInstanceByID(ctx context.Context, id int64) (*model.TenantInstance, error)
	FindActiveForTenant(ctx context.Context, tenantID int64) (*model.TenantInstance, error)
	ListByTenant(ctx context.Context, tenantID int64) ([]*model.TenantInstance, error)
	UpdateStatus(ctx context.Context, id int64, next model.InstanceStatus, expected ...model.InstanceStatus) (bool, error)
	SetRemoteService(ctx context.Context, id int64, remoteID string, status model.InstanceStatus) error
	DeleteInstance(ctx context.Context, id int64) error
	CountActive(ctx context.Context) (int64, error)
}

// TenantStore resolves owning accounts.
type TenantStore interface {
	GetTenantByID(ctx context.Context, id int64) (*model.Tenant, error)
}

// PlanStore resolves service-tier reference data.
type PlanStore interface {
	GetPlanByID(ctx context.Context, id int64) (*model.Plan, error)
	ListActivePlans(ctx context.Context) ([]*model.Plan, error)
}

// StatusCache holds recent transport status answers. Implementations may
// be nil-valued off; the provisioner treats a miss and a disabled cache
// identically.
type StatusCache interface {
	Get(ctx context.Context, instanceID int64) (*transport.RemoteStatus, bool)
	Set(ctx context.Context, instanceID int64, status *transport.RemoteStatus)
}

// Config carries the deterministic parts of instance creation.
type Config struct {
	BaseDomain string
	Image      string
}

// Provisioner coordinates registry writes with control-plane calls. All
// dependencies are injected; no globals, no ambient environment flags.
type Provisioner struct {
	registry  Registry
	tenants   TenantStore
	plans     PlanStore
	transport transport.Client
	creds     *credentials.Generator
	notifier  notify.Notifier
	cache     StatusCache
	cfg       Config
}

func NewProvisioner(registry Registry, tenants TenantStore, plans PlanStore, tc transport.Client, notifier notify.Notifier, cfg Config) *Provisioner {
	if notifier == nil {
		notifier = notify.NewLogNotifier()
	}
	return &Provisioner{
		registry:  registry,
		tenants:   tenants,
		plans:     plans,
		transport: tc,
		creds:     credentials.NewGenerator(),
		notifier:  notifier,
		cfg:       cfg,
	}
}

// WithStatusCache attaches an optional reconciliation cache.
func (p *Provisioner) WithStatusCache(cache StatusCache) *Provisioner {
	p.cache = cache
	return p
}

// Provision creates a new instance for the tenant: registry row in
// creating, remote create, then running. This is the only operation that
// returns plaintext credentials.
func (p *Provisioner) Provision(ctx context.Context, tenantID int64, planID *int64) (*model.TenantInstance, error) {
	started := time.Now()

	tenant, err := p.tenants.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	existing, err := p.registry.FindActiveForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, model.ErrConflict
	}

	var plan *model.Plan
	if planID != nil {
		plan, err = p.plans.GetPlanByID(ctx, *planID)
		if err != nil {
			return nil, err
		}
	}

	creds, err := p.creds.Generate(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate credentials: %w", err)
	}
	host := fmt.Sprintf("%s.%s", creds.Slug, p.cfg.BaseDomain)

	inst := &model.TenantInstance{
		TenantID:          tenantID,
		PlanID:            planID,
		Slug:              creds.Slug,
		URL:               "https://" + host,
		BasicAuthUser:     creds.BasicAuthUser,
		BasicAuthPassword: creds.BasicAuthPassword,
		EncryptionKey:     creds.EncryptionKey,
		Status:            model.StatusCreating,
	}
	if err := p.registry.CreateInstance(ctx, inst); err != nil {
		metrics.InstanceOperations.WithLabelValues("provision", "error").Inc()
		return nil, err
	}

	log.Info().
		Int64("tenant_id", tenantID).
		Str("slug", creds.Slug).
		Msg("provisioning instance")

	spec := transport.CreateSpec{
		Slug:          creds.Slug,
		Host:          host,
		Image:         p.cfg.Image,
		AuthUser:      creds.BasicAuthUser,
		AuthPassword:  creds.BasicAuthPassword,
		EncryptionKey: creds.EncryptionKey,
	}
	if plan != nil {
		spec.CPULimit = plan.CPULimit
		spec.MemoryLimit = plan.MemoryLimit
	}

	result, err := p.transport.CreateInstance(ctx, spec)
	if err != nil {
		// keep the row for operator visibility
		if _, uerr := p.registry.UpdateStatus(ctx, inst.ID, model.StatusError); uerr != nil {
			log.Error().Err(uerr).Int64("instance_id", inst.ID).Msg("failed to mark instance as error")
		}
		metrics.InstanceOperations.WithLabelValues("provision", "error").Inc()
		p.refreshActiveGauge(ctx)
		return nil, &model.ProvisioningError{InstanceID: inst.ID, Err: err}
	}

	if err := p.registry.SetRemoteService(ctx, inst.ID, result.RemoteServiceID, model.StatusRunning); err != nil {
		return nil, err
	}
	inst.RemoteServiceID = &result.RemoteServiceID
	inst.Status = model.StatusRunning

	// best-effort; delivery failure never rolls back the instance
	if nerr := p.notifier.SendCredentials(ctx, notify.CredentialMessage{
		Email:    tenant.Email,
		URL:      inst.URL,
		User:     creds.BasicAuthUser,
		Password: creds.BasicAuthPassword,
	}); nerr != nil {
		log.Error().Err(nerr).Str("slug", creds.Slug).Msg("credential notification failed")
	}

	metrics.InstanceOperations.WithLabelValues("provision", "success").Inc()
	metrics.ProvisionDuration.Observe(time.Since(started).Seconds())
	p.refreshActiveGauge(ctx)

	log.Info().
		Str("slug", inst.Slug).
		Str("remote_service_id", result.RemoteServiceID).
		Str("url", inst.URL).
		Msg("instance provisioned")

	return inst, nil
}

// Stop halts a running instance. The registry transitions only after the
// transport confirms.
func (p *Provisioner) Stop(ctx context.Context, instanceID, tenantID int64) (*model.OperationResult, error) {
	inst, err := p.ownedInstance(ctx, instanceID, tenantID)
	if err != nil {
		return nil, err
	}
	if inst.RemoteServiceID == nil {
		return nil, &model.PreconditionError{Op: "stop", Status: inst.Status, Reason: "instance was never created remotely"}
	}
	if inst.Status != model.StatusRunning {
		return nil, &model.PreconditionError{Op: "stop", Status: inst.Status}
	}

	if err := p.transport.StopInstance(ctx, *inst.RemoteServiceID); err != nil {
		metrics.InstanceOperations.WithLabelValues("stop", "error").Inc()
		return nil, err
	}

	ok, err := p.registry.UpdateStatus(ctx, instanceID, model.StatusStopped, model.StatusRunning)
	if err != nil {
		return nil, err
	}
	if !ok {
		// a concurrent operation won the race after our precondition read
		return nil, &model.PreconditionError{Op: "stop", Status: inst.Status, Reason: "status changed concurrently"}
	}

	metrics.InstanceOperations.WithLabelValues("stop", "success").Inc()
	log.Info().Int64("instance_id", instanceID).Str("slug", inst.Slug).Msg("instance stopped")
	return &model.OperationResult{Success: true, Message: "Instance stopped"}, nil
}

// Start resumes a stopped instance.
func (p *Provisioner) Start(ctx context.Context, instanceID, tenantID int64) (*model.OperationResult, error) {
	inst, err := p.ownedInstance(ctx, instanceID, tenantID)
	if err != nil {
		return nil, err
	}
	if inst.RemoteServiceID == nil {
		return nil, &model.PreconditionError{Op: "start", Status: inst.Status, Reason: "instance was never created remotely"}
	}
	if inst.Status != model.StatusStopped {
		return nil, &model.PreconditionError{Op: "start", Status: inst.Status}
	}

	if err := p.transport.StartInstance(ctx, *inst.RemoteServiceID); err != nil {
		metrics.InstanceOperations.WithLabelValues("start", "error").Inc()
		return nil, err
	}

	ok, err := p.registry.UpdateStatus(ctx, instanceID, model.StatusRunning, model.StatusStopped)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &model.PreconditionError{Op: "start", Status: inst.Status, Reason: "status changed concurrently"}
	}

	metrics.InstanceOperations.WithLabelValues("start", "success").Inc()
	log.Info().Int64("instance_id", instanceID).Str("slug", inst.Slug).Msg("instance started")
	return &model.OperationResult{Success: true, Message: "Instance started"}, nil
}

// Delete decommissions an instance. Soft delete marks the row cancelled;
// hard delete removes it and purges remote storage. A remote cleanup
// failure is logged and never blocks the registry-side transition.
func (p *Provisioner) Delete(ctx context.Context, instanceID, tenantID int64, hard bool) (*model.OperationResult, error) {
	inst, err := p.ownedInstance(ctx, instanceID, tenantID)
	if err != nil {
		return nil, err
	}

	if inst.RemoteServiceID != nil {
		if derr := p.transport.DeleteInstance(ctx, *inst.RemoteServiceID, hard); derr != nil {
			log.Error().
				Err(derr).
				Int64("instance_id", instanceID).
				Str("remote_service_id", *inst.RemoteServiceID).
				Bool("hard", hard).
				Msg("remote delete failed; registry transition proceeds, operator follow-up required")
		}
	}

	if hard {
		if err := p.registry.DeleteInstance(ctx, instanceID); err != nil {
			return nil, err
		}
	} else {
		if _, err := p.registry.UpdateStatus(ctx, instanceID, model.StatusCancelled); err != nil {
			return nil, err
		}
	}

	metrics.InstanceOperations.WithLabelValues("delete", "success").Inc()
	p.refreshActiveGauge(ctx)
	log.Info().Int64("instance_id", instanceID).Bool("hard", hard).Msg("instance deleted")
	return &model.OperationResult{Success: true, Message: "Instance deleted"}, nil
}

// Toggle stops a running instance or starts a stopped one.
func (p *Provisioner) Toggle(ctx context.Context, instanceID, tenantID int64) (*model.OperationResult, error) {
	inst, err := p.ownedInstance(ctx, instanceID, tenantID)
	if err != nil {
		return nil, err
	}

	switch inst.Status {
	case model.StatusRunning:
		return p.Stop(ctx, instanceID, tenantID)
	case model.StatusStopped:
		return p.Start(ctx, instanceID, tenantID)
	default:
		return nil, &model.PreconditionError{Op: "toggle", Status: inst.Status}
	}
}

// GetStatus is read-only drift detection: it never mutates the registry.
// Reconciling drift back into the registry is an operator concern.
func (p *Provisioner) GetStatus(ctx context.Context, instanceID int64) (*model.StatusReport, error) {
	inst, err := p.registry.GetInstanceByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	report := &model.StatusReport{
		InstanceID:     instanceID,
		RegistryStatus: inst.Status,
	}

	if inst.RemoteServiceID == nil {
		report.Detail = "no remote service; registry status only"
		return report, nil
	}

	if p.cache != nil {
		if cached, ok := p.cache.Get(ctx, instanceID); ok {
			report.RemoteStatus = cached.Status
			report.Detail = cached.Detail
			report.RemoteChecked = true
			return report, nil
		}
	}

	remote, err := p.transport.GetStatus(ctx, *inst.RemoteServiceID)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		p.cache.Set(ctx, instanceID, remote)
	}

	report.RemoteStatus = remote.Status
	report.Detail = remote.Detail
	report.RemoteChecked = true
	return report, nil
}

// ListForTenant returns the tenant's instances with secrets masked.
func (p *Provisioner) ListForTenant(ctx context.Context, tenantID int64) ([]*model.TenantInstance, error) {
	instances, err := p.registry.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	masked := make([]*model.TenantInstance, len(instances))
	for i, inst := range instances {
		masked[i] = inst.Masked()
	}
	return masked, nil
}

// ListPlans exposes the sellable plans for the route layer.
func (p *Provisioner) ListPlans(ctx context.Context) ([]*model.Plan, error) {
	return p.plans.ListActivePlans(ctx)
}

func (p *Provisioner) ownedInstance(ctx context.Context, instanceID, tenantID int64) (*model.TenantInstance, error) {
	inst, err := p.registry.GetInstanceByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.TenantID != tenantID {
		return nil, &model.AuthorizationError{InstanceID: instanceID, TenantID: tenantID}
	}
	return inst, nil
}

func (p *Provisioner) refreshActiveGauge(ctx context.Context) {
	n, err := p.registry.CountActive(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("failed to refresh active instance gauge")
		return
	}
	metrics.ActiveInstances.Set(float64(n))
}

// IsNotFound reports whether err is any of the registry's absence errors.
func IsNotFound(err error) bool {
	return errors.Is(err, model.ErrTenantNotFound) ||
		errors.Is(err, model.ErrInstanceNotFound) ||
		errors.Is(err, model.ErrPlanNotFound)
}
