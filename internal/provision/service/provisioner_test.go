package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/accesoit/flowops/internal/provision/model"
	"github.com/accesoit/flowops/internal/provision/notify"
	"github.com/accesoit/flowops/internal/provision/transport"
)

// memRegistry emulates the registry including the partial unique index:
// the active-instance check and the insert happen under one lock.
type memRegistry struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*model.TenantInstance
}

func newMemRegistry() *memRegistry {
	return &memRegistry{rows: map[int64]*model.TenantInstance{}}
}

func (m *memRegistry) CreateInstance(ctx context.Context, inst *model.TenantInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.TenantID == inst.TenantID && row.Status.IsActive() {
			return model.ErrConflict
		}
	}
	m.nextID++
	inst.ID = m.nextID
	cp := *inst
	m.rows[inst.ID] = &cp
	return nil
}

func (m *memRegistry) GetInstanceByID(ctx context.Context, id int64) (*model.TenantInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, model.ErrInstanceNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memRegistry) FindActiveForTenant(ctx context.Context, tenantID int64) (*model.TenantInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.TenantID == tenantID && row.Status.IsActive() {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRegistry) ListByTenant(ctx context.Context, tenantID int64) ([]*model.TenantInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.TenantInstance
	for _, row := range m.rows {
		if row.TenantID == tenantID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRegistry) UpdateStatus(ctx context.Context, id int64, next model.InstanceStatus, expected ...model.InstanceStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return false, nil
	}
	if len(expected) > 0 {
		match := false
		for _, s := range expected {
			if row.Status == s {
				match = true
			}
		}
		if !match {
			return false, nil
		}
	}
	row.Status = next
	return true, nil
}

func (m *memRegistry) SetRemoteService(ctx context.Context, id int64, remoteID string, status model.InstanceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return model.ErrInstanceNotFound
	}
	row.RemoteServiceID = &remoteID
	row.Status = status
	return nil
}

func (m *memRegistry) DeleteInstance(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return model.ErrInstanceNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memRegistry) CountActive(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.Status.IsActive() {
			n++
		}
	}
	return n, nil
}

func (m *memRegistry) snapshot(id int64) model.TenantInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

type memTenants struct{ tenants map[int64]*model.Tenant }

func (m *memTenants) GetTenantByID(ctx context.Context, id int64) (*model.Tenant, error) {
	if t, ok := m.tenants[id]; ok {
		return t, nil
	}
	return nil, model.ErrTenantNotFound
}

type memPlans struct{ plans map[int64]*model.Plan }

func (m *memPlans) GetPlanByID(ctx context.Context, id int64) (*model.Plan, error) {
	if p, ok := m.plans[id]; ok {
		return p, nil
	}
	return nil, model.ErrPlanNotFound
}

func (m *memPlans) ListActivePlans(ctx context.Context) ([]*model.Plan, error) {
	var out []*model.Plan
	for _, p := range m.plans {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

// failCreateTransport wraps the simulation client but fails every create.
type failCreateTransport struct {
	*transport.SimulationClient
}

func (f *failCreateTransport) CreateInstance(ctx context.Context, spec transport.CreateSpec) (*transport.CreateResult, error) {
	return nil, &model.RemoteCreationError{Slug: spec.Slug, Remote: "panel returned 500: boom"}
}

// failDeleteTransport wraps the simulation client but fails every
// remote delete.
type failDeleteTransport struct {
	*transport.SimulationClient
}

func (f *failDeleteTransport) DeleteInstance(ctx context.Context, remoteID string, purgeData bool) error {
	return &model.RemoteOperationError{Op: "delete", RemoteID: remoteID, Remote: "panel returned 503: unavailable"}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.CredentialMessage
}

func (r *recordingNotifier) SendCredentials(ctx context.Context, msg notify.CredentialMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

type failingNotifier struct{}

func (failingNotifier) SendCredentials(ctx context.Context, msg notify.CredentialMessage) error {
	return errors.New("mailer queue unreachable")
}

func newTestProvisioner(reg Registry, tc transport.Client, notifier notify.Notifier) *Provisioner {
	tenants := &memTenants{tenants: map[int64]*model.Tenant{
		42: {ID: 42, Email: "owner@example.com", Name: "Owner"},
		7:  {ID: 7, Email: "other@example.com", Name: "Other"},
	}}
	plans := &memPlans{plans: map[int64]*model.Plan{
		1: {ID: 1, Name: "starter", PriceMonthly: 10, CPULimit: "0.5", MemoryLimit: "1024M", Active: true},
	}}
	return NewProvisioner(reg, tenants, plans, tc, notifier, Config{
		BaseDomain: "flow.example.com",
		Image:      "n8nio/n8n:latest",
	})
}

func TestProvision_HappyPath(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	notifier := &recordingNotifier{}
	planID := int64(1)
	p := newTestProvisioner(reg, transport.NewSimulationClient(), notifier)

	inst, err := p.Provision(ctx, 42, &planID)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if inst.Status != model.StatusRunning {
		t.Fatalf("expected running, got %s", inst.Status)
	}
	if inst.RemoteServiceID == nil || !strings.HasPrefix(*inst.RemoteServiceID, "sim-") {
		t.Fatalf("expected simulation remote id, got %v", inst.RemoteServiceID)
	}
	if !strings.Contains(inst.URL, "42") || !strings.Contains(inst.URL, "flow.example.com") {
		t.Fatalf("unexpected url: %s", inst.URL)
	}
	if inst.BasicAuthPassword == "" || inst.EncryptionKey == "" {
		t.Fatal("provision must return plaintext credentials")
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Email != "owner@example.com" {
		t.Fatalf("expected one credential notification, got %#v", notifier.sent)
	}
}

func TestProvision_UnknownTenant(t *testing.T) {
	p := newTestProvisioner(newMemRegistry(), transport.NewSimulationClient(), &recordingNotifier{})
	if _, err := p.Provision(context.Background(), 999, nil); !errors.Is(err, model.ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestProvision_ConflictOnActiveInstance(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	p := newTestProvisioner(reg, transport.NewSimulationClient(), &recordingNotifier{})

	if _, err := p.Provision(ctx, 42, nil); err != nil {
		t.Fatalf("first provision: %v", err)
	}
	if _, err := p.Provision(ctx, 42, nil); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestProvision_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	p := newTestProvisioner(reg, transport.NewSimulationClient(), &recordingNotifier{})

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = p.Provision(ctx, 42, nil)
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, model.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winner, got %d successes / %d conflicts", successes, conflicts)
	}
}

func TestProvision_CreateFailureLeavesErrorRow(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	p := newTestProvisioner(reg, &failCreateTransport{transport.NewSimulationClient()}, &recordingNotifier{})

	_, err := p.Provision(ctx, 42, nil)
	var provErr *model.ProvisioningError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProvisioningError, got %v", err)
	}

	row := reg.snapshot(provErr.InstanceID)
	if row.Status != model.StatusError {
		t.Fatalf("expected error status, got %s", row.Status)
	}

	// the failed row must not count as active: re-provision succeeds
	p2 := newTestProvisioner(reg, transport.NewSimulationClient(), &recordingNotifier{})
	if _, err := p2.Provision(ctx, 42, nil); err != nil {
		t.Fatalf("re-provision after failure: %v", err)
	}
}

func TestStopStartToggleCycle(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	p := newTestProvisioner(reg, transport.NewSimulationClient(), &recordingNotifier{})

	inst, err := p.Provision(ctx, 42, nil)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	if _, err := p.Stop(ctx, inst.ID, 42); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := reg.snapshot(inst.ID).Status; got != model.StatusStopped {
		t.Fatalf("expected stopped, got %s", got)
	}

	if _, err := p.Start(ctx, inst.ID, 42); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := reg.snapshot(inst.ID).Status; got != model.StatusRunning {
		t.Fatalf("expected running, got %s", got)
	}

	if _, err := p.Toggle(ctx, inst.ID, 42); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if got := reg.snapshot(inst.ID).Status; got != model.StatusStopped {
		t.Fatalf("expected stopped after toggle, got %s", got)
	}
}

func TestIllegalTransitions(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	p := newTestProvisioner(reg, transport.NewSimulationClient(), &recordingNotifier{})

	inst, err := p.Provision(ctx, 42, nil)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	// start on a running instance
	var preErr *model.PreconditionError
	if _, err := p.Start(ctx, inst.ID, 42); !errors.As(err, &preErr) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
	if got := reg.snapshot(inst.ID).Status; got != model.StatusRunning {
		t.Fatalf("status must be unchanged, got %s", got)
	}

	// stop on a stopped instance
	if _, err := p.Stop(ctx, inst.ID, 42); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := p.Stop(ctx, inst.ID, 42); !errors.As(err, &preErr) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}

	// toggle on a cancelled instance
	if _, err := p.Delete(ctx, inst.ID, 42, false); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := p.Toggle(ctx, inst.ID, 42); !errors.As(err, &preErr) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
}

func TestStop_NeverCreatedRemotely(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	p := newTestProvisioner(reg, &failCreateTransport{transport.NewSimulationClient()}, &recordingNotifier{})

	_, err := p.Provision(ctx, 42, nil)
	var provErr *model.ProvisioningError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProvisioningError, got %v", err)
	}

	var preErr *model.PreconditionError
	if _, err := p.Stop(ctx, provErr.InstanceID, 42); !errors.As(err, &preErr) {
		t.Fatalf("expected PreconditionError for missing remote id, got %v", err)
	}
}

func TestOwnershipEnforced(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	p := newTestProvisioner(reg, transport.NewSimulationClient(), &recordingNotifier{})

	inst, err := p.Provision(ctx, 42, nil)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	var authErr *model.AuthorizationError
	if _, err := p.Stop(ctx, inst.ID, 7); !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
	if got := reg.snapshot(inst.ID).Status; got != model.StatusRunning {
		t.Fatalf("status must be unchanged, got %s", got)
	}
	if _, err := p.Delete(ctx, inst.ID, 7, true); !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
}

func TestSoftAndHardDelete(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	p := newTestProvisioner(reg, transport.NewSimulationClient(), &recordingNotifier{})

	inst, err := p.Provision(ctx, 42, nil)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if _, err := p.Delete(ctx, inst.ID, 42, false); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if got := reg.snapshot(inst.ID).Status; got != model.StatusCancelled {
		t.Fatalf("expected cancelled row to remain, got %s", got)
	}

	inst2, err := p.Provision(ctx, 7, nil)
	if err != nil {
		t.Fatalf("provision second tenant: %v", err)
	}
	if _, err := p.Delete(ctx, inst2.ID, 7, true); err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	if _, err := p.GetStatus(ctx, inst2.ID); !errors.Is(err, model.ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound after hard delete, got %v", err)
	}
}

func TestDelete_RemoteFailureStillTransitions(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	p := newTestProvisioner(reg, &failDeleteTransport{transport.NewSimulationClient()}, &recordingNotifier{})

	// soft delete: remote cleanup fails, row still goes to cancelled
	inst, err := p.Provision(ctx, 42, nil)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	result, err := p.Delete(ctx, inst.ID, 42, false)
	if err != nil {
		t.Fatalf("soft delete must succeed despite remote failure: %v", err)
	}
	if !result.Success {
		t.Fatalf("unexpected result: %#v", result)
	}
	if got := reg.snapshot(inst.ID).Status; got != model.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got)
	}

	// hard delete: remote cleanup fails, row is still removed
	inst2, err := p.Provision(ctx, 7, nil)
	if err != nil {
		t.Fatalf("provision second tenant: %v", err)
	}
	if _, err := p.Delete(ctx, inst2.ID, 7, true); err != nil {
		t.Fatalf("hard delete must succeed despite remote failure: %v", err)
	}
	if _, err := p.GetStatus(ctx, inst2.ID); !errors.Is(err, model.ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound after hard delete, got %v", err)
	}
}

func TestProvision_NotifierFailureIgnored(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	p := newTestProvisioner(reg, transport.NewSimulationClient(), failingNotifier{})

	inst, err := p.Provision(ctx, 42, nil)
	if err != nil {
		t.Fatalf("delivery failure must not fail provisioning: %v", err)
	}
	if inst.Status != model.StatusRunning {
		t.Fatalf("expected running, got %s", inst.Status)
	}
	if got := reg.snapshot(inst.ID).Status; got != model.StatusRunning {
		t.Fatalf("registry must show running, got %s", got)
	}
}

func TestGetStatus_ReadOnly(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	p := newTestProvisioner(reg, transport.NewSimulationClient(), &recordingNotifier{})

	inst, err := p.Provision(ctx, 42, nil)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	before := reg.snapshot(inst.ID)
	for i := 0; i < 5; i++ {
		report, err := p.GetStatus(ctx, inst.ID)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if !report.RemoteChecked || report.RemoteStatus != "running" {
			t.Fatalf("unexpected report: %#v", report)
		}
	}
	after := reg.snapshot(inst.ID)
	if before != after {
		t.Fatalf("getStatus mutated the registry: before=%#v after=%#v", before, after)
	}
}

func TestGetStatus_NoRemoteService(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	p := newTestProvisioner(reg, &failCreateTransport{transport.NewSimulationClient()}, &recordingNotifier{})

	_, err := p.Provision(ctx, 42, nil)
	var provErr *model.ProvisioningError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProvisioningError, got %v", err)
	}

	report, err := p.GetStatus(ctx, provErr.InstanceID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.RemoteChecked {
		t.Fatal("no remote check should be possible without a remote id")
	}
	if report.RegistryStatus != model.StatusError {
		t.Fatalf("expected registry status error, got %s", report.RegistryStatus)
	}
}

func TestListForTenant_MasksSecrets(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	p := newTestProvisioner(reg, transport.NewSimulationClient(), &recordingNotifier{})

	inst, err := p.Provision(ctx, 42, nil)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	list, err := p.ListForTenant(ctx, 42)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one instance, got %d", len(list))
	}
	got := list[0]
	if !strings.HasPrefix(got.BasicAuthPassword, "****") {
		t.Fatalf("password not masked: %s", got.BasicAuthPassword)
	}
	if !strings.HasSuffix(inst.BasicAuthPassword, strings.TrimPrefix(got.BasicAuthPassword, "****")) {
		t.Fatalf("mask should keep last 4 chars: %s vs %s", inst.BasicAuthPassword, got.BasicAuthPassword)
	}
	if strings.Contains(got.EncryptionKey, inst.EncryptionKey) {
		t.Fatal("encryption key leaked in full")
	}
}
