package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/accesoit/flowops/internal/provision/model"
)

// InstanceRepo is the persisted registry of tenant instances.
type InstanceRepo struct {
	db *sql.DB
}

func NewInstanceRepo(db *Database) *InstanceRepo {
	return &InstanceRepo{db: db.GetDB()}
}

const instanceColumns = `id, tenant_id, plan_id, slug, url, basic_auth_user, basic_auth_password, encryption_key, remote_service_id, status, created_at`

// activeStatusArray is the model's active set as a pq array parameter, so
// the queries and the model can never disagree on what counts as active.
func activeStatusArray() pq.StringArray {
	out := make(pq.StringArray, len(model.ActiveStatuses))
	for i, s := range model.ActiveStatuses {
		out[i] = string(s)
	}
	return out
}

func scanInstance(row interface{ Scan(...any) error }) (*model.TenantInstance, error) {
	var inst model.TenantInstance
	var planID sql.NullInt64
	var remoteID sql.NullString
	if err := row.Scan(&inst.ID, &inst.TenantID, &planID, &inst.Slug, &inst.URL,
		&inst.BasicAuthUser, &inst.BasicAuthPassword, &inst.EncryptionKey,
		&remoteID, &inst.Status, &inst.CreatedAt); err != nil {
		return nil, err
	}
	if planID.Valid {
		inst.PlanID = &planID.Int64
	}
	if remoteID.Valid {
		inst.RemoteServiceID = &remoteID.String
	}
	return &inst, nil
}

// CreateInstance inserts a new registry row in status creating. A unique
// violation on the active-instance partial index is reported as
// model.ErrConflict; one on the slug as a hard failure per the credential
// generator contract.
func (r *InstanceRepo) CreateInstance(ctx context.Context, inst *model.TenantInstance) error {
	query := `INSERT INTO tenant_instances
	          (tenant_id, plan_id, slug, url, basic_auth_user, basic_auth_password, encryption_key, status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		inst.TenantID, nullableInt(inst.PlanID), inst.Slug, inst.URL,
		inst.BasicAuthUser, inst.BasicAuthPassword, inst.EncryptionKey, inst.Status,
	).Scan(&inst.ID, &inst.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if pqErr.Constraint == "tenant_instances_one_active" {
				return model.ErrConflict
			}
			return fmt.Errorf("slug collision for %s: %w", inst.Slug, err)
		}
		return fmt.Errorf("failed to insert instance: %w", err)
	}
	return nil
}

// GetInstanceByID fetches a single row, model.ErrInstanceNotFound when absent.
func (r *InstanceRepo) GetInstanceByID(ctx context.Context, id int64) (*model.TenantInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM tenant_instances WHERE id = $1`

	inst, err := scanInstance(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to query instance %d: %w", id, err)
	}
	return inst, nil
}

// FindActiveForTenant returns the tenant's non-terminal instance, or nil.
func (r *InstanceRepo) FindActiveForTenant(ctx context.Context, tenantID int64) (*model.TenantInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM tenant_instances
	          WHERE tenant_id = $1 AND status = ANY($2)`

	inst, err := scanInstance(r.db.QueryRowContext(ctx, query, tenantID, activeStatusArray()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query active instance for tenant %d: %w", tenantID, err)
	}
	return inst, nil
}

// ListByTenant returns all of a tenant's instances, newest first.
func (r *InstanceRepo) ListByTenant(ctx context.Context, tenantID int64) ([]*model.TenantInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM tenant_instances
	          WHERE tenant_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances for tenant %d: %w", tenantID, err)
	}
	defer rows.Close()

	var instances []*model.TenantInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}
	return instances, nil
}

// UpdateStatus transitions the row only when it is still in one of the
// expected statuses, returning the number of rows changed so callers can
// detect a lost race.
func (r *InstanceRepo) UpdateStatus(ctx context.Context, id int64, next model.InstanceStatus, expected ...model.InstanceStatus) (bool, error) {
	query := `UPDATE tenant_instances SET status = $1 WHERE id = $2`
	args := []any{next, id}
	if len(expected) > 0 {
		query += ` AND status = ANY($3)`
		exp := make([]string, len(expected))
		for i, s := range expected {
			exp[i] = string(s)
		}
		args = append(args, pq.Array(exp))
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update instance %d status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetRemoteService records the control plane's identifier together with
// the post-creation status.
func (r *InstanceRepo) SetRemoteService(ctx context.Context, id int64, remoteID string, status model.InstanceStatus) error {
	query := `UPDATE tenant_instances SET remote_service_id = $1, status = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, remoteID, status, id); err != nil {
		return fmt.Errorf("failed to record remote service for instance %d: %w", id, err)
	}
	return nil
}

// DeleteInstance removes the row entirely. Only the hard-delete path
// calls this; normal decommission is a status transition to cancelled.
func (r *InstanceRepo) DeleteInstance(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tenant_instances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete instance %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrInstanceNotFound
	}
	return nil
}

// CountActive reports how many non-terminal instances exist, for the
// active-instances gauge.
func (r *InstanceRepo) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tenant_instances WHERE status = ANY($1)`, activeStatusArray()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active instances: %w", err)
	}
	return n, nil
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
