package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/accesoit/flowops/internal/provision/model"
)

// TenantRepo reads the owning accounts. The provisioner never writes
// tenants; account management lives elsewhere.
type TenantRepo struct {
	db *sql.DB
}

func NewTenantRepo(db *Database) *TenantRepo {
	return &TenantRepo{db: db.GetDB()}
}

func (r *TenantRepo) GetTenantByID(ctx context.Context, id int64) (*model.Tenant, error) {
	query := `SELECT id, email, name FROM tenants WHERE id = $1`

	var t model.Tenant
	err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Email, &t.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to query tenant %d: %w", id, err)
	}
	return &t, nil
}
