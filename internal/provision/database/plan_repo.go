package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/accesoit/flowops/internal/provision/model"
)

// PlanRepo reads service-tier reference data. Read-only to the core.
type PlanRepo struct {
	db *sql.DB
}

func NewPlanRepo(db *Database) *PlanRepo {
	return &PlanRepo{db: db.GetDB()}
}

func (r *PlanRepo) GetPlanByID(ctx context.Context, id int64) (*model.Plan, error) {
	query := `SELECT id, name, price_monthly, cpu_limit, memory_limit, active FROM plans WHERE id = $1`

	var p model.Plan
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.PriceMonthly, &p.CPULimit, &p.MemoryLimit, &p.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to query plan %d: %w", id, err)
	}
	return &p, nil
}

// ListActivePlans returns sellable plans ordered by monthly price.
func (r *PlanRepo) ListActivePlans(ctx context.Context) ([]*model.Plan, error) {
	query := `SELECT id, name, price_monthly, cpu_limit, memory_limit, active
	          FROM plans WHERE active ORDER BY price_monthly ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []*model.Plan
	for rows.Next() {
		var p model.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceMonthly, &p.CPULimit, &p.MemoryLimit, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}
	return plans, nil
}
