package repository

import (
	"context"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
)

// LoadTenant возвращает тенанта по ID.
func (r *PostgresStore) LoadTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	var t domain.Tenant
	query := `SELECT id, email, stripe_customer_id, current_plan FROM tenants WHERE id = $1`

	if err := r.db.GetContext(ctx, &t, query, tenantID); err != nil {
		err = wrapErr("load tenant", err)
		if err != ErrNotFound {
			r.log.Errorw("Failed to get tenant from DB", "error", err, "tenantID", tenantID)
		}
		return nil, err
	}
	return &t, nil
}

// UpdateTenantPlan меняет денормализованный текущий план тенанта.
func (r *PostgresStore) UpdateTenantPlan(ctx context.Context, tenantID string, plan domain.Plan) error {
	return r.updateTenant(ctx, "update tenant plan", `UPDATE tenants SET current_plan = $2 WHERE id = $1`, tenantID, string(plan))
}

// SetTenantCustomer запоминает Stripe customer тенанта.
func (r *PostgresStore) SetTenantCustomer(ctx context.Context, tenantID, stripeCustomerID string) error {
	return r.updateTenant(ctx, "set tenant customer", `UPDATE tenants SET stripe_customer_id = $2 WHERE id = $1`, tenantID, stripeCustomerID)
}

func (r *PostgresStore) updateTenant(ctx context.Context, op, query, tenantID, value string) error {
	res, err := r.db.ExecContext(ctx, query, tenantID, value)
	if err != nil {
		r.log.Errorw("Failed to update tenant in DB", "error", err, "tenantID", tenantID, "op", op)
		return wrapErr(op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return wrapErr(op, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
