package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
)

const connectionColumns = `
        id, dashboard_id, realm_id, company_name, access_token, refresh_token,
        access_token_expires_at, refresh_token_expires_at, is_active, status,
        last_error, last_sync_at, connected_at, modified_at`

// LoadConnection возвращает связь дашборда с QuickBooks.
func (r *PostgresStore) LoadConnection(ctx context.Context, dashboardID int64) (*domain.Connection, error) {
	var conn domain.Connection
	query := `SELECT` + connectionColumns + `
        FROM quickbooks_connections
        WHERE dashboard_id = $1`

	if err := r.db.GetContext(ctx, &conn, query, dashboardID); err != nil {
		err = wrapErr("load connection", err)
		if err != ErrNotFound {
			r.log.Errorw("Failed to get connection from DB", "error", err, "dashboardID", dashboardID)
		}
		return nil, err
	}
	return &conn, nil
}

// SaveConnection сохраняет связь одной командой, токены и сроки пишутся вместе.
func (r *PostgresStore) SaveConnection(ctx context.Context, conn *domain.Connection) error {
	now := r.now().UTC()
	if conn.ConnectedAt.IsZero() {
		conn.ConnectedAt = now
	}
	if conn.ModifiedAt.IsZero() {
		conn.ModifiedAt = now
	}

	query := `
        INSERT INTO quickbooks_connections (
            dashboard_id, realm_id, company_name, access_token, refresh_token,
            access_token_expires_at, refresh_token_expires_at, is_active, status,
            last_error, last_sync_at, connected_at, modified_at
        ) VALUES (
            :dashboard_id, :realm_id, :company_name, :access_token, :refresh_token,
            :access_token_expires_at, :refresh_token_expires_at, :is_active, :status,
            :last_error, :last_sync_at, :connected_at, :modified_at
        )
        ON CONFLICT (dashboard_id) DO UPDATE SET
            realm_id = EXCLUDED.realm_id,
            company_name = EXCLUDED.company_name,
            access_token = EXCLUDED.access_token,
            refresh_token = EXCLUDED.refresh_token,
            access_token_expires_at = EXCLUDED.access_token_expires_at,
            refresh_token_expires_at = EXCLUDED.refresh_token_expires_at,
            is_active = EXCLUDED.is_active,
            status = EXCLUDED.status,
            last_error = EXCLUDED.last_error,
            last_sync_at = EXCLUDED.last_sync_at,
            connected_at = EXCLUDED.connected_at,
            modified_at = EXCLUDED.modified_at
        RETURNING id`

	rows, err := r.db.NamedQueryContext(ctx, query, conn)
	if err != nil {
		r.log.Errorw("Failed to save connection in DB", "error", err, "dashboardID", conn.DashboardID)
		return wrapErr("save connection", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&conn.ID); err != nil {
			return wrapErr("save connection", err)
		}
	}
	return wrapErr("save connection", rows.Err())
}

// DisconnectConnection очищает токены и помечает связь как отключенную.
func (r *PostgresStore) DisconnectConnection(ctx context.Context, dashboardID int64) error {
	query := `
        UPDATE quickbooks_connections SET
            access_token = '',
            refresh_token = '',
            is_active = FALSE,
            status = $2,
            last_error = NULL,
            modified_at = $3
        WHERE dashboard_id = $1`

	res, err := r.db.ExecContext(ctx, query, dashboardID, domain.ConnectionStatusDisconnected, r.now().UTC())
	if err != nil {
		r.log.Errorw("Failed to disconnect connection in DB", "error", err, "dashboardID", dashboardID)
		return wrapErr("disconnect connection", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return wrapErr("disconnect connection", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	r.log.Infow("Connection disconnected", "dashboardID", dashboardID)
	return nil
}

// LoadDashboardConfig возвращает настройки дашборда или значения по умолчанию.
func (r *PostgresStore) LoadDashboardConfig(ctx context.Context, dashboardID int64) (*domain.DashboardConfig, error) {
	var cfg domain.DashboardConfig
	query := `
        SELECT dashboard_id, date_range, custom_start_date, custom_end_date,
               show_cash_balance, show_profit, show_taxes_due, show_outstanding_invoices
        FROM dashboard_configurations
        WHERE dashboard_id = $1`

	err := r.db.GetContext(ctx, &cfg, query, dashboardID)
	if errors.Is(err, sql.ErrNoRows) {
		def := domain.DefaultDashboardConfig(dashboardID)
		return &def, nil
	}
	if err != nil {
		r.log.Errorw("Failed to get dashboard configuration from DB", "error", err, "dashboardID", dashboardID)
		return nil, wrapErr("load dashboard config", err)
	}
	return &cfg, nil
}
