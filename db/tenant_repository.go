package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func CreateTenantTx(tx *sql.Tx, name string) (*Tenant, error) {
	tenant := &Tenant{
		ID:        uuid.NewString(),
		Name:      name,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}

	_, err := tx.Exec(
		`INSERT INTO tenants (id, name, is_active, created_at) VALUES ($1, $2, $3, $4)`,
		tenant.ID, tenant.Name, tenant.IsActive, tenant.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	return tenant, nil
}

func GetTenant(tenantID string) (*Tenant, error) {
	t := &Tenant{}
	err := DB.QueryRow(
		`SELECT id, name, is_active, created_at FROM tenants WHERE id = $1`,
		tenantID,
	).Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

func GetTenantByName(name string) (*Tenant, error) {
	t := &Tenant{}
	err := DB.QueryRow(
		`SELECT id, name, is_active, created_at FROM tenants WHERE name = $1`,
		name,
	).Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant by name: %w", err)
	}
	return t, nil
}

func ListTenants() ([]Tenant, error) {
	rows, err := DB.Query(`SELECT id, name, is_active, created_at FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func SetTenantActiveTx(tx *sql.Tx, tenantID string, active bool) error {
	result, err := tx.Exec(`UPDATE tenants SET is_active = $1 WHERE id = $2`, active, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
