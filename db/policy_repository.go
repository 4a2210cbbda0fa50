package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const policyColumns = `id, tenant_id, name, description, schema_version, is_active, document, created_at, updated_at`

func scanPolicy(row interface{ Scan(dest ...interface{}) error }) (*Policy, error) {
	p := &Policy{}
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &p.SchemaVersion, &p.IsActive, &p.Document, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpsertPolicyTx creates a policy by name or mutates the existing one in
// place. Policies are versioned by mutation, not by row (spec §3 lifecycle).
func UpsertPolicyTx(tx *sql.Tx, tenantID, name, description string, schemaVersion int, isActive bool, document string) (*Policy, error) {
	now := time.Now().UTC()

	query := fmt.Sprintf(`SELECT %s FROM policies WHERE tenant_id = $1 AND name = $2`+forUpdate(), policyColumns)
	existing, err := scanPolicy(tx.QueryRow(query, tenantID, name))
	if err == sql.ErrNoRows {
		p := &Policy{
			ID:            uuid.NewString(),
			TenantID:      tenantID,
			Name:          name,
			Description:   description,
			SchemaVersion: schemaVersion,
			IsActive:      isActive,
			Document:      document,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		_, err := tx.Exec(
			`INSERT INTO policies (id, tenant_id, name, description, schema_version, is_active, document, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			p.ID, p.TenantID, p.Name, p.Description, p.SchemaVersion, p.IsActive, p.Document, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create policy: %w", err)
		}
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up policy for upsert: %w", err)
	}

	existing.Description = description
	existing.SchemaVersion = schemaVersion
	existing.IsActive = isActive
	existing.Document = document
	existing.UpdatedAt = now

	_, err = tx.Exec(
		`UPDATE policies SET description = $1, schema_version = $2, is_active = $3, document = $4, updated_at = $5 WHERE id = $6`,
		existing.Description, existing.SchemaVersion, existing.IsActive, existing.Document, existing.UpdatedAt, existing.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update policy: %w", err)
	}
	return existing, nil
}

func GetPolicy(tenantID, id string) (*Policy, error) {
	query := fmt.Sprintf(`SELECT %s FROM policies WHERE tenant_id = $1 AND id = $2`, policyColumns)
	p, err := scanPolicy(DB.QueryRow(query, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return p, nil
}

func ListPolicies(tenantID string) ([]Policy, error) {
	query := fmt.Sprintf(`SELECT %s FROM policies WHERE tenant_id = $1 ORDER BY name`, policyColumns)
	rows, err := DB.Query(query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var policies []Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

// GetActivePoliciesByIDs returns the subset of ids that are active policies,
// keyed by id, for use by the compiler.
func GetActivePoliciesByIDs(tenantID string, ids []string) (map[string]Policy, error) {
	result := make(map[string]Policy)
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, tenantID)
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM policies WHERE tenant_id = $1 AND is_active = TRUE AND id IN (%s)`,
		policyColumns, joinPlaceholders(placeholders),
	)

	rows, err := DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get active policies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		result[p.ID] = *p
	}
	return result, rows.Err()
}

func joinPlaceholders(p []string) string {
	out := ""
	for i, s := range p {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
