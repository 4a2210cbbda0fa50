package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const assignmentColumns = `id, tenant_id, device_id, policy_id, priority, mode, created_at`

func scanAssignment(row interface{ Scan(dest ...interface{}) error }) (*PolicyAssignment, error) {
	a := &PolicyAssignment{}
	err := row.Scan(&a.ID, &a.TenantID, &a.DeviceID, &a.PolicyID, &a.Priority, &a.Mode, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func CreateAssignmentTx(tx *sql.Tx, tenantID, deviceID, policyID string, priority int, mode string) (*PolicyAssignment, error) {
	a := &PolicyAssignment{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		DeviceID:  deviceID,
		PolicyID:  policyID,
		Priority:  priority,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
	}
	_, err := tx.Exec(
		`INSERT INTO policy_assignments (id, tenant_id, device_id, policy_id, priority, mode, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.TenantID, a.DeviceID, a.PolicyID, a.Priority, a.Mode, a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create assignment: %w", err)
	}
	return a, nil
}

// ListAssignmentsForDevice returns every assignment for the device in the
// canonical order of spec §4.3: priority asc, created_at asc, id asc.
func ListAssignmentsForDevice(tenantID, deviceID string) ([]PolicyAssignment, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM policy_assignments WHERE tenant_id = $1 AND device_id = $2 ORDER BY priority ASC, created_at ASC, id ASC`,
		assignmentColumns,
	)
	rows, err := DB.Query(query, tenantID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []PolicyAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

func DeleteAssignmentsForDeviceAndPolicyTx(tx *sql.Tx, tenantID, deviceID, policyID string) (int64, error) {
	result, err := tx.Exec(
		`DELETE FROM policy_assignments WHERE tenant_id = $1 AND device_id = $2 AND policy_id = $3`,
		tenantID, deviceID, policyID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete assignments for device and policy: %w", err)
	}
	return result.RowsAffected()
}

func ClearAssignmentsForDeviceTx(tx *sql.Tx, tenantID, deviceID string) (int64, error) {
	result, err := tx.Exec(`DELETE FROM policy_assignments WHERE tenant_id = $1 AND device_id = $2`, tenantID, deviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear assignments for device: %w", err)
	}
	return result.RowsAffected()
}
