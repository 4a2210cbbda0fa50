package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// forUpdate returns the row-locking clause used to serialize mutations on a
// single device (spec §5). SQLite's single-writer model makes the clause
// both unsupported and unnecessary.
func forUpdate() string {
	if IsSQLite() {
		return ""
	}
	return " FOR UPDATE"
}

func scanDevice(row interface{ Scan(dest ...interface{}) error }) (*Device, error) {
	d := &Device{}
	var tagsJSON string
	err := row.Scan(
		&d.ID, &d.TenantID, &d.DeviceKey, &d.Hostname, &d.OS, &d.OSVersion, &d.Arch,
		&d.AgentVersion, &tagsJSON, &d.Status, &d.LastSeenAt, &d.DeletedAt, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tagsJSON == "" {
		tagsJSON = "{}"
	}
	if err := json.Unmarshal([]byte(tagsJSON), &d.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode device tags: %w", err)
	}
	return d, nil
}

const deviceColumns = `id, tenant_id, device_key, hostname, os, os_version, arch, agent_version, tags, status, last_seen_at, deleted_at, created_at`

// GetDeviceForUpdateTx fetches a device row inside tx with a row lock,
// serializing concurrent enroll/ingest/rotate calls for the same device.
func GetDeviceForUpdateTx(tx *sql.Tx, tenantID, deviceID string) (*Device, error) {
	query := fmt.Sprintf(`SELECT %s FROM devices WHERE tenant_id = $1 AND id = $2`+forUpdate(), deviceColumns)
	row := tx.QueryRow(query, tenantID, deviceID)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device for update: %w", err)
	}
	return d, nil
}

func GetDeviceByKeyForUpdateTx(tx *sql.Tx, tenantID, deviceKey string) (*Device, error) {
	query := fmt.Sprintf(`SELECT %s FROM devices WHERE tenant_id = $1 AND device_key = $2`+forUpdate(), deviceColumns)
	row := tx.QueryRow(query, tenantID, deviceKey)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device by key for update: %w", err)
	}
	return d, nil
}

func GetDevice(tenantID, deviceID string) (*Device, error) {
	query := fmt.Sprintf(`SELECT %s FROM devices WHERE tenant_id = $1 AND id = $2`, deviceColumns)
	row := DB.QueryRow(query, tenantID, deviceID)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return d, nil
}

type DeviceListFilter struct {
	TenantID string
	Status   string
	Limit    int
	Offset   int
}

func ListDevices(f DeviceListFilter) ([]Device, int, error) {
	where := `WHERE tenant_id = $1`
	args := []interface{}{f.TenantID}
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, f.Status)
	}

	var total int
	if err := DB.QueryRow(`SELECT COUNT(*) FROM devices `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count devices: %w", err)
	}

	limit, offset := f.Limit, f.Offset
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM devices %s ORDER BY created_at LIMIT $%d OFFSET $%d`, deviceColumns, where, len(args)-1, len(args))

	rows, err := DB.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	return devices, total, rows.Err()
}

// CreateDeviceTx inserts a brand new device row inside tx.
func CreateDeviceTx(tx *sql.Tx, tenantID, deviceKey string) (*Device, error) {
	d := &Device{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		DeviceKey: deviceKey,
		Tags:      map[string]string{},
		Status:    "active",
		CreatedAt: time.Now().UTC(),
	}
	_, err := tx.Exec(
		`INSERT INTO devices (id, tenant_id, device_key, hostname, os, os_version, arch, agent_version, tags, status, created_at)
		 VALUES ($1, $2, $3, '', '', '', '', '', '{}', 'active', $4)`,
		d.ID, d.TenantID, d.DeviceKey, d.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	return d, nil
}

type DeviceMetadata struct {
	Hostname     string
	OS           string
	OSVersion    string
	Arch         string
	AgentVersion string
	Tags         map[string]string
}

func UpdateDeviceMetadataTx(tx *sql.Tx, deviceID string, meta DeviceMetadata) error {
	if meta.Tags == nil {
		meta.Tags = map[string]string{}
	}
	tagsJSON, err := json.Marshal(meta.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode device tags: %w", err)
	}
	_, err = tx.Exec(
		`UPDATE devices SET hostname = $1, os = $2, os_version = $3, arch = $4, agent_version = $5, tags = $6 WHERE id = $7`,
		meta.Hostname, meta.OS, meta.OSVersion, meta.Arch, meta.AgentVersion, string(tagsJSON), deviceID,
	)
	if err != nil {
		return fmt.Errorf("failed to update device metadata: %w", err)
	}
	return nil
}

func TouchDeviceLastSeenTx(tx *sql.Tx, deviceID string, at time.Time) error {
	_, err := tx.Exec(
		`UPDATE devices SET last_seen_at = $1 WHERE id = $2 AND (last_seen_at IS NULL OR last_seen_at < $1)`,
		at, deviceID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch device last_seen_at: %w", err)
	}
	return nil
}

func SoftDeleteDeviceTx(tx *sql.Tx, deviceID string, at time.Time) error {
	_, err := tx.Exec(
		`UPDATE devices SET status = 'inactive', deleted_at = $1 WHERE id = $2`,
		at, deviceID,
	)
	if err != nil {
		return fmt.Errorf("failed to soft delete device: %w", err)
	}
	return nil
}

func RestoreDeviceTx(tx *sql.Tx, deviceID string) error {
	_, err := tx.Exec(
		`UPDATE devices SET status = 'active', deleted_at = NULL WHERE id = $1`,
		deviceID,
	)
	if err != nil {
		return fmt.Errorf("failed to restore device: %w", err)
	}
	return nil
}
