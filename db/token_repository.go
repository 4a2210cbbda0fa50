package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateEnrollTokenTx inserts a freshly minted enroll token. The caller
// already has the raw token; only its hash is ever persisted.
func CreateEnrollTokenTx(tx *sql.Tx, tenantID, tokenHash, note string, expiresAt *time.Time) (*EnrollToken, error) {
	t := &EnrollToken{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		TokenHash: tokenHash,
		Note:      note,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	_, err := tx.Exec(
		`INSERT INTO enroll_tokens (id, tenant_id, token_hash, note, expires_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.TenantID, t.TokenHash, t.Note, t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create enroll token: %w", err)
	}
	return t, nil
}

func scanEnrollToken(row interface{ Scan(dest ...interface{}) error }) (*EnrollToken, error) {
	t := &EnrollToken{}
	err := row.Scan(&t.ID, &t.TenantID, &t.TokenHash, &t.Note, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

const enrollTokenColumns = `id, tenant_id, token_hash, note, expires_at, used_at, created_at`

func GetEnrollTokenByHash(tenantID, tokenHash string) (*EnrollToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM enroll_tokens WHERE tenant_id = $1 AND token_hash = $2`, enrollTokenColumns)
	row := DB.QueryRow(query, tenantID, tokenHash)
	t, err := scanEnrollToken(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enroll token: %w", err)
	}
	return t, nil
}

func GetEnrollTokenByHashForUpdateTx(tx *sql.Tx, tokenHash string) (*EnrollToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM enroll_tokens WHERE token_hash = $1`+forUpdate(), enrollTokenColumns)
	row := tx.QueryRow(query, tokenHash)
	t, err := scanEnrollToken(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enroll token for update: %w", err)
	}
	return t, nil
}

func ListEnrollTokens(tenantID string) ([]EnrollToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM enroll_tokens WHERE tenant_id = $1 ORDER BY created_at DESC`, enrollTokenColumns)
	rows, err := DB.Query(query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enroll tokens: %w", err)
	}
	defer rows.Close()

	var tokens []EnrollToken
	for rows.Next() {
		t, err := scanEnrollToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enroll token: %w", err)
		}
		tokens = append(tokens, *t)
	}
	return tokens, rows.Err()
}

func GetEnrollToken(tenantID, id string) (*EnrollToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM enroll_tokens WHERE tenant_id = $1 AND id = $2`, enrollTokenColumns)
	row := DB.QueryRow(query, tenantID, id)
	t, err := scanEnrollToken(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enroll token: %w", err)
	}
	return t, nil
}

// MarkEnrollTokenUsedTx stamps used_at via a conditional update so a second
// concurrent enroll attempt with the same token fails (spec §4.1).
func MarkEnrollTokenUsedTx(tx *sql.Tx, id string, at time.Time) (bool, error) {
	result, err := tx.Exec(
		`UPDATE enroll_tokens SET used_at = $1 WHERE id = $2 AND used_at IS NULL`,
		at, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark enroll token used: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// RevokeEnrollTokenTx revokes an enroll token by forcing its expiry to at,
// the same way a naturally expired token is rejected. Enroll tokens have no
// separate revoked_at column; expiry is the only rejection path.
func RevokeEnrollTokenTx(tx *sql.Tx, id string, at time.Time) error {
	result, err := tx.Exec(
		`UPDATE enroll_tokens SET expires_at = $1 WHERE id = $2`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke enroll token: %w", err)
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

// --- Device auth tokens ---

const deviceAuthTokenColumns = `id, device_id, tenant_id, token_hash, prefix, issued_at, revoked_at, last_used_at`

func scanDeviceAuthToken(row interface{ Scan(dest ...interface{}) error }) (*DeviceAuthToken, error) {
	t := &DeviceAuthToken{}
	err := row.Scan(&t.ID, &t.DeviceID, &t.TenantID, &t.TokenHash, &t.Prefix, &t.IssuedAt, &t.RevokedAt, &t.LastUsedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func GetActiveDeviceTokenByHash(tokenHash string) (*DeviceAuthToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM device_auth_tokens WHERE token_hash = $1`, deviceAuthTokenColumns)
	row := DB.QueryRow(query, tokenHash)
	t, err := scanDeviceAuthToken(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device token: %w", err)
	}
	return t, nil
}

func ListDeviceTokens(tenantID, deviceID string) ([]DeviceAuthToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM device_auth_tokens WHERE tenant_id = $1 AND device_id = $2 ORDER BY issued_at DESC`, deviceAuthTokenColumns)
	rows, err := DB.Query(query, tenantID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []DeviceAuthToken
	for rows.Next() {
		t, err := scanDeviceAuthToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, *t)
	}
	return tokens, rows.Err()
}

// RevokeActiveDeviceTokenTx revokes whatever device token is currently
// un-revoked for deviceID, if any. Idempotent: revoking with none active is
// not an error.
func RevokeActiveDeviceTokenTx(tx *sql.Tx, deviceID string, at time.Time) error {
	_, err := tx.Exec(
		`UPDATE device_auth_tokens SET revoked_at = $1 WHERE device_id = $2 AND revoked_at IS NULL`,
		at, deviceID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke device token: %w", err)
	}
	return nil
}

// IssueDeviceTokenTx revokes any currently active token for the device and
// inserts a new one in the same transaction (spec §4.1 rotation contract).
func IssueDeviceTokenTx(tx *sql.Tx, tenantID, deviceID, tokenHash, prefix string, at time.Time) (*DeviceAuthToken, error) {
	if err := RevokeActiveDeviceTokenTx(tx, deviceID, at); err != nil {
		return nil, err
	}

	t := &DeviceAuthToken{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		TenantID:  tenantID,
		TokenHash: tokenHash,
		Prefix:    prefix,
		IssuedAt:  at,
	}
	_, err := tx.Exec(
		`INSERT INTO device_auth_tokens (id, device_id, tenant_id, token_hash, prefix, issued_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.DeviceID, t.TenantID, t.TokenHash, t.Prefix, t.IssuedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to issue device token: %w", err)
	}
	return t, nil
}

func TouchDeviceTokenLastUsedTx(tx *sql.Tx, tokenID string, at time.Time) error {
	_, err := tx.Exec(
		`UPDATE device_auth_tokens SET last_used_at = $1 WHERE id = $2`,
		at, tokenID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch device token last_used_at: %w", err)
	}
	return nil
}
