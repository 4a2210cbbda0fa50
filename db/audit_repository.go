package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NewAuditLog struct {
	TenantID      string
	Actor         string
	Action        string
	TargetType    string
	TargetID      string
	Before        *string
	After         *string
	CorrelationID *string
}

// WriteAuditLogTx appends one audit row inside the caller's transaction, so
// it commits or rolls back atomically with the mutation it describes (spec
// §4.6, §7 fail-closed auditing).
func WriteAuditLogTx(tx *sql.Tx, n NewAuditLog) (*AuditLog, error) {
	a := &AuditLog{
		ID:            uuid.NewString(),
		TenantID:      n.TenantID,
		TS:            time.Now().UTC(),
		Actor:         n.Actor,
		Action:        n.Action,
		TargetType:    n.TargetType,
		TargetID:      n.TargetID,
		Before:        n.Before,
		After:         n.After,
		CorrelationID: n.CorrelationID,
	}
	_, err := tx.Exec(
		`INSERT INTO audit_logs (id, tenant_id, ts, actor, action, target_type, target_id, before, after, correlation_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.TenantID, a.TS, a.Actor, a.Action, a.TargetType, a.TargetID, a.Before, a.After, a.CorrelationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to write audit log: %w", err)
	}
	return a, nil
}

type AuditFilter struct {
	TenantID   string
	Action     string
	TargetType string
	TargetID   string
	// Cursor is the (ts, id) pair to page strictly before, exclusive. Zero
	// value means "start from the most recent".
	CursorTS *time.Time
	CursorID string
	Limit    int
}

func scanAuditLog(row interface{ Scan(dest ...interface{}) error }) (*AuditLog, error) {
	a := &AuditLog{}
	err := row.Scan(&a.ID, &a.TenantID, &a.TS, &a.Actor, &a.Action, &a.TargetType, &a.TargetID, &a.Before, &a.After, &a.CorrelationID)
	if err != nil {
		return nil, err
	}
	return a, nil
}

const auditLogColumns = `id, tenant_id, ts, actor, action, target_type, target_id, before, after, correlation_id`

// ListAuditLogs returns up to f.Limit rows strictly decreasing by (ts, id),
// plus whether more rows exist beyond the page.
func ListAuditLogs(f AuditFilter) ([]AuditLog, bool, error) {
	where := `WHERE tenant_id = $1`
	args := []interface{}{f.TenantID}

	if f.Action != "" {
		where += fmt.Sprintf(" AND action = $%d", len(args)+1)
		args = append(args, f.Action)
	}
	if f.TargetType != "" {
		where += fmt.Sprintf(" AND target_type = $%d", len(args)+1)
		args = append(args, f.TargetType)
	}
	if f.TargetID != "" {
		where += fmt.Sprintf(" AND target_id = $%d", len(args)+1)
		args = append(args, f.TargetID)
	}
	if f.CursorTS != nil {
		tsArg, idArg := len(args)+1, len(args)+2
		if IsSQLite() {
			where += fmt.Sprintf(" AND (ts < $%d OR (ts = $%d AND id < $%d))", tsArg, tsArg, idArg)
		} else {
			where += fmt.Sprintf(" AND (ts, id) < ($%d, $%d)", tsArg, idArg)
		}
		args = append(args, *f.CursorTS, f.CursorID)
	}

	limit := f.Limit
	args = append(args, limit+1)
	query := fmt.Sprintf(`SELECT %s FROM audit_logs %s ORDER BY ts DESC, id DESC LIMIT $%d`, auditLogColumns, where, len(args))

	rows, err := DB.Query(query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, false, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(logs) > limit
	if hasMore {
		logs = logs[:limit]
	}
	return logs, hasMore, nil
}
