package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const runColumns = `id, tenant_id, device_id, started_at, ended_at, status, agent_version, effective_policy_hash, policy_snapshot, summary, correlation_id, created_at`

func scanRun(row interface{ Scan(dest ...interface{}) error }) (*Run, error) {
	r := &Run{}
	err := row.Scan(
		&r.ID, &r.TenantID, &r.DeviceID, &r.StartedAt, &r.EndedAt, &r.Status, &r.AgentVersion,
		&r.EffectivePolicyHash, &r.PolicySnapshot, &r.Summary, &r.CorrelationID, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// FindRunByCorrelationID implements the idempotency contract of spec §4.4:
// a prior run with the same (device_id, correlation_id) is returned as-is.
func FindRunByCorrelationID(tenantID, deviceID, correlationID string) (*Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM runs WHERE tenant_id = $1 AND device_id = $2 AND correlation_id = $3`, runColumns)
	r, err := scanRun(DB.QueryRow(query, tenantID, deviceID, correlationID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find run by correlation id: %w", err)
	}
	return r, nil
}

// FindRunByCorrelationIDTx is the same lookup run inside the caller's
// transaction, after it has taken the device row lock, so two concurrent
// report ingests with the same correlation id are serialized by the lock
// rather than racing each other to the unique index.
func FindRunByCorrelationIDTx(tx *sql.Tx, tenantID, deviceID, correlationID string) (*Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM runs WHERE tenant_id = $1 AND device_id = $2 AND correlation_id = $3`, runColumns)
	r, err := scanRun(tx.QueryRow(query, tenantID, deviceID, correlationID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find run by correlation id: %w", err)
	}
	return r, nil
}

type NewRunItem struct {
	ResourceType    string
	ResourceID      string
	Name            string
	StatusDetect    string
	StatusRemediate string
	StatusValidate  string
	CompliantBefore *bool
	CompliantAfter  *bool
	Changed         bool
	Evidence        string
	ErrorType       *string
	ErrorMessage    *string
}

type NewLogEvent struct {
	TS      time.Time
	Level   string
	Message string
	Data    string
}

type NewRun struct {
	TenantID            string
	DeviceID            string
	StartedAt           time.Time
	EndedAt             time.Time
	Status              string
	AgentVersion        string
	EffectivePolicyHash string
	PolicySnapshot      string
	Summary             string
	CorrelationID       *string
	Items               []NewRunItem
	Logs                []NewLogEvent
}

// Execer is the subset of *sql.Tx that IngestRunTx needs. Tests wrap a real
// transaction in it to inject a failure partway through item or log
// persistence without touching production call sites, which keep passing a
// plain *sql.Tx.
type Execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// IngestRunTx persists the run header, every item (in body order, ordinal =
// index), and every log event, all inside tx. The caller commits; any
// failure here leaves the transaction rollback-only, satisfying spec §3
// invariant 4 (a Run row exists iff all its items/logs are committed).
func IngestRunTx(tx Execer, n NewRun) (*Run, error) {
	now := time.Now().UTC()
	r := &Run{
		ID:                  uuid.NewString(),
		TenantID:            n.TenantID,
		DeviceID:            n.DeviceID,
		StartedAt:           n.StartedAt,
		EndedAt:             n.EndedAt,
		Status:              n.Status,
		AgentVersion:        n.AgentVersion,
		EffectivePolicyHash: n.EffectivePolicyHash,
		PolicySnapshot:      n.PolicySnapshot,
		Summary:             n.Summary,
		CorrelationID:       n.CorrelationID,
		CreatedAt:           now,
	}

	_, err := tx.Exec(
		`INSERT INTO runs (id, tenant_id, device_id, started_at, ended_at, status, agent_version, effective_policy_hash, policy_snapshot, summary, correlation_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.TenantID, r.DeviceID, r.StartedAt, r.EndedAt, r.Status, r.AgentVersion,
		r.EffectivePolicyHash, r.PolicySnapshot, r.Summary, r.CorrelationID, r.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	for i, item := range n.Items {
		_, err := tx.Exec(
			`INSERT INTO run_items (id, run_id, ordinal, resource_type, resource_id, name, status_detect, status_remediate, status_validate, compliant_before, compliant_after, changed, evidence, error_type, error_message)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			uuid.NewString(), r.ID, i, item.ResourceType, item.ResourceID, item.Name,
			item.StatusDetect, item.StatusRemediate, item.StatusValidate,
			item.CompliantBefore, item.CompliantAfter, item.Changed, item.Evidence,
			item.ErrorType, item.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert run item %d: %w", i, err)
		}
	}

	for i, logEvt := range n.Logs {
		_, err := tx.Exec(
			`INSERT INTO log_events (id, run_id, ordinal, ts, level, message, data) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.NewString(), r.ID, i, logEvt.TS, logEvt.Level, logEvt.Message, logEvt.Data,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert log event %d: %w", i, err)
		}
	}

	return r, nil
}

type RunListFilter struct {
	TenantID string
	DeviceID string
	Limit    int
	Offset   int
}

func ListRuns(f RunListFilter) ([]Run, int, error) {
	where := `WHERE tenant_id = $1`
	args := []interface{}{f.TenantID}
	if f.DeviceID != "" {
		where += fmt.Sprintf(" AND device_id = $%d", len(args)+1)
		args = append(args, f.DeviceID)
	}

	var total int
	if err := DB.QueryRow(`SELECT COUNT(*) FROM runs `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM runs %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, runColumns, where, len(args)-1, len(args))

	rows, err := DB.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, total, rows.Err()
}

func GetRun(tenantID, id string) (*Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM runs WHERE tenant_id = $1 AND id = $2`, runColumns)
	r, err := scanRun(DB.QueryRow(query, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

func GetLastRunForDevice(tenantID, deviceID string) (*Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM runs WHERE tenant_id = $1 AND device_id = $2 ORDER BY created_at DESC LIMIT 1`, runColumns)
	r, err := scanRun(DB.QueryRow(query, tenantID, deviceID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last run for device: %w", err)
	}
	return r, nil
}

func ListRunItems(runID string) ([]RunItem, error) {
	rows, err := DB.Query(
		`SELECT id, run_id, ordinal, resource_type, resource_id, name, status_detect, status_remediate, status_validate, compliant_before, compliant_after, changed, evidence, error_type, error_message
		 FROM run_items WHERE run_id = $1 ORDER BY ordinal ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list run items: %w", err)
	}
	defer rows.Close()

	var items []RunItem
	for rows.Next() {
		var it RunItem
		err := rows.Scan(
			&it.ID, &it.RunID, &it.Ordinal, &it.ResourceType, &it.ResourceID, &it.Name,
			&it.StatusDetect, &it.StatusRemediate, &it.StatusValidate,
			&it.CompliantBefore, &it.CompliantAfter, &it.Changed, &it.Evidence,
			&it.ErrorType, &it.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func ListLogEvents(runID string) ([]LogEvent, error) {
	rows, err := DB.Query(
		`SELECT id, run_id, ordinal, ts, level, message, data FROM log_events WHERE run_id = $1 ORDER BY ordinal ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list log events: %w", err)
	}
	defer rows.Close()

	var logs []LogEvent
	for rows.Next() {
		var l LogEvent
		if err := rows.Scan(&l.ID, &l.RunID, &l.Ordinal, &l.TS, &l.Level, &l.Message, &l.Data); err != nil {
			return nil, fmt.Errorf("failed to scan log event: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
