package db

import (
	"fmt"
	"time"
)

type PruneResult struct {
	RunsDeleted      int64
	RunItemsDeleted  int64
	LogEventsDeleted int64
	DryRun           bool
}

type PruneParams struct {
	TenantID           string
	KeepDays           int
	KeepRunsPerDevice  int
	BatchSize          int
	DryRun             bool
}

// Prune deletes runs older than KeepDays that also fall beyond the
// KeepRunsPerDevice most-recent runs for their device, cascading to
// run_items and log_events, chunked by BatchSize to bound lock duration
// (spec §4.7). DryRun reports counts without mutating.
func Prune(p PruneParams) (*PruneResult, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -p.KeepDays)

	candidateIDs, err := pruneCandidateRunIDs(p.TenantID, cutoff, p.KeepRunsPerDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to find prune candidates: %w", err)
	}

	result := &PruneResult{DryRun: p.DryRun}
	if len(candidateIDs) == 0 {
		return result, nil
	}

	if p.DryRun {
		for start := 0; start < len(candidateIDs); start += p.BatchSize {
			end := min(start+p.BatchSize, len(candidateIDs))
			batch := candidateIDs[start:end]
			items, logs, err := countRunChildren(batch)
			if err != nil {
				return nil, err
			}
			result.RunsDeleted += int64(len(batch))
			result.RunItemsDeleted += items
			result.LogEventsDeleted += logs
		}
		return result, nil
	}

	for start := 0; start < len(candidateIDs); start += p.BatchSize {
		end := min(start+p.BatchSize, len(candidateIDs))
		batch := candidateIDs[start:end]

		runsDeleted, itemsDeleted, logsDeleted, err := deleteRunBatch(batch)
		if err != nil {
			return nil, fmt.Errorf("failed to delete prune batch: %w", err)
		}
		result.RunsDeleted += runsDeleted
		result.RunItemsDeleted += itemsDeleted
		result.LogEventsDeleted += logsDeleted
	}

	return result, nil
}

func pruneCandidateRunIDs(tenantID string, cutoff time.Time, keepRunsPerDevice int) ([]string, error) {
	rows, err := DB.Query(
		`SELECT id FROM (
		   SELECT id, created_at,
		          ROW_NUMBER() OVER (PARTITION BY device_id ORDER BY created_at DESC, id DESC) AS rn
		   FROM runs WHERE tenant_id = $1
		 ) ranked
		 WHERE ranked.created_at < $2 AND ranked.rn > $3`,
		tenantID, cutoff, keepRunsPerDevice,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func countRunChildren(runIDs []string) (items int64, logs int64, err error) {
	placeholders, args := idPlaceholders(runIDs)

	if err := DB.QueryRow(
		fmt.Sprintf(`SELECT COUNT(*) FROM run_items WHERE run_id IN (%s)`, placeholders), args...,
	).Scan(&items); err != nil {
		return 0, 0, fmt.Errorf("failed to count run_items: %w", err)
	}
	if err := DB.QueryRow(
		fmt.Sprintf(`SELECT COUNT(*) FROM log_events WHERE run_id IN (%s)`, placeholders), args...,
	).Scan(&logs); err != nil {
		return 0, 0, fmt.Errorf("failed to count log_events: %w", err)
	}
	return items, logs, nil
}

func deleteRunBatch(runIDs []string) (runsDeleted, itemsDeleted, logsDeleted int64, err error) {
	tx, err := DB.Begin()
	if err != nil {
		return 0, 0, 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	placeholders, args := idPlaceholders(runIDs)

	itemsRes, err := tx.Exec(fmt.Sprintf(`DELETE FROM run_items WHERE run_id IN (%s)`, placeholders), args...)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to delete run_items: %w", err)
	}
	itemsDeleted, _ = itemsRes.RowsAffected()

	logsRes, err := tx.Exec(fmt.Sprintf(`DELETE FROM log_events WHERE run_id IN (%s)`, placeholders), args...)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to delete log_events: %w", err)
	}
	logsDeleted, _ = logsRes.RowsAffected()

	runsRes, err := tx.Exec(fmt.Sprintf(`DELETE FROM runs WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	runsDeleted, _ = runsRes.RowsAffected()

	if err = tx.Commit(); err != nil {
		return 0, 0, 0, err
	}
	return runsDeleted, itemsDeleted, logsDeleted, nil
}

func idPlaceholders(ids []string) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return joinPlaceholders(placeholders), args
}
