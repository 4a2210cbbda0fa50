// Package worker schedules the background maintenance job of spec §4.7 as
// an asynq periodic task instead of a bare ticker loop.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dannoetc/baseliner/config"
	"github.com/dannoetc/baseliner/db"
)

const TypePrune = "maintenance:prune"

type PrunePayload struct {
	TenantID          string `json:"tenant_id"`
	KeepDays          int    `json:"keep_days"`
	KeepRunsPerDevice int    `json:"keep_runs_per_device"`
	BatchSize         int    `json:"batch_size"`
}

func NewPruneTask(payload PrunePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prune payload: %w", err)
	}
	return asynq.NewTask(TypePrune, data), nil
}

func HandlePruneTask(ctx context.Context, t *asynq.Task) error {
	var payload PrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal prune payload: %w", err)
	}

	result, err := db.Prune(db.PruneParams{
		TenantID:          payload.TenantID,
		KeepDays:          payload.KeepDays,
		KeepRunsPerDevice: payload.KeepRunsPerDevice,
		BatchSize:         payload.BatchSize,
		DryRun:            false,
	})
	if err != nil {
		return fmt.Errorf("prune task failed: %w", err)
	}

	_ = result // the prune counts are not reported; only an error fails the task.
	return nil
}

// NewServer builds the asynq server + mux that processes prune tasks. The
// caller is responsible for running it (typically in its own goroutine).
func NewServer(cfg config.Config) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{Concurrency: 2},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePrune, HandlePruneTask)

	return srv, mux
}

// NewScheduler registers a daily (03:00) prune task for tenantID. Operators
// running multiple tenants register one scheduled entry per tenant via the
// same helper.
func NewScheduler(cfg config.Config, tenantID string) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, nil)

	task, err := NewPruneTask(PrunePayload{
		TenantID:          tenantID,
		KeepDays:          90,
		KeepRunsPerDevice: 50,
		BatchSize:         500,
	})
	if err != nil {
		return nil, err
	}

	if _, err := scheduler.Register("0 3 * * *", task); err != nil {
		return nil, fmt.Errorf("failed to register prune schedule: %w", err)
	}

	return scheduler, nil
}
