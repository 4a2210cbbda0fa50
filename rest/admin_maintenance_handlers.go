package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dannoetc/baseliner/db"
)

type pruneRequest struct {
	KeepDays          int  `json:"keep_days"`
	KeepRunsPerDevice int  `json:"keep_runs_per_device"`
	BatchSize         int  `json:"batch_size"`
	DryRun            bool `json:"dry_run"`
}

// PruneHandler runs the retention sweep synchronously for an operator who
// wants an immediate answer; the same work also runs as a scheduled asynq
// task (worker/prune.go) for unattended operation (spec §4.7).
func PruneHandler(c *fiber.Ctx) error {
	var req pruneRequest
	if err := c.BodyParser(&req); err != nil {
		return WriteError(c, ErrMalformed("request body is not valid JSON"))
	}
	if req.KeepDays <= 0 {
		req.KeepDays = 90
	}
	if req.KeepRunsPerDevice <= 0 {
		req.KeepRunsPerDevice = 50
	}
	if req.BatchSize <= 0 {
		req.BatchSize = 500
	}

	result, err := db.Prune(db.PruneParams{
		TenantID: TenantID(c), KeepDays: req.KeepDays, KeepRunsPerDevice: req.KeepRunsPerDevice,
		BatchSize: req.BatchSize, DryRun: req.DryRun,
	})
	if err != nil {
		return WriteError(c, ErrInternal("failed to run maintenance prune"))
	}
	return c.JSON(result)
}
