package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dannoetc/baseliner/db"
)

func ListRunsHandler(c *fiber.Ctx) error {
	limit, offset := pagingParams(c)
	runs, total, err := db.ListRuns(db.RunListFilter{
		TenantID: TenantID(c), DeviceID: c.Query("device_id"), Limit: limit, Offset: offset,
	})
	if err != nil {
		return WriteError(c, ErrInternal("failed to list runs"))
	}
	return c.JSON(fiber.Map{"runs": runs, "total": total})
}

func GetRunHandler(c *fiber.Ctx) error {
	tenantID := TenantID(c)
	runID := c.Params("id")

	run, err := db.GetRun(tenantID, runID)
	if err == db.ErrNotFound {
		return WriteError(c, ErrNotFound("run not found"))
	}
	if err != nil {
		return WriteError(c, ErrInternal("failed to get run"))
	}

	items, err := db.ListRunItems(runID)
	if err != nil {
		return WriteError(c, ErrInternal("failed to list run items"))
	}
	logs, err := db.ListLogEvents(runID)
	if err != nil {
		return WriteError(c, ErrInternal("failed to list log events"))
	}

	return c.JSON(fiber.Map{"run": run, "items": items, "logs": logs})
}
