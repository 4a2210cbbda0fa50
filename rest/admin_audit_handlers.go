package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dannoetc/baseliner/db"
)

// ListAuditHandler returns cursor-paged, filterable audit rows (spec §4.6,
// §9). The cursor is opaque base64 — callers never see (ts, id) directly.
func ListAuditHandler(c *fiber.Ctx) error {
	limit, _ := pagingParams(c)

	cursor, err := decodeCursor(c.Query("cursor"))
	if err != nil {
		return WriteError(c, ErrMalformed("invalid cursor"))
	}

	filter := db.AuditFilter{
		TenantID:   TenantID(c),
		Action:     c.Query("action"),
		TargetType: c.Query("target_type"),
		TargetID:   c.Query("target_id"),
		Limit:      limit,
	}
	if cursor != nil {
		filter.CursorTS = &cursor.TS
		filter.CursorID = cursor.ID
	}

	logs, hasMore, err := db.ListAuditLogs(filter)
	if err != nil {
		return WriteError(c, ErrInternal("failed to list audit logs"))
	}

	var nextCursor string
	if hasMore && len(logs) > 0 {
		last := logs[len(logs)-1]
		nextCursor = encodeCursor(last.TS, last.ID)
	}

	return c.JSON(fiber.Map{"audit_logs": logs, "next_cursor": nextCursor, "has_more": hasMore})
}
