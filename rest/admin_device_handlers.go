package rest

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dannoetc/baseliner/config"
	"github.com/dannoetc/baseliner/db"
	"github.com/dannoetc/baseliner/internal/tokens"
)

type deviceWithHealth struct {
	db.Device
	Health string `json:"health,omitempty"`
}

func deviceHealth(d db.Device, staleAfter time.Duration, now time.Time) string {
	if d.LastSeenAt == nil {
		return "never_seen"
	}
	if now.Sub(*d.LastSeenAt) > staleAfter {
		return "stale"
	}
	return "ok"
}

// ListDevicesHandler lists devices for the resolved tenant. ?health=true
// adds a derived health field computed from last_seen_at without requiring
// a separate debug-bundle fetch per device.
func ListDevicesHandler(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, offset := pagingParams(c)
		devices, total, err := db.ListDevices(db.DeviceListFilter{
			TenantID: TenantID(c), Status: c.Query("status"), Limit: limit, Offset: offset,
		})
		if err != nil {
			return WriteError(c, ErrInternal("failed to list devices"))
		}

		if c.Query("health") != "true" {
			return c.JSON(fiber.Map{"devices": devices, "total": total})
		}

		now := time.Now().UTC()
		withHealth := make([]deviceWithHealth, len(devices))
		for i, d := range devices {
			withHealth[i] = deviceWithHealth{Device: d, Health: deviceHealth(d, cfg.DeviceStaleAfter, now)}
		}
		return c.JSON(fiber.Map{"devices": withHealth, "total": total})
	}
}

func pagingParams(c *fiber.Ctx) (limit, offset int) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, err = strconv.Atoi(c.Query("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// DeviceDebugHandler joins device, assignments, compile output, and last
// run into one bundle for operator inspection (spec §6).
func DeviceDebugHandler(c *fiber.Ctx) error {
	tenantID := TenantID(c)
	deviceID := c.Params("id")

	device, err := db.GetDevice(tenantID, deviceID)
	if err == db.ErrNotFound {
		return WriteError(c, ErrNotFound("device not found"))
	}
	if err != nil {
		return WriteError(c, ErrInternal("failed to get device"))
	}

	assignments, err := db.ListAssignmentsForDevice(tenantID, deviceID)
	if err != nil {
		return WriteError(c, ErrInternal("failed to list assignments"))
	}

	compiled, err := compileForDevice(tenantID, deviceID)
	if err != nil {
		return WriteError(c, ErrInternal("failed to compile effective policy"))
	}

	var lastRun *db.Run
	var lastRunItems []db.RunItem
	run, err := db.GetLastRunForDevice(tenantID, deviceID)
	if err == nil {
		lastRun = run
		lastRunItems, err = db.ListRunItems(run.ID)
		if err != nil {
			return WriteError(c, ErrInternal("failed to list last run items"))
		}
	} else if err != db.ErrNotFound {
		return WriteError(c, ErrInternal("failed to get last run"))
	}

	return c.JSON(fiber.Map{
		"device":      device,
		"assignments": assignments,
		"effective_policy": fiber.Map{
			"hash": compiled.Hash,
			"compile": fiber.Map{
				"resources": compiled.Document.Resources,
				"conflicts": compiled.Conflicts,
			},
		},
		"last_run":       lastRun,
		"last_run_items": lastRunItems,
	})
}

func SoftDeleteDeviceHandler(c *fiber.Ctx) error {
	tenantID := TenantID(c)
	deviceID := c.Params("id")

	device, err := db.GetDevice(tenantID, deviceID)
	if err == db.ErrNotFound {
		return WriteError(c, ErrNotFound("device not found"))
	}
	if err != nil {
		return WriteError(c, ErrInternal("failed to get device"))
	}

	now := time.Now().UTC()
	tx, err := db.GetDB().Begin()
	if err != nil {
		return WriteError(c, ErrInternal("failed to start transaction"))
	}
	defer tx.Rollback()

	if _, err := db.GetDeviceForUpdateTx(tx, tenantID, deviceID); err != nil {
		return WriteError(c, ErrInternal("failed to lock device"))
	}
	if err := db.SoftDeleteDeviceTx(tx, deviceID, now); err != nil {
		return WriteError(c, ErrInternal("failed to soft delete device"))
	}
	if err := db.RevokeActiveDeviceTokenTx(tx, deviceID, now); err != nil {
		return WriteError(c, ErrInternal("failed to revoke device token"))
	}

	before := device.Status
	after := "inactive"
	correlationID := CorrelationID(c)
	if _, err := db.WriteAuditLogTx(tx, db.NewAuditLog{
		TenantID: tenantID, Actor: "admin", Action: "device.soft_delete",
		TargetType: "device", TargetID: deviceID, Before: &before, After: &after, CorrelationID: &correlationID,
	}); err != nil {
		return WriteError(c, ErrInternal("failed to write audit log"))
	}

	if err := tx.Commit(); err != nil {
		return WriteError(c, ErrInternal("failed to commit"))
	}
	return c.JSON(fiber.Map{"id": deviceID, "status": "inactive"})
}

type restoreDeviceResponse struct {
	DeviceID    string `json:"device_id"`
	DeviceToken string `json:"device_token"`
}

func RestoreDeviceHandler(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID := TenantID(c)
		deviceID := c.Params("id")

		tx, err := db.GetDB().Begin()
		if err != nil {
			return WriteError(c, ErrInternal("failed to start transaction"))
		}
		defer tx.Rollback()

		device, err := db.GetDeviceForUpdateTx(tx, tenantID, deviceID)
		if err == db.ErrNotFound {
			return WriteError(c, ErrNotFound("device not found"))
		}
		if err != nil {
			return WriteError(c, ErrInternal("failed to lock device"))
		}
		if device.Status == "active" {
			return WriteError(c, ErrConflict("device is already active"))
		}

		now := time.Now().UTC()
		if err := db.RestoreDeviceTx(tx, deviceID); err != nil {
			return WriteError(c, ErrInternal("failed to restore device"))
		}

		minted, err := tokens.Mint(cfg.TokenPepper)
		if err != nil {
			return WriteError(c, ErrInternal("failed to mint device token"))
		}
		if _, err := db.IssueDeviceTokenTx(tx, tenantID, deviceID, minted.Hash, minted.Prefix, now); err != nil {
			return WriteError(c, ErrInternal("failed to issue device token"))
		}

		before := "inactive"
		after := "active"
		correlationID := CorrelationID(c)
		if _, err := db.WriteAuditLogTx(tx, db.NewAuditLog{
			TenantID: tenantID, Actor: "admin", Action: "device.restore",
			TargetType: "device", TargetID: deviceID, Before: &before, After: &after, CorrelationID: &correlationID,
		}); err != nil {
			return WriteError(c, ErrInternal("failed to write audit log"))
		}

		if err := tx.Commit(); err != nil {
			return WriteError(c, ErrInternal("failed to commit"))
		}
		return c.JSON(restoreDeviceResponse{DeviceID: deviceID, DeviceToken: minted.Raw})
	}
}

type revokeTokenResponse struct {
	DeviceID    string `json:"device_id"`
	DeviceToken string `json:"device_token"`
}

func RevokeDeviceTokenHandler(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID := TenantID(c)
		deviceID := c.Params("id")

		tx, err := db.GetDB().Begin()
		if err != nil {
			return WriteError(c, ErrInternal("failed to start transaction"))
		}
		defer tx.Rollback()

		device, err := db.GetDeviceForUpdateTx(tx, tenantID, deviceID)
		if err == db.ErrNotFound {
			return WriteError(c, ErrNotFound("device not found"))
		}
		if err != nil {
			return WriteError(c, ErrInternal("failed to lock device"))
		}

		now := time.Now().UTC()
		minted, err := tokens.Mint(cfg.TokenPepper)
		if err != nil {
			return WriteError(c, ErrInternal("failed to mint device token"))
		}
		if _, err := db.IssueDeviceTokenTx(tx, tenantID, device.ID, minted.Hash, minted.Prefix, now); err != nil {
			return WriteError(c, ErrInternal("failed to rotate device token"))
		}

		correlationID := CorrelationID(c)
		if _, err := db.WriteAuditLogTx(tx, db.NewAuditLog{
			TenantID: tenantID, Actor: "admin", Action: "device.revoke_token",
			TargetType: "device", TargetID: deviceID, CorrelationID: &correlationID,
		}); err != nil {
			return WriteError(c, ErrInternal("failed to write audit log"))
		}

		if err := tx.Commit(); err != nil {
			return WriteError(c, ErrInternal("failed to commit"))
		}
		return c.JSON(revokeTokenResponse{DeviceID: device.ID, DeviceToken: minted.Raw})
	}
}

// DeviceTokensHandler returns token history with hashed prefixes only,
// never the full hash or raw value (spec §6).
func DeviceTokensHandler(c *fiber.Ctx) error {
	tenantID := TenantID(c)
	deviceID := c.Params("id")

	if _, err := db.GetDevice(tenantID, deviceID); err == db.ErrNotFound {
		return WriteError(c, ErrNotFound("device not found"))
	} else if err != nil {
		return WriteError(c, ErrInternal("failed to get device"))
	}

	tokenRows, err := db.ListDeviceTokens(tenantID, deviceID)
	if err != nil {
		return WriteError(c, ErrInternal("failed to list device tokens"))
	}

	type tokenSummary struct {
		ID         string     `json:"id"`
		Prefix     string     `json:"prefix"`
		IssuedAt   time.Time  `json:"issued_at"`
		RevokedAt  *time.Time `json:"revoked_at"`
		LastUsedAt *time.Time `json:"last_used_at"`
	}
	summaries := make([]tokenSummary, len(tokenRows))
	for i, t := range tokenRows {
		summaries[i] = tokenSummary{ID: t.ID, Prefix: t.Prefix, IssuedAt: t.IssuedAt, RevokedAt: t.RevokedAt, LastUsedAt: t.LastUsedAt}
	}
	return c.JSON(fiber.Map{"tokens": summaries})
}
