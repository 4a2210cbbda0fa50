package rest

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dannoetc/baseliner/config"
	"github.com/dannoetc/baseliner/db"
	"github.com/dannoetc/baseliner/internal/tokens"
)

type enrollRequest struct {
	EnrollToken  string            `json:"enroll_token"`
	DeviceKey    string            `json:"device_key"`
	Hostname     string            `json:"hostname"`
	OS           string            `json:"os"`
	OSVersion    string            `json:"os_version"`
	Arch         string            `json:"arch"`
	AgentVersion string            `json:"agent_version"`
	Tags         map[string]string `json:"tags"`
}

type enrollResponse struct {
	DeviceID    string `json:"device_id"`
	DeviceToken string `json:"device_token"`
}

// EnrollHandler exchanges a single-use enroll token for a device token
// (spec §4.1, §4.2). It is anonymous at the HTTP layer — trust flows from
// the enroll token itself, not from the auth middleware.
func EnrollHandler(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req enrollRequest
		if err := c.BodyParser(&req); err != nil {
			return WriteError(c, ErrMalformed("request body is not valid JSON"))
		}
		if req.EnrollToken == "" || req.DeviceKey == "" {
			return WriteError(c, ErrSchema("enroll_token and device_key are required", nil))
		}

		now := time.Now().UTC()
		hash := tokens.Hash(cfg.TokenPepper, req.EnrollToken)

		tx, err := db.GetDB().Begin()
		if err != nil {
			return WriteError(c, ErrInternal("failed to start transaction"))
		}
		defer tx.Rollback()

		tokenRow, lookupErr := db.GetEnrollTokenByHashForUpdateTx(tx, hash)
		if lookupErr != nil && lookupErr != db.ErrNotFound {
			return WriteError(c, ErrInternal("failed to look up enroll token"))
		}

		state := tokens.EnrollTokenState{}
		if tokenRow != nil {
			state = tokens.EnrollTokenState{ExpiresAt: tokenRow.ExpiresAt, UsedAt: tokenRow.UsedAt}
		}
		if result := tokens.VerifyEnrollToken(tokenRow != nil, state, now); result != tokens.Valid {
			return WriteError(c, NewError(KindAuthInvalid, "enroll token is "+result.String()))
		}

		// The enrolled device belongs to whichever tenant minted the token,
		// never the caller's X-Tenant-ID: enrollment is anonymous at the HTTP
		// layer, so the token itself is the only trustworthy tenant signal.
		tenantID := tokenRow.TenantID

		if ok, err := db.MarkEnrollTokenUsedTx(tx, tokenRow.ID, now); err != nil {
			return WriteError(c, ErrInternal("failed to mark enroll token used"))
		} else if !ok {
			return WriteError(c, NewError(KindAuthInvalid, "enroll token is used"))
		}

		device, err := db.GetDeviceByKeyForUpdateTx(tx, tenantID, req.DeviceKey)
		if err != nil && err != db.ErrNotFound {
			return WriteError(c, ErrInternal("failed to look up device"))
		}
		if device == nil {
			device, err = db.CreateDeviceTx(tx, tenantID, req.DeviceKey)
			if err != nil {
				return WriteError(c, ErrInternal("failed to create device"))
			}
		} else if device.Status != "active" {
			return WriteError(c, NewError(KindAuthDeviceInactive, "device is inactive"))
		}

		if err := db.UpdateDeviceMetadataTx(tx, device.ID, db.DeviceMetadata{
			Hostname: req.Hostname, OS: req.OS, OSVersion: req.OSVersion,
			Arch: req.Arch, AgentVersion: req.AgentVersion, Tags: req.Tags,
		}); err != nil {
			return WriteError(c, ErrInternal("failed to update device metadata"))
		}

		minted, err := tokens.Mint(cfg.TokenPepper)
		if err != nil {
			return WriteError(c, ErrInternal("failed to mint device token"))
		}
		if _, err := db.IssueDeviceTokenTx(tx, tenantID, device.ID, minted.Hash, minted.Prefix, now); err != nil {
			return WriteError(c, ErrInternal("failed to issue device token"))
		}

		correlationID := CorrelationID(c)
		if _, err := db.WriteAuditLogTx(tx, db.NewAuditLog{
			TenantID: tenantID, Actor: "device", Action: "device.enroll",
			TargetType: "device", TargetID: device.ID, CorrelationID: &correlationID,
		}); err != nil {
			return WriteError(c, ErrInternal("failed to write audit log"))
		}

		if err := tx.Commit(); err != nil {
			return WriteError(c, ErrInternal("failed to commit enrollment"))
		}

		return c.Status(fiber.StatusCreated).JSON(enrollResponse{DeviceID: device.ID, DeviceToken: minted.Raw})
	}
}
