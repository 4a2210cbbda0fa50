package rest

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dannoetc/baseliner/config"
	"github.com/dannoetc/baseliner/db"
	"github.com/dannoetc/baseliner/internal/tokens"
)

type mintEnrollTokenRequest struct {
	Note      string     `json:"note"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type mintEnrollTokenResponse struct {
	ID          string     `json:"id"`
	EnrollToken string     `json:"enroll_token"`
	Note        string     `json:"note"`
	ExpiresAt   *time.Time `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func MintEnrollTokenHandler(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req mintEnrollTokenRequest
		if err := c.BodyParser(&req); err != nil {
			return WriteError(c, ErrMalformed("request body is not valid JSON"))
		}

		minted, err := tokens.Mint(cfg.TokenPepper)
		if err != nil {
			return WriteError(c, ErrInternal("failed to mint enroll token"))
		}

		tenantID := TenantID(c)
		tx, err := db.GetDB().Begin()
		if err != nil {
			return WriteError(c, ErrInternal("failed to start transaction"))
		}
		defer tx.Rollback()

		t, err := db.CreateEnrollTokenTx(tx, tenantID, minted.Hash, req.Note, req.ExpiresAt)
		if err != nil {
			return WriteError(c, ErrInternal("failed to create enroll token"))
		}

		correlationID := CorrelationID(c)
		if _, err := db.WriteAuditLogTx(tx, db.NewAuditLog{
			TenantID: tenantID, Actor: "admin", Action: "enroll_token.mint",
			TargetType: "enroll_token", TargetID: t.ID, CorrelationID: &correlationID,
		}); err != nil {
			return WriteError(c, ErrInternal("failed to write audit log"))
		}

		if err := tx.Commit(); err != nil {
			return WriteError(c, ErrInternal("failed to commit"))
		}

		return c.Status(fiber.StatusCreated).JSON(mintEnrollTokenResponse{
			ID: t.ID, EnrollToken: minted.Raw, Note: t.Note, ExpiresAt: t.ExpiresAt, CreatedAt: t.CreatedAt,
		})
	}
}

func ListEnrollTokensHandler(c *fiber.Ctx) error {
	tokenRows, err := db.ListEnrollTokens(TenantID(c))
	if err != nil {
		return WriteError(c, ErrInternal("failed to list enroll tokens"))
	}
	return c.JSON(fiber.Map{"enroll_tokens": tokenRows})
}

func RevokeEnrollTokenHandler(c *fiber.Ctx) error {
	tenantID := TenantID(c)
	id := c.Params("id")

	if _, err := db.GetEnrollToken(tenantID, id); err != nil {
		if err == db.ErrNotFound {
			return WriteError(c, ErrNotFound("enroll token not found"))
		}
		return WriteError(c, ErrInternal("failed to look up enroll token"))
	}

	now := time.Now().UTC()
	tx, err := db.GetDB().Begin()
	if err != nil {
		return WriteError(c, ErrInternal("failed to start transaction"))
	}
	defer tx.Rollback()

	if err := db.RevokeEnrollTokenTx(tx, id, now); err != nil {
		return WriteError(c, ErrInternal("failed to revoke enroll token"))
	}

	correlationID := CorrelationID(c)
	if _, err := db.WriteAuditLogTx(tx, db.NewAuditLog{
		TenantID: tenantID, Actor: "admin", Action: "enroll_token.revoke",
		TargetType: "enroll_token", TargetID: id, CorrelationID: &correlationID,
	}); err != nil {
		return WriteError(c, ErrInternal("failed to write audit log"))
	}

	if err := tx.Commit(); err != nil {
		return WriteError(c, ErrInternal("failed to commit"))
	}

	return c.JSON(fiber.Map{"id": id, "expires_at": now})
}
