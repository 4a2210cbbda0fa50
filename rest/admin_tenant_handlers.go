package rest

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dannoetc/baseliner/db"
)

type createTenantRequest struct {
	Name string `json:"name"`
}

// CreateTenantHandler adds a tenant beyond the Phase-0 default (spec §3
// treats Tenant as a fixed row; this is additive lifecycle management for
// operators running more than one). Uniqueness on name is enforced by the
// schema's unique index, not re-checked here.
func CreateTenantHandler(c *fiber.Ctx) error {
	var req createTenantRequest
	if err := c.BodyParser(&req); err != nil {
		return WriteError(c, ErrMalformed("request body is not valid JSON"))
	}
	if strings.TrimSpace(req.Name) == "" {
		return WriteError(c, ErrSchema("name is required", nil))
	}

	tx, err := db.GetDB().Begin()
	if err != nil {
		return WriteError(c, ErrInternal("failed to start transaction"))
	}
	defer tx.Rollback()

	tenant, err := db.CreateTenantTx(tx, req.Name)
	if err != nil {
		return WriteError(c, ErrConflict("tenant name already exists"))
	}

	correlationID := CorrelationID(c)
	if _, err := db.WriteAuditLogTx(tx, db.NewAuditLog{
		TenantID: tenant.ID, Actor: "admin", Action: "tenant.create",
		TargetType: "tenant", TargetID: tenant.ID, CorrelationID: &correlationID,
	}); err != nil {
		return WriteError(c, ErrInternal("failed to write audit log"))
	}
	if err := tx.Commit(); err != nil {
		return WriteError(c, ErrInternal("failed to commit"))
	}

	return c.Status(fiber.StatusCreated).JSON(tenant)
}

func ListTenantsHandler(c *fiber.Ctx) error {
	tenants, err := db.ListTenants()
	if err != nil {
		return WriteError(c, ErrInternal("failed to list tenants"))
	}
	return c.JSON(fiber.Map{"tenants": tenants})
}

func GetTenantHandler(c *fiber.Ctx) error {
	tenant, err := db.GetTenant(c.Params("id"))
	if err == db.ErrNotFound {
		return WriteError(c, ErrNotFound("tenant not found"))
	}
	if err != nil {
		return WriteError(c, ErrInternal("failed to get tenant"))
	}
	return c.JSON(tenant)
}

type setTenantActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// SetTenantActiveHandler deactivates or reactivates a tenant. An inactive
// tenant's devices and admin callers are rejected by TenantActiveGuard
// (spec.md has no Tenant lifecycle; this enforcement is additive, see
// SPEC_FULL.md supplemental features).
func SetTenantActiveHandler(c *fiber.Ctx) error {
	var req setTenantActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return WriteError(c, ErrMalformed("request body is not valid JSON"))
	}

	id := c.Params("id")

	tx, err := db.GetDB().Begin()
	if err != nil {
		return WriteError(c, ErrInternal("failed to start transaction"))
	}
	defer tx.Rollback()

	if err := db.SetTenantActiveTx(tx, id, req.IsActive); err != nil {
		if err == db.ErrNotFound {
			return WriteError(c, ErrNotFound("tenant not found"))
		}
		return WriteError(c, ErrInternal("failed to update tenant"))
	}

	action := "tenant.deactivate"
	if req.IsActive {
		action = "tenant.activate"
	}
	correlationID := CorrelationID(c)
	if _, err := db.WriteAuditLogTx(tx, db.NewAuditLog{
		TenantID: id, Actor: "admin", Action: action,
		TargetType: "tenant", TargetID: id, CorrelationID: &correlationID,
	}); err != nil {
		return WriteError(c, ErrInternal("failed to write audit log"))
	}
	if err := tx.Commit(); err != nil {
		return WriteError(c, ErrInternal("failed to commit"))
	}

	tenant, err := db.GetTenant(id)
	if err != nil {
		return WriteError(c, ErrInternal("failed to get tenant"))
	}
	return c.JSON(tenant)
}
