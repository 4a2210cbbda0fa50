package rest

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/dannoetc/baseliner/db"
	"github.com/dannoetc/baseliner/internal/compiler"
)

type upsertPolicyRequest struct {
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	SchemaVersion int               `json:"schema_version"`
	IsActive      bool              `json:"is_active"`
	Document      compiler.Document `json:"document"`
}

// UpsertPolicyHandler creates a policy by name or mutates it in place
// (spec §3 lifecycle, §4.3). Documents are validated by round-tripping
// through the compiler's typed envelope before being stored as opaque JSON.
func UpsertPolicyHandler(c *fiber.Ctx) error {
	var req upsertPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return WriteError(c, ErrMalformed("request body is not valid JSON"))
	}
	if req.Name == "" {
		return WriteError(c, ErrSchema("name is required", nil))
	}
	for i, r := range req.Document.Resources {
		if r.Type == "" || r.ID == "" {
			return WriteError(c, ErrSchema("resource missing type or id", fiber.Map{"index": i}))
		}
	}

	documentJSON, err := json.Marshal(req.Document)
	if err != nil {
		return WriteError(c, ErrSchema("document could not be encoded", nil))
	}

	tenantID := TenantID(c)
	tx, err := db.GetDB().Begin()
	if err != nil {
		return WriteError(c, ErrInternal("failed to start transaction"))
	}
	defer tx.Rollback()

	policy, err := db.UpsertPolicyTx(tx, tenantID, req.Name, req.Description, req.SchemaVersion, req.IsActive, string(documentJSON))
	if err != nil {
		return WriteError(c, ErrInternal("failed to upsert policy"))
	}

	correlationID := CorrelationID(c)
	if _, err := db.WriteAuditLogTx(tx, db.NewAuditLog{
		TenantID: tenantID, Actor: "admin", Action: "policy.upsert",
		TargetType: "policy", TargetID: policy.ID, CorrelationID: &correlationID,
	}); err != nil {
		return WriteError(c, ErrInternal("failed to write audit log"))
	}

	if err := tx.Commit(); err != nil {
		return WriteError(c, ErrInternal("failed to commit"))
	}
	return c.Status(fiber.StatusCreated).JSON(policy)
}

func ListPoliciesHandler(c *fiber.Ctx) error {
	policies, err := db.ListPolicies(TenantID(c))
	if err != nil {
		return WriteError(c, ErrInternal("failed to list policies"))
	}
	return c.JSON(fiber.Map{"policies": policies})
}

func GetPolicyHandler(c *fiber.Ctx) error {
	policy, err := db.GetPolicy(TenantID(c), c.Params("id"))
	if err == db.ErrNotFound {
		return WriteError(c, ErrNotFound("policy not found"))
	}
	if err != nil {
		return WriteError(c, ErrInternal("failed to get policy"))
	}
	return c.JSON(policy)
}
