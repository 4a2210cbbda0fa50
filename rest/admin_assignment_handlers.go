package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dannoetc/baseliner/db"
)

type createAssignmentRequest struct {
	DeviceID string `json:"device_id"`
	PolicyID string `json:"policy_id"`
	Priority int    `json:"priority"`
	Mode     string `json:"mode"`
}

var validAssignmentModes = map[string]bool{"enforce": true, "audit": true}

// CreateAssignmentHandler binds a policy to a device (spec §3). Spec §9
// leaves duplicate (device, policy) pairs an open question; this module
// allows duplicates and lets canonical ordering decide the winner, recorded
// in DESIGN.md.
func CreateAssignmentHandler(c *fiber.Ctx) error {
	var req createAssignmentRequest
	if err := c.BodyParser(&req); err != nil {
		return WriteError(c, ErrMalformed("request body is not valid JSON"))
	}
	if req.DeviceID == "" || req.PolicyID == "" {
		return WriteError(c, ErrSchema("device_id and policy_id are required", nil))
	}
	if req.Mode == "" {
		req.Mode = "enforce"
	}
	if !validAssignmentModes[req.Mode] {
		return WriteError(c, ErrSchema("mode must be enforce or audit", nil))
	}

	tenantID := TenantID(c)
	if _, err := db.GetDevice(tenantID, req.DeviceID); err != nil {
		if err == db.ErrNotFound {
			return WriteError(c, ErrNotFound("device not found"))
		}
		return WriteError(c, ErrInternal("failed to look up device"))
	}
	if _, err := db.GetPolicy(tenantID, req.PolicyID); err != nil {
		if err == db.ErrNotFound {
			return WriteError(c, ErrNotFound("policy not found"))
		}
		return WriteError(c, ErrInternal("failed to look up policy"))
	}

	tx, err := db.GetDB().Begin()
	if err != nil {
		return WriteError(c, ErrInternal("failed to start transaction"))
	}
	defer tx.Rollback()

	assignment, err := db.CreateAssignmentTx(tx, tenantID, req.DeviceID, req.PolicyID, req.Priority, req.Mode)
	if err != nil {
		return WriteError(c, ErrInternal("failed to create assignment"))
	}

	correlationID := CorrelationID(c)
	if _, err := db.WriteAuditLogTx(tx, db.NewAuditLog{
		TenantID: tenantID, Actor: "admin", Action: "assignment.create",
		TargetType: "assignment", TargetID: assignment.ID, CorrelationID: &correlationID,
	}); err != nil {
		return WriteError(c, ErrInternal("failed to write audit log"))
	}
	if err := tx.Commit(); err != nil {
		return WriteError(c, ErrInternal("failed to commit"))
	}

	return c.Status(fiber.StatusCreated).JSON(assignment)
}

func ListAssignmentsHandler(c *fiber.Ctx) error {
	assignments, err := db.ListAssignmentsForDevice(TenantID(c), c.Params("id"))
	if err != nil {
		return WriteError(c, ErrInternal("failed to list assignments"))
	}
	return c.JSON(fiber.Map{"assignments": assignments})
}

func ClearAssignmentsHandler(c *fiber.Ctx) error {
	tenantID := TenantID(c)
	deviceID := c.Params("id")

	tx, err := db.GetDB().Begin()
	if err != nil {
		return WriteError(c, ErrInternal("failed to start transaction"))
	}
	defer tx.Rollback()

	count, err := db.ClearAssignmentsForDeviceTx(tx, tenantID, deviceID)
	if err != nil {
		return WriteError(c, ErrInternal("failed to clear assignments"))
	}

	correlationID := CorrelationID(c)
	if _, err := db.WriteAuditLogTx(tx, db.NewAuditLog{
		TenantID: tenantID, Actor: "admin", Action: "assignment.delete_all",
		TargetType: "device", TargetID: deviceID, CorrelationID: &correlationID,
	}); err != nil {
		return WriteError(c, ErrInternal("failed to write audit log"))
	}
	if err := tx.Commit(); err != nil {
		return WriteError(c, ErrInternal("failed to commit"))
	}

	return c.JSON(fiber.Map{"deleted": count})
}

func DeleteAssignmentHandler(c *fiber.Ctx) error {
	tenantID := TenantID(c)
	deviceID := c.Params("id")
	policyID := c.Params("policy_id")

	tx, err := db.GetDB().Begin()
	if err != nil {
		return WriteError(c, ErrInternal("failed to start transaction"))
	}
	defer tx.Rollback()

	count, err := db.DeleteAssignmentsForDeviceAndPolicyTx(tx, tenantID, deviceID, policyID)
	if err != nil {
		return WriteError(c, ErrInternal("failed to delete assignment"))
	}
	if count == 0 {
		return WriteError(c, ErrNotFound("assignment not found"))
	}

	correlationID := CorrelationID(c)
	if _, err := db.WriteAuditLogTx(tx, db.NewAuditLog{
		TenantID: tenantID, Actor: "admin", Action: "assignment.delete",
		TargetType: "device", TargetID: deviceID, CorrelationID: &correlationID,
	}); err != nil {
		return WriteError(c, ErrInternal("failed to write audit log"))
	}
	if err := tx.Commit(); err != nil {
		return WriteError(c, ErrInternal("failed to commit"))
	}

	return c.JSON(fiber.Map{"deleted": count})
}
