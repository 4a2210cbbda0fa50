package rest

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dannoetc/baseliner/config"
	"github.com/dannoetc/baseliner/db"
)

// DevicePolicyHandler compiles and returns a device's effective policy
// (spec §4.3, §6). Compilation is read-only and cheap enough to run per
// request, per spec §5 — no cache is required.
func DevicePolicyHandler(c *fiber.Ctx) error {
	device := currentDevice(c)
	compiled, err := compileForDevice(device.TenantID, device.ID)
	if err != nil {
		return WriteError(c, ErrInternal("failed to compile effective policy"))
	}
	return c.JSON(fiber.Map{
		"effective_policy_hash": compiled.Hash,
		"document":              compiled.Document,
		"conflicts":             compiled.Conflicts,
		"sources_by_key":        compiled.SourcesByKey,
		"mode_by_key":           compiled.ModeByKey,
		"skipped":               compiled.Skipped,
	})
}

type reportItem struct {
	ResourceType    string  `json:"resource_type"`
	ResourceID      string  `json:"resource_id"`
	Name            string  `json:"name"`
	StatusDetect    string  `json:"status_detect"`
	StatusRemediate string  `json:"status_remediate"`
	StatusValidate  string  `json:"status_validate"`
	CompliantBefore *bool   `json:"compliant_before"`
	CompliantAfter  *bool   `json:"compliant_after"`
	Changed         bool    `json:"changed"`
	Evidence        string  `json:"evidence"`
	ErrorType       *string `json:"error_type"`
	ErrorMessage    *string `json:"error_message"`
}

type reportLog struct {
	TS      time.Time `json:"ts"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Data    string    `json:"data"`
}

type reportRequest struct {
	StartedAt           time.Time    `json:"started_at"`
	EndedAt             time.Time    `json:"ended_at"`
	Status              string       `json:"status"`
	AgentVersion        string       `json:"agent_version"`
	EffectivePolicyHash string       `json:"effective_policy_hash"`
	PolicySnapshot      string       `json:"policy_snapshot"`
	Summary             string       `json:"summary"`
	Items               []reportItem `json:"items"`
	Logs                []reportLog  `json:"logs"`
	CorrelationID       *string      `json:"correlation_id"`
}

var validRunStatuses = map[string]bool{"succeeded": true, "partial": true, "failed": true, "error": true}

// ReportIngestHandler atomically persists one run report (spec §4.4). It is
// the only handler with a dedicated body-size ceiling and a dedicated
// timeout; both are wired in rest/init.go.
func ReportIngestHandler(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		device := currentDevice(c)
		deviceToken := currentDeviceToken(c)

		var req reportRequest
		if err := c.BodyParser(&req); err != nil {
			return WriteError(c, ErrMalformed("request body is not valid JSON"))
		}
		if !validRunStatuses[req.Status] {
			return WriteError(c, ErrSchema("status must be one of succeeded, partial, failed, error", nil))
		}
		if len(req.Items) > cfg.MaxItemsPerRun {
			return WriteError(c, NewError(KindInputTooLarge, "items exceeds the per-run limit"))
		}
		if len(req.Logs) > cfg.MaxLogsPerRun {
			return WriteError(c, NewError(KindInputTooLarge, "logs exceeds the per-run limit"))
		}
		for i, item := range req.Items {
			if item.ResourceType == "" || item.ResourceID == "" || item.StatusDetect == "" {
				return WriteError(c, ErrSchema("malformed run item", fiber.Map{"ordinal": i}))
			}
		}

		items := make([]db.NewRunItem, len(req.Items))
		for i, it := range req.Items {
			items[i] = db.NewRunItem{
				ResourceType: it.ResourceType, ResourceID: it.ResourceID, Name: it.Name,
				StatusDetect: it.StatusDetect, StatusRemediate: it.StatusRemediate, StatusValidate: it.StatusValidate,
				CompliantBefore: it.CompliantBefore, CompliantAfter: it.CompliantAfter,
				Changed: it.Changed, Evidence: it.Evidence, ErrorType: it.ErrorType, ErrorMessage: it.ErrorMessage,
			}
		}
		logs := make([]db.NewLogEvent, len(req.Logs))
		for i, l := range req.Logs {
			logs[i] = db.NewLogEvent{TS: l.TS, Level: l.Level, Message: l.Message, Data: l.Data}
		}

		now := time.Now().UTC()
		tx, err := db.GetDB().Begin()
		if err != nil {
			return WriteError(c, ErrInternal("failed to start transaction"))
		}
		defer tx.Rollback()

		if _, err := db.GetDeviceForUpdateTx(tx, device.TenantID, device.ID); err != nil {
			return WriteError(c, ErrInternal("failed to lock device"))
		}

		// The idempotency check runs after the device lock, not before: the
		// lock serializes concurrent reports for this device, so a second
		// request with the same correlation id always sees the first one's
		// committed row here instead of racing it to IngestRunTx.
		if req.CorrelationID != nil && *req.CorrelationID != "" {
			if existing, err := db.FindRunByCorrelationIDTx(tx, device.TenantID, device.ID, *req.CorrelationID); err == nil {
				if err := tx.Commit(); err != nil {
					return WriteError(c, ErrInternal("failed to commit"))
				}
				return c.Status(fiber.StatusCreated).JSON(fiber.Map{"run_id": existing.ID})
			} else if err != db.ErrNotFound {
				return WriteError(c, ErrInternal("failed to check run idempotency"))
			}
		}

		run, err := db.IngestRunTx(tx, db.NewRun{
			TenantID: device.TenantID, DeviceID: device.ID,
			StartedAt: req.StartedAt, EndedAt: req.EndedAt, Status: req.Status,
			AgentVersion: req.AgentVersion, EffectivePolicyHash: req.EffectivePolicyHash,
			PolicySnapshot: req.PolicySnapshot, Summary: req.Summary,
			CorrelationID: req.CorrelationID, Items: items, Logs: logs,
		})
		if err != nil {
			return WriteError(c, ErrSchema("failed to persist run", nil))
		}

		if err := db.TouchDeviceLastSeenTx(tx, device.ID, now); err != nil {
			return WriteError(c, ErrInternal("failed to update device last-seen"))
		}
		if err := db.TouchDeviceTokenLastUsedTx(tx, deviceToken.ID, now); err != nil {
			return WriteError(c, ErrInternal("failed to update device token last-used"))
		}

		if err := tx.Commit(); err != nil {
			return WriteError(c, ErrInternal("failed to commit run"))
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"run_id": run.ID})
	}
}
