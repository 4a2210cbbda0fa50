package rest

import "github.com/gofiber/fiber/v2"

const (
	localCorrelationID = "correlation_id"
	localTenantID      = "tenant_id"
	localDevice        = "device"
	localDeviceToken   = "device_token"
	localPrincipal     = "principal" // "admin" or "device"
)

func CorrelationID(c *fiber.Ctx) string {
	if v, ok := c.Locals(localCorrelationID).(string); ok {
		return v
	}
	return ""
}

func TenantID(c *fiber.Ctx) string {
	if v, ok := c.Locals(localTenantID).(string); ok {
		return v
	}
	return ""
}

func Principal(c *fiber.Ctx) string {
	if v, ok := c.Locals(localPrincipal).(string); ok {
		return v
	}
	return ""
}
