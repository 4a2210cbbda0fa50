package rest

import "github.com/gofiber/fiber/v2"

// WhoamiHandler returns the resolved tenant and auth principal kind so
// admin tooling can confirm which tenant an X-Admin-Key/X-Tenant-ID pair
// resolves to before issuing a mutating call.
func WhoamiHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"tenant_id": TenantID(c),
		"principal": Principal(c),
	})
}
