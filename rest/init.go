// Package rest wires the HTTP surface of spec §4.5 and §6: route table,
// middleware stack, and per-route handlers.
package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"

	"github.com/dannoetc/baseliner/config"
	"github.com/dannoetc/baseliner/internal/ratelimit"
)

// Init registers every route of spec §6 plus the supplemental endpoints of
// SPEC_FULL.md on app, exactly as the teacher's rest/init.go registers its
// own route table in one place.
func Init(app *fiber.App, cfg config.Config) {
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Key, X-Tenant-ID, X-Correlation-ID",
	}))
	app.Use(CorrelationMiddleware)

	reportsLimiter := newLimiter(cfg, cfg.RateLimitReportsPerMinute, cfg.RateLimitReportsBurst, "reports")
	ipLimiter := newLimiter(cfg, cfg.RateLimitIPPerMinute, cfg.RateLimitIPBurst, "ip")

	app.Get("/health", HealthHandler)
	app.Get("/api/docs/*", swagger.HandlerDefault)
	app.Get("/api/openapi.yaml", ServeOpenAPIHandler)

	app.Post("/api/v1/enroll",
		BodySizeLimit(cfg.MaxRequestBodyBytesDefault),
		RequestHardening(),
		RateLimit(ipLimiter, IPKey),
		EnrollHandler(cfg),
	)

	device := app.Group("/api/v1/device", DeviceAuth(cfg.TokenPepper))
	device.Get("/policy",
		RequestTimeout(cfg.DefaultRequestTimeout),
		DevicePolicyHandler,
	)
	device.Post("/reports",
		BodySizeLimit(cfg.MaxRequestBodyBytesDeviceReports),
		RequestHardening(),
		RateLimit(reportsLimiter, DeviceOrIPKey),
		RequestTimeout(cfg.ReportIngestTimeout),
		ReportIngestHandler(cfg),
	)

	admin := app.Group("/api/v1/admin",
		BodySizeLimit(cfg.MaxRequestBodyBytesDefault),
		RequestHardening(),
		RateLimit(ipLimiter, IPKey),
		AdminAuth(cfg),
		TenantResolver(),
		TenantActiveGuard(),
		RequestTimeout(cfg.DefaultRequestTimeout),
	)

	admin.Get("/whoami", WhoamiHandler)

	admin.Post("/enroll-tokens", MintEnrollTokenHandler(cfg))
	admin.Get("/enroll-tokens", ListEnrollTokensHandler)
	admin.Post("/enroll-tokens/:id/revoke", RevokeEnrollTokenHandler)

	admin.Get("/devices", ListDevicesHandler(cfg))
	admin.Get("/devices/:id/debug", DeviceDebugHandler)
	admin.Delete("/devices/:id", SoftDeleteDeviceHandler)
	admin.Post("/devices/:id/restore", RestoreDeviceHandler(cfg))
	admin.Post("/devices/:id/revoke-token", RevokeDeviceTokenHandler(cfg))
	admin.Get("/devices/:id/tokens", DeviceTokensHandler)

	admin.Post("/policies", UpsertPolicyHandler)
	admin.Get("/policies", ListPoliciesHandler)
	admin.Get("/policies/:id", GetPolicyHandler)

	admin.Post("/assign-policy", CreateAssignmentHandler)
	admin.Get("/devices/:id/assignments", ListAssignmentsHandler)
	admin.Delete("/devices/:id/assignments", ClearAssignmentsHandler)
	admin.Delete("/devices/:id/assignments/:policy_id", DeleteAssignmentHandler)

	admin.Get("/runs", ListRunsHandler)
	admin.Get("/runs/:id", GetRunHandler)

	admin.Get("/audit", ListAuditHandler)

	admin.Post("/maintenance/prune", PruneHandler)

	admin.Post("/tenants", CreateTenantHandler)
	admin.Get("/tenants", ListTenantsHandler)
	admin.Get("/tenants/:id", GetTenantHandler)
	admin.Post("/tenants/:id/active", SetTenantActiveHandler)

	log.Info("baseliner REST API started")
}

func newLimiter(cfg config.Config, perMinute, burst int, keyPrefix string) ratelimit.Limiter {
	if !cfg.RateLimitEnabled {
		return nil
	}
	if cfg.RateLimitBackend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return ratelimit.NewRedisLimiter(client, perMinute, "baseliner:ratelimit:"+keyPrefix)
	}
	return ratelimit.NewMemoryLimiter(perMinute, burst)
}
