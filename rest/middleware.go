package rest

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"

	"github.com/dannoetc/baseliner/config"
	"github.com/dannoetc/baseliner/db"
	"github.com/dannoetc/baseliner/internal/ratelimit"
	"github.com/dannoetc/baseliner/internal/tokens"
)

// CorrelationMiddleware generates X-Correlation-ID when absent and always
// echoes it back, per spec §4.5 (outermost layer). It's requestid.New under
// the hood, configured onto the X-Correlation-ID header and our own Locals
// key so the rest of the package can keep calling CorrelationID(c).
var CorrelationMiddleware = requestid.New(requestid.Config{
	Header:     "X-Correlation-ID",
	ContextKey: localCorrelationID,
	Generator:  generateCorrelationID,
})

func generateCorrelationID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// BodySizeLimit rejects requests whose declared Content-Length exceeds
// maxBytes before the body is read (spec §4.4/§4.5).
func BodySizeLimit(maxBytes int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cl := c.Request().Header.ContentLength(); cl > int(maxBytes) {
			return WriteError(c, NewError(KindInputTooLarge, "request body exceeds the configured size limit"))
		}
		return c.Next()
	}
}

// RateLimit enforces limiter against keyFunc(c), per spec §4.4/§9.
func RateLimit(limiter ratelimit.Limiter, keyFunc func(c *fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limiter == nil {
			return c.Next()
		}
		decision := limiter.Allow(keyFunc(c))
		if !decision.Allowed {
			if decision.RetryAfter > 0 {
				c.Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
			}
			return WriteError(c, NewError(KindRateLimited, "rate limit exceeded"))
		}
		return c.Next()
	}
}

// DeviceOrIPKey keys the report-ingest limiter by device when the caller has
// already authenticated, falling back to source IP when no device is resolved.
func DeviceOrIPKey(c *fiber.Ctx) string {
	if d := currentDevice(c); d != nil {
		return "device:" + d.ID
	}
	return "ip:" + c.IP()
}

func IPKey(c *fiber.Ctx) string {
	return "ip:" + c.IP()
}

// AdminAuth requires X-Admin-Key to match the configured secret exactly
// (spec §4.5). Tenant resolution happens afterward in TenantResolver.
func AdminAuth(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-Admin-Key")
		if key == "" {
			return WriteError(c, NewError(KindAuthMissing, "missing X-Admin-Key header"))
		}
		if !tokens.Equal(key, cfg.AdminKey) {
			return WriteError(c, NewError(KindAuthInvalid, "invalid admin key"))
		}
		c.Locals(localPrincipal, "admin")
		return c.Next()
	}
}

// TenantResolver resolves the acting tenant for admin routes: X-Tenant-ID
// when present, otherwise the Phase-0 default tenant.
func TenantResolver() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID := c.Get("X-Tenant-ID")
		if tenantID == "" {
			tenantID = config.DefaultTenantID
		}
		c.Locals(localTenantID, tenantID)
		return c.Next()
	}
}

// DeviceAuth resolves Authorization: Bearer <token> to an un-revoked
// DeviceAuthToken whose device is active (spec §4.5). It also resolves the
// device's tenant, so device routes never need TenantResolver separately.
func DeviceAuth(pepper string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		const prefix = "Bearer "
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
			return WriteError(c, NewError(KindAuthMissing, "missing bearer token"))
		}
		rawToken := auth[len(prefix):]
		hash := tokens.Hash(pepper, rawToken)

		tokenRow, err := db.GetActiveDeviceTokenByHash(hash)
		if err != nil && err != db.ErrNotFound {
			return WriteError(c, ErrInternal("failed to look up device token"))
		}

		state := tokens.DeviceTokenState{}
		if tokenRow != nil {
			state.RevokedAt = tokenRow.RevokedAt
		}
		switch tokens.VerifyDeviceToken(tokenRow != nil, state) {
		case tokens.NotFound:
			return WriteError(c, NewError(KindAuthInvalid, "invalid device token"))
		case tokens.Revoked:
			return WriteError(c, NewError(KindAuthRevoked, "device token has been revoked"))
		}

		device, err := db.GetDevice(tokenRow.TenantID, tokenRow.DeviceID)
		if err == db.ErrNotFound {
			return WriteError(c, NewError(KindAuthInvalid, "device no longer exists"))
		}
		if err != nil {
			return WriteError(c, ErrInternal("failed to look up device"))
		}
		if device.Status != "active" {
			return WriteError(c, NewError(KindAuthDeviceInactive, "device is inactive"))
		}

		c.Locals(localPrincipal, "device")
		c.Locals(localTenantID, device.TenantID)
		c.Locals(localDevice, device)
		c.Locals(localDeviceToken, tokenRow)
		return c.Next()
	}
}

func currentDevice(c *fiber.Ctx) *db.Device {
	if v, ok := c.Locals(localDevice).(*db.Device); ok {
		return v
	}
	return nil
}

func currentDeviceToken(c *fiber.Ctx) *db.DeviceAuthToken {
	if v, ok := c.Locals(localDeviceToken).(*db.DeviceAuthToken); ok {
		return v
	}
	return nil
}

// TenantActiveGuard rejects requests against a deactivated tenant. The
// Phase-0 default tenant is always active, so this only bites operators who
// have created additional tenants via the admin lifecycle endpoints.
func TenantActiveGuard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID := TenantID(c)
		if tenantID == config.DefaultTenantID {
			return c.Next()
		}
		tenant, err := db.GetTenant(tenantID)
		if err == db.ErrNotFound {
			return WriteError(c, NewError(KindResourceNotFound, "tenant not found"))
		}
		if err != nil {
			return WriteError(c, ErrInternal("failed to look up tenant"))
		}
		if !tenant.IsActive {
			return WriteError(c, NewError(KindResourceConflict, "tenant is inactive"))
		}
		return c.Next()
	}
}

// RequestTimeout bounds the rest of the handler chain to d, per spec §5
// (default 30s, report ingest 60s). It wraps the chain's continuation in
// timeout.New: past the deadline the client gets server.timeout/504 back
// instead of waiting on a stuck handler, even though the handler's own
// goroutine keeps running until it returns on its own.
func RequestTimeout(d time.Duration) fiber.Handler {
	bounded := timeout.New(func(c *fiber.Ctx) error {
		return c.Next()
	}, d)
	return func(c *fiber.Ctx) error {
		if err := bounded(c); err != nil {
			return WriteError(c, NewError(KindServerTimeout, "request exceeded its deadline"))
		}
		return nil
	}
}
