package rest

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"gopkg.in/yaml.v3"
)

// ServeOpenAPIHandler serves the checked-in spec verbatim, exactly as the
// teacher's rest/swagger.go does for its own API.
func ServeOpenAPIHandler(c *fiber.Ctx) error {
	content, err := os.ReadFile("openapi.yml")
	if err != nil {
		return WriteError(c, ErrInternal("failed to read OpenAPI specification"))
	}
	c.Set("Content-Type", "application/x-yaml")
	return c.Send(content)
}

// ValidateOpenAPISpec parses openapi.yml at startup so a malformed spec
// fails fast instead of being served broken to operators.
func ValidateOpenAPISpec() error {
	content, err := os.ReadFile("openapi.yml")
	if err != nil {
		return err
	}
	var doc map[string]interface{}
	return yaml.Unmarshal(content, &doc)
}
