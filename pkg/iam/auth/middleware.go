package auth

import (
	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

// Middleware guards fiber routes with the authorization pipeline. Each
// protected route names the (target, operation) pair it was declared under;
// the scope requirements themselves live in the frozen scope registry.
type Middleware struct {
	authorizer *Authorizer
}

func NewMiddleware(authorizer *Authorizer) *Middleware {
	return &Middleware{authorizer: authorizer}
}

// Require authorizes the request for the named operation and, on success,
// stores the resolved AuthContext in fiber locals for handlers downstream.
func (m *Middleware) Require(target, operation string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, err := m.authorizer.Authorize(c.UserContext(), requestFrom(c), target, operation)
		if err != nil {
			return writeError(c, err)
		}

		c.Locals(string(kernel.AuthContextKey), ac)
		c.SetUserContext(kernel.WithAuthContext(c.UserContext(), ac))
		return c.Next()
	}
}

// AuthContextFromFiber extracts the resolved identity set by Require.
func AuthContextFromFiber(c *fiber.Ctx) (*kernel.AuthContext, bool) {
	ac, ok := c.Locals(string(kernel.AuthContextKey)).(*kernel.AuthContext)
	return ac, ok
}

func requestFrom(c *fiber.Ctx) Request {
	cookies := make(map[string]string)
	c.Request().Header.VisitAllCookie(func(key, value []byte) {
		cookies[string(key)] = string(value)
	})

	return Request{
		Authorization: c.Get(fiber.HeaderAuthorization),
		Cookies:       cookies,
		RemoteIP:      c.IP(),
	}
}

func writeError(c *fiber.Ctx, err error) error {
	var custom *errx.Error
	if errx.As(err, &custom) {
		return c.Status(custom.HTTPStatus).JSON(custom.ToHTTPResponse())
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
