package webauthnapi

import (
	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/iam/auth"
	"github.com/Abraxas-365/custodia/pkg/iam/webauthn"
	"github.com/Abraxas-365/custodia/pkg/iam/webauthn/webauthnsrv"
	"github.com/Abraxas-365/custodia/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

// WebauthnHandlers exposes the ceremony endpoints. Authentication ceremonies
// are open (they are how a user signs in); registration and credential
// management require an authorized session.
type WebauthnHandlers struct {
	service *webauthnsrv.CeremonyService
}

func NewWebauthnHandlers(service *webauthnsrv.CeremonyService) *WebauthnHandlers {
	return &WebauthnHandlers{service: service}
}

// RegisterRoutes mounts the ceremony endpoints. Protected routes carry the
// authorization middleware; their scope requirements are declared by the
// composition root before the registry freezes.
func (h *WebauthnHandlers) RegisterRoutes(app *fiber.App, mw *auth.Middleware) {
	grp := app.Group("/webauthn")

	grp.Post("/register/begin", mw.Require("credential", "register"), h.BeginRegistration)
	grp.Post("/register/complete", mw.Require("credential", "register"), h.CompleteRegistration)
	grp.Get("/credentials", mw.Require("credential", "list"), h.ListCredentials)
	grp.Delete("/credentials/:id", mw.Require("credential", "revoke"), h.RevokeCredential)

	grp.Post("/authenticate/begin", h.BeginAuthentication)
	grp.Post("/authenticate/complete", h.CompleteAuthentication)
}

// BeginRegistration starts enrolment for the authenticated user.
func (h *WebauthnHandlers) BeginRegistration(c *fiber.Ctx) error {
	ac, ok := auth.AuthContextFromFiber(c)
	if !ok {
		return writeError(c, auth.ErrUnauthorizedAccess())
	}

	opts, err := h.service.BeginRegistration(c.UserContext(), ac.UserID, ac.TenantID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(opts)
}

type completeRegistrationRequest struct {
	Challenge   string                       `json:"challenge"`
	Label       string                       `json:"label"`
	Attestation webauthn.AttestationResponse `json:"attestation"`
}

// CompleteRegistration finishes enrolment with the browser's attestation.
func (h *WebauthnHandlers) CompleteRegistration(c *fiber.Ctx) error {
	ac, ok := auth.AuthContextFromFiber(c)
	if !ok {
		return writeError(c, auth.ErrUnauthorizedAccess())
	}

	var req completeRegistrationRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, errx.New("malformed request body", errx.TypeValidation))
	}

	cred, err := h.service.CompleteRegistration(c.UserContext(), ac.UserID, ac.TenantID, req.Challenge, req.Label, req.Attestation)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(cred)
}

type beginAuthenticationRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
}

// BeginAuthentication starts a sign-in ceremony.
func (h *WebauthnHandlers) BeginAuthentication(c *fiber.Ctx) error {
	var req beginAuthenticationRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, errx.New("malformed request body", errx.TypeValidation))
	}

	opts, err := h.service.BeginAuthentication(c.UserContext(),
		kernel.NewUserID(req.UserID), kernel.NewTenantID(req.TenantID))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(opts)
}

type completeAuthenticationRequest struct {
	UserID    string                     `json:"user_id"`
	TenantID  string                     `json:"tenant_id"`
	ClientID  string                     `json:"client_id"`
	Challenge string                     `json:"challenge"`
	Assertion webauthn.AssertionResponse `json:"assertion"`
}

// CompleteAuthentication finishes a sign-in ceremony and returns the minted
// session token.
func (h *WebauthnHandlers) CompleteAuthentication(c *fiber.Ctx) error {
	var req completeAuthenticationRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, errx.New("malformed request body", errx.TypeValidation))
	}

	session, err := h.service.CompleteAuthentication(c.UserContext(),
		kernel.NewUserID(req.UserID), kernel.NewTenantID(req.TenantID),
		kernel.NewClientID(req.ClientID), req.Challenge, req.Assertion)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(session)
}

// ListCredentials returns every credential on record for the user.
func (h *WebauthnHandlers) ListCredentials(c *fiber.Ctx) error {
	ac, ok := auth.AuthContextFromFiber(c)
	if !ok {
		return writeError(c, auth.ErrUnauthorizedAccess())
	}

	creds, err := h.service.Credentials(c.UserContext(), ac.UserID, ac.TenantID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"credentials": creds})
}

// RevokeCredential flips the named credential to revoked.
func (h *WebauthnHandlers) RevokeCredential(c *fiber.Ctx) error {
	ac, ok := auth.AuthContextFromFiber(c)
	if !ok {
		return writeError(c, auth.ErrUnauthorizedAccess())
	}

	if err := h.service.RevokeCredential(c.UserContext(), ac.UserID, ac.TenantID, c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func writeError(c *fiber.Ctx, err error) error {
	var custom *errx.Error
	if errx.As(err, &custom) {
		return c.Status(custom.HTTPStatus).JSON(custom.ToHTTPResponse())
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
