package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/assetflow/handover-service/internal/api/dto"
	"github.com/assetflow/handover-service/internal/clock"
	"github.com/assetflow/handover-service/internal/service"
)

// SignatureHandler exposes the public signing link endpoints. The path token
// is the only credential.
type SignatureHandler struct {
	signatures *service.SignatureService
	clock      clock.Clock
}

// NewSignatureHandler constructs handler.
func NewSignatureHandler(signatures *service.SignatureService, clk clock.Clock) *SignatureHandler {
	if clk == nil {
		clk = clock.System()
	}
	return &SignatureHandler{signatures: signatures, clock: clk}
}

// Resolve handles GET /api/v1/sign/:token.
func (h *SignatureHandler) Resolve(c *fiber.Ctx) error {
	ref, err := h.signatures.ResolveToken(c.UserContext(), c.Params("token"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSigningAssignmentResponse(ref, h.clock.Now())})
}

// Sign handles POST /api/v1/sign/:token.
func (h *SignatureHandler) Sign(c *fiber.Ctx) error {
	var req dto.SignRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	ref, err := h.signatures.SignViaToken(c.UserContext(), c.Params("token"), req.SignatureData, req.SignerEmail)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSigningAssignmentResponse(ref, h.clock.Now())})
}

// Dispute handles POST /api/v1/sign/:token/dispute.
func (h *SignatureHandler) Dispute(c *fiber.Ctx) error {
	var req dto.DisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	ref, err := h.signatures.DisputeViaToken(c.UserContext(), c.Params("token"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSigningAssignmentResponse(ref, h.clock.Now())})
}
