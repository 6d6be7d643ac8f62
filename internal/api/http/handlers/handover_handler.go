package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/assetflow/handover-service/internal/api/dto"
	"github.com/assetflow/handover-service/internal/auth"
	"github.com/assetflow/handover-service/internal/service"
)

// LinkRenderer builds the public URL for a signing token.
type LinkRenderer interface {
	SigningLink(token string) (string, error)
}

// HandoverHandler exposes staff handover endpoints.
type HandoverHandler struct {
	handovers *service.HandoverService
	links     LinkRenderer
}

// NewHandoverHandler constructs handler.
func NewHandoverHandler(handovers *service.HandoverService, links LinkRenderer) *HandoverHandler {
	return &HandoverHandler{handovers: handovers, links: links}
}

// Create handles POST /api/v1/handovers.
func (h *HandoverHandler) Create(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	var req dto.CreateHandoverRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	assets := make([]service.HandoverAssetInput, 0, len(req.Assets))
	for _, a := range req.Assets {
		assets = append(assets, service.HandoverAssetInput{AssetID: a.AssetID, AssetCode: a.AssetCode})
	}
	handover, err := h.handovers.CreateHandover(c.UserContext(), principal, service.HandoverCreateInput{
		Recipient: req.Recipient.ToRecipient(),
		Assets:    assets,
		TokenTTL:  req.TokenTTL(),
	})
	if err != nil {
		return err
	}

	resp := dto.NewHandoverResponse(handover.Assignment, handover.Items)
	if handover.Token != nil {
		link := &dto.SigningLinkResponse{Token: handover.Token.Value, ExpiresAt: handover.Token.ExpiresAt}
		if h.links != nil {
			if url, err := h.links.SigningLink(handover.Token.Value); err == nil {
				link.URL = url
			}
		}
		resp.SigningLink = link
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": resp})
}

// Get handles GET /api/v1/handovers/:id.
func (h *HandoverHandler) Get(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	handover, err := h.handovers.GetHandover(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHandoverResponse(handover.Assignment, handover.Items)})
}
