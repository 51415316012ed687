package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/rs/zerolog"
)

type PlatformHandler struct {
	cs  service.CredentialService
	log zerolog.Logger
}

func NewPlatformHandler(cs service.CredentialService, log zerolog.Logger) *PlatformHandler {
	return &PlatformHandler{
		cs:  cs,
		log: log.With().Str("component", "platform_handler").Logger(),
	}
}

func (h *PlatformHandler) ListAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accounts, err := h.cs.Connections(c.UserContext(), userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list connections")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch linked accounts",
		})
	}
	if accounts == nil {
		accounts = []*models.PlatformConnection{}
	}

	return c.Status(fiber.StatusOK).JSON(accounts)
}

func (h *PlatformHandler) ConnectAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var in transfer.AccountConnection
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	conn := &models.PlatformConnection{
		UserID:      userID,
		Platform:    models.Platform(strings.ToLower(in.Platform)),
		AccountID:   in.AccountID,
		AccountName: in.AccountName,
		AccessToken: in.AccessToken,
		TokenSecret: in.TokenSecret,
	}
	if err := h.cs.Connect(c.UserContext(), conn); err != nil {
		h.log.Warn().Err(err).Int64("user_id", userID).Str("platform", in.Platform).Msg("connect account failed")
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(conn)
}

func (h *PlatformHandler) DeleteAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)
	platform := models.Platform(strings.ToLower(c.Params("platform")))

	if err := h.cs.Disconnect(c.UserContext(), userID, platform); err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Str("platform", string(platform)).Msg("disconnect failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove linked account",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}
