package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/apperrors"
)

func GetUserID(c *fiber.Ctx) int64 {
	raw, _ := c.Locals("user_id").(string)
	userID, _ := strconv.ParseInt(raw, 10, 64)
	return userID
}

// statusFor maps an error kind to the HTTP status reported to the caller.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation),
		errors.Is(err, apperrors.ErrPlatformNotConnected),
		errors.Is(err, apperrors.ErrInvalidScheduleTime),
		errors.Is(err, apperrors.ErrUnsupportedMediaType),
		errors.Is(err, apperrors.ErrMediaFileNotFound):
		return fiber.StatusBadRequest
	case errors.Is(err, apperrors.ErrQueueUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrMediaUploadFailed),
		errors.Is(err, apperrors.ErrMediaProcessingFailed),
		errors.Is(err, apperrors.ErrMediaProcessingTimeout),
		errors.Is(err, apperrors.ErrTweetPostingFailed),
		errors.Is(err, apperrors.ErrLinkedInPostingFailed):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func errorJSON(c *fiber.Ctx, err error) error {
	body := fiber.Map{"error": err.Error()}

	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		body["error"] = ve.Message
		body["violations"] = ve.Violations
	}

	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		body["error"] = "Internal server error"
	}
	return c.Status(status).JSON(body)
}
