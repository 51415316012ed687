package handlers

import (
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/storage"
	"github.com/maheshrc27/crosspost/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const mediaField = "media"

type PostHandler struct {
	s         service.PostService
	uploadDir string
	log       zerolog.Logger
}

func NewPostHandler(service service.PostService, cfg config.Config, log zerolog.Logger) (*PostHandler, error) {
	if err := os.MkdirAll(cfg.Storage.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &PostHandler{
		s:         service,
		uploadDir: cfg.Storage.UploadDir,
		log:       log.With().Str("component", "post_handler").Logger(),
	}, nil
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse form",
		})
	}

	var files []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil {
		files = form.File[mediaField]
	}

	media, err := h.saveUploads(c, files)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to save uploads")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to save uploaded media",
		})
	}

	res, err := h.s.Dispatch(c.UserContext(), userID, &pc, media)
	if err != nil {
		h.log.Warn().Err(err).Int64("user_id", userID).Msg("post dispatch failed")
		if res != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{
				"message":  res.Message,
				"twitter":  res.Twitter,
				"linkedIn": res.LinkedIn,
				"errors":   res.Errors,
			})
		}
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(res)
}

// saveUploads writes request files under the upload directory. The dispatch
// service owns them afterwards and removes them on every path.
func (h *PostHandler) saveUploads(c *fiber.Ctx, files []*multipart.FileHeader) ([]*models.MediaAsset, error) {
	media := make([]*models.MediaAsset, 0, len(files))
	for _, fh := range files {
		id, err := gonanoid.New()
		if err != nil {
			h.discard(media)
			return nil, err
		}

		path := filepath.Join(h.uploadDir, id+filepath.Ext(fh.Filename))
		if err := c.SaveFile(fh, path); err != nil {
			h.discard(media)
			return nil, err
		}

		media = append(media, &models.MediaAsset{
			Path:         path,
			MimeType:     fh.Header.Get("Content-Type"),
			SizeBytes:    fh.Size,
			OriginalName: filepath.Base(fh.Filename),
		})
	}
	return media, nil
}

func (h *PostHandler) discard(media []*models.MediaAsset) {
	paths := make([]string, 0, len(media))
	for _, m := range media {
		paths = append(paths, m.Path)
	}
	storage.Cleanup(h.log, paths...)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	posts, err := h.s.List(c.UserContext(), userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list posts")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list posts",
		})
	}
	if posts == nil {
		posts = []*models.PublishedPost{}
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}
