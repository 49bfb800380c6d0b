package handler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-review-api/internal/dto"
	"github.com/noah-isme/gema-review-api/internal/middleware"
	"github.com/noah-isme/gema-review-api/internal/pipeline"
	"github.com/noah-isme/gema-review-api/internal/service"
	"github.com/noah-isme/gema-review-api/internal/utils"
	"github.com/noah-isme/gema-review-api/pkg/media"
)

// ReviewHandlerConfig carries the upload and deadline settings of the review endpoints.
type ReviewHandlerConfig struct {
	UploadDir      string
	MaxUploadBytes int64
	Timeout        time.Duration
}

// ReviewHandler exposes the essay-plus-video review endpoints.
type ReviewHandler struct {
	reviews   service.ReviewService
	revisions service.RevisionService
	queue     service.RevisionQueue
	validator *validator.Validate
	cfg       ReviewHandlerConfig
	logger    zerolog.Logger
}

// NewReviewHandler builds a review handler. queue may be nil, in which case asynchronous
// revision requests are refused.
func NewReviewHandler(reviews service.ReviewService, revisions service.RevisionService, queue service.RevisionQueue, validate *validator.Validate, cfg ReviewHandlerConfig, logger zerolog.Logger) *ReviewHandler {
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(os.TempDir(), "gema-review-uploads")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &ReviewHandler{
		reviews:   reviews,
		revisions: revisions,
		queue:     queue,
		validator: validate,
		cfg:       cfg,
		logger:    logger.With().Str("component", "review_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *ReviewHandler) Register(router fiber.Router) {
	router.Post("", middleware.RequireRole(middleware.RoleStudent), middleware.SubmissionRateLimit("reviews", 5, time.Minute), h.create)
	router.Get("/:id", middleware.RequireUser(), h.get)
	router.Post("/:id/revisions", middleware.RequireRole(middleware.RoleTeacher, middleware.RoleAdmin), h.revise)
}

func (h *ReviewHandler) create(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	studentID := middleware.UserID(c)

	var payload dto.ReviewCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	payload.ComponentType = strings.TrimSpace(payload.ComponentType)
	payload.Text = strings.TrimSpace(payload.Text)
	if err := h.validator.Struct(payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", err.Error())
	}

	file, err := c.FormFile("video")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "video is required")
	}
	if h.cfg.MaxUploadBytes > 0 && file.Size > h.cfg.MaxUploadBytes {
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, "video exceeds the upload limit")
	}

	if err := os.MkdirAll(h.cfg.UploadDir, 0o755); err != nil {
		logger.Error().Err(err).Msg("failed to prepare upload directory")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
	uploadPath := filepath.Join(h.cfg.UploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(file.Filename)))
	if err := c.SaveFile(file, uploadPath); err != nil {
		logger.Error().Err(err).Msg("failed to store upload")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
	defer func() {
		if err := os.Remove(uploadPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str("path", uploadPath).Msg("failed to remove upload")
		}
	}()

	detected, err := mimetype.DetectFile(uploadPath)
	if err != nil || !media.IsVideo(detected) {
		return utils.SendError(c, fiber.StatusUnsupportedMediaType, "video must be a video file")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.cfg.Timeout)
	defer cancel()

	audit := pipeline.NewAuditContext(middleware.GetTraceID(c))
	result, err := h.reviews.Submit(ctx, audit, service.SubmitRequest{
		StudentID:     studentID,
		ComponentType: payload.ComponentType,
		Text:          payload.Text,
		VideoPath:     uploadPath,
	})
	if err != nil {
		return h.handleError(c, err)
	}
	if result.IsFailure() {
		return utils.SendError(c, failureStatus(result.Err()), result.Err())
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "review completed", dto.NewReviewResponse(result.Data()))
}

func (h *ReviewHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.reviews.Get(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, dto.NewReviewResponse(submission), "review retrieved", nil)
}

func (h *ReviewHandler) revise(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	traceID := middleware.GetTraceID(c)
	if c.QueryBool("async") {
		return h.enqueue(c, id, traceID)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.cfg.Timeout)
	defer cancel()

	result, err := h.revisions.Revise(ctx, pipeline.NewAuditContext(traceID), service.RevisionRequest{SubmissionID: id})
	if err != nil {
		return h.handleError(c, err)
	}
	if result.IsFailure() {
		return utils.SendError(c, failureStatus(result.Err()), result.Err())
	}

	return utils.OK(c, dto.NewRevisionResultResponse(result.Data()), "revision completed", fiber.Map{"trace_id": traceID})
}

func (h *ReviewHandler) enqueue(c *fiber.Ctx, id uint, traceID string) error {
	if h.queue == nil {
		return utils.SendError(c, fiber.StatusServiceUnavailable, "revision queue unavailable")
	}
	if _, err := h.reviews.Get(c.UserContext(), id); err != nil {
		return h.handleError(c, err)
	}

	job := service.RevisionJob{
		SubmissionID: id,
		TraceID:      traceID,
		RequestedAt:  time.Now().UTC(),
		Source:       service.RevisionSourceAPI,
	}
	if err := h.queue.Enqueue(c.UserContext(), job); err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("submission_id", id).Msg("failed to enqueue revision")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "revision queue unavailable")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "revision queued", dto.NewRevisionQueuedResponse(job))
}

func (h *ReviewHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

// failureStatus maps a pipeline failure message onto an HTTP status.
func failureStatus(message string) int {
	switch {
	case message == service.MsgAlreadySubmitted, message == service.MsgAlreadyRetried:
		return fiber.StatusConflict
	case strings.HasSuffix(strings.ToLower(message), "not found"):
		return fiber.StatusNotFound
	case strings.HasSuffix(message, "timed out"):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusUnprocessableEntity
	}
}

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid " + key)
	}
	return uint(parsed), nil
}
