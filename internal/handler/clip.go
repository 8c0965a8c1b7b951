package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/zentag/api/internal/middleware"
	"github.com/zentag/api/internal/model"
	"github.com/zentag/api/internal/service"
	"github.com/zentag/api/pkg/response"
)

type ClipHandler struct {
	clips     *service.ClipService
	progress  *service.ProgressService
	validator *validator.Validate
}

func NewClipHandler(clips *service.ClipService, progress *service.ProgressService, v *validator.Validate) *ClipHandler {
	return &ClipHandler{
		clips:     clips,
		progress:  progress,
		validator: v,
	}
}

// Generate handles POST /api/clips/generate
func (h *ClipHandler) Generate(c *fiber.Ctx) error {
	var req model.ClipGenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.clips.Generate(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		return writeError(c, err)
	}

	return response.Accepted(c, result)
}

// Webhook handles POST /api/clips/webhook/:clipId and PUT /api/clips/update/:clipId
func (h *ClipHandler) Webhook(c *fiber.Ctx) error {
	clipID := param(c, "clipId")
	if clipID == "" {
		return response.ValidationError(c, "Clip ID is required", nil)
	}

	update, err := model.ParseWorkerUpdate(c.Body())
	if err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	job, err := h.clips.ApplyWebhook(c.Context(), clipID, update)
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, model.NewStatusView(job))
}

// Progress handles GET /api/clips/progress?job_id=
func (h *ClipHandler) Progress(c *fiber.Ctx) error {
	jobID := query(c, "job_id")
	if jobID == "" {
		return response.ValidationError(c, "job_id is required", nil)
	}

	result, err := h.progress.GetStatus(c.Context(), model.JobKindClip, jobID)
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, result)
}

// ListByStream handles GET /api/clips/stream/:streamId
func (h *ClipHandler) ListByStream(c *fiber.Ctx) error {
	status, ok := parseStatusFilter(c)
	if !ok {
		return response.ValidationError(c, "Invalid status filter", nil)
	}

	result, err := h.clips.List(c.Context(), &model.ClipListQuery{
		StreamID: param(c, "streamId"),
		Status:   status,
		Page:     c.QueryInt("page", 1),
		Limit:    c.QueryInt("limit", 20),
	})
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, result)
}

// Get handles GET /api/clips/:clipId
func (h *ClipHandler) Get(c *fiber.Ctx) error {
	result, err := h.clips.Get(c.Context(), param(c, "clipId"))
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/clips/:clipId/cancel
func (h *ClipHandler) Cancel(c *fiber.Ctx) error {
	result, err := h.clips.Cancel(c.Context(), param(c, "clipId"))
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, result)
}
