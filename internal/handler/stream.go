package handler

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/zentag/api/internal/middleware"
	"github.com/zentag/api/internal/model"
	"github.com/zentag/api/internal/service"
	"github.com/zentag/api/pkg/response"
)

type StreamHandler struct {
	streams   *service.StreamService
	progress  *service.ProgressService
	validator *validator.Validate
}

func NewStreamHandler(streams *service.StreamService, progress *service.ProgressService, v *validator.Validate) *StreamHandler {
	return &StreamHandler{
		streams:   streams,
		progress:  progress,
		validator: v,
	}
}

// Create handles POST /api/streams
func (h *StreamHandler) Create(c *fiber.Ctx) error {
	var req model.StreamCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	stream, err := h.streams.Create(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		return writeError(c, err)
	}

	return response.Created(c, model.StreamCreateResponse{Stream: stream})
}

// Webhook handles POST /api/streams/webhook/ai-status
func (h *StreamHandler) Webhook(c *fiber.Ctx) error {
	body := c.Body()

	var keys model.StreamWebhookRequest
	if err := json.Unmarshal(body, &keys); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if keys.CorrelationKey() == "" {
		return response.ValidationError(c, "stream_id is required", nil)
	}

	update, err := model.ParseWorkerUpdate(body)
	if err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	job, err := h.streams.ApplyWebhook(c.Context(), keys.CorrelationKey(), update)
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, model.NewStatusView(job))
}

// List handles GET /api/streams
func (h *StreamHandler) List(c *fiber.Ctx) error {
	status, ok := parseStatusFilter(c)
	if !ok {
		return response.ValidationError(c, "Invalid status filter", nil)
	}

	result, err := h.streams.List(c.Context(), &model.StreamListQuery{
		OwnerID: middleware.GetUserID(c),
		Status:  status,
		Page:    c.QueryInt("page", 1),
		Limit:   c.QueryInt("limit", 20),
	})
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, result)
}

// Progress handles GET /api/streams/progress?job_id=
func (h *StreamHandler) Progress(c *fiber.Ctx) error {
	jobID := query(c, "job_id")
	if jobID == "" {
		return response.ValidationError(c, "job_id is required", nil)
	}

	result, err := h.progress.GetStatus(c.Context(), model.JobKindStream, jobID)
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, result)
}

// Get handles GET /api/streams/:id
func (h *StreamHandler) Get(c *fiber.Ctx) error {
	result, err := h.streams.Get(c.Context(), param(c, "id"))
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/streams/:id/cancel
func (h *StreamHandler) Cancel(c *fiber.Ctx) error {
	result, err := h.streams.Cancel(c.Context(), param(c, "id"))
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, result)
}
