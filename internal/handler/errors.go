package handler

import (
	"errors"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/zentag/api/internal/client"
	"github.com/zentag/api/internal/lifecycle"
	"github.com/zentag/api/internal/model"
	"github.com/zentag/api/internal/service"
	"github.com/zentag/api/pkg/response"
)

// param returns a copy of the route parameter; fiber reuses the backing
// buffer once the handler returns.
func param(c *fiber.Ctx, name string) string {
	return utils.CopyString(c.Params(name))
}

// query is param for query-string values.
func query(c *fiber.Ctx, name string) string {
	return utils.CopyString(c.Query(name))
}

// writeError maps service errors onto the error envelope
func writeError(c *fiber.Ctx, err error) error {
	var (
		notFound  *service.NotFoundError
		unknown   *lifecycle.UnknownJobError
		submitErr *client.RemoteSubmissionError
	)

	switch {
	case errors.As(err, &notFound):
		return response.NotFound(c, notFound.Error())
	case errors.As(err, &unknown):
		return response.NotFound(c, unknown.Error())
	case errors.Is(err, lifecycle.ErrAlreadyTerminal):
		return response.Conflict(c, "Job already finished")
	case errors.As(err, &submitErr):
		return response.AIError(c, submitErr.Error())
	}

	log.Error("request failed", "path", c.Path(), "err", err)
	return response.ServiceError(c, err.Error())
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}

// parseStatusFilter reads the optional ?status= filter
func parseStatusFilter(c *fiber.Ctx) (model.JobStatus, bool) {
	raw := c.Query("status")
	if raw == "" {
		return "", true
	}
	status := model.ParseJobStatus(raw)
	return status, status != ""
}
