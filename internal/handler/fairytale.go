package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/talecraft/api/internal/middleware"
	"github.com/talecraft/api/internal/model"
	"github.com/talecraft/api/internal/service"
	"github.com/talecraft/api/pkg/response"
)

type FairytaleHandler struct {
	service *service.FairytaleService
	log     zerolog.Logger
}

func NewFairytaleHandler(svc *service.FairytaleService, log zerolog.Logger) *FairytaleHandler {
	return &FairytaleHandler{
		service: svc,
		log:     log.With().Str("component", "fairytale_handler").Logger(),
	}
}

// Create handles POST /api/fairytales
// @Summary      Start fairytale generation
// @Description  Queue a story and narration for the given brief. Returns immediately.
// @Tags         Fairytales
// @Accept       json
// @Produce      json
// @Param        request body model.FairytaleCreateRequest true "Fairytale brief"
// @Success      202 {object} model.SubmitResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/fairytales [post]
func (h *FairytaleHandler) Create(c *fiber.Ctx) error {
	var req model.FairytaleCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	result, err := h.service.Submit(c.UserContext(), middleware.GetUserID(c), req.Brief())
	if err != nil {
		return h.fail(c, err)
	}

	return response.Accepted(c, result)
}

// List handles GET /api/fairytales
// @Summary      List fairytales
// @Description  All jobs of the caller, newest first
// @Tags         Fairytales
// @Produce      json
// @Success      200 {object} model.FairytaleListResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/fairytales [get]
func (h *FairytaleHandler) List(c *fiber.Ctx) error {
	result, err := h.service.List(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, result)
}

// Get handles GET /api/fairytales/:id
// @Summary      Get fairytale
// @Description  Current status, text and audio URL of one job
// @Tags         Fairytales
// @Produce      json
// @Param        id path string true "Fairytale ID"
// @Success      200 {object} model.FairytaleResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/fairytales/{id} [get]
func (h *FairytaleHandler) Get(c *fiber.Ctx) error {
	result, err := h.service.Get(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, result)
}

// Delete handles DELETE /api/fairytales/:id
// @Summary      Delete fairytale
// @Description  Remove the job and its audio file
// @Tags         Fairytales
// @Param        id path string true "Fairytale ID"
// @Success      204
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/fairytales/{id} [delete]
func (h *FairytaleHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), middleware.GetUserID(c), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return response.NoContent(c)
}

// RegenerateAudio handles POST /api/fairytales/:id/regenerate-audio
// @Summary      Regenerate narration
// @Description  Queue a new narration for a job that already has story text
// @Tags         Fairytales
// @Produce      json
// @Param        id path string true "Fairytale ID"
// @Success      202 {object} model.RegenerateAudioResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/fairytales/{id}/regenerate-audio [post]
func (h *FairytaleHandler) RegenerateAudio(c *fiber.Ctx) error {
	result, err := h.service.SubmitAudioRegeneration(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.Accepted(c, result)
}

// Reclaim handles POST /api/admin/reclaim
// @Summary      Reclaim stuck jobs
// @Description  Fail every job that stayed in generating past the timeout
// @Tags         Admin
// @Produce      json
// @Param        X-Admin-Token header string true "Admin token"
// @Success      200 {object} model.ReclaimResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/admin/reclaim [post]
func (h *FairytaleHandler) Reclaim(c *fiber.Ctx) error {
	n, err := h.service.ReclaimStuckJobs(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, model.ReclaimResponse{Reclaimed: n})
}

func (h *FairytaleHandler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	case errors.Is(err, service.ErrNotFound):
		return response.NotFound(c, "Fairytale not found")
	case errors.Is(err, service.ErrForbidden):
		return response.Forbidden(c, "Access denied")
	case errors.Is(err, service.ErrNoText):
		return response.Conflict(c, "Fairytale has no story text yet")
	case errors.Is(err, service.ErrJobBusy):
		return response.Conflict(c, "Fairytale is still being generated")
	case errors.Is(err, service.ErrOverloaded):
		c.Set(fiber.HeaderRetryAfter, "30")
		return response.Unavailable(c, "Generation capacity exhausted, try again later")
	}

	h.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return response.ServiceError(c, "Internal server error")
}

func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	fields := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		fields[e.Field()] = e.Tag()
	}
	return fields
}
