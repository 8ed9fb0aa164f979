package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/framebeat/api/internal/ledger"
	"github.com/framebeat/api/internal/metrics"
	"github.com/framebeat/api/internal/model"
	"github.com/framebeat/api/pkg/response"
)

type CountReader interface {
	Read() (int, error)
}

type RatingRecorder interface {
	Record(rating int) error
}

// UsageHandler serves the ledger: quality ratings and the processed count.
type UsageHandler struct {
	counter   CountReader
	ratings   RatingRecorder
	validator *validator.Validate
}

func NewUsageHandler(counter CountReader, ratings RatingRecorder, v *validator.Validate) *UsageHandler {
	return &UsageHandler{
		counter:   counter,
		ratings:   ratings,
		validator: v,
	}
}

// Rate handles POST /api/rating
// @Summary      Rate a result
// @Tags         Usage
// @Accept       json
// @Produce      json
// @Param        request body model.RatingRequest true "Rating 1..5"
// @Success      200 {object} model.RatingResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/rating [post]
func (h *UsageHandler) Rate(c *fiber.Ctx) error {
	var req model.RatingRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, ledger.ErrInvalidRating.Error(), nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	rating, err := ledger.ParseRating(req.Rating.String())
	if err != nil {
		return response.ValidationError(c, ledger.ErrInvalidRating.Error(), nil)
	}

	if err := h.ratings.Record(rating); err != nil {
		if errors.Is(err, ledger.ErrInvalidRating) {
			return response.ValidationError(c, err.Error(), nil)
		}
		log.Error().Err(err).Msg("failed to record rating")
		return response.ServiceError(c, "Failed to record rating")
	}
	metrics.RatingsTotal.WithLabelValues(strconv.Itoa(rating)).Inc()

	return response.OK(c, model.RatingResponse{OK: true})
}

// Stats handles GET /api/stats
// @Summary      Processed video count
// @Tags         Usage
// @Produce      json
// @Success      200 {object} model.StatsResponse
// @Router       /api/stats [get]
func (h *UsageHandler) Stats(c *fiber.Ctx) error {
	n, err := h.counter.Read()
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, model.StatsResponse{ProcessedCount: n})
}
