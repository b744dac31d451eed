package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"workboard-api/domain"
)

const serverErrorMessage = "Server error"

// writeError renders err as {error: message}. Validation failures map to 400,
// missing or foreign boards to 404, replayed idempotency keys to 409. Anything
// else is logged and reported as a generic 500.
func writeError(c echo.Context, logger *log.Logger, stage string, err error) error {
	var (
		validation domain.ValidationError
		notFound   domain.NotFoundError
	)
	m := metricsFrom(c)
	switch {
	case errors.As(err, &validation):
		m.SetErrorStage("validation")
		return c.JSON(http.StatusBadRequest, errorResponse{Error: validation.Error()})
	case errors.Is(err, errBadIdempotencyKey):
		m.SetErrorStage("idempotency")
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &notFound):
		m.SetErrorStage("not_found")
		return c.JSON(http.StatusNotFound, errorResponse{Error: notFound.Error()})
	case errors.Is(err, errDuplicateRequest):
		m.SetErrorStage("idempotency")
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		m.SetErrorStage(stage)
		logger.WithFields(log.Fields{
			"method": c.Request().Method,
			"route":  c.Path(),
			"stage":  stage,
		}).WithError(err).Error("request failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: serverErrorMessage})
	}
}
