package handler

import (
	"context"
	"errors"
	"net/http"

	"segment-assist/internal/assist"
	"segment-assist/internal/service"
	"segment-assist/pkg/models"

	"github.com/gin-gonic/gin"
)

// errBadRequest ошибки разбора входных данных запроса
var errBadRequest = errors.New("bad request")

// statusFor сопоставляет ошибку HTTP статусу
func statusFor(err error) int {
	var validation *assist.ConfigValidationError
	var decode *assist.ImageDecodeError

	switch {
	case errors.As(err, &validation),
		errors.As(err, &decode),
		errors.Is(err, assist.ErrInvalidPoints),
		errors.Is(err, service.ErrUnsafeAsset),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAssistantNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAssistantExists):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	// ModelLoadError, InferenceError и прочие
	return http.StatusInternalServerError
}

// respondError отправляет тело ErrorResponse со статусом по типу ошибки
func respondError(c *gin.Context, err error) {
	response := models.ErrorResponse{Error: err.Error()}
	var validation *assist.ConfigValidationError
	if errors.As(err, &validation) {
		response.Field = validation.Field
	}
	c.JSON(statusFor(err), response)
}
