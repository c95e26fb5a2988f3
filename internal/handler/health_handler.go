package handler

import (
	"context"
	"net/http"
	"time"

	"segment-assist/internal/client"
	"segment-assist/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Version версия сервиса в ответах health
const Version = "1.0.0"

// HealthHandler проверяет состояние сервиса и его зависимостей
type HealthHandler struct {
	database func(ctx context.Context) error
	runtime  client.Runtime
	logger   *logrus.Logger
}

// NewHealthHandler создает новый экземпляр HealthHandler
func NewHealthHandler(database func(ctx context.Context) error, runtime client.Runtime, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		database: database,
		runtime:  runtime,
		logger:   logger,
	}
}

// RegisterRoutes регистрирует маршрут проверки здоровья
func (h *HealthHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.CheckHealth)
}

// CheckHealth проверяет базу данных и модельный рантайм
// @Summary Проверка состояния сервиса
// @Description Возвращает состояние базы данных и модельного рантайма
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Failure 503 {object} models.HealthResponse
// @Router /health [get]
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := models.HealthResponse{Status: "healthy", Version: Version}

	if h.database != nil {
		if err := h.database(ctx); err != nil {
			h.logger.Errorf("База данных недоступна: %v", err)
			response.Status = "unhealthy"
		}
	}

	if h.runtime != nil {
		runtimeHealth, err := h.runtime.CheckHealth(ctx)
		if err != nil {
			h.logger.Errorf("Модельный рантайм недоступен: %v", err)
			response.Status = "unhealthy"
		} else {
			response.LoadedModels = runtimeHealth.LoadedModels
			response.Devices = runtimeHealth.Devices
		}
	}

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response)
}
