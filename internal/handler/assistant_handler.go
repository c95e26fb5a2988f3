package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"segment-assist/internal/assist"
	"segment-assist/internal/service"
	"segment-assist/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AssistantRegistry операции реестра ассистентов
type AssistantRegistry interface {
	Create(ctx context.Context, input service.CreateAssistantInput) (*models.Assistant, error)
	List(ctx context.Context, input service.ListAssistantsInput) (*models.ListAssistantsResponse, error)
	Get(ctx context.Context, name string) (*models.Assistant, error)
	Delete(ctx context.Context, name string) error
}

// Segmentation интерактивная сегментация по ассистенту
type Segmentation interface {
	Segment(ctx context.Context, input service.SegmentInput) (*models.SegmentationResult, error)
}

// AssistantHandler обрабатывает HTTP запросы реестра ассистентов и сегментации
type AssistantHandler struct {
	registry     AssistantRegistry
	segmentation Segmentation
	logger       *logrus.Logger
	maxUpload    int64
}

// NewAssistantHandler создает новый экземпляр AssistantHandler
func NewAssistantHandler(registry AssistantRegistry, segmentation Segmentation, logger *logrus.Logger, maxUpload int64) *AssistantHandler {
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &AssistantHandler{
		registry:     registry,
		segmentation: segmentation,
		logger:       logger,
		maxUpload:    maxUpload,
	}
}

// RegisterRoutes регистрирует маршруты API
func (h *AssistantHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/assistants")
	{
		api.GET("", h.ListAssistants)
		api.POST("", h.CreateAssistant)
		api.GET("/:name", h.GetAssistant)
		api.DELETE("/:name", h.DeleteAssistant)
		api.POST("/sam2", h.segmentKind(assist.KindSam2))
		api.POST("/zim", h.segmentKind(assist.KindZim))
		api.POST("/segment", h.segmentKind(""))
	}
}

// ListAssistants возвращает ассистентов по фильтру
// @Summary Список ассистентов
// @Description Возвращает зарегистрированных ассистентов с фильтром по имени и семейству
// @Tags assistants
// @Produce json
// @Param assistant_name query string false "Подстрока имени"
// @Param assistant_type query string false "Семейство бэкенда" Enums(sam2, zim)
// @Param page query integer false "Номер страницы" default(1) minimum(1)
// @Param page_size query integer false "Размер страницы" default(20) minimum(1) maximum(100)
// @Success 200 {object} models.ListAssistantsResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/assistants [get]
func (h *AssistantHandler) ListAssistants(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	response, err := h.registry.List(c.Request.Context(), service.ListAssistantsInput{
		Name:     c.Query("assistant_name"),
		Type:     c.Query("assistant_type"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// GetAssistant возвращает ассистента по имени
// @Summary Ассистент по имени
// @Tags assistants
// @Produce json
// @Param name path string true "Имя ассистента"
// @Success 200 {object} models.Assistant
// @Failure 404 {object} models.ErrorResponse
// @Router /api/assistants/{name} [get]
func (h *AssistantHandler) GetAssistant(c *gin.Context) {
	assistant, err := h.registry.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assistant)
}

// DeleteAssistant удаляет ассистента и его ассеты
// @Summary Удаление ассистента
// @Tags assistants
// @Param name path string true "Имя ассистента"
// @Success 204
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/assistants/{name} [delete]
func (h *AssistantHandler) DeleteAssistant(c *gin.Context) {
	if err := h.registry.Delete(c.Request.Context(), c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateAssistant регистрирует ассистента из multipart формы
// @Summary Регистрация ассистента
// @Description Проверяет конфигурацию, сохраняет ассеты (zip архивы распаковываются) и регистрирует ассистента
// @Tags assistants
// @Accept multipart/form-data
// @Produce json
// @Param assistant_name formData string true "Имя ассистента"
// @Param assistant_type formData string true "Семейство бэкенда" Enums(sam2, zim)
// @Param config_parameters formData string false "Параметры конфигурации, JSON объект"
// @Param assets formData file false "Файлы весов или zip архив"
// @Success 201 {object} models.Assistant
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/assistants [post]
func (h *AssistantHandler) CreateAssistant(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	if err := c.Request.ParseMultipartForm(h.maxUpload); err != nil {
		h.logger.Warnf("Ошибка парсинга multipart form: %v", err)
		respondError(c, fmt.Errorf("%w: invalid multipart form: %v", errBadRequest, err))
		return
	}

	var parameters map[string]any
	if raw := strings.TrimSpace(c.PostForm("config_parameters")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &parameters); err != nil {
			respondError(c, &assist.ConfigValidationError{Field: "config_parameters", Reason: "must be a JSON object"})
			return
		}
	}

	input := service.CreateAssistantInput{
		Name:       c.PostForm("assistant_name"),
		Type:       c.PostForm("assistant_type"),
		Parameters: parameters,
	}

	if form := c.Request.MultipartForm; form != nil {
		for _, header := range form.File["assets"] {
			file, err := header.Open()
			if err != nil {
				respondError(c, fmt.Errorf("%w: failed to read asset %s", errBadRequest, header.Filename))
				return
			}
			defer file.Close()
			input.Assets = append(input.Assets, service.Asset{Filename: header.Filename, Content: file})
		}
	}

	assistant, err := h.registry.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, assistant)
}

// segmentKind обработчик сегментации для семейства; пустой kind берет семейство из реестра
// @Summary Интерактивная сегментация
// @Description Сегментирует объект под точками переднего плана и возвращает внешние контуры
// @Tags segmentation
// @Accept multipart/form-data
// @Produce json
// @Param assistant_name formData string true "Имя ассистента"
// @Param image formData file true "Изображение"
// @Param foreground_xy formData string true "Точки переднего плана, JSON список пар [x, y]"
// @Param parameters formData string false "Параметры прогона, JSON объект"
// @Success 200 {object} models.SegmentationResult
// @Failure 400 {object} models.SegmentationResult "Бэкенд отключен или запрос некорректен"
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Failure 504 {object} models.ErrorResponse
// @Router /api/assistants/sam2 [post]
// @Router /api/assistants/zim [post]
// @Router /api/assistants/segment [post]
func (h *AssistantHandler) segmentKind(kind assist.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
		if err := c.Request.ParseMultipartForm(h.maxUpload); err != nil {
			respondError(c, fmt.Errorf("%w: invalid multipart form: %v", errBadRequest, err))
			return
		}

		points, err := parseForegroundXY(c.PostFormArray("foreground_xy"))
		if err != nil {
			respondError(c, err)
			return
		}

		var parameters map[string]any
		if raw := strings.TrimSpace(c.PostForm("parameters")); raw != "" {
			if err := json.Unmarshal([]byte(raw), &parameters); err != nil {
				respondError(c, &assist.ConfigValidationError{Field: "parameters", Reason: "must be a JSON object"})
				return
			}
		}

		file, _, err := c.Request.FormFile("image")
		if err != nil {
			respondError(c, fmt.Errorf("%w: image file is required", errBadRequest))
			return
		}
		defer file.Close()
		image, err := io.ReadAll(file)
		if err != nil {
			respondError(c, fmt.Errorf("%w: failed to read image: %v", errBadRequest, err))
			return
		}

		result, err := h.segmentation.Segment(c.Request.Context(), service.SegmentInput{
			AssistantName: c.PostForm("assistant_name"),
			Kind:          kind,
			Image:         image,
			Points:        points,
			Parameters:    parameters,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		if result.Disabled {
			c.JSON(http.StatusBadRequest, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// parseForegroundXY разбирает точки: JSON [[x, y], ...] или отдельные пары [x, y]
func parseForegroundXY(values []string) ([]assist.Point, error) {
	var raw [][]float64
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		var many [][]float64
		if err := json.Unmarshal([]byte(v), &many); err == nil {
			raw = append(raw, many...)
			continue
		}
		var pair []float64
		if err := json.Unmarshal([]byte(v), &pair); err != nil {
			return nil, fmt.Errorf("%w: foreground_xy must be a JSON list of [x, y] pairs", assist.ErrInvalidPoints)
		}
		raw = append(raw, pair)
	}
	return assist.ParsePoints(raw)
}
