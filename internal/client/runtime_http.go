package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"segment-assist/pkg/models"

	"github.com/sirupsen/logrus"
)

// HTTPRuntimeClient клиент для модельного рантайма по HTTP/JSON
type HTTPRuntimeClient struct {
	baseURL    string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// NewHTTPRuntimeClient создает новый клиент для модельного рантайма
func NewHTTPRuntimeClient(baseURL string, timeout time.Duration, logger logrus.FieldLogger) *HTTPRuntimeClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HTTPRuntimeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Load загружает веса модели в рантайм
func (c *HTTPRuntimeClient) Load(ctx context.Context, request *models.RuntimeLoadRequest) (*models.RuntimeLoadResponse, error) {
	c.logger.WithField("family", request.Family).Debug("Отправка запроса на загрузку модели в рантайм")

	var response models.RuntimeLoadResponse
	if err := c.do(ctx, http.MethodPost, "/models/load", request, &response); err != nil {
		return nil, err
	}
	if response.Handle == "" {
		return nil, fmt.Errorf("рантайм вернул пустой дескриптор модели: %s", response.Message)
	}
	return &response, nil
}

// Predict выполняет предсказание масок по точкам
func (c *HTTPRuntimeClient) Predict(ctx context.Context, request *models.RuntimePredictRequest) (*models.RuntimePredictResponse, error) {
	c.logger.WithField("points", len(request.Points)).Debug("Отправка запроса на предсказание в рантайм")

	var response models.RuntimePredictResponse
	if err := c.do(ctx, http.MethodPost, "/predict", request, &response); err != nil {
		return nil, err
	}
	if response.Status != "" && response.Status != "success" {
		return nil, fmt.Errorf("ошибка предсказания в рантайме: %s", response.Message)
	}
	return &response, nil
}

// Unload выгружает модель и освобождает память устройства
func (c *HTTPRuntimeClient) Unload(ctx context.Context, handle string) error {
	c.logger.WithField("handle", handle).Debug("Выгрузка модели из рантайма")
	return c.do(ctx, http.MethodDelete, "/models/"+url.PathEscape(handle), nil, nil)
}

// CheckHealth проверяет состояние модельного рантайма
func (c *HTTPRuntimeClient) CheckHealth(ctx context.Context) (*models.HealthResponse, error) {
	var health models.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *HTTPRuntimeClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("ошибка кодирования запроса: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("ошибка создания HTTP запроса: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка отправки HTTP запроса: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrLoadRejected, strings.TrimSpace(string(respBody)))
	case resp.StatusCode == http.StatusNotFound && method != http.MethodGet:
		return fmt.Errorf("%w: %s", ErrUnknownHandle, strings.TrimSpace(string(respBody)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("рантайм вернул ошибку: статус %d, тело: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("ошибка парсинга JSON ответа: %w", err)
	}
	return nil
}
