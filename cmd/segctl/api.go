package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"segment-assist/pkg/models"

	"github.com/go-resty/resty/v2"
)

// apiClient клиент HTTP API сервера сегментации
type apiClient struct {
	http *resty.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout),
	}
}

// apiError ответ сервера с ошибкой
type apiError struct {
	Status   int
	Response models.ErrorResponse
}

func (e *apiError) Error() string {
	if e.Response.Field != "" {
		return fmt.Sprintf("server returned %d: %s (field %s)", e.Status, e.Response.Error, e.Response.Field)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Response.Error)
}

func responseError(resp *resty.Response) error {
	apiErr := &apiError{Status: resp.StatusCode()}
	if err := json.Unmarshal(resp.Body(), &apiErr.Response); err != nil || apiErr.Response.Error == "" {
		apiErr.Response.Error = http.StatusText(resp.StatusCode())
	}
	return apiErr
}

func (c *apiClient) health(ctx context.Context) (*models.HealthResponse, error) {
	var health models.HealthResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&health).
		Get("/health")
	if err != nil {
		return nil, err
	}
	// 503 тоже содержит тело HealthResponse
	if resp.StatusCode() == http.StatusServiceUnavailable {
		if err := json.Unmarshal(resp.Body(), &health); err != nil {
			return nil, responseError(resp)
		}
		return &health, nil
	}
	if resp.IsError() {
		return nil, responseError(resp)
	}
	return &health, nil
}

func (c *apiClient) listAssistants(ctx context.Context, name, assistantType string, page, pageSize int) (*models.ListAssistantsResponse, error) {
	query := url.Values{}
	if name != "" {
		query.Set("assistant_name", name)
	}
	if assistantType != "" {
		query.Set("assistant_type", assistantType)
	}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))

	var list models.ListAssistantsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		SetResult(&list).
		Get("/api/assistants")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, responseError(resp)
	}
	return &list, nil
}

func (c *apiClient) createAssistant(ctx context.Context, name, assistantType, parameters string, assets []string) (*models.Assistant, error) {
	req := c.http.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{
			"assistant_name":    name,
			"assistant_type":    assistantType,
			"config_parameters": parameters,
		})
	for _, path := range assets {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read asset: %w", err)
		}
		req.SetFileReader("assets", filepath.Base(path), bytes.NewReader(data))
	}

	var assistant models.Assistant
	resp, err := req.SetResult(&assistant).Post("/api/assistants")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, responseError(resp)
	}
	return &assistant, nil
}

func (c *apiClient) deleteAssistant(ctx context.Context, name string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("name", name).
		Delete("/api/assistants/{name}")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return responseError(resp)
	}
	return nil
}

// segment отправляет изображение и точки. Пустой assistantType использует общий эндпоинт.
func (c *apiClient) segment(ctx context.Context, assistant, assistantType, imagePath string, points [][2]float64, parameters string) (*models.SegmentationResult, error) {
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	xy, err := json.Marshal(points)
	if err != nil {
		return nil, err
	}

	endpoint := "/api/assistants/segment"
	if assistantType != "" {
		endpoint = "/api/assistants/" + url.PathEscape(assistantType)
	}

	form := map[string]string{
		"assistant_name": assistant,
		"foreground_xy":  string(xy),
	}
	if parameters != "" {
		form["parameters"] = parameters
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartFormData(form).
		SetFileReader("image", filepath.Base(imagePath), bytes.NewReader(image)).
		Post(endpoint)
	if err != nil {
		return nil, err
	}

	var result models.SegmentationResult
	decodeErr := json.Unmarshal(resp.Body(), &result)
	switch {
	case resp.IsSuccess() && decodeErr == nil:
		return &result, nil
	case resp.StatusCode() == http.StatusBadRequest && decodeErr == nil && result.Disabled:
		return &result, nil
	}
	return nil, responseError(resp)
}
