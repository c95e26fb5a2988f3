package models

import "time"

// SegmentationResult ответ интерактивной сегментации
type SegmentationResult struct {
	Disabled     bool    `json:"disabled"`          // Бэкенд недоступен в этом развертывании
	Segmentation [][]int `json:"segmentation"`      // Контуры [x0, y0, x1, y1, ...]
	Message      string  `json:"message,omitempty"` // Присутствует только если disabled
}

// Assistant запись реестра именованных конфигураций бэкендов
type Assistant struct {
	ID            uint           `json:"id"`
	Name          string         `json:"name"`
	AssistantType string         `json:"assistant_type"`
	Parameters    map[string]any `json:"parameters"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ListAssistantsResponse ответ со списком ассистентов
type ListAssistantsResponse struct {
	Assistants []Assistant `json:"assistants"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Size       int         `json:"size"`
}

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
