package service

import (
	"context"
	"errors"
	"io"

	"segment-assist/internal/assist"
	"segment-assist/internal/repository"
	"segment-assist/pkg/models"
)

var (
	// ErrAssistantNotFound ассистент отсутствует в реестре (или зарегистрирован для другого семейства)
	ErrAssistantNotFound = repository.ErrNotFound

	// ErrAssistantExists имя ассистента уже занято
	ErrAssistantExists = repository.ErrAlreadyExists

	// ErrUnsafeAsset архив ассета пытается писать за пределы директории ассистента
	ErrUnsafeAsset = errors.New("asset path escapes assistant directory")
)

// Asset файл, загружаемый вместе с ассистентом (веса, конфиг или zip архив)
type Asset struct {
	Filename string
	Content  io.Reader
}

// CreateAssistantInput данные для регистрации ассистента
type CreateAssistantInput struct {
	Name       string
	Type       string
	Parameters map[string]any
	Assets     []Asset
}

// ListAssistantsInput фильтр и пагинация списка ассистентов
type ListAssistantsInput struct {
	Name     string
	Type     string
	Page     int
	PageSize int
}

// SegmentInput запрос интерактивной сегментации.
// Пустой Kind означает, что семейство берется из реестра.
type SegmentInput struct {
	AssistantName string
	Kind          assist.Kind
	Image         []byte
	Points        []assist.Point
	Parameters    map[string]any
}

// ConfigResolver превращает имя ассистента в конфигурацию бэкенда
type ConfigResolver interface {
	ResolveConfig(ctx context.Context, name string, kind assist.Kind) (assist.BackendConfig, error)
	ResolveByName(ctx context.Context, name string) (assist.BackendConfig, error)
}

// Runner выполняет сегментацию (обычно *assist.Segmenter)
type Runner interface {
	Run(ctx context.Context, cfg assist.BackendConfig, img io.Reader, points []assist.Point, params assist.RunParameters) (*models.SegmentationResult, error)
}

// ResultCache кэш результатов для повторяющихся запросов
type ResultCache interface {
	Get(ctx context.Context, key string) (*models.SegmentationResult, error)
	Set(ctx context.Context, key string, result *models.SegmentationResult) error
}
