package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"segment-assist/internal/assist"
	"segment-assist/internal/model"
	"segment-assist/internal/repository"
	"segment-assist/pkg/models"

	"github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// AssistantService сервис реестра ассистентов и их ассетов
type AssistantService struct {
	assistantRepo repository.AssistantRepository
	logger        *logrus.Logger
	modelsDir     string
	defaults      assist.Defaults
}

// NewAssistantService создает новый сервис реестра ассистентов
func NewAssistantService(assistantRepo repository.AssistantRepository, logger *logrus.Logger, modelsDir string, defaults assist.Defaults) *AssistantService {
	return &AssistantService{
		assistantRepo: assistantRepo,
		logger:        logger,
		modelsDir:     modelsDir,
		defaults:      defaults,
	}
}

// Create проверяет конфигурацию, сохраняет ассеты и регистрирует ассистента
func (s *AssistantService) Create(ctx context.Context, input CreateAssistantInput) (*models.Assistant, error) {
	name := strings.TrimSpace(input.Name)
	if err := validateAssistantName(name); err != nil {
		return nil, err
	}

	kind, err := assist.ParseKind(input.Type)
	if err != nil {
		return nil, err
	}

	// Конфигурация проверяется до записи файлов на диск
	if _, err := assist.ParseConfig(string(kind), input.Parameters); err != nil {
		s.logger.Warnf("Некорректная конфигурация ассистента %s: %v", name, err)
		return nil, err
	}

	if _, err := s.assistantRepo.GetByName(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAssistantExists, name)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check assistant name: %w", err)
	}

	assetDir := s.assetDir(kind, name)
	_, statErr := os.Stat(assetDir)
	createdDir := os.IsNotExist(statErr)

	if len(input.Assets) > 0 {
		if err := s.saveAssets(assetDir, input.Assets); err != nil {
			s.logger.Errorf("Ошибка сохранения ассетов ассистента %s: %v", name, err)
			if createdDir {
				_ = os.RemoveAll(assetDir)
			}
			return nil, err
		}
	}

	parameters := model.Parameters{}
	for k, v := range input.Parameters {
		parameters[k] = v
	}
	assistant := &model.Assistant{
		Name:          name,
		AssistantType: string(kind),
		Parameters:    parameters,
	}
	if err := s.assistantRepo.Create(ctx, assistant); err != nil {
		s.logger.Errorf("Ошибка сохранения ассистента %s в БД: %v", name, err)
		if createdDir && len(input.Assets) > 0 {
			_ = os.RemoveAll(assetDir)
		}
		return nil, fmt.Errorf("failed to create assistant: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"assistant":    name,
		"backend_kind": string(kind),
		"assets":       len(input.Assets),
	}).Info("Ассистент зарегистрирован")
	return toResponse(assistant), nil
}

// List возвращает ассистентов по фильтру с пагинацией
func (s *AssistantService) List(ctx context.Context, input ListAssistantsInput) (*models.ListAssistantsResponse, error) {
	page, pageSize := normalizePage(input.Page, input.PageSize)

	filter := repository.AssistantFilter{Name: strings.TrimSpace(input.Name)}
	if input.Type != "" {
		kind, err := assist.ParseKind(input.Type)
		if err != nil {
			return nil, err
		}
		filter.AssistantType = string(kind)
	}

	assistants, total, err := s.assistantRepo.List(ctx, filter, page, pageSize)
	if err != nil {
		s.logger.Errorf("Ошибка получения списка ассистентов: %v", err)
		return nil, fmt.Errorf("failed to list assistants: %w", err)
	}

	response := &models.ListAssistantsResponse{
		Assistants: make([]models.Assistant, 0, len(assistants)),
		Total:      total,
		Page:       page,
		Size:       pageSize,
	}
	for _, a := range assistants {
		response.Assistants = append(response.Assistants, *toResponse(a))
	}

	s.logger.Debugf("Получено %d ассистентов из %d", len(response.Assistants), total)
	return response, nil
}

// Get возвращает ассистента по имени
func (s *AssistantService) Get(ctx context.Context, name string) (*models.Assistant, error) {
	assistant, err := s.assistantRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return toResponse(assistant), nil
}

// Delete удаляет ассистента и его ассеты. Зарезервированные ассистенты не удаляются.
func (s *AssistantService) Delete(ctx context.Context, name string) error {
	if isReservedName(name) {
		return &assist.ConfigValidationError{Field: "assistant_name", Reason: fmt.Sprintf("%q is reserved", name)}
	}

	assistant, err := s.assistantRepo.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if err := s.assistantRepo.Delete(ctx, name); err != nil {
		s.logger.Errorf("Ошибка удаления ассистента %s из БД: %v", name, err)
		return fmt.Errorf("failed to delete assistant: %w", err)
	}

	assetDir := s.assetDir(assist.Kind(assistant.AssistantType), assistant.Name)
	if err := os.RemoveAll(assetDir); err != nil {
		s.logger.Warnf("Не удалось удалить ассеты ассистента %s: %v", name, err)
	}

	s.logger.Infof("Ассистент %s удален", name)
	return nil
}

// EnsureDefaults создает зарезервированных ассистентов для каждого семейства
func (s *AssistantService) EnsureDefaults(ctx context.Context) error {
	kinds := assist.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	if err := s.assistantRepo.EnsureDefaults(ctx, names); err != nil {
		return fmt.Errorf("failed to ensure default assistants: %w", err)
	}
	return nil
}

// ResolveConfig возвращает конфигурацию бэкенда для ассистента заданного семейства.
// Имя, совпадающее с семейством, означает конфигурацию по умолчанию.
func (s *AssistantService) ResolveConfig(ctx context.Context, name string, kind assist.Kind) (assist.BackendConfig, error) {
	if name == string(kind) {
		return assist.DefaultConfig(kind, s.defaults)
	}

	assistant, err := s.assistantRepo.GetByNameAndType(ctx, name, string(kind))
	if err != nil {
		return nil, err
	}
	return s.configFor(assistant)
}

// ResolveByName возвращает конфигурацию бэкенда, определяя семейство по реестру
func (s *AssistantService) ResolveByName(ctx context.Context, name string) (assist.BackendConfig, error) {
	for _, kind := range assist.Kinds() {
		if name == string(kind) {
			return assist.DefaultConfig(kind, s.defaults)
		}
	}

	assistant, err := s.assistantRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.configFor(assistant)
}

func (s *AssistantService) configFor(assistant *model.Assistant) (assist.BackendConfig, error) {
	cfg, err := assist.ParseConfig(assistant.AssistantType, assistant.Parameters)
	if err != nil {
		return nil, fmt.Errorf("stored assistant %s: %w", assistant.Name, err)
	}

	// Относительные пути указывают внутрь директории ассетов ассистента
	dir := s.assetDir(cfg.Kind(), assistant.Name)
	switch c := cfg.(type) {
	case assist.Sam2Config:
		c.CheckpointPath = resolveAssetPath(dir, c.CheckpointPath)
		cfg = c
	case assist.ZimConfig:
		c.CheckpointDirectory = resolveAssetPath(dir, c.CheckpointDirectory)
		cfg = c
	}
	return assist.WithDefaults(cfg, s.defaults), nil
}

func (s *AssistantService) assetDir(kind assist.Kind, name string) string {
	return filepath.Join(s.modelsDir, string(kind), name)
}

// saveAssets сохраняет файлы ассистента, zip архивы распаковываются с сохранением структуры
func (s *AssistantService) saveAssets(dir string, assets []Asset) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create asset directory: %w", err)
	}

	for _, asset := range assets {
		data, err := io.ReadAll(asset.Content)
		if err != nil {
			return fmt.Errorf("failed to read asset %s: %w", asset.Filename, err)
		}

		archive, zipErr := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if errors.Is(zipErr, zip.ErrInsecurePath) {
			return fmt.Errorf("%w: %s", ErrUnsafeAsset, asset.Filename)
		}
		if zipErr == nil {
			if err := s.extractArchive(dir, archive); err != nil {
				return err
			}
			s.logger.Debugf("Архив %s распакован в %s", asset.Filename, dir)
			continue
		}

		filename := filepath.Base(filepath.Clean("/" + asset.Filename))
		if filename == "/" || filename == "." {
			return &assist.ConfigValidationError{Field: "assets", Reason: "asset file name is required"}
		}
		path := filepath.Join(dir, filename)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write asset %s: %w", filename, err)
		}
		s.logger.Debugf("Ассет сохранен: %s (%d байт)", path, len(data))
	}
	return nil
}

func (s *AssistantService) extractArchive(dir string, archive *zip.Reader) error {
	for _, file := range archive.File {
		target, err := safeJoin(dir, file.Name)
		if err != nil {
			return err
		}

		mode := file.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", file.Name, err)
			}
			continue
		case !mode.IsRegular():
			s.logger.Warnf("Пропускаем элемент архива %s: неподдерживаемый тип", file.Name)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", file.Name, err)
		}
		if err := extractFile(file, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(file *zip.File, target string) error {
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", file.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", file.Name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to extract %s: %w", file.Name, err)
	}
	return dst.Close()
}

// safeJoin присоединяет путь из архива к dir, не позволяя выйти за его пределы
func safeJoin(dir, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %s", ErrUnsafeAsset, name)
	}
	target := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeAsset, name)
	}
	return target, nil
}

func resolveAssetPath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func validateAssistantName(name string) error {
	if name == "" {
		return &assist.ConfigValidationError{Field: "assistant_name", Reason: "is required"}
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return &assist.ConfigValidationError{Field: "assistant_name", Reason: "must not contain path separators"}
	}
	if isReservedName(name) {
		return &assist.ConfigValidationError{Field: "assistant_name", Reason: fmt.Sprintf("%q is reserved", name)}
	}
	return nil
}

func isReservedName(name string) bool {
	for _, k := range assist.Kinds() {
		if name == string(k) {
			return true
		}
	}
	return false
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// toResponse преобразует модель базы данных в ответ API
func toResponse(a *model.Assistant) *models.Assistant {
	parameters := map[string]any{}
	for k, v := range a.Parameters {
		parameters[k] = v
	}
	return &models.Assistant{
		ID:            a.ID,
		Name:          a.Name,
		AssistantType: a.AssistantType,
		Parameters:    parameters,
		CreatedAt:     a.CreatedAt,
	}
}
