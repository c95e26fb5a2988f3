package assist

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendNotLoaded возвращается при вызове инференса на бэкенде без загруженной модели
	ErrBackendNotLoaded = errors.New("segmentation backend is not loaded")

	// ErrInvalidPoints возвращается при пустом или некорректном наборе точек
	ErrInvalidPoints = errors.New("invalid foreground points")
)

// ConfigValidationError описывает ошибку разбора конфигурации бэкенда или параметров запуска
type ConfigValidationError struct {
	Field  string
	Reason string
}

func (e *ConfigValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid backend configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid backend configuration: %s: %s", e.Field, e.Reason)
}

// ModelLoadError возвращается, когда веса существуют, но модель не удалось загрузить
type ModelLoadError struct {
	Kind Kind
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load %s model: %v", e.Kind.DisplayName(), e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// InferenceError оборачивает ошибку рантайма во время предсказания
type InferenceError struct {
	Kind Kind
	Err  error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s inference failed: %v", e.Kind.DisplayName(), e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// ImageDecodeError возвращается для повреждённых или неподдерживаемых изображений
type ImageDecodeError struct {
	Err error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("failed to decode image: %v", e.Err)
}

func (e *ImageDecodeError) Unwrap() error {
	return e.Err
}
