package assist

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"time"

	"segment-assist/pkg/models"

	"github.com/sirupsen/logrus"
)

// BackendSource выдает бэкенд для конфигурации (обычно BackendCache)
type BackendSource interface {
	GetOrCreate(ctx context.Context, cfg BackendConfig) (Backend, error)
}

// Segmenter точка входа интерактивной сегментации
type Segmenter struct {
	backends BackendSource
	observer Observer
	logger   logrus.FieldLogger
}

// NewSegmenter создает оркестратор поверх источника бэкендов
func NewSegmenter(backends BackendSource, observer Observer, logger logrus.FieldLogger) *Segmenter {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Segmenter{backends: backends, observer: observer, logger: logger}
}

// DisabledMessage сообщение для бэкенда без загруженных весов
func DisabledMessage(kind Kind) string {
	return fmt.Sprintf("%s is disabled", kind.DisplayName())
}

// Run сегментирует объект по точкам переднего плана и возвращает контуры.
// Бэкенд без весов дает результат disabled, а не ошибку.
func (s *Segmenter) Run(ctx context.Context, cfg BackendConfig, img io.Reader, points []Point, params RunParameters) (*models.SegmentationResult, error) {
	if cfg == nil {
		return nil, &ConfigValidationError{Field: "assistant_type", Reason: "backend configuration is required"}
	}
	kind := cfg.Kind()
	started := time.Now()

	result, err := s.run(ctx, cfg, img, points, params)

	outcome := OutcomeSuccess
	switch {
	case err != nil:
		outcome = OutcomeError
	case result.Disabled:
		outcome = OutcomeDisabled
	}
	s.observer.Segmentation(kind, outcome, time.Since(started))

	if err != nil {
		entry := s.logger.WithError(err).WithFields(logrus.Fields{
			"backend_kind": string(kind),
			"config_key":   cfg.Key(),
		})
		var loadErr *ModelLoadError
		var inferenceErr *InferenceError
		if errors.As(err, &loadErr) || errors.As(err, &inferenceErr) {
			entry.Error("Ошибка сегментации")
		} else {
			entry.Debug("Запрос сегментации отклонен")
		}
		return nil, err
	}
	return result, nil
}

func (s *Segmenter) run(ctx context.Context, cfg BackendConfig, img io.Reader, points []Point, params RunParameters) (*models.SegmentationResult, error) {
	if err := ValidatePoints(points); err != nil {
		return nil, err
	}
	if params == nil {
		params = DefaultParameters(cfg.Kind())
	}
	if params.Kind() != cfg.Kind() {
		return nil, &ConfigValidationError{
			Field:  "parameters",
			Reason: fmt.Sprintf("%s parameters do not apply to %s", params.Kind().DisplayName(), cfg.Kind().DisplayName()),
		}
	}

	// Изображение декодируется до обращения к бэкенду
	frame, err := DecodeImage(img)
	if err != nil {
		return nil, err
	}

	var masks *Masks
	for attempt := 0; ; attempt++ {
		backend, err := s.backends.GetOrCreate(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if !backend.IsLoaded() {
			return &models.SegmentationResult{
				Disabled:     true,
				Segmentation: [][]int{},
				Message:      DisabledMessage(cfg.Kind()),
			}, nil
		}

		masks, err = backend.EndToEndSegmentation(ctx, frame, points, params)
		// Бэкенд мог быть вытеснен из кэша между получением и инференсом
		if errors.Is(err, ErrBackendNotLoaded) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	foreground := foregroundChannel(masks)
	if foreground == nil {
		return &models.SegmentationResult{Segmentation: [][]int{}}, nil
	}
	return &models.SegmentationResult{Segmentation: Contours(foreground)}, nil
}

// foregroundChannel выбирает канал переднего плана: второй из нескольких
func foregroundChannel(masks *Masks) *image.Gray {
	if masks == nil {
		return nil
	}
	switch len(masks.Channels) {
	case 0:
		return nil
	case 1:
		return masks.Channels[0]
	}
	return masks.Channels[1]
}

// ValidatePoints проверяет, что задана хотя бы одна конечная точка
func ValidatePoints(points []Point) error {
	if len(points) == 0 {
		return fmt.Errorf("%w: at least one foreground point is required", ErrInvalidPoints)
	}
	for i, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return fmt.Errorf("%w: point %d is not finite", ErrInvalidPoints, i)
		}
	}
	return nil
}

// ParsePoints разбирает список пар [x, y]
func ParsePoints(raw [][]float64) ([]Point, error) {
	points := make([]Point, 0, len(raw))
	for i, xy := range raw {
		if len(xy) != 2 {
			return nil, fmt.Errorf("%w: point %d must be a pair [x, y]", ErrInvalidPoints, i)
		}
		points = append(points, Point{X: xy[0], Y: xy[1]})
	}
	if err := ValidatePoints(points); err != nil {
		return nil, err
	}
	return points, nil
}
