package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"segment-assist/internal/assist"
	"segment-assist/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SegmentationService сервис интерактивной сегментации по именованным ассистентам
type SegmentationService struct {
	resolver ConfigResolver
	runner   Runner
	results  ResultCache
	logger   *logrus.Logger
}

// NewSegmentationService создает новый сервис сегментации. results может быть nil.
func NewSegmentationService(resolver ConfigResolver, runner Runner, results ResultCache, logger *logrus.Logger) *SegmentationService {
	return &SegmentationService{
		resolver: resolver,
		runner:   runner,
		results:  results,
		logger:   logger,
	}
}

// Segment находит конфигурацию ассистента и сегментирует объект по точкам
func (s *SegmentationService) Segment(ctx context.Context, input SegmentInput) (*models.SegmentationResult, error) {
	requestID := uuid.NewString()
	log := s.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"assistant":  input.AssistantName,
	})

	cfg, err := s.resolve(ctx, input)
	if err != nil {
		log.Debugf("Не удалось определить конфигурацию ассистента: %v", err)
		return nil, err
	}
	log = log.WithField("backend_kind", string(cfg.Kind()))

	params, err := assist.ParseParameters(cfg.Kind(), input.Parameters)
	if err != nil {
		return nil, err
	}

	var key string
	if s.results != nil {
		key = resultKey(cfg, input.Image, input.Points, params)
		cached, err := s.results.Get(ctx, key)
		if err != nil {
			log.Warnf("Ошибка чтения кэша результатов: %v", err)
		} else if cached != nil {
			log.Debug("Результат сегментации взят из кэша")
			return cached, nil
		}
	}

	result, err := s.runner.Run(ctx, cfg, bytes.NewReader(input.Image), input.Points, params)
	if err != nil {
		return nil, err
	}

	// Результат disabled не кэшируется
	if result.Disabled {
		log.Info(result.Message)
		return result, nil
	}

	if s.results != nil {
		if err := s.results.Set(ctx, key, result); err != nil {
			log.Warnf("Ошибка записи в кэш результатов: %v", err)
		}
	}

	log.Infof("Сегментация завершена: %d контуров", len(result.Segmentation))
	return result, nil
}

func (s *SegmentationService) resolve(ctx context.Context, input SegmentInput) (assist.BackendConfig, error) {
	if input.AssistantName == "" {
		return nil, &assist.ConfigValidationError{Field: "assistant_name", Reason: "is required"}
	}
	if input.Kind == "" {
		return s.resolver.ResolveByName(ctx, input.AssistantName)
	}
	return s.resolver.ResolveConfig(ctx, input.AssistantName, input.Kind)
}

// resultKey ключ кэша: изображение, конфигурация бэкенда, точки и параметры
func resultKey(cfg assist.BackendConfig, image []byte, points []assist.Point, params assist.RunParameters) string {
	h := sha256.New()
	h.Write(image)
	fmt.Fprintf(h, "|%s|", cfg.Key())
	for _, p := range points {
		fmt.Fprintf(h, "%g,%g;", p.X, p.Y)
	}
	values, _ := json.Marshal(params.Values())
	h.Write(values)
	return hex.EncodeToString(h.Sum(nil))
}
