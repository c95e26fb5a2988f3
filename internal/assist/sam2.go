package assist

import (
	"context"
	"fmt"
	"image"

	"segment-assist/pkg/models"
)

// Sam2Backend бэкенд SAM2: промпт-сегментация с пост-обработкой маски
type Sam2Backend struct {
	*runtimeBackend
	config Sam2Config
}

func newSam2Backend(ctx context.Context, cfg BackendConfig, deps Deps) (Backend, error) {
	config, ok := cfg.(Sam2Config)
	if !ok {
		return nil, &ConfigValidationError{Field: "assistant_type", Reason: fmt.Sprintf("expected SAM2 configuration, got %s", cfg.Kind())}
	}

	b := &Sam2Backend{
		runtimeBackend: newRuntimeBackend(KindSam2, config.Device, deps),
		config:         config,
	}
	b.postprocess = binarize

	if !isRegularFile(config.CheckpointPath) {
		b.logger.Warn("Чекпоинт SAM2 не найден, бэкенд отключен")
		b.logger.WithField("checkpoint_path", config.CheckpointPath).Debug("Путь к чекпоинту SAM2")
		return b, nil
	}

	err := b.load(ctx, &models.RuntimeLoadRequest{
		Family:          string(KindSam2),
		Checkpoint:      config.CheckpointPath,
		ModelDefinition: config.ModelDefinition,
		Device:          string(b.device),
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// EndToEndSegmentation предсказывает маски SAM2; параметры прогона передаются рантайму
func (b *Sam2Backend) EndToEndSegmentation(ctx context.Context, img *RGBImage, points []Point, params RunParameters) (*Masks, error) {
	var values map[string]float64
	if params != nil {
		if params.Kind() != KindSam2 {
			return nil, &ConfigValidationError{Field: "parameters", Reason: fmt.Sprintf("%s parameters passed to SAM2", params.Kind().DisplayName())}
		}
		values = params.Values()
	}
	return b.segment(ctx, img, points, values)
}

// binarize приводит маску SAM2 к значениям {0, 1}
func binarize(mask *image.Gray) {
	for i, v := range mask.Pix {
		if v != 0 {
			mask.Pix[i] = 1
		}
	}
}
