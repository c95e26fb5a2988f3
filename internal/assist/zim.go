package assist

import (
	"context"
	"fmt"

	"segment-assist/pkg/models"
)

// ZimBackend бэкенд ZIM: маски-матты с диапазоном 0..255
type ZimBackend struct {
	*runtimeBackend
	config ZimConfig
}

func newZimBackend(ctx context.Context, cfg BackendConfig, deps Deps) (Backend, error) {
	config, ok := cfg.(ZimConfig)
	if !ok {
		return nil, &ConfigValidationError{Field: "assistant_type", Reason: fmt.Sprintf("expected ZIM configuration, got %s", cfg.Kind())}
	}

	b := &ZimBackend{
		runtimeBackend: newRuntimeBackend(KindZim, config.Device, deps),
		config:         config,
	}

	if !isDirectory(config.CheckpointDirectory) {
		b.logger.Warn("Каталог чекпоинта ZIM не найден, бэкенд отключен")
		b.logger.WithField("checkpoint_directory", config.CheckpointDirectory).Debug("Путь к чекпоинту ZIM")
		return b, nil
	}

	err := b.load(ctx, &models.RuntimeLoadRequest{
		Family:     string(KindZim),
		Checkpoint: config.CheckpointDirectory,
		Device:     string(b.device),
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// EndToEndSegmentation предсказывает маски ZIM. Параметров у ZIM нет, поэтому
// рантайму ничего не передаётся.
func (b *ZimBackend) EndToEndSegmentation(ctx context.Context, img *RGBImage, points []Point, params RunParameters) (*Masks, error) {
	if params != nil && params.Kind() != KindZim {
		return nil, &ConfigValidationError{Field: "parameters", Reason: fmt.Sprintf("%s parameters passed to ZIM", params.Kind().DisplayName())}
	}
	return b.segment(ctx, img, points, nil)
}
