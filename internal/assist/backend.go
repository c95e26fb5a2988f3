package assist

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"segment-assist/internal/client"
	"segment-assist/pkg/models"

	"github.com/sirupsen/logrus"
)

// Point точка-подсказка переднего плана в пиксельных координатах
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Masks многоканальная маска того же размера, что и входное изображение.
// Семантика каналов зависит от бэкенда.
type Masks struct {
	Width    int
	Height   int
	Channels []*image.Gray
	Scores   []float64
}

// Backend загруженная модель сегментации и код для её запуска
type Backend interface {
	Kind() Kind
	IsLoaded() bool
	Device() Device
	// EndToEndSegmentation строит контекст изображения и предсказывает маски.
	// Все точки считаются точками переднего плана.
	EndToEndSegmentation(ctx context.Context, img *RGBImage, points []Point, params RunParameters) (*Masks, error)
	// Close освобождает память устройства, занятую моделью
	Close() error
}

// Deps внешние зависимости бэкендов
type Deps struct {
	Runtime          client.Runtime
	Probes           []DeviceProbe
	Logger           logrus.FieldLogger
	LoadTimeout      time.Duration
	InferenceTimeout time.Duration
}

// Factory строит бэкенд для конфигурации своего семейства
type Factory func(ctx context.Context, cfg BackendConfig, deps Deps) (Backend, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[Kind]Factory{
		KindSam2: newSam2Backend,
		KindZim:  newZimBackend,
	}
)

// RegisterFactory регистрирует фабрику для нового семейства бэкендов
func RegisterFactory(kind Kind, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("segmentation backend factory for %q already registered", kind))
	}
	if factory == nil {
		panic(fmt.Sprintf("nil segmentation backend factory for %q", kind))
	}
	factories[kind] = factory
}

// NewBackend строит бэкенд по конфигурации через реестр фабрик
func NewBackend(ctx context.Context, cfg BackendConfig, deps Deps) (Backend, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.Kind()]
	factoriesMu.RUnlock()
	if !ok {
		return nil, &ConfigValidationError{Field: "assistant_type", Reason: fmt.Sprintf("no backend registered for %q", cfg.Kind())}
	}
	return factory(ctx, cfg, deps)
}

// runtimeBackend общая часть бэкендов, исполняемых во внешнем модельном рантайме
type runtimeBackend struct {
	kind             Kind
	device           Device
	runtime          client.Runtime
	logger           logrus.FieldLogger
	loadTimeout      time.Duration
	inferenceTimeout time.Duration
	postprocess      func(*image.Gray)

	// mu сериализует инференс и выгрузку одного экземпляра модели
	mu     sync.Mutex
	loaded atomic.Bool
	handle string
}

func newRuntimeBackend(kind Kind, device string, deps Deps) *runtimeBackend {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	probes := deps.Probes
	if probes == nil {
		probes = DefaultProbes()
	}
	return &runtimeBackend{
		kind:             kind,
		device:           ResolveDevice(device, probes),
		runtime:          deps.Runtime,
		logger:           logger.WithField("backend_kind", string(kind)),
		loadTimeout:      deps.LoadTimeout,
		inferenceTimeout: deps.InferenceTimeout,
	}
}

func (b *runtimeBackend) Kind() Kind { return b.kind }

func (b *runtimeBackend) IsLoaded() bool { return b.loaded.Load() }

func (b *runtimeBackend) Device() Device { return b.device }

func (b *runtimeBackend) load(ctx context.Context, request *models.RuntimeLoadRequest) error {
	if b.runtime == nil {
		return &ModelLoadError{Kind: b.kind, Err: fmt.Errorf("model runtime is not configured")}
	}

	ctx, cancel := withTimeout(ctx, b.loadTimeout)
	defer cancel()

	started := time.Now()
	resp, err := b.runtime.Load(ctx, request)
	if err != nil {
		return &ModelLoadError{Kind: b.kind, Err: err}
	}

	b.mu.Lock()
	b.handle = resp.Handle
	b.mu.Unlock()
	b.loaded.Store(true)

	b.logger.WithFields(logrus.Fields{
		"device":   string(b.device),
		"duration": time.Since(started).String(),
	}).Infof("Модель %s загружена", b.kind.DisplayName())
	return nil
}

func (b *runtimeBackend) segment(ctx context.Context, img *RGBImage, points []Point, params map[string]float64) (*Masks, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.loaded.Load() {
		return nil, ErrBackendNotLoaded
	}

	// Копия защищает данные вызывающего от изменений внутри бэкенда
	frame := img.Clone()
	encoded, err := client.EncodePNG(frame)
	if err != nil {
		return nil, &InferenceError{Kind: b.kind, Err: err}
	}

	coords := make([][2]float64, len(points))
	labels := make([]int, len(points))
	for i, p := range points {
		coords[i] = [2]float64{p.X, p.Y}
		labels[i] = 1
	}

	ctx, cancel := withTimeout(ctx, b.inferenceTimeout)
	defer cancel()

	resp, err := b.runtime.Predict(ctx, &models.RuntimePredictRequest{
		Handle:          b.handle,
		Image:           encoded,
		Width:           frame.Width,
		Height:          frame.Height,
		Points:          coords,
		Labels:          labels,
		MultimaskOutput: true,
		Parameters:      params,
	})
	if err != nil {
		return nil, &InferenceError{Kind: b.kind, Err: err}
	}
	if len(resp.Masks) == 0 {
		return nil, nil
	}

	masks := &Masks{Width: frame.Width, Height: frame.Height, Scores: resp.Scores}
	for i, raw := range resp.Masks {
		channel, err := client.DecodeMask(raw)
		if err != nil {
			return nil, &InferenceError{Kind: b.kind, Err: fmt.Errorf("mask channel %d: %w", i, err)}
		}
		if channel.Rect.Dx() != frame.Width || channel.Rect.Dy() != frame.Height {
			return nil, &InferenceError{Kind: b.kind, Err: fmt.Errorf("mask channel %d is %dx%d, image is %dx%d",
				i, channel.Rect.Dx(), channel.Rect.Dy(), frame.Width, frame.Height)}
		}
		if b.postprocess != nil {
			b.postprocess(channel)
		}
		masks.Channels = append(masks.Channels, channel)
	}
	return masks, nil
}

// Close выгружает модель из рантайма; ждёт завершения текущего инференса
func (b *runtimeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.loaded.Load() {
		return nil
	}
	b.loaded.Store(false)
	handle := b.handle
	b.handle = ""

	ctx, cancel := withTimeout(context.Background(), b.loadTimeout)
	defer cancel()
	if err := b.runtime.Unload(ctx, handle); err != nil {
		b.logger.WithError(err).Warn("Не удалось выгрузить модель из рантайма")
		return fmt.Errorf("failed to unload %s model: %w", b.kind.DisplayName(), err)
	}
	b.logger.Infof("Модель %s выгружена", b.kind.DisplayName())
	return nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func isRegularFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return info.Mode().IsRegular()
}

func isDirectory(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = os.ReadDir(path)
	return err == nil
}
