package assist

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"segment-assist/internal/client"
	"segment-assist/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 7, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// squareMask маска width×height с закрашенным прямоугольником [x0..x1]×[y0..y1]
func squareMask(width, height, x0, y0, x1, y1 int, value uint8) *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, width, height))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			mask.SetGray(x, y, color.Gray{Y: value})
		}
	}
	return mask
}

// stubBackend бэкенд с заранее заданным результатом
type stubBackend struct {
	kind   Kind
	loaded atomic.Bool
	masks  *Masks
	err    error

	calls  atomic.Int32
	closed atomic.Int32
}

func newStubBackend(kind Kind, loaded bool) *stubBackend {
	b := &stubBackend{kind: kind}
	b.loaded.Store(loaded)
	return b
}

func (b *stubBackend) Kind() Kind     { return b.kind }
func (b *stubBackend) IsLoaded() bool { return b.loaded.Load() }
func (b *stubBackend) Device() Device { return DeviceCPU }

func (b *stubBackend) EndToEndSegmentation(_ context.Context, _ *RGBImage, _ []Point, _ RunParameters) (*Masks, error) {
	b.calls.Add(1)
	if !b.loaded.Load() {
		return nil, ErrBackendNotLoaded
	}
	return b.masks, b.err
}

func (b *stubBackend) Close() error {
	b.closed.Add(1)
	b.loaded.Store(false)
	return nil
}

// staticSource всегда возвращает один и тот же бэкенд
type staticSource struct {
	backend Backend
	err     error
	calls   atomic.Int32
}

func (s *staticSource) GetOrCreate(context.Context, BackendConfig) (Backend, error) {
	s.calls.Add(1)
	return s.backend, s.err
}

// sequenceSource выдает бэкенды по очереди, последний повторяется
type sequenceSource struct {
	backends []Backend
	calls    atomic.Int32
}

func (s *sequenceSource) GetOrCreate(context.Context, BackendConfig) (Backend, error) {
	i := int(s.calls.Add(1)) - 1
	if i >= len(s.backends) {
		i = len(s.backends) - 1
	}
	return s.backends[i], nil
}

// fakeRuntime рантайм в памяти, записывающий запросы
type fakeRuntime struct {
	mu         sync.Mutex
	loadErr    error
	predictErr error
	masks      []*image.Gray
	loads      []models.RuntimeLoadRequest
	predicts   []models.RuntimePredictRequest
	unloaded   []string
}

var _ client.Runtime = (*fakeRuntime)(nil)

func (r *fakeRuntime) Load(_ context.Context, request *models.RuntimeLoadRequest) (*models.RuntimeLoadResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = append(r.loads, *request)
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return &models.RuntimeLoadResponse{Status: "success", Handle: "handle-" + request.Family, Device: request.Device}, nil
}

func (r *fakeRuntime) Predict(_ context.Context, request *models.RuntimePredictRequest) (*models.RuntimePredictResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicts = append(r.predicts, *request)
	if r.predictErr != nil {
		return nil, r.predictErr
	}
	resp := &models.RuntimePredictResponse{Status: "success", Width: request.Width, Height: request.Height}
	for _, m := range r.masks {
		encoded, err := client.EncodePNG(m)
		if err != nil {
			return nil, err
		}
		resp.Masks = append(resp.Masks, encoded)
		resp.Scores = append(resp.Scores, 0.9)
	}
	return resp, nil
}

func (r *fakeRuntime) Unload(_ context.Context, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unloaded = append(r.unloaded, handle)
	return nil
}

func (r *fakeRuntime) CheckHealth(context.Context) (*models.HealthResponse, error) {
	return &models.HealthResponse{Status: "healthy"}, nil
}
