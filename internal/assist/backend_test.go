package assist

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"segment-assist/internal/client"
	"segment-assist/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeps(rt client.Runtime) Deps {
	return Deps{Runtime: rt, Probes: []DeviceProbe{}, Logger: quietLogger()}
}

func writeCheckpoint(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sam2_hiera_large.pt")
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o644))
	return path
}

func TestSam2MissingCheckpointIsDisabled(t *testing.T) {
	rt := &fakeRuntime{}
	b, err := NewBackend(context.Background(), Sam2Config{CheckpointPath: "/nonexistent/sam2.pt"}, testDeps(rt))
	require.NoError(t, err)

	assert.False(t, b.IsLoaded())
	assert.Equal(t, KindSam2, b.Kind())
	assert.Empty(t, rt.loads)

	_, err = b.EndToEndSegmentation(context.Background(), NewRGBImage(4, 4), []Point{{X: 1, Y: 1}}, nil)
	assert.ErrorIs(t, err, ErrBackendNotLoaded)
	assert.NoError(t, b.Close())
}

func TestSam2CheckpointMustBeAFile(t *testing.T) {
	rt := &fakeRuntime{}
	b, err := NewBackend(context.Background(), Sam2Config{CheckpointPath: t.TempDir()}, testDeps(rt))
	require.NoError(t, err)
	assert.False(t, b.IsLoaded())
	assert.Empty(t, rt.loads)
}

func TestZimCheckpointMustBeADirectory(t *testing.T) {
	rt := &fakeRuntime{}
	b, err := NewBackend(context.Background(), ZimConfig{CheckpointDirectory: writeCheckpoint(t)}, testDeps(rt))
	require.NoError(t, err)
	assert.False(t, b.IsLoaded())
	assert.Empty(t, rt.loads)
}

func TestSam2LoadFailureIsModelLoadError(t *testing.T) {
	rt := &fakeRuntime{loadErr: client.ErrLoadRejected}
	_, err := NewBackend(context.Background(), Sam2Config{CheckpointPath: writeCheckpoint(t)}, testDeps(rt))

	var loadErr *ModelLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, KindSam2, loadErr.Kind)
	assert.ErrorIs(t, err, client.ErrLoadRejected)
}

func TestBackendWithoutRuntimeFailsToLoad(t *testing.T) {
	_, err := NewBackend(context.Background(), ZimConfig{CheckpointDirectory: t.TempDir()}, Deps{Logger: quietLogger()})
	var loadErr *ModelLoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestSam2Segmentation(t *testing.T) {
	ckpt := writeCheckpoint(t)
	rt := &fakeRuntime{masks: []*image.Gray{
		squareMask(6, 4, 0, 0, 5, 3, 0),
		squareMask(6, 4, 1, 1, 3, 2, 255),
	}}
	cfg := Sam2Config{CheckpointPath: ckpt, ModelDefinition: "sam2_hiera_l.yaml", Device: "cpu"}

	b, err := NewBackend(context.Background(), cfg, testDeps(rt))
	require.NoError(t, err)
	require.True(t, b.IsLoaded())
	assert.Equal(t, DeviceCPU, b.Device())

	require.Len(t, rt.loads, 1)
	assert.Equal(t, "sam2", rt.loads[0].Family)
	assert.Equal(t, ckpt, rt.loads[0].Checkpoint)
	assert.Equal(t, "sam2_hiera_l.yaml", rt.loads[0].ModelDefinition)
	assert.Equal(t, "cpu", rt.loads[0].Device)

	img := NewRGBImage(6, 4)
	points := []Point{{X: 2, Y: 1}, {X: 3, Y: 2}}
	params := Sam2Parameters{MaskThreshold: 0.4, MaxHoleArea: 5}

	masks, err := b.EndToEndSegmentation(context.Background(), img, points, params)
	require.NoError(t, err)
	require.Len(t, masks.Channels, 2)
	assert.Equal(t, uint8(1), masks.Channels[1].GrayAt(2, 1).Y)
	assert.Equal(t, uint8(0), masks.Channels[1].GrayAt(0, 0).Y)

	require.Len(t, rt.predicts, 1)
	req := rt.predicts[0]
	assert.Equal(t, "handle-sam2", req.Handle)
	assert.Equal(t, [][2]float64{{2, 1}, {3, 2}}, req.Points)
	assert.Equal(t, []int{1, 1}, req.Labels)
	assert.True(t, req.MultimaskOutput)
	assert.Equal(t, 0.4, req.Parameters["mask_threshold"])
	assert.Equal(t, 5.0, req.Parameters["max_hole_area"])

	require.NoError(t, b.Close())
	assert.False(t, b.IsLoaded())
	assert.Equal(t, []string{"handle-sam2"}, rt.unloaded)

	// Повторное закрытие ничего не делает
	require.NoError(t, b.Close())
	assert.Len(t, rt.unloaded, 1)
}

func TestZimSegmentationKeepsMatteValues(t *testing.T) {
	rt := &fakeRuntime{masks: []*image.Gray{
		squareMask(4, 4, 0, 0, 3, 3, 0),
		squareMask(4, 4, 1, 1, 2, 2, 200),
	}}
	b, err := NewBackend(context.Background(), ZimConfig{CheckpointDirectory: t.TempDir()}, testDeps(rt))
	require.NoError(t, err)
	require.True(t, b.IsLoaded())

	masks, err := b.EndToEndSegmentation(context.Background(), NewRGBImage(4, 4), []Point{{X: 1, Y: 1}}, ZimParameters{})
	require.NoError(t, err)
	assert.Equal(t, uint8(200), masks.Channels[1].GrayAt(1, 1).Y)
	require.Len(t, rt.predicts, 1)
	assert.Empty(t, rt.predicts[0].Parameters)
}

func TestSegmentationRejectsForeignParameters(t *testing.T) {
	rt := &fakeRuntime{}
	b, err := NewBackend(context.Background(), ZimConfig{CheckpointDirectory: t.TempDir()}, testDeps(rt))
	require.NoError(t, err)

	_, err = b.EndToEndSegmentation(context.Background(), NewRGBImage(2, 2), []Point{{X: 0, Y: 0}}, Sam2Parameters{})
	var target *ConfigValidationError
	assert.ErrorAs(t, err, &target)
	assert.Empty(t, rt.predicts)
}

func TestInferenceFailureIsInferenceError(t *testing.T) {
	rt := &fakeRuntime{predictErr: errors.New("CUDA out of memory")}
	b, err := NewBackend(context.Background(), Sam2Config{CheckpointPath: writeCheckpoint(t)}, testDeps(rt))
	require.NoError(t, err)

	_, err = b.EndToEndSegmentation(context.Background(), NewRGBImage(2, 2), []Point{{X: 0, Y: 0}}, nil)
	var inferenceErr *InferenceError
	require.ErrorAs(t, err, &inferenceErr)
	assert.Equal(t, KindSam2, inferenceErr.Kind)
}

func TestInferenceRejectsMismatchedMaskSize(t *testing.T) {
	rt := &fakeRuntime{masks: []*image.Gray{squareMask(3, 3, 0, 0, 1, 1, 1)}}
	b, err := NewBackend(context.Background(), Sam2Config{CheckpointPath: writeCheckpoint(t)}, testDeps(rt))
	require.NoError(t, err)

	_, err = b.EndToEndSegmentation(context.Background(), NewRGBImage(5, 5), []Point{{X: 0, Y: 0}}, nil)
	var inferenceErr *InferenceError
	assert.ErrorAs(t, err, &inferenceErr)
}

func TestSegmentationDoesNotAliasCallerImage(t *testing.T) {
	rt := &fakeRuntime{}
	b, err := NewBackend(context.Background(), Sam2Config{CheckpointPath: writeCheckpoint(t)}, testDeps(rt))
	require.NoError(t, err)

	img := NewRGBImage(2, 2)
	img.Pix[0] = 42
	before := append([]uint8(nil), img.Pix...)

	masks, err := b.EndToEndSegmentation(context.Background(), img, []Point{{X: 0, Y: 0}}, nil)
	require.NoError(t, err)
	assert.Nil(t, masks)
	assert.Equal(t, before, img.Pix)
}

// gatedRuntime считает одновременные предсказания и пишет журнал предсказаний и выгрузок
type gatedRuntime struct {
	*fakeRuntime
	delay   time.Duration
	started chan struct{}
	release chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	eventsMu sync.Mutex
	events   []string
}

func (r *gatedRuntime) record(event string) {
	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()
	r.events = append(r.events, event)
}

func (r *gatedRuntime) Predict(ctx context.Context, request *models.RuntimePredictRequest) (*models.RuntimePredictResponse, error) {
	n := r.inFlight.Add(1)
	for {
		current := r.maxInFlight.Load()
		if n <= current || r.maxInFlight.CompareAndSwap(current, n) {
			break
		}
	}
	if r.started != nil {
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
	if r.release != nil {
		<-r.release
	}
	time.Sleep(r.delay)
	r.inFlight.Add(-1)
	r.record("predict")
	return r.fakeRuntime.Predict(ctx, request)
}

func (r *gatedRuntime) Unload(ctx context.Context, handle string) error {
	r.record("unload")
	return r.fakeRuntime.Unload(ctx, handle)
}

func TestInferenceIsSerializedPerBackend(t *testing.T) {
	rt := &gatedRuntime{fakeRuntime: &fakeRuntime{}, delay: 5 * time.Millisecond}
	b, err := NewBackend(context.Background(), Sam2Config{CheckpointPath: writeCheckpoint(t)}, testDeps(rt))
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.EndToEndSegmentation(context.Background(), NewRGBImage(4, 4), []Point{{X: 1, Y: 1}}, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), rt.maxInFlight.Load())
	assert.Len(t, rt.predicts, callers)
}

func TestCloseWaitsForInFlightInference(t *testing.T) {
	rt := &gatedRuntime{
		fakeRuntime: &fakeRuntime{},
		started:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	b, err := NewBackend(context.Background(), ZimConfig{CheckpointDirectory: t.TempDir()}, testDeps(rt))
	require.NoError(t, err)

	segmentDone := make(chan error, 1)
	go func() {
		_, err := b.EndToEndSegmentation(context.Background(), NewRGBImage(4, 4), []Point{{X: 1, Y: 1}}, nil)
		segmentDone <- err
	}()
	<-rt.started

	closeDone := make(chan error, 1)
	go func() { closeDone <- b.Close() }()

	select {
	case <-closeDone:
		t.Fatal("Close returned before the running inference finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(rt.release)
	require.NoError(t, <-segmentDone)
	require.NoError(t, <-closeDone)

	rt.eventsMu.Lock()
	defer rt.eventsMu.Unlock()
	assert.Equal(t, []string{"predict", "unload"}, rt.events)
	assert.False(t, b.IsLoaded())
}

// hangingRuntime блокирует выбранные вызовы до отмены контекста
type hangingRuntime struct {
	*fakeRuntime
	hangLoad    bool
	hangPredict bool
}

func (r *hangingRuntime) Load(ctx context.Context, request *models.RuntimeLoadRequest) (*models.RuntimeLoadResponse, error) {
	if r.hangLoad {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.fakeRuntime.Load(ctx, request)
}

func (r *hangingRuntime) Predict(ctx context.Context, request *models.RuntimePredictRequest) (*models.RuntimePredictResponse, error) {
	if r.hangPredict {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.fakeRuntime.Predict(ctx, request)
}

func TestLoadTimeoutIsModelLoadError(t *testing.T) {
	deps := testDeps(&hangingRuntime{fakeRuntime: &fakeRuntime{}, hangLoad: true})
	deps.LoadTimeout = 20 * time.Millisecond

	_, err := NewBackend(context.Background(), Sam2Config{CheckpointPath: writeCheckpoint(t)}, deps)
	var loadErr *ModelLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, KindSam2, loadErr.Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInferenceTimeoutIsInferenceError(t *testing.T) {
	deps := testDeps(&hangingRuntime{fakeRuntime: &fakeRuntime{}, hangPredict: true})
	deps.InferenceTimeout = 20 * time.Millisecond

	b, err := NewBackend(context.Background(), ZimConfig{CheckpointDirectory: t.TempDir()}, deps)
	require.NoError(t, err)
	require.True(t, b.IsLoaded())

	_, err = b.EndToEndSegmentation(context.Background(), NewRGBImage(4, 4), []Point{{X: 1, Y: 1}}, nil)
	var inferenceErr *InferenceError
	require.ErrorAs(t, err, &inferenceErr)
	assert.Equal(t, KindZim, inferenceErr.Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
