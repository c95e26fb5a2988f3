package assist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSam2ConfigEqualityAndHashing(t *testing.T) {
	a := Sam2Config{CheckpointPath: "/m/sam2.pt", ModelDefinition: "sam2_hiera_l.yaml", Device: "cuda:0"}
	b := Sam2Config{CheckpointPath: "/m/sam2.pt", ModelDefinition: "sam2_hiera_l.yaml", Device: "cuda:0"}

	assert.Equal(t, a, b)
	assert.True(t, BackendConfig(a) == BackendConfig(b))
	assert.Equal(t, a.Key(), b.Key())

	index := map[BackendConfig]int{a: 1}
	assert.Equal(t, 1, index[b])

	variants := []Sam2Config{
		{CheckpointPath: "/m/other.pt", ModelDefinition: a.ModelDefinition, Device: a.Device},
		{CheckpointPath: a.CheckpointPath, ModelDefinition: "sam2_hiera_s.yaml", Device: a.Device},
		{CheckpointPath: a.CheckpointPath, ModelDefinition: a.ModelDefinition, Device: "cpu"},
	}
	for _, v := range variants {
		assert.NotEqual(t, a, v)
		assert.NotEqual(t, a.Key(), v.Key())
		_, found := index[v]
		assert.False(t, found)
	}
}

func TestConfigsOfDifferentKindsNeverCollide(t *testing.T) {
	sam := Sam2Config{CheckpointPath: "/m/x", Device: "cpu"}
	zim := ZimConfig{CheckpointDirectory: "/m/x", Device: "cpu"}
	assert.False(t, BackendConfig(sam) == BackendConfig(zim))
	assert.NotEqual(t, sam.Key(), zim.Key())
}

func TestAutoDeviceMatchesUnsetDevice(t *testing.T) {
	explicit, err := ParseConfig("sam2", map[string]any{"checkpoint_path": "/m/sam2.pt", "device": "auto"})
	require.NoError(t, err)
	unset, err := ParseConfig("sam2", map[string]any{"checkpoint_path": "/m/sam2.pt"})
	require.NoError(t, err)

	assert.Equal(t, explicit.Key(), unset.Key())

	noDefaults := Defaults{}
	assert.Equal(t, WithDefaults(explicit, noDefaults), WithDefaults(unset, noDefaults))
	assert.Equal(t, Sam2Config{CheckpointPath: "/m/sam2.pt", Device: "auto"}, WithDefaults(unset, noDefaults))

	// Значение окружения подставляется только для незаданного устройства
	withDevice := Defaults{Device: "cuda"}
	assert.Equal(t, "cuda", WithDefaults(unset, withDevice).(Sam2Config).Device)
	assert.Equal(t, "auto", WithDefaults(explicit, withDevice).(Sam2Config).Device)

	assert.Equal(t, ZimConfig{Device: "auto"}, Canonical(ZimConfig{}))
	assert.Equal(t, ZimConfig{Device: "cpu"}, Canonical(ZimConfig{Device: "cpu"}))
}

func TestKeyIsUnambiguous(t *testing.T) {
	a := Sam2Config{CheckpointPath: `a|model_definition="b"`, ModelDefinition: ""}
	b := Sam2Config{CheckpointPath: "a", ModelDefinition: "b"}
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestParseConfigAliases(t *testing.T) {
	cfg, err := ParseConfig("sam2", map[string]any{
		"ckpt_path":   "/models/sam2/custom/model.pt",
		"config_file": "sam2_hiera_t.yaml",
		"device":      "CUDA:1",
	})
	require.NoError(t, err)
	assert.Equal(t, Sam2Config{
		CheckpointPath:  "/models/sam2/custom/model.pt",
		ModelDefinition: "sam2_hiera_t.yaml",
		Device:          "cuda:1",
	}, cfg)

	cfg, err = ParseConfig("zim", map[string]any{"checkpoint": "/models/zim/custom", "assistant_type": "zim"})
	require.NoError(t, err)
	assert.Equal(t, ZimConfig{CheckpointDirectory: "/models/zim/custom"}, cfg)
}

func TestParseConfigRejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		payload map[string]any
		field   string
	}{
		{"unknown kind", "sam3", nil, "assistant_type"},
		{"unknown field", "sam2", map[string]any{"weights": "/x"}, "weights"},
		{"zim field on sam2", "sam2", map[string]any{"checkpoint_directory": "/x"}, "checkpoint_directory"},
		{"non-string value", "zim", map[string]any{"checkpoint": 42.0}, "checkpoint"},
		{"bad device", "sam2", map[string]any{"device": "tpu"}, "device"},
		{"mismatched type", "sam2", map[string]any{"assistant_type": "zim"}, "assistant_type"},
		{"conflicting aliases", "sam2", map[string]any{"ckpt_path": "/a", "checkpoint_path": "/b"}, "ckpt_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig(tt.kind, tt.payload)
			var target *ConfigValidationError
			require.ErrorAs(t, err, &target)
			assert.Equal(t, tt.field, target.Field)
		})
	}
}

func TestWithDefaultsFillsOnlyUnsetFields(t *testing.T) {
	defaults := Defaults{
		Sam2:   Sam2Config{CheckpointPath: "/models/sam2.pt", ModelDefinition: "sam2_hiera_l.yaml"},
		Zim:    ZimConfig{CheckpointDirectory: "/models/zim"},
		Device: "cpu",
	}

	cfg := WithDefaults(Sam2Config{CheckpointPath: "/custom.pt"}, defaults)
	assert.Equal(t, Sam2Config{CheckpointPath: "/custom.pt", ModelDefinition: "sam2_hiera_l.yaml", Device: "cpu"}, cfg)

	cfg, err := DefaultConfig(KindZim, defaults)
	require.NoError(t, err)
	assert.Equal(t, ZimConfig{CheckpointDirectory: "/models/zim", Device: "cpu"}, cfg)

	cfg = WithDefaults(ZimConfig{Device: "cuda"}, defaults)
	assert.Equal(t, ZimConfig{CheckpointDirectory: "/models/zim", Device: "cuda"}, cfg)
}

func TestParseParameters(t *testing.T) {
	p, err := ParseParameters(KindSam2, map[string]any{"threshold": 0.5, "maxhole": 10.0, "max_sprinkle_area": "3"})
	require.NoError(t, err)
	assert.Equal(t, Sam2Parameters{MaskThreshold: 0.5, MaxHoleArea: 10, MaxSprinkleArea: 3}, p)

	p, err = ParseParameters(KindSam2, nil)
	require.NoError(t, err)
	assert.Equal(t, Sam2Parameters{}, p)

	p, err = ParseParameters(KindZim, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, ZimParameters{}, p)

	for _, bad := range []map[string]any{
		{"maxhole": -1.0},
		{"threshold": "high"},
		{"iterations": 3.0},
		{"threshold": true},
	} {
		_, err := ParseParameters(KindSam2, bad)
		var target *ConfigValidationError
		assert.ErrorAs(t, err, &target, "payload %v", bad)
	}

	_, err = ParseParameters(KindZim, map[string]any{"threshold": 0.5})
	var target *ConfigValidationError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "parameters.threshold", target.Field)
}

func TestResolveDevice(t *testing.T) {
	never := func() bool { return false }
	always := func() bool { return true }

	assert.Equal(t, Device("cuda:1"), ResolveDevice("cuda:1", nil))
	assert.Equal(t, DeviceCPU, ResolveDevice("cpu", []DeviceProbe{{Device: DeviceCUDA, Available: always}}))
	assert.Equal(t, DeviceCUDA, ResolveDevice("", []DeviceProbe{{Device: DeviceCUDA, Available: always}}))
	assert.Equal(t, DeviceMPS, ResolveDevice("auto", []DeviceProbe{
		{Device: DeviceCUDA, Available: never},
		{Device: DeviceMPS, Available: always},
	}))
	assert.Equal(t, DeviceCPU, ResolveDevice("", []DeviceProbe{{Device: DeviceCUDA, Available: never}}))
	assert.Equal(t, DeviceCPU, ResolveDevice("", nil))
}

func TestParseDevice(t *testing.T) {
	for _, ok := range []string{"", "auto", "cpu", "CUDA", "cuda:0", "cuda:12", "mps"} {
		_, err := ParseDevice(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"gpu", "cuda:", "cuda:-1", "cuda:x", "tpu"} {
		_, err := ParseDevice(bad)
		assert.Error(t, err, bad)
	}
}
