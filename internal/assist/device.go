package assist

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Device вычислительное устройство, на котором выполняется модель
type Device string

const (
	DeviceAuto Device = "auto"
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
	DeviceMPS  Device = "mps"
)

// ParseDevice проверяет строку устройства: cpu, cuda, cuda:N, mps или auto
func ParseDevice(s string) (Device, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch Device(s) {
	case "", DeviceAuto:
		return DeviceAuto, nil
	case DeviceCPU, DeviceCUDA, DeviceMPS:
		return Device(s), nil
	}
	if idx, ok := strings.CutPrefix(s, "cuda:"); ok {
		if n, err := strconv.Atoi(idx); err == nil && n >= 0 {
			return Device(s), nil
		}
	}
	return "", fmt.Errorf("unsupported device %q (expected cpu, cuda, cuda:N, mps or auto)", s)
}

// DeviceProbe проверяет доступность ускорителя
type DeviceProbe struct {
	Device    Device
	Available func() bool
}

// DefaultProbes возвращает упорядоченный список проверок: CUDA, затем MPS.
// CPU используется, если ни одна проверка не прошла.
func DefaultProbes() []DeviceProbe {
	return []DeviceProbe{
		{Device: DeviceCUDA, Available: cudaAvailable},
		{Device: DeviceMPS, Available: mpsAvailable},
	}
}

// ResolveDevice выбирает устройство: заданное явно или первое доступное из probes
func ResolveDevice(preferred string, probes []DeviceProbe) Device {
	dev, err := ParseDevice(preferred)
	if err == nil && dev != DeviceAuto {
		return dev
	}
	for _, p := range probes {
		if p.Available != nil && p.Available() {
			return p.Device
		}
	}
	return DeviceCPU
}

func cudaAvailable() bool {
	if v, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES"); ok {
		v = strings.TrimSpace(v)
		if v == "" || v == "-1" || strings.EqualFold(v, "none") {
			return false
		}
	}
	matches, err := filepath.Glob("/dev/nvidia[0-9]*")
	return err == nil && len(matches) > 0
}

func mpsAvailable() bool {
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
}
