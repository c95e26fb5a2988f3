package assist

import (
	"fmt"
	"sort"
	"strings"
)

// Kind определяет семейство бэкендов сегментации
type Kind string

const (
	KindSam2 Kind = "sam2"
	KindZim  Kind = "zim"
)

// Kinds возвращает все поддерживаемые семейства в стабильном порядке
func Kinds() []Kind {
	return []Kind{KindSam2, KindZim}
}

// ParseKind проверяет дискриминатор семейства
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindSam2:
		return KindSam2, nil
	case KindZim:
		return KindZim, nil
	}
	return "", &ConfigValidationError{Field: "assistant_type", Reason: fmt.Sprintf("unknown backend kind %q", s)}
}

// DisplayName возвращает имя семейства для сообщений пользователю
func (k Kind) DisplayName() string {
	switch k {
	case KindSam2:
		return "SAM2"
	case KindZim:
		return "ZIM"
	}
	return strings.ToUpper(string(k))
}

// BackendConfig описывает, как построить один экземпляр бэкенда.
// Реализации являются сравнимыми значениями и служат ключом кэша.
type BackendConfig interface {
	Kind() Kind
	// Key возвращает каноническое строковое представление конфигурации
	Key() string
	backendConfig()
}

// Sam2Config конфигурация плотного промптового предсказателя SAM2
type Sam2Config struct {
	CheckpointPath  string `json:"checkpoint_path,omitempty"`
	ModelDefinition string `json:"model_definition,omitempty"`
	Device          string `json:"device,omitempty"`
}

func (Sam2Config) Kind() Kind { return KindSam2 }

func (c Sam2Config) Key() string {
	return fmt.Sprintf("sam2|checkpoint_path=%q|model_definition=%q|device=%q", c.CheckpointPath, c.ModelDefinition, canonicalDevice(c.Device))
}

func (Sam2Config) backendConfig() {}

// ZimConfig конфигурация matting-предсказателя ZIM
type ZimConfig struct {
	CheckpointDirectory string `json:"checkpoint_directory,omitempty"`
	Device              string `json:"device,omitempty"`
}

func (ZimConfig) Kind() Kind { return KindZim }

func (c ZimConfig) Key() string {
	return fmt.Sprintf("zim|checkpoint_directory=%q|device=%q", c.CheckpointDirectory, canonicalDevice(c.Device))
}

func (ZimConfig) backendConfig() {}

// Defaults значения конфигурации из окружения развертывания
type Defaults struct {
	Sam2   Sam2Config
	Zim    ZimConfig
	Device string
}

// DefaultConfig возвращает конфигурацию по умолчанию для семейства
func DefaultConfig(kind Kind, defaults Defaults) (BackendConfig, error) {
	switch kind {
	case KindSam2:
		return WithDefaults(Sam2Config{}, defaults), nil
	case KindZim:
		return WithDefaults(ZimConfig{}, defaults), nil
	}
	return nil, &ConfigValidationError{Field: "assistant_type", Reason: fmt.Sprintf("unknown backend kind %q", kind)}
}

// WithDefaults заполняет незаданные поля значениями по умолчанию
func WithDefaults(cfg BackendConfig, defaults Defaults) BackendConfig {
	switch c := cfg.(type) {
	case Sam2Config:
		if c.CheckpointPath == "" {
			c.CheckpointPath = defaults.Sam2.CheckpointPath
		}
		if c.ModelDefinition == "" {
			c.ModelDefinition = defaults.Sam2.ModelDefinition
		}
		if c.Device == "" {
			c.Device = firstNonEmpty(defaults.Sam2.Device, defaults.Device)
		}
		c.Device = canonicalDevice(c.Device)
		return c
	case ZimConfig:
		if c.CheckpointDirectory == "" {
			c.CheckpointDirectory = defaults.Zim.CheckpointDirectory
		}
		if c.Device == "" {
			c.Device = firstNonEmpty(defaults.Zim.Device, defaults.Device)
		}
		c.Device = canonicalDevice(c.Device)
		return c
	}
	return cfg
}

// Canonical приводит устройство конфигурации к каноническому виду, чтобы
// незаданное устройство и "auto" давали один и тот же ключ кэша
func Canonical(cfg BackendConfig) BackendConfig {
	switch c := cfg.(type) {
	case Sam2Config:
		c.Device = canonicalDevice(c.Device)
		return c
	case ZimConfig:
		c.Device = canonicalDevice(c.Device)
		return c
	}
	return cfg
}

// canonicalDevice пустое значение и "auto" сводятся к "auto"
func canonicalDevice(s string) string {
	dev, err := ParseDevice(s)
	if err != nil {
		return s
	}
	return string(dev)
}

// Синонимы ключей полезной нагрузки
var (
	sam2Fields = map[string]string{
		"checkpoint_path":  "checkpoint_path",
		"ckpt_path":        "checkpoint_path",
		"model_definition": "model_definition",
		"config_file":      "model_definition",
		"device":           "device",
	}
	zimFields = map[string]string{
		"checkpoint_directory": "checkpoint_directory",
		"checkpoint":           "checkpoint_directory",
		"device":               "device",
	}
)

// ParseConfig разбирает нетипизированную полезную нагрузку в конкретный вариант конфигурации
func ParseConfig(kind string, payload map[string]any) (BackendConfig, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}

	fields := sam2Fields
	if k == KindZim {
		fields = zimFields
	}

	values := make(map[string]string, len(payload))
	for _, key := range sortedKeys(payload) {
		raw := payload[key]
		if key == "assistant_type" {
			if s, ok := raw.(string); !ok || Kind(s) != k {
				return nil, &ConfigValidationError{Field: key, Reason: fmt.Sprintf("does not match %q", k)}
			}
			continue
		}

		canonical, ok := fields[key]
		if !ok {
			return nil, &ConfigValidationError{Field: key, Reason: fmt.Sprintf("unknown field for %s", k)}
		}

		var s string
		switch v := raw.(type) {
		case nil:
		case string:
			s = strings.TrimSpace(v)
		default:
			return nil, &ConfigValidationError{Field: key, Reason: fmt.Sprintf("expected string, got %T", raw)}
		}

		if prev, dup := values[canonical]; dup && prev != s {
			return nil, &ConfigValidationError{Field: key, Reason: "conflicts with an alias of the same field"}
		}
		values[canonical] = s
	}

	if dev := values["device"]; dev != "" {
		parsed, err := ParseDevice(dev)
		if err != nil {
			return nil, &ConfigValidationError{Field: "device", Reason: err.Error()}
		}
		values["device"] = string(parsed)
	}
	// Устройство без значения остаётся пустым, чтобы WithDefaults подставил значение окружения

	switch k {
	case KindSam2:
		return Sam2Config{
			CheckpointPath:  values["checkpoint_path"],
			ModelDefinition: values["model_definition"],
			Device:          values["device"],
		}, nil
	default:
		return ZimConfig{
			CheckpointDirectory: values["checkpoint_directory"],
			Device:              values["device"],
		}, nil
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
