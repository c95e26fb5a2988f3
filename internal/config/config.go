package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"segment-assist/internal/assist"
	"segment-assist/internal/client"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config структура конфигурации приложения
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Runtime  RuntimeConfig
	Models   ModelsConfig
}

// ServerConfig настройки HTTP-сервера
type ServerConfig struct {
	Port           int
	Environment    string
	MaxUploadBytes int64
}

// LoggingConfig настройки логирования
type LoggingConfig struct {
	Level string
}

// DatabaseConfig настройки реестра ассистентов
type DatabaseConfig struct {
	Driver   string // postgres или sqlite
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	Path     string // файл базы для sqlite
}

// RedisConfig настройки кэша результатов; пустой Addr отключает кэш
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	ResultTTL time.Duration
}

// RuntimeConfig настройки процесса модельного рантайма
type RuntimeConfig struct {
	URL       string
	Transport string
	Timeout   time.Duration
}

// ModelsConfig настройки моделей сегментации
type ModelsConfig struct {
	Sam2Checkpoint   string
	Sam2ModelConfig  string
	ZimCheckpoint    string
	Device           string
	Dir              string
	CacheSize        int
	LoadTimeout      time.Duration
	InferenceTimeout time.Duration
}

// Load загружает конфигурацию: .env, затем необязательный YAML-файл, затем переменные окружения.
// Переменные окружения имеют приоритет.
func Load(path string) (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", 8080)
	v.SetDefault("environment", "development")
	v.SetDefault("max_upload_mb", 32)
	v.SetDefault("log_level", "info")

	v.SetDefault("db_driver", "postgres")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_name", "segment_assist")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "postgres123")
	v.SetDefault("db_ssl_mode", "disable")
	v.SetDefault("db_path", "segment_assist.db")

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("result_cache_ttl", 10*time.Minute)

	v.SetDefault("runtime_url", "http://localhost:8000")
	v.SetDefault("runtime_transport", client.TransportHTTP)
	v.SetDefault("runtime_timeout_seconds", 300)

	v.SetDefault("sam2_model_file", "")
	v.SetDefault("sam2_model_config", "")
	v.SetDefault("zim_model_file", "")
	v.SetDefault("device", "")
	v.SetDefault("models_dir", "/models")
	v.SetDefault("backend_cache_size", assist.DefaultCacheCapacity)
	v.SetDefault("load_timeout_seconds", 300)
	v.SetDefault("inference_timeout_seconds", 120)
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	// Конфигурация сервера
	cfg.Server.Port = v.GetInt("server_port")
	cfg.Server.Environment = v.GetString("environment")
	cfg.Server.MaxUploadBytes = v.GetInt64("max_upload_mb") << 20

	cfg.Logging.Level = v.GetString("log_level")

	// Конфигурация базы данных
	cfg.Database = DatabaseConfig{
		Driver:   strings.ToLower(v.GetString("db_driver")),
		Host:     v.GetString("db_host"),
		Port:     v.GetString("db_port"),
		Name:     v.GetString("db_name"),
		User:     v.GetString("db_user"),
		Password: v.GetString("db_password"),
		SSLMode:  v.GetString("db_ssl_mode"),
		Path:     v.GetString("db_path"),
	}

	cfg.Redis = RedisConfig{
		Addr:      v.GetString("redis_addr"),
		Password:  v.GetString("redis_password"),
		DB:        v.GetInt("redis_db"),
		ResultTTL: v.GetDuration("result_cache_ttl"),
	}

	// Конфигурация модельного рантайма
	cfg.Runtime = RuntimeConfig{
		URL:       v.GetString("runtime_url"),
		Transport: strings.ToLower(v.GetString("runtime_transport")),
		Timeout:   time.Duration(v.GetInt("runtime_timeout_seconds")) * time.Second,
	}

	cfg.Models = ModelsConfig{
		Sam2Checkpoint:   v.GetString("sam2_model_file"),
		Sam2ModelConfig:  v.GetString("sam2_model_config"),
		ZimCheckpoint:    v.GetString("zim_model_file"),
		Device:           v.GetString("device"),
		Dir:              v.GetString("models_dir"),
		CacheSize:        v.GetInt("backend_cache_size"),
		LoadTimeout:      time.Duration(v.GetInt("load_timeout_seconds")) * time.Second,
		InferenceTimeout: time.Duration(v.GetInt("inference_timeout_seconds")) * time.Second,
	}

	return cfg
}

// Validate проверяет значения, которые нельзя исправить значением по умолчанию
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT must be in 1..65535, got %d", c.Server.Port))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver))
	}
	switch c.Runtime.Transport {
	case client.TransportHTTP, client.TransportGRPC:
	default:
		errs = append(errs, fmt.Errorf("RUNTIME_TRANSPORT must be http or grpc, got %q", c.Runtime.Transport))
	}
	if _, err := assist.ParseDevice(c.Models.Device); err != nil {
		errs = append(errs, fmt.Errorf("DEVICE: %w", err))
	}
	if c.Models.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("BACKEND_CACHE_SIZE must be positive, got %d", c.Models.CacheSize))
	}
	return errors.Join(errs...)
}

// IsProduction сообщает, запущен ли сервис в production-окружении
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// ModelDefaults возвращает значения по умолчанию для конфигураций бэкендов
func (c *Config) ModelDefaults() assist.Defaults {
	return assist.Defaults{
		Sam2: assist.Sam2Config{
			CheckpointPath:  c.Models.Sam2Checkpoint,
			ModelDefinition: c.Models.Sam2ModelConfig,
		},
		Zim: assist.ZimConfig{
			CheckpointDirectory: c.Models.ZimCheckpoint,
		},
		Device: c.Models.Device,
	}
}
