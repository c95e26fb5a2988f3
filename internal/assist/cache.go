package assist

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheCapacity число одновременно загруженных бэкендов по умолчанию
const DefaultCacheCapacity = 128

// BuildFunc строит бэкенд по конфигурации
type BuildFunc func(ctx context.Context, cfg BackendConfig) (Backend, error)

// BackendCache LRU-кэш бэкендов, ключ - значение конфигурации.
// На одну конфигурацию строится не более одного экземпляра одновременно.
type BackendCache struct {
	mu       sync.Mutex
	entries  *orderedmap.OrderedMap[BackendConfig, Backend]
	capacity int
	flights  singleflight.Group
	build    BuildFunc
	observer Observer
	logger   logrus.FieldLogger
}

// CacheOption настройка кэша
type CacheOption func(*BackendCache)

// WithObserver подключает наблюдателя событий кэша
func WithObserver(observer Observer) CacheOption {
	return func(c *BackendCache) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// WithLogger задает логгер кэша
func WithLogger(logger logrus.FieldLogger) CacheOption {
	return func(c *BackendCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewBackendCache создает кэш; capacity <= 0 означает DefaultCacheCapacity
func NewBackendCache(capacity int, build BuildFunc, opts ...CacheOption) *BackendCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	c := &BackendCache{
		entries:  orderedmap.New[BackendConfig, Backend](),
		capacity: capacity,
		build:    build,
		observer: nopObserver{},
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewBackendCacheWithDeps создает кэш, строящий бэкенды через реестр фабрик
func NewBackendCacheWithDeps(capacity int, deps Deps, opts ...CacheOption) *BackendCache {
	var c *BackendCache
	c = NewBackendCache(capacity, func(ctx context.Context, cfg BackendConfig) (Backend, error) {
		started := time.Now()
		backend, err := NewBackend(ctx, cfg, deps)
		if err == nil {
			c.observer.BackendLoaded(cfg.Kind(), backend.IsLoaded(), time.Since(started))
		}
		return backend, err
	}, opts...)
	return c
}

// GetOrCreate возвращает бэкенд для конфигурации, строя его при промахе
func (c *BackendCache) GetOrCreate(ctx context.Context, cfg BackendConfig) (Backend, error) {
	if cfg == nil {
		return nil, &ConfigValidationError{Field: "assistant_type", Reason: "backend configuration is required"}
	}
	cfg = Canonical(cfg)

	if backend, ok := c.lookup(cfg); ok {
		c.observer.CacheHit(cfg.Kind())
		return backend, nil
	}

	v, err, _ := c.flights.Do(cfg.Key(), func() (any, error) {
		if backend, ok := c.lookup(cfg); ok {
			return backend, nil
		}

		c.observer.CacheMiss(cfg.Kind())
		c.logger.WithFields(logrus.Fields{
			"backend_kind": string(cfg.Kind()),
			"config_key":   cfg.Key(),
		}).Debug("Создание бэкенда сегментации")

		// Отмена запроса первого вызывающего не должна прерывать общую загрузку
		backend, err := c.build(context.WithoutCancel(ctx), cfg)
		if err != nil {
			return nil, err
		}
		if backend == nil {
			return nil, errors.New("backend factory returned nil backend")
		}

		c.insert(cfg, backend)
		return backend, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Backend), nil
}

func (c *BackendCache) lookup(cfg BackendConfig) (Backend, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	backend, ok := c.entries.Get(cfg)
	if ok {
		_ = c.entries.MoveToBack(cfg)
	}
	return backend, ok
}

func (c *BackendCache) insert(cfg BackendConfig, backend Backend) {
	c.mu.Lock()
	c.entries.Set(cfg, backend)
	var evicted []*orderedmap.Pair[BackendConfig, Backend]
	for c.entries.Len() > c.capacity {
		oldest := c.entries.Oldest()
		c.entries.Delete(oldest.Key)
		evicted = append(evicted, oldest)
	}
	c.mu.Unlock()

	for _, pair := range evicted {
		c.observer.CacheEviction(pair.Key.Kind())
		c.closeBackend(pair.Key, pair.Value)
	}
}

func (c *BackendCache) closeBackend(cfg BackendConfig, backend Backend) {
	if err := backend.Close(); err != nil {
		c.logger.WithError(err).WithField("backend_kind", string(cfg.Kind())).
			Warn("Ошибка при освобождении бэкенда")
	}
}

// Len возвращает число закэшированных бэкендов
func (c *BackendCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Contains проверяет наличие конфигурации без изменения порядка LRU
func (c *BackendCache) Contains(cfg BackendConfig) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries.Get(Canonical(cfg))
	return ok
}

// Close освобождает все бэкенды
func (c *BackendCache) Close() {
	c.mu.Lock()
	entries := c.entries
	c.entries = orderedmap.New[BackendConfig, Backend]()
	c.mu.Unlock()

	for pair := entries.Oldest(); pair != nil; pair = pair.Next() {
		c.closeBackend(pair.Key, pair.Value)
	}
}
