package assist

import "time"

// Исходы сегментации для наблюдателя
const (
	OutcomeSuccess  = "success"
	OutcomeDisabled = "disabled"
	OutcomeError    = "error"
)

// Observer получает события кэша и оркестратора (метрики)
type Observer interface {
	CacheHit(kind Kind)
	CacheMiss(kind Kind)
	CacheEviction(kind Kind)
	BackendLoaded(kind Kind, loaded bool, elapsed time.Duration)
	Segmentation(kind Kind, outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) CacheHit(Kind)                            {}
func (nopObserver) CacheMiss(Kind)                           {}
func (nopObserver) CacheEviction(Kind)                       {}
func (nopObserver) BackendLoaded(Kind, bool, time.Duration)  {}
func (nopObserver) Segmentation(Kind, string, time.Duration) {}
