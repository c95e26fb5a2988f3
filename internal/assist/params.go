package assist

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// RunParameters параметры конкретного вызова сегментации, специфичные для семейства
type RunParameters interface {
	Kind() Kind
	// Values возвращает параметры в виде, пригодном для передачи в рантайм
	Values() map[string]float64
}

// Sam2Parameters параметры предсказателя SAM2
type Sam2Parameters struct {
	MaskThreshold   float64 `json:"mask_threshold"`
	MaxHoleArea     float64 `json:"max_hole_area"`
	MaxSprinkleArea float64 `json:"max_sprinkle_area"`
}

func (Sam2Parameters) Kind() Kind { return KindSam2 }

func (p Sam2Parameters) Values() map[string]float64 {
	return map[string]float64{
		"mask_threshold":    p.MaskThreshold,
		"max_hole_area":     p.MaxHoleArea,
		"max_sprinkle_area": p.MaxSprinkleArea,
	}
}

// ZimParameters у ZIM нет настраиваемых параметров запуска
type ZimParameters struct{}

func (ZimParameters) Kind() Kind { return KindZim }

func (ZimParameters) Values() map[string]float64 { return map[string]float64{} }

// DefaultParameters возвращает параметры по умолчанию для семейства
func DefaultParameters(kind Kind) RunParameters {
	if kind == KindZim {
		return ZimParameters{}
	}
	return Sam2Parameters{}
}

// ParseParameters разбирает параметры запуска для семейства
func ParseParameters(kind Kind, payload map[string]any) (RunParameters, error) {
	switch kind {
	case KindZim:
		if len(payload) > 0 {
			key := sortedKeys(payload)[0]
			return nil, &ConfigValidationError{Field: "parameters." + key, Reason: "ZIM accepts no run parameters"}
		}
		return ZimParameters{}, nil
	case KindSam2:
		var p Sam2Parameters
		for _, key := range sortedKeys(payload) {
			v, err := toFloat(payload[key])
			if err != nil {
				return nil, &ConfigValidationError{Field: "parameters." + key, Reason: err.Error()}
			}
			switch key {
			case "mask_threshold", "threshold":
				p.MaskThreshold = v
			case "max_hole_area", "maxhole":
				if v < 0 {
					return nil, &ConfigValidationError{Field: "parameters." + key, Reason: "must not be negative"}
				}
				p.MaxHoleArea = v
			case "max_sprinkle_area", "maxsprinkle":
				if v < 0 {
					return nil, &ConfigValidationError{Field: "parameters." + key, Reason: "must not be negative"}
				}
				p.MaxSprinkleArea = v
			default:
				return nil, &ConfigValidationError{Field: "parameters." + key, Reason: "unknown SAM2 parameter"}
			}
		}
		return p, nil
	}
	return nil, &ConfigValidationError{Field: "assistant_type", Reason: fmt.Sprintf("unknown backend kind %q", kind)}
}

func toFloat(raw any) (float64, error) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", n.String())
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", n)
		}
		v = f
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("must be finite")
	}
	return v, nil
}
