package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"segment-assist/pkg/models"

	"github.com/sirupsen/logrus"
)

var (
	// ErrLoadRejected рантайм нашёл веса, но не смог их загрузить
	ErrLoadRejected = errors.New("model runtime rejected checkpoint")

	// ErrUnknownHandle рантайм не знает такой загруженной модели
	ErrUnknownHandle = errors.New("unknown model handle")
)

// Runtime интерфейс процесса, исполняющего модели сегментации
type Runtime interface {
	Load(ctx context.Context, request *models.RuntimeLoadRequest) (*models.RuntimeLoadResponse, error)
	Predict(ctx context.Context, request *models.RuntimePredictRequest) (*models.RuntimePredictResponse, error)
	Unload(ctx context.Context, handle string) error
	CheckHealth(ctx context.Context) (*models.HealthResponse, error)
}

// Транспорты рантайма
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// NewRuntime создает клиент рантайма для заданного транспорта
func NewRuntime(transport, target string, timeout time.Duration, logger logrus.FieldLogger) (Runtime, error) {
	switch transport {
	case "", TransportHTTP:
		return NewHTTPRuntimeClient(target, timeout, logger), nil
	case TransportGRPC:
		return NewGRPCRuntimeClient(target, timeout, logger)
	}
	return nil, fmt.Errorf("неподдерживаемый транспорт рантайма %q", transport)
}
