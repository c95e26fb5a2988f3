package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"segment-assist/pkg/models"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const runtimeService = "/segassist.runtime.v1.Runtime/"

// jsonCodec кодирует сообщения рантайма в JSON вместо protobuf
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type unloadRequest struct {
	Handle string `json:"handle"`
}

type unloadResponse struct {
	Status string `json:"status"`
}

// GRPCRuntimeClient клиент для модельного рантайма по gRPC
type GRPCRuntimeClient struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	timeout time.Duration
	logger  logrus.FieldLogger
}

// NewGRPCRuntimeClient создает gRPC-клиент; соединение устанавливается лениво
func NewGRPCRuntimeClient(target string, timeout time.Duration, logger logrus.FieldLogger, opts ...grpc.DialOption) (*GRPCRuntimeClient, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	}, opts...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания gRPC клиента: %w", err)
	}

	return &GRPCRuntimeClient{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Load загружает веса модели в рантайм
func (c *GRPCRuntimeClient) Load(ctx context.Context, request *models.RuntimeLoadRequest) (*models.RuntimeLoadResponse, error) {
	var response models.RuntimeLoadResponse
	if err := c.invoke(ctx, "Load", request, &response); err != nil {
		return nil, err
	}
	if response.Handle == "" {
		return nil, fmt.Errorf("рантайм вернул пустой дескриптор модели: %s", response.Message)
	}
	return &response, nil
}

// Predict выполняет предсказание масок по точкам
func (c *GRPCRuntimeClient) Predict(ctx context.Context, request *models.RuntimePredictRequest) (*models.RuntimePredictResponse, error) {
	var response models.RuntimePredictResponse
	if err := c.invoke(ctx, "Predict", request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Unload выгружает модель и освобождает память устройства
func (c *GRPCRuntimeClient) Unload(ctx context.Context, handle string) error {
	return c.invoke(ctx, "Unload", &unloadRequest{Handle: handle}, &unloadResponse{})
}

// CheckHealth проверяет состояние рантайма через стандартный gRPC health-сервис
func (c *GRPCRuntimeClient) CheckHealth(ctx context.Context) (*models.HealthResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{}, grpc.CallContentSubtype("proto"))
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки состояния рантайма: %w", err)
	}

	health := &models.HealthResponse{Status: "unhealthy"}
	if resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
		health.Status = "healthy"
	}
	return health, nil
}

// Close закрывает соединение
func (c *GRPCRuntimeClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCRuntimeClient) invoke(ctx context.Context, method string, in, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	c.logger.WithField("method", method).Debug("Вызов gRPC метода рантайма")
	err := c.conn.Invoke(ctx, runtimeService+method, in, out)
	if err == nil {
		return nil
	}

	switch status.Code(err) {
	case codes.InvalidArgument, codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", ErrLoadRejected, status.Convert(err).Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrUnknownHandle, status.Convert(err).Message())
	}
	return fmt.Errorf("ошибка вызова %s в рантайме: %w", method, err)
}

func (c *GRPCRuntimeClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
