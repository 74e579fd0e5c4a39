package di

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stackture/application/ports"
	"stackture/application/services"
	domainconfig "stackture/domain/config"
	"stackture/infrastructure/config"
	"stackture/infrastructure/locking"
	"stackture/infrastructure/messaging"
	"stackture/infrastructure/messaging/eventbridge"
	"stackture/infrastructure/observability"
	"stackture/infrastructure/persistence/dynamodb"
	"stackture/infrastructure/persistence/memory"
	"stackture/infrastructure/persistence/sqlstore"
	"stackture/interfaces/http/rest"
	"stackture/interfaces/http/rest/handlers"
	"stackture/interfaces/http/rest/middleware"
	"stackture/pkg/auth"
	pkgerrors "stackture/pkg/errors"
)

// Tracing marks that the global tracer provider has been configured
type Tracing struct{}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}

// ProvideDomainConfig seeds the holder the config watcher writes to
func ProvideDomainConfig(cfg *config.Config) *domainconfig.Holder {
	return domainconfig.NewHolder(cfg.Domain)
}

// ProvideTracing installs the tracer provider and returns its shutdown
func ProvideTracing(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Tracing, func(), error) {
	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.EnableTracing,
		ServiceName: "stackture",
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
	}, logger)
	if err != nil {
		return Tracing{}, nil, err
	}
	cleanup := func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}
	return Tracing{}, cleanup, nil
}

// MemoryDatabaseURL selects the process-local store. Its data is lost on
// restart, so it only suits local runs and demos.
const MemoryDatabaseURL = "memory://"

// ProvideStore opens the store named by DATABASE_URL
func ProvideStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.Store, func(), error) {
	if cfg.DatabaseURL == MemoryDatabaseURL {
		logger.Warn("Using in-memory store, data will not survive a restart")
		return memory.NewStore(), func() {}, nil
	}

	store, err := sqlstore.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}
	return store, cleanup, nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideWorkspaceLocker picks the in-process or the DynamoDB lease backend
func ProvideWorkspaceLocker(cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) ports.WorkspaceLocker {
	if cfg.LockBackend == "dynamodb" {
		logger.Info("Using DynamoDB workspace locks", zap.String("table", cfg.LockTable))
		return dynamodb.NewDistributedLock(client, cfg.LockTable, cfg.LockTTL, cfg.LockTTL, logger)
	}
	return locking.NewLocalLocker()
}

// ProvideEventPublisher publishes to EventBridge behind a circuit breaker,
// or to the log when events are disabled
func ProvideEventPublisher(cfg *config.Config, client *awseventbridge.Client, logger *zap.Logger) ports.EventPublisher {
	if !cfg.EventsEnabled {
		return messaging.NewLogPublisher(logger)
	}
	return messaging.NewBreakerPublisher(
		eventbridge.NewPublisher(client, cfg.EventBusName, logger),
		messaging.DefaultBreakerConfig(),
		logger,
	)
}

// ProvideMetrics creates the Prometheus collector
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector()
}

// ProvideOperationMetrics exposes the collector to the engine
func ProvideOperationMetrics(c *observability.Collector) ports.OperationMetrics {
	return c
}

// ProvideTransactionBoundary creates the unit-of-work runner
func ProvideTransactionBoundary(store ports.Store, locker ports.WorkspaceLocker, logger *zap.Logger) *services.TransactionBoundary {
	return services.NewTransactionBoundary(store, locker, logger)
}

// ProvideNodeEngine creates the operation engine. Tracing is taken so the
// engine's tracer is resolved after the provider is installed.
func ProvideNodeEngine(
	store ports.Store,
	boundary *services.TransactionBoundary,
	holder *domainconfig.Holder,
	publisher ports.EventPublisher,
	metrics ports.OperationMetrics,
	logger *zap.Logger,
	_ Tracing,
) *services.NodeEngine {
	return services.NewNodeEngine(store, boundary, holder, publisher, metrics, logger)
}

// ProvideWorkspaceService creates the workspace service
func ProvideWorkspaceService(boundary *services.TransactionBoundary, holder *domainconfig.Holder, logger *zap.Logger) *services.WorkspaceService {
	return services.NewWorkspaceService(boundary, holder, logger)
}

// ProvideErrorHandler creates the HTTP error renderer
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideAuthConfig builds the caller identification settings
func ProvideAuthConfig(cfg *config.Config, isLambda IsLambda) (middleware.AuthConfig, error) {
	authCfg := middleware.AuthConfig{
		DefaultUser:           "local",
		TrustGateway:          bool(isLambda),
		IPRequestsPerMinute:   100,
		UserRequestsPerMinute: 200,
	}
	if cfg.JWTSecret != "" {
		validator, err := auth.NewJWTValidator(cfg.JWTSecret, cfg.JWTIssuer)
		if err != nil {
			return middleware.AuthConfig{}, err
		}
		authCfg.Validator = validator
	}
	return authCfg, nil
}

// IsLambda reports whether the process runs inside AWS Lambda
type IsLambda bool

// ProvideRouter assembles handlers and middleware
func ProvideRouter(
	cfg *config.Config,
	engine *services.NodeEngine,
	workspaces *services.WorkspaceService,
	store ports.Store,
	collector *observability.Collector,
	errs *pkgerrors.ErrorHandler,
	authCfg middleware.AuthConfig,
	logger *zap.Logger,
) *rest.Router {
	var metrics rest.MetricsCollector
	if cfg.EnableMetrics {
		metrics = collector
	}
	return rest.NewRouter(
		handlers.NewNodeHandler(engine, workspaces, errs, logger),
		handlers.NewWorkspaceHandler(workspaces, engine, errs, logger),
		store,
		metrics,
		errs,
		rest.RouterConfig{
			EnableCORS:     cfg.EnableCORS,
			AllowedOrigins: splitList(getOrigins(cfg)),
			Auth:           authCfg,
		},
		logger,
	)
}

func getOrigins(cfg *config.Config) string {
	if cfg.IsProduction() {
		return ""
	}
	return "http://localhost:3000,http://localhost:5173"
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
