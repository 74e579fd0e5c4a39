//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"stackture/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideDomainConfig,
	ProvideTracing,
	ProvideStore,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideWorkspaceLocker,
	ProvideEventPublisher,
	ProvideMetrics,
	ProvideOperationMetrics,
	ProvideTransactionBoundary,
	ProvideNodeEngine,
	ProvideWorkspaceService,
	ProvideErrorHandler,
	ProvideAuthConfig,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config, isLambda IsLambda) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
