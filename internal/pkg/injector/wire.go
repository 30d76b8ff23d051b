//go:build wireinject
// +build wireinject

package injector

import (
	"github.com/google/wire"
	"github.com/lk2023060901/file-catalog/internal/conf"
	"github.com/lk2023060901/file-catalog/internal/data"
	"github.com/lk2023060901/file-catalog/internal/pkg/logger"
	"github.com/lk2023060901/file-catalog/internal/server"
)

// ProviderSet is the Wire provider set for all dependencies
var ProviderSet = wire.NewSet(
	// Data layer
	data.NewData,

	// Catalog adapters
	catalogProviderSet,

	// Use cases and services
	useCaseProviderSet,

	// Servers
	serverProviderSet,
)

var catalogProviderSet = wire.NewSet(
	provideCatalogOptions,
	provideCatalogRepo,
	provideBlobStore,
	provideResultCache,
	provideInvalidationBus,
	provideRelay,
)

var useCaseProviderSet = wire.NewSet(
	provideCatalogUseCase,
	provideViewRegistry,
	provideHub,
	provideCatalogService,
)

var serverProviderSet = wire.NewSet(
	provideHealthChecks,
	server.NewHTTPServer,
)

// InitializeApp initializes the application with Wire
func InitializeApp(config *conf.Config, log *logger.Logger) (*App, func(), error) {
	wire.Build(ProviderSet, newApp)
	return nil, nil, nil
}
