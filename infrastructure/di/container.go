package di

import (
	"go.uber.org/zap"

	"stackture/application/ports"
	"stackture/application/services"
	domainconfig "stackture/domain/config"
	"stackture/infrastructure/config"
	"stackture/infrastructure/observability"
	"stackture/interfaces/http/rest"
)

// Container holds all application dependencies
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Store      ports.Store
	Domain     *domainconfig.Holder
	Metrics    *observability.Collector
	Engine     *services.NodeEngine
	Workspaces *services.WorkspaceService
	Router     *rest.Router
}
