// Package api serves the risk, MEV and settlement operations over HTTP.
package api

import (
	"context"

	apiDI "github.com/fd1az/arbguard/business/api/di"
	"github.com/fd1az/arbguard/business/api/rest"
	riskDI "github.com/fd1az/arbguard/business/risk/di"
	settlementDI "github.com/fd1az/arbguard/business/settlement/di"
	"github.com/fd1az/arbguard/internal/config"
	"github.com/fd1az/arbguard/internal/di"
	"github.com/fd1az/arbguard/internal/logger"
	"github.com/fd1az/arbguard/internal/monolith"
)

// Module implements the api bounded context. It must start after the
// risk and settlement modules.
type Module struct{}

// RegisterServices registers the handler and server with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, apiDI.Handler, func(sr di.ServiceRegistry) *rest.Handler {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		return rest.NewHandler(
			riskDI.GetAssessor(sr),
			settlementDI.GetMEVAssessor(sr),
			settlementDI.GetEngine(sr),
			cfg.Risk.CallTimeout,
			log,
		)
	})

	di.RegisterToken(c, apiDI.Server, func(sr di.ServiceRegistry) *rest.Server {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		return rest.NewServer(rest.ServerConfig{
			Port:         cfg.HTTP.Port,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		}, rest.NewRouter(apiDI.GetHandler(sr), log), log)
	})

	return nil
}

// Startup starts serving and registers the server for graceful shutdown.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	server := apiDI.GetServer(mono.Services())
	if err := server.Start(); err != nil {
		return err
	}
	mono.OnClose(server)

	mono.Logger().Info(ctx, "api module started",
		"port", mono.Config().HTTP.Port,
		"call_timeout", mono.Config().Risk.CallTimeout)
	return nil
}
