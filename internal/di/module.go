package di

import (
	"github.com/polkiloo/shiftclose/internal/adapter/settlement"
	"github.com/polkiloo/shiftclose/internal/app"
	"github.com/polkiloo/shiftclose/internal/config"
	"github.com/polkiloo/shiftclose/internal/logger"
	"github.com/polkiloo/shiftclose/internal/pkg/auth"
	"github.com/polkiloo/shiftclose/internal/server/http/handlers"
	"github.com/polkiloo/shiftclose/internal/server/http/router"
	"github.com/polkiloo/shiftclose/internal/storage/postgres"
	"github.com/polkiloo/shiftclose/internal/usecase"
	"go.uber.org/fx"
)

func Module(opts ...fx.Option) fx.Option {
	modules := []fx.Option{
		config.Module,
		logger.Module,
		auth.Module,
		postgres.Module,
		settlement.Module,
		usecase.Module,
		fx.Provide(func(facade *app.ClosingFacade) handlers.ClosingFacade { return facade }),
		router.Module,
		app.Module,
	}
	modules = append(modules, opts...)
	return fx.Options(modules...)
}
