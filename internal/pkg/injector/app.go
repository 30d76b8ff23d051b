package injector

import (
	"context"
	"errors"

	"github.com/lk2023060901/file-catalog/internal/conf"
	"github.com/lk2023060901/file-catalog/internal/pkg/logger"
	"github.com/lk2023060901/file-catalog/internal/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// relay 跨实例转发变更通知的后台任务，仅 redis 缓存模式下存在
type relay interface {
	Run(ctx context.Context) error
}

// App encapsulates all application dependencies
type App struct {
	Config     *conf.Config
	Logger     *logger.Logger
	HTTPServer *server.HTTPServer
	relay      relay
}

func newApp(config *conf.Config, log *logger.Logger, httpServer *server.HTTPServer, r relay) *App {
	return &App{
		Config:     config,
		Logger:     log,
		HTTPServer: httpServer,
		relay:      r,
	}
}

// Run serves until ctx is cancelled or a component fails, then shuts the HTTP server down
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.relay != nil {
		g.Go(func() error {
			err := a.relay.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(a.HTTPServer.Start)

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.HTTPServer.Stop(shutdownCtx); err != nil {
			a.Logger.Error("HTTP server forced to shutdown", zap.Error(err))
			return err
		}
		return nil
	})

	return g.Wait()
}
