package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"syscall"

	"github.com/bassista/labasica/internal/api/middleware"
	"github.com/bassista/labasica/internal/api/route"
	"github.com/bassista/labasica/internal/app"
	"github.com/bassista/labasica/internal/config"
	"github.com/bassista/labasica/internal/logger"
	"github.com/enrichman/httpgrace"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the WebSocket relay and the sync loops",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cfg *config.Config) error {
	log := logger.WithComponent("main")
	log.Infof("App will run on port: %d", cfg.Server.Port)
	log.Infof("storage backend: %s, broadcast channel: %s", cfg.Data.StoreBackend, cfg.Sync.Channel)

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	if err := a.StartWatchers(); err != nil {
		return err
	}

	gin.SetMode(cfg.Misc.GinMode)
	gin.DefaultWriter = logger.Logger.Writer()
	gin.DefaultErrorWriter = logger.Logger.Writer()

	srv := createGraceHttpServer(a.BaseCtx, "main-server", cfg.Server, newEngine(a))
	if err := srv.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newEngine(a *app.App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(middleware.CORSMiddleware(a.Config.Server.CORSAllowedOrigins))
	r.Use(gin.Recovery())
	r.Use(middleware.HoneybadgerMiddleware(a.Config.Misc.HoneybadgerAPIKey, a.Config.Misc.Env))
	route.SetupRoutes(r, a)
	return r
}

func createGraceHttpServer(ctx context.Context, name string, serverConfig config.ServerConfig, r *gin.Engine) *httpgrace.Server {
	slogLogger := slog.New(slog.NewTextHandler(logger.Logger.Writer(), nil))

	srv := httpgrace.NewServer(r,
		httpgrace.WithTimeout(serverConfig.ShutDownTimeout),
		httpgrace.WithSignals(syscall.SIGTERM, syscall.SIGINT),
		httpgrace.WithLogger(slogLogger),
		httpgrace.WithBeforeShutdown(func() {
			logger.WithComponent("http").Infof("Shutting down %s server....", name)
		}),
		httpgrace.WithServerOptions(
			httpgrace.WithReadTimeout(serverConfig.ReadTimeout),
			httpgrace.WithWriteTimeout(serverConfig.WriteTimeout),
			httpgrace.WithIdleTimeout(serverConfig.IdleTimeout),
			func(srv *http.Server) {
				srv.BaseContext = func(_ net.Listener) context.Context {
					return ctx
				}
			},
			func(srv *http.Server) {
				srv.ErrorLog = log.New(logger.Logger.Writer(), fmt.Sprintf("[%s] ", name), log.LstdFlags)
			},
		),
	)
	return srv
}
