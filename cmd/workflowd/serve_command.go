package main

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/workflow-service/internal/api/http"
	"github.com/spec-kit/workflow-service/internal/api/http/handlers"
	"github.com/spec-kit/workflow-service/internal/auth"
	"github.com/spec-kit/workflow-service/internal/service"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var withSweep bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the aging sweep and notification delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			deps := rt.workflowDependencies()
			queries := service.NewQueryService(deps)
			permissions := auth.NewPermissionChecker(rt.router)
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

			app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
			httptransport.RegisterMiddlewares(app, logger, rt.metrics, cfg.App.RequestTimeout())
			httptransport.RegisterRoutes(app, httptransport.RouteConfig{
				Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
					"postgres": rt.postgres,
					"redis":    rt.redis,
				}),
				WorkItems:      handlers.NewWorkItemsHandler(service.NewWorkflowService(deps), queries, permissions),
				Queues:         handlers.NewQueuesHandler(queries, permissions),
				AuthMiddleware: auth.NewAuthMiddleware(tokens),
				Metrics:        rt.metrics,
			})

			// Background work outlives the signal so Stop can drain it.
			background := context.WithoutCancel(cmd.Context())
			go rt.notifications.Run(background)
			defer rt.notifications.Stop()
			if withSweep {
				sweep := rt.agingSweep()
				go sweep.Run(background)
				defer sweep.Stop()
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
				errCh <- app.Listen(cfg.App.Addr())
			}()

			select {
			case <-cmd.Context().Done():
				logger.Info("shutting down")
			case err := <-errCh:
				return err
			}
			return app.ShutdownWithTimeout(shutdownTimeout)
		},
	}
	cmd.Flags().BoolVar(&withSweep, "sweep", true, "Run the aging sweep in this process")
	return cmd
}
