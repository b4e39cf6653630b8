package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"library-sync/core/loader"
	"library-sync/core/logger"
	"library-sync/core/middleware/auth"
	"library-sync/core/middleware/rayid"
	"library-sync/core/scheduler"

	"library-sync/feature/backup"
	"library-sync/feature/integrity"
	"library-sync/feature/library"
	"library-sync/feature/replication"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "library-sync/docs/swagger"
)

// @title Library Sync API
// @version 1.0
// @description Offline-first media library with replication to a remote backend.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the library server",
	Long:  `Starts the HTTP server, initializes all enabled features and, when configured, starts replication and scheduled jobs.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load configuration, logger and stores
		a, err := newApp(true)
		if err != nil {
			log.Fatalf("Failed to initialize: %v", err)
		}
		defer a.close()
		logg := a.logger
		cfg := a.cfg
		zap.ReplaceGlobals(logg)

		// 2. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
			BodyLimit:             cfg.Server.BodyLimit(),
		})

		// 3. Register Features
		mgr := loader.NewManager()
		mgr.Register(library.NewFeature(a.libraryService()))
		mgr.Register(backup.NewFeature(a.backupService()))
		mgr.Register(replication.NewFeature(a.controller, logg))
		mgr.Register(integrity.NewFeature(a.integrityService()))

		// Middleware Registration
		// 1. RayID (Must be first to trace everything)
		app.Use(rayid.New())

		// 2. Request logging with the ray id
		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// 3. Public endpoints
		app.Get("/swagger/*", swagger.HandlerDefault)
		app.Get("/metrics", a.metrics.Handler())

		// 4. Auth protects everything registered after it
		app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

		if err := mgr.LoadAll(app); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		// 5. Scheduled jobs
		sched := scheduler.New(logg, 5*time.Minute)
		if a.controller != nil && cfg.Sync.Schedule != "" && cfg.Sync.UserID != "" {
			if err := sched.Add("sync", cfg.Sync.Schedule, a.controller.TriggerSync); err != nil {
				logg.Fatal("Failed to schedule sync", zap.Error(err))
			}
		}
		if a.client != nil && cfg.Backup.Schedule != "" {
			backups := a.backupService()
			err := sched.Add("snapshot", cfg.Backup.Schedule, func(ctx context.Context) error {
				_, err := backups.Snapshot(ctx, cfg.Sync.LibraryID)
				return err
			})
			if err != nil {
				logg.Fatal("Failed to schedule snapshots", zap.Error(err))
			}
		}
		sched.Start()

		// 6. Replication
		if a.controller != nil && cfg.Sync.AutoStart {
			scope := cfg.Sync.DefaultScope()
			go func() {
				if _, err := a.controller.Start(context.Background(), scope); err != nil {
					logg.Warn("Initial sync failed, retrying in background", zap.String("scope", scope.String()), zap.Error(err))
				}
			}()
		}

		// 7. Start Server
		go func() {
			logg.Info("Starting server", zap.String("port", cfg.Server.Port), zap.Int("features", len(mgr.Features())))
			if err := app.Listen(":" + cfg.Server.Port); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 8. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		sched.Stop(ctx)
		if a.controller != nil {
			if err := a.controller.ForcePushPending(ctx); err != nil {
				logg.Warn("Failed to push pending operations", zap.Error(err))
			}
		}
		_ = app.ShutdownWithContext(ctx)
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
