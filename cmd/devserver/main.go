package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/dmorgan81/imageedit/internal/audit"
	"github.com/dmorgan81/imageedit/internal/config"
	"github.com/dmorgan81/imageedit/internal/edit"
	"github.com/dmorgan81/imageedit/internal/image"
	"github.com/dmorgan81/imageedit/internal/log"
	"github.com/dmorgan81/imageedit/internal/store"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const (
	defaultAddr   = ":8080"
	defaultDBPath = "./data/audit.db"
)

func main() {
	logger := log.New(os.Stderr, log.ParseLevel(os.Getenv("LOG_LEVEL")))
	ctx := log.NewContext(context.Background(), logger)

	cfg, err := config.Load(os.Getenv)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}

	if cfg.CORSOrigin == "*" {
		logger.Warn("CORS allows any origin; set CORS_ORIGIN to restrict it")
	}

	audits, err := audit.NewSQLiteStore(getEnv("AUDIT_DB_PATH", defaultDBPath))
	if err != nil {
		logger.Error("opening audit store", "error", err)
		os.Exit(1)
	}
	defer audits.Close()

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		logger.Error("loading aws config", "error", err)
		os.Exit(1)
	}
	generator := &image.TitanGenerator{
		Client:  bedrockruntime.NewFromConfig(awsCfg),
		ModelID: cfg.ModelID,
	}

	var svcOpts []edit.Option
	if dir := os.Getenv("OUTPUT_DIR"); dir != "" {
		svcOpts = append(svcOpts, edit.WithUploader(&store.FileUploader{Dir: dir}))
	}
	svc := edit.New(cfg, generator, audits, svcOpts...)

	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.InferenceTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    4*cfg.MaxImageBytes + 1<<20,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "OPTIONS,POST,GET",
	}))
	app.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(ctx)
		return c.Next()
	})
	setupRoutes(app, svc, audits)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutting down")
		if err := app.Shutdown(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	addr := getEnv("ADDR", defaultAddr)
	logger.Info("listening", "addr", addr, "model_id", cfg.ModelID)
	if err := app.Listen(addr); err != nil {
		logger.Error("listen", "error", err)
	}
	svc.Wait()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
