package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dmorgan81/imageedit/internal/config"
	"github.com/dmorgan81/imageedit/internal/handler"
	"github.com/dmorgan81/imageedit/internal/inject"
	"github.com/dmorgan81/imageedit/internal/log"
	"github.com/samber/do"
)

func main() {
	logger := log.New(os.Stderr, log.ParseLevel(os.Getenv("LOG_LEVEL")))
	ctx := log.NewContext(context.Background(), logger)
	injector := inject.SetupFromEnv(ctx)

	// Bad configuration should fail the cold start, not the first request.
	if _, err := do.Invoke[config.Config](injector); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	h := do.MustInvoke[*handler.Handler](injector)
	lambda.StartWithOptions(h.Handle, lambda.WithContext(ctx), lambda.WithEnableSIGTERM(func() {
		if err := injector.Shutdown(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}))
}
