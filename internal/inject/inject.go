package inject

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dmorgan81/imageedit/internal/audit"
	"github.com/dmorgan81/imageedit/internal/config"
	"github.com/dmorgan81/imageedit/internal/edit"
	"github.com/dmorgan81/imageedit/internal/handler"
	"github.com/dmorgan81/imageedit/internal/image"
	"github.com/dmorgan81/imageedit/internal/log"
	"github.com/dmorgan81/imageedit/internal/param"
	"github.com/dmorgan81/imageedit/internal/store"
	"github.com/samber/do"
)

// Setup registers every service lazily. AWS clients are built on first use.
func Setup(ctx context.Context, getenv func(string) string) *do.Injector {
	log := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
	})

	do.Provide[config.Config](injector, func(i *do.Injector) (config.Config, error) {
		cfg, err := config.Load(getenv)
		if err != nil {
			return config.Config{}, err
		}
		if path := getenv("CORS_ORIGIN_PARAM"); path != "" {
			origin, err := param.Resolve(ctx, do.MustInvoke[param.Fetcher](i), getenv("CORS_ORIGIN"), path)
			if err != nil {
				return config.Config{}, fmt.Errorf("resolve cors origin: %w", err)
			}
			if origin != "" {
				cfg.CORSOrigin = origin
			}
		}
		if cfg.CORSOrigin == "*" {
			log.Warn("CORS allows any origin; set CORS_ORIGIN or CORS_ORIGIN_PARAM to restrict it", "require_auth", cfg.RequireAuth)
		}
		return cfg, nil
	})

	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		var opts []func(*awsconfig.LoadOptions) error
		if region := getenv("AWS_REGION"); region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
		return awsconfig.LoadDefaultConfig(ctx, opts...)
	})
	do.Provide[*ssm.Client](injector, func(i *do.Injector) (*ssm.Client, error) {
		return ssm.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*bedrockruntime.Client](injector, func(i *do.Injector) (*bedrockruntime.Client, error) {
		return bedrockruntime.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*dynamodb.Client](injector, func(i *do.Injector) (*dynamodb.Client, error) {
		return dynamodb.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*s3.Client](injector, func(i *do.Injector) (*s3.Client, error) {
		return s3.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})

	do.ProvideNamed[string](injector, "model_id", func(i *do.Injector) (string, error) {
		return do.MustInvoke[config.Config](i).ModelID, nil
	})
	do.ProvideNamed[string](injector, "table_name", func(i *do.Injector) (string, error) {
		return do.MustInvoke[config.Config](i).TableName, nil
	})
	do.ProvideNamed[string](injector, "output_bucket", func(i *do.Injector) (string, error) {
		return do.MustInvoke[config.Config](i).OutputBucket, nil
	})

	do.Provide[param.Fetcher](injector, param.NewParameterStoreFetcher)
	do.Provide[image.Generator](injector, image.NewTitanGenerator)
	do.Provide[audit.Store](injector, audit.NewDynamoDBStore)
	do.Provide[store.Uploader](injector, store.NewS3Uploader)
	do.Provide[*edit.Service](injector, edit.NewService)
	do.Provide[*handler.Handler](injector, handler.NewHandler)

	return injector
}

// SetupFromEnv is Setup reading the process environment.
func SetupFromEnv(ctx context.Context) *do.Injector {
	return Setup(ctx, os.Getenv)
}
