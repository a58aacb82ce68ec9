package inject

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dmorgan81/imageedit/internal/config"
	"github.com/dmorgan81/imageedit/internal/edit"
	"github.com/dmorgan81/imageedit/internal/handler"
	"github.com/dmorgan81/imageedit/internal/log"
	"github.com/dmorgan81/imageedit/internal/param"
	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	values map[string]string
	calls  int
}

func (f *fakeFetcher) Fetch(_ context.Context, path string) (string, error) {
	f.calls++
	v, ok := f.values[path]
	if !ok {
		return "", errors.New("parameter not found")
	}
	return v, nil
}

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestSetupResolvesCORSOriginParam(t *testing.T) {
	injector := Setup(context.Background(), env(map[string]string{
		"AWS_REGION":        "us-east-1",
		"CORS_ORIGIN_PARAM": "/imageedit/cors-origin",
		"MODEL_ID":          "amazon.titan-image-generator-v2:0",
	}))
	fetcher := &fakeFetcher{values: map[string]string{"/imageedit/cors-origin": "https://edit.example.com"}}
	do.OverrideValue[param.Fetcher](injector, fetcher)

	cfg, err := do.Invoke[config.Config](injector)
	require.NoError(t, err)
	assert.Equal(t, "https://edit.example.com", cfg.CORSOrigin)
	assert.Equal(t, 1, fetcher.calls)

	modelID, err := do.InvokeNamed[string](injector, "model_id")
	require.NoError(t, err)
	assert.Equal(t, "amazon.titan-image-generator-v2:0", modelID)
}

func TestSetupExplicitOriginSkipsParameterStore(t *testing.T) {
	injector := Setup(context.Background(), env(map[string]string{
		"AWS_REGION":        "us-east-1",
		"CORS_ORIGIN":       "https://app.example.com",
		"CORS_ORIGIN_PARAM": "/imageedit/cors-origin",
	}))
	fetcher := &fakeFetcher{}
	do.OverrideValue[param.Fetcher](injector, fetcher)

	cfg, err := do.Invoke[config.Config](injector)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", cfg.CORSOrigin)
	assert.Zero(t, fetcher.calls)
}

func TestSetupWarnsOnWildcardOrigin(t *testing.T) {
	var buf bytes.Buffer
	ctx := log.NewContext(context.Background(), log.New(&buf, slog.LevelInfo))
	injector := Setup(ctx, env(map[string]string{"REQUIRE_AUTH": "true"}))

	cfg, err := do.Invoke[config.Config](injector)
	require.NoError(t, err)
	assert.Equal(t, "*", cfg.CORSOrigin)
	assert.Contains(t, buf.String(), "CORS allows any origin")
	assert.Contains(t, buf.String(), `"require_auth":true`)
}

func TestSetupInvalidConfig(t *testing.T) {
	injector := Setup(context.Background(), env(map[string]string{"MAX_IMAGE_BYTES": "lots"}))

	_, err := do.Invoke[config.Config](injector)
	assert.ErrorContains(t, err, "MAX_IMAGE_BYTES")
}

func TestSetupBuildsHandler(t *testing.T) {
	injector := Setup(context.Background(), env(map[string]string{
		"AWS_REGION":    "us-west-2",
		"TABLE_NAME":    "edits",
		"OUTPUT_BUCKET": "edit-outputs",
	}))
	do.OverrideValue[param.Fetcher](injector, &fakeFetcher{})

	h, err := do.Invoke[*handler.Handler](injector)
	require.NoError(t, err)
	assert.NotNil(t, h)

	table, err := do.InvokeNamed[string](injector, "table_name")
	require.NoError(t, err)
	assert.Equal(t, "edits", table)

	_, err = do.Invoke[*edit.Service](injector)
	require.NoError(t, err)
	require.NoError(t, injector.Shutdown())
}
