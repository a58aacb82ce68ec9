package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	stdimage "image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/dmorgan81/imageedit/internal/audit"
	"github.com/dmorgan81/imageedit/internal/config"
	"github.com/dmorgan81/imageedit/internal/edit"
	"github.com/dmorgan81/imageedit/internal/image"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	images []string
}

func (g *stubGenerator) Generate(context.Context, image.Params) ([]string, error) {
	return g.images, nil
}

func setupTestApp(t *testing.T) (*fiber.App, *edit.Service, *audit.SQLiteStore) {
	t.Helper()

	audits, err := audit.NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)

	svc := edit.New(config.Default(), &stubGenerator{images: []string{"aW1hZ2U="}}, audits)
	t.Cleanup(func() {
		svc.Wait()
		assert.NoError(t, audits.Close())
	})

	app := fiber.New()
	setupRoutes(app, svc, audits)
	return app, svc, audits
}

func pngBase64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, stdimage.NewRGBA(stdimage.Rect(0, 0, 8, 8))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func post(t *testing.T, app *fiber.App, body string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/image-edit", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealthEndpoint(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["audit_records"])
}

func TestHealthHidesStoreErrors(t *testing.T) {
	app, _, audits := setupTestApp(t)
	require.NoError(t, audits.Close())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "degraded", body["status"])
	assert.NotEmpty(t, body["error_id"])
	assert.NotContains(t, string(data), "sql")
}

func TestImageEditRecordsAudit(t *testing.T) {
	app, svc, audits := setupTestApp(t)

	payload, err := json.Marshal(map[string]any{
		"prompt":     map[string]any{"text": "replace the sky with a sunset", "mode": "INPAINTING"},
		"base_image": pngBase64(t),
		"mask":       pngBase64(t),
	})
	require.NoError(t, err)

	resp, data := post(t, app, string(payload))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	var out edit.Response
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, []string{"aW1hZ2U="}, out.Images)
	assert.Equal(t, "titan", out.ModelUsed)

	svc.Wait()
	n, err := audits.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	get, err := app.Test(httptest.NewRequest(http.MethodGet, "/edits/"+out.RequestID, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, get.StatusCode)

	var rec audit.Record
	require.NoError(t, json.NewDecoder(get.Body).Decode(&rec))
	assert.Equal(t, out.RequestID, rec.ID)
	assert.Equal(t, "INPAINTING", rec.Mode)
	assert.True(t, rec.Success)
	assert.Equal(t, int64(5), rec.OutputSizeBytes)
}

func TestImageEditBadRequests(t *testing.T) {
	app, _, audits := setupTestApp(t)

	for name, tc := range map[string]struct {
		body    string
		message string
	}{
		"empty":        {body: "", message: "Missing body in request"},
		"invalid json": {body: "{", message: "Invalid JSON in request body"},
		"no prompt":    {body: `{"base_image":"aGk="}`, message: "prompt.text is required"},
	} {
		t.Run(name, func(t *testing.T) {
			resp, data := post(t, app, tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body edit.ErrorResponse
			require.NoError(t, json.Unmarshal(data, &body))
			assert.Equal(t, tc.message, body.Message)
			assert.Equal(t, edit.KindValidation, body.ErrorType)
			assert.NotEmpty(t, body.ErrorID)
		})
	}

	n, err := audits.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetEditNotFound(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/edits/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
