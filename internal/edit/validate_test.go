package edit

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripDataURL(t *testing.T) {
	assert.Equal(t, "aGVsbG8=", stripDataURL("data:image/png;base64,aGVsbG8="))
	assert.Equal(t, "aGVsbG8=", stripDataURL(" aGVsbG8= "))
}

func TestDecodedSize(t *testing.T) {
	n, err := decodedSize("aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = decodedSize("aGVsbG8")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	_, err = decodedSize("!!")
	assert.Error(t, err)
}

func TestAsInt(t *testing.T) {
	n, ok := asInt(3.0)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = asInt(3.2)
	assert.False(t, ok)
	_, ok = asInt("3")
	assert.False(t, ok)
	_, ok = asInt(1e12)
	assert.False(t, ok)
}

func TestNormalizeModel(t *testing.T) {
	assert.Equal(t, "titan", normalizeModel(""))
	assert.Equal(t, "titan", normalizeModel(" Titan "))
	assert.Equal(t, "sdxl", normalizeModel("SDXL"))
}

func TestErrorSurface(t *testing.T) {
	cause := errors.New("internal detail")
	err := &Error{Kind: KindTimeout, RequestID: "req-9", Message: "image generation timed out after 25s", Err: cause}

	assert.Equal(t, "TimeoutError[req-9]: image generation timed out after 25s", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 504, err.StatusCode())
	assert.Equal(t, 500, (&Error{Kind: KindLogging}).StatusCode())

	wrapped := fmt.Errorf("handler: %w", err)
	var got *Error
	require.ErrorAs(t, wrapped, &got)
	assert.Equal(t, "req-9", got.RequestID)
}

func TestClassify(t *testing.T) {
	svc := New(testConfig(), nil, nil)

	assert.Equal(t, KindTimeout, svc.classify("r", fmt.Errorf("x: %w", context.DeadlineExceeded)).Kind)
	assert.Equal(t, KindInference, svc.classify("r", context.Canceled).Kind)
	assert.Equal(t, KindInference, svc.classify("r", errors.New("boom")).Kind)
	assert.Equal(t, "image generation failed", svc.classify("r", errors.New("boom")).Message)
}
