package edit

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	stdimage "image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	"github.com/dmorgan81/imageedit/internal/image"
	"github.com/samber/lo"
)

var qualities = []string{"standard", "premium"}

const (
	maxImagesPerRequest = 5
	minCFGScale         = 1.1
	maxCFGScale         = 10.0
)

// validated carries everything dispatch and audit need once a request is accepted.
type validated struct {
	model     string
	modelID   string
	mode      Mode
	params    image.Params
	imageSize int64
	maskSize  int64
}

func (s *Service) validate(requestID string, req Request) (*validated, error) {
	if strings.TrimSpace(req.Prompt.Text) == "" {
		return nil, validationError(requestID, "prompt.text is required")
	}

	task, ok := modes[req.Prompt.Mode]
	if !ok {
		return nil, validationError(requestID, "unsupported mode %q; supported modes: %s", req.Prompt.Mode, supportedModes)
	}

	model := normalizeModel(req.Model)
	if !lo.Contains(supportedModels, model) {
		return nil, validationError(requestID, "unsupported model %q; supported models: %s", model, strings.Join(supportedModels, ", "))
	}

	if strings.TrimSpace(req.BaseImage) == "" {
		return nil, validationError(requestID, "base_image is required")
	}
	imageB64, imageSize, err := s.decodeImage(req.BaseImage)
	if err != nil {
		return nil, validationError(requestID, "base_image %s", err)
	}

	params := image.Params{
		Task:            task.task,
		OutpaintingMode: task.outpaintingMode,
		Prompt:          req.Prompt.Text,
		Image:           imageB64,
	}
	if err := applyCanvasConfig(&params, req.CanvasConfig); err != nil {
		return nil, validationError(requestID, "canvas_config %s", err)
	}

	var maskSize int64
	switch {
	case strings.TrimSpace(req.Mask) != "":
		params.Mask, maskSize, err = s.decodeImage(req.Mask)
		if err != nil {
			return nil, validationError(requestID, "mask %s", err)
		}
		params.MaskPrompt = ""
	case task.maskPromptOK && params.MaskPrompt != "":
	default:
		return nil, validationError(requestID, "mask is required for mode %s", req.Prompt.Mode)
	}

	return &validated{
		model:     model,
		modelID:   s.cfg.ModelID,
		mode:      req.Prompt.Mode,
		params:    params,
		imageSize: imageSize,
		maskSize:  maskSize,
	}, nil
}

// decodeImage strips any data-URL prefix and checks the payload fully decodes as a PNG or JPEG under the size ceiling.
func (s *Service) decodeImage(encoded string) (string, int64, error) {
	raw := stripDataURL(encoded)
	data, err := decodeBase64(raw)
	if err != nil {
		return "", 0, errors.New("is not valid base64")
	}
	if len(data) == 0 {
		return "", 0, errors.New("is empty")
	}
	if len(data) > s.cfg.MaxImageBytes {
		return "", 0, fmt.Errorf("exceeds the maximum size of %d bytes", s.cfg.MaxImageBytes)
	}
	// Decode the whole image so truncated pixel data is rejected before dispatch.
	if _, _, err := stdimage.Decode(bytes.NewReader(data)); err != nil {
		return "", 0, errors.New("is not a supported image (png or jpeg)")
	}
	return raw, int64(len(data)), nil
}

func stripDataURL(s string) string {
	s = strings.TrimSpace(s)
	if _, after, ok := strings.Cut(s, ","); ok {
		return after
	}
	return s
}

func decodeBase64(s string) ([]byte, error) {
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// decodedSize is the byte length a base64 string decodes to, or an error if it is malformed.
func decodedSize(s string) (int64, error) {
	data, err := decodeBase64(stripDataURL(s))
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func applyCanvasConfig(params *image.Params, canvas map[string]any) error {
	if v, ok := canvas["number_of_images"]; ok {
		n, ok := asInt(v)
		if !ok || n < 1 || n > maxImagesPerRequest {
			return fmt.Errorf("number_of_images must be an integer between 1 and %d", maxImagesPerRequest)
		}
		params.NumberOfImages = n
	}
	if v, ok := canvas["cfg_scale"]; ok {
		f, ok := v.(float64)
		if !ok || f < minCFGScale || f > maxCFGScale {
			return fmt.Errorf("cfg_scale must be a number between %.1f and %.1f", minCFGScale, maxCFGScale)
		}
		params.CFGScale = f
	}
	if v, ok := canvas["quality"]; ok {
		q, ok := v.(string)
		if !ok || !lo.Contains(qualities, q) {
			return fmt.Errorf("quality must be one of %s", strings.Join(qualities, ", "))
		}
		params.Quality = q
	}
	if v, ok := canvas["seed"]; ok {
		n, ok := asInt(v)
		if !ok || n < 0 {
			return errors.New("seed must be a non-negative integer")
		}
		params.Seed = lo.ToPtr(n)
	}
	if v, ok := canvas["mask_prompt"]; ok {
		p, ok := v.(string)
		if !ok {
			return errors.New("mask_prompt must be a string")
		}
		params.MaskPrompt = strings.TrimSpace(p)
	}
	return nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
