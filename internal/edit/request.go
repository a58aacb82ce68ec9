package edit

import (
	"strings"

	"github.com/dmorgan81/imageedit/internal/image"
	"github.com/samber/lo"
)

type Mode string

const (
	ModeInpainting      Mode = "INPAINTING"
	ModeOutpainting     Mode = "OUTPAINTING"
	ModePreciseOutpaint Mode = "precise-outpaint"
)

const DefaultModel = "titan"

type modeTask struct {
	task            string
	outpaintingMode string
	// maskPromptOK allows canvas_config.mask_prompt to stand in for a mask image.
	maskPromptOK bool
}

var modes = map[Mode]modeTask{
	ModeInpainting:      {task: image.TaskInpainting},
	ModeOutpainting:     {task: image.TaskOutpainting, outpaintingMode: image.OutpaintingDefault, maskPromptOK: true},
	ModePreciseOutpaint: {task: image.TaskOutpainting, outpaintingMode: image.OutpaintingPrecise, maskPromptOK: true},
}

var supportedModes = strings.Join([]string{string(ModeInpainting), string(ModeOutpainting), string(ModePreciseOutpaint)}, ", ")

var supportedModels = []string{DefaultModel}

type Prompt struct {
	Text string `json:"text"`
	Mode Mode   `json:"mode"`
}

type Request struct {
	Prompt       Prompt         `json:"prompt"`
	BaseImage    string         `json:"base_image"`
	Mask         string         `json:"mask,omitempty"`
	Model        string         `json:"model,omitempty"`
	CanvasConfig map[string]any `json:"canvas_config,omitempty"`
}

type Response struct {
	Images           []string `json:"images"`
	ModelUsed        string   `json:"model_used"`
	RequestID        string   `json:"request_id"`
	GenerationTimeMS int64    `json:"generation_time_ms"`
}

func normalizeModel(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	return lo.Ternary(model == "", DefaultModel, model)
}
