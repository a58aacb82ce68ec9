package image

import "context"

const (
	TaskInpainting  = "INPAINTING"
	TaskOutpainting = "OUTPAINTING"

	OutpaintingDefault = "DEFAULT"
	OutpaintingPrecise = "PRECISE"
)

// Params describe one masked edit. Image and Mask are raw base64 without a data-URL prefix.
type Params struct {
	Task            string
	OutpaintingMode string
	Prompt          string
	Image           string
	Mask            string
	MaskPrompt      string
	NumberOfImages  int
	CFGScale        float64
	Quality         string
	Seed            *int
}

// Generator returns the generated images as base64 strings.
type Generator interface {
	Generate(context.Context, Params) ([]string, error)
}
