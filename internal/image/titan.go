package image

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/dmorgan81/imageedit/internal/log"
	"github.com/samber/do"
	"github.com/samber/lo"
)

const (
	maxSeed         = 2147483646
	defaultCFGScale = 8.0
	defaultQuality  = "standard"
)

var ErrNoImages = errors.New("model returned no images")

type InvokeModelAPI interface {
	InvokeModel(context.Context, *bedrockruntime.InvokeModelInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type TitanGenerator struct {
	Client  InvokeModelAPI
	ModelID string
	Seed    func() int
}

func NewTitanGenerator(i *do.Injector) (Generator, error) {
	return &TitanGenerator{
		Client:  do.MustInvoke[*bedrockruntime.Client](i),
		ModelID: do.MustInvokeNamed[string](i, "model_id"),
	}, nil
}

type paintingParams struct {
	Text            string `json:"text"`
	Image           string `json:"image"`
	MaskImage       string `json:"maskImage,omitempty"`
	MaskPrompt      string `json:"maskPrompt,omitempty"`
	OutPaintingMode string `json:"outPaintingMode,omitempty"`
}

type generationConfig struct {
	NumberOfImages int     `json:"numberOfImages"`
	Quality        string  `json:"quality"`
	CFGScale       float64 `json:"cfgScale"`
	Seed           int     `json:"seed"`
}

type titanRequest struct {
	TaskType              string           `json:"taskType"`
	InPaintingParams      *paintingParams  `json:"inPaintingParams,omitempty"`
	OutPaintingParams     *paintingParams  `json:"outPaintingParams,omitempty"`
	ImageGenerationConfig generationConfig `json:"imageGenerationConfig"`
}

type titanResponse struct {
	Images []string `json:"images"`
	Error  *string  `json:"error"`
}

func (g *TitanGenerator) body(params Params) ([]byte, error) {
	paint := &paintingParams{
		Text:       params.Prompt,
		Image:      params.Image,
		MaskImage:  params.Mask,
		MaskPrompt: lo.Ternary(params.Mask == "", params.MaskPrompt, ""),
	}

	req := titanRequest{
		TaskType: params.Task,
		ImageGenerationConfig: generationConfig{
			NumberOfImages: lo.Ternary(params.NumberOfImages > 0, params.NumberOfImages, 1),
			Quality:        lo.Ternary(params.Quality != "", params.Quality, defaultQuality),
			CFGScale:       lo.Ternary(params.CFGScale > 0, params.CFGScale, defaultCFGScale),
			Seed:           g.seed(params.Seed),
		},
	}

	switch params.Task {
	case TaskInpainting:
		req.InPaintingParams = paint
	case TaskOutpainting:
		paint.OutPaintingMode = lo.Ternary(params.OutpaintingMode != "", params.OutpaintingMode, OutpaintingDefault)
		req.OutPaintingParams = paint
	default:
		return nil, fmt.Errorf("unsupported task type %q", params.Task)
	}
	return json.Marshal(req)
}

func (g *TitanGenerator) seed(fixed *int) int {
	if fixed != nil {
		return lo.Clamp(*fixed, 0, maxSeed)
	}
	if g.Seed != nil {
		return g.Seed()
	}
	return rand.IntN(maxSeed + 1)
}

func (g *TitanGenerator) Generate(ctx context.Context, params Params) ([]string, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("titan").With("model", g.ModelID, "task", params.Task)

	body, err := g.body(params)
	if err != nil {
		return nil, err
	}

	log.Info("invoking model", "request_bytes", len(body))
	out, err := g.Client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.ModelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("invoke model: %w", err)
	}

	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	if resp.Error != nil && *resp.Error != "" {
		return nil, fmt.Errorf("model error: %s", *resp.Error)
	}
	if len(resp.Images) == 0 {
		return nil, ErrNoImages
	}

	log.Info("received images", "count", len(resp.Images))
	return resp.Images, nil
}
