package upload

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/hearthware/applicall/internal/resilience"
)

// maxAnalysisTokens bounds the length of a single vision analysis.
const maxAnalysisTokens = 1000

// Analyzer describes an appliance photo for diagnosis.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mediaType, applianceType, issue string) (string, error)
}

// VisionClient implements [Analyzer] with an OpenAI vision-capable chat
// model. A circuit breaker keeps a failing API from stalling uploads.
type VisionClient struct {
	client  oai.Client
	model   string
	breaker *resilience.Breaker
}

var _ Analyzer = (*VisionClient)(nil)

// NewVisionClient constructs a [VisionClient] for the given model.
func NewVisionClient(apiKey, model string) (*VisionClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("vision: api key must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("vision: model must not be empty")
	}
	return &VisionClient{
		client:  oai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		breaker: resilience.New(resilience.Config{Name: "vision"}),
	}, nil
}

// Analyze implements [Analyzer].
func (v *VisionClient) Analyze(ctx context.Context, image []byte, mediaType, applianceType, issue string) (string, error) {
	dataURL := "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(image)

	params := oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(v.model),
		MaxCompletionTokens: param.NewOpt(int64(maxAnalysisTokens)),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
				oai.TextContentPart(visionPrompt(applianceType, issue)),
				oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	}

	var analysis string
	err := v.breaker.Do(func() error {
		resp, err := v.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return fmt.Errorf("vision: chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("vision: empty choices in response")
		}
		analysis = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return analysis, nil
}

// visionPrompt builds the analysis instruction sent alongside the image.
func visionPrompt(applianceType, issue string) string {
	intro := "You are an expert appliance technician analyzing an image."
	if applianceType != "" {
		intro += " The customer reports this is a " + applianceType + "."
	}
	if issue != "" {
		intro += " The reported issue is: " + issue
	}
	return intro + "\n\nPlease analyze this image and provide:\n" +
		"1. Confirmation of the appliance type (or identification if not provided)\n" +
		"2. Any visible issues, damage, or abnormalities\n" +
		"3. Specific observations that could help with diagnosis\n" +
		"4. Recommendations for the technician or customer\n\n" +
		"Be specific and technical where appropriate, but explain in terms a homeowner can understand."
}

// mediaTypeFor maps a file extension to the MIME type embedded in the image
// data URL. Unknown extensions fall back to JPEG.
func mediaTypeFor(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
