package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
)

const defaultOpenAIModel = openai.ChatModelGPT4_1Mini

type OpenAIProvider struct {
	client *openai.Client
	model  string
	usageTracker
}

func NewOpenAIProvider(apiKey, model string, pricing RequestPricing, opts ...option.RequestOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = string(defaultOpenAIModel)
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIProvider{
		client:       &client,
		model:        model,
		usageTracker: usageTracker{pricing: pricing},
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return p.model
}

func imagePart(data []byte) openai.ChatCompletionContentPartUnionParam {
	return openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
		URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data),
		Detail: "low",
	})
}

func (p *OpenAIProvider) VerifyFace(ctx context.Context, req VerifyRequest) (*Verdict, error) {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(req.Candidates)+2)
	parts = append(parts, imagePart(req.LiveImage))
	for _, c := range req.Candidates {
		parts = append(parts, imagePart(c))
	}
	parts = append(parts, openai.TextContentPart(buildVerifyPrompt(len(req.Candidates), req.Action)))

	var verdict Verdict
	if err := p.generateJSON(ctx, parts, &verdict); err != nil {
		return nil, err
	}
	return &verdict, nil
}

func (p *OpenAIProvider) ValidateFace(ctx context.Context, image []byte) (*attendance.ImageValidation, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		imagePart(image),
		openai.TextContentPart(buildValidatePrompt()),
	}

	var v attendance.ImageValidation
	if err := p.generateJSON(ctx, parts, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (p *OpenAIProvider) generateJSON(ctx context.Context, parts []openai.ChatCompletionContentPartUnionParam, out any) error {
	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: parts,
				},
			},
		},
	}

	var lastError error
	var lastResponse string

	for range maxJSONAttempts {
		resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(p.model),
			Messages: messages,
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
			MaxTokens: openai.Int(400),
		})
		if err != nil {
			return fmt.Errorf("OpenAI API error: %w", err)
		}

		if len(resp.Choices) == 0 {
			return errors.New("no response from OpenAI")
		}

		if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
			p.trackUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		}

		content := resp.Choices[0].Message.Content
		lastResponse = content

		if err := json.Unmarshal([]byte(stripCodeFence(content)), out); err != nil {
			lastError = err

			messages = append(messages,
				openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						Content: openai.ChatCompletionAssistantMessageParamContentUnion{
							OfString: openai.String(content),
						},
					},
				},
				openai.UserMessage(parseFeedback(err)),
			)
			continue
		}

		return nil
	}

	return fmt.Errorf("invalid JSON response from AI after %d attempts: %w (last response: %s)", maxJSONAttempts, lastError, lastResponse)
}
