package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Biometric images trip the default safety filters.
var geminiSafetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
}

var verdictSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"match":             {Type: genai.TypeBoolean},
		"matchedUserIndex":  {Type: genai.TypeInteger},
		"confidence":        {Type: genai.TypeNumber},
		"livenessConfirmed": {Type: genai.TypeBoolean},
		"spoofDetected":     {Type: genai.TypeBoolean},
		"reason":            {Type: genai.TypeString},
	},
}

var validationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"valid":  {Type: genai.TypeBoolean},
		"reason": {Type: genai.TypeString},
	},
}

type GeminiProvider struct {
	client *genai.Client
	model  string
	usageTracker
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, pricing RequestPricing) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client:       client,
		model:        model,
		usageTracker: usageTracker{pricing: pricing},
	}, nil
}

func (p *GeminiProvider) Name() string {
	return p.model
}

func (p *GeminiProvider) VerifyFace(ctx context.Context, req VerifyRequest) (*Verdict, error) {
	parts := make([]*genai.Part, 0, len(req.Candidates)+2)
	parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: req.LiveImage, MIMEType: mimeJPEG}})
	for _, c := range req.Candidates {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: c, MIMEType: mimeJPEG}})
	}
	parts = append(parts, &genai.Part{Text: buildVerifyPrompt(len(req.Candidates), req.Action)})

	var verdict Verdict
	if err := p.generateJSON(ctx, parts, verdictSchema, &verdict); err != nil {
		return nil, err
	}
	return &verdict, nil
}

func (p *GeminiProvider) ValidateFace(ctx context.Context, image []byte) (*attendance.ImageValidation, error) {
	parts := []*genai.Part{
		{InlineData: &genai.Blob{Data: image, MIMEType: mimeJPEG}},
		{Text: buildValidatePrompt()},
	}

	var v attendance.ImageValidation
	if err := p.generateJSON(ctx, parts, validationSchema, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// generateJSON sends parts as one user turn and decodes the JSON answer into
// out. Unparsable answers are fed back to the model with the parse error.
func (p *GeminiProvider) generateJSON(ctx context.Context, parts []*genai.Part, schema *genai.Schema, out any) error {
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
		SafetySettings:   geminiSafetySettings,
	}

	var lastError error
	var lastResponse string

	for range maxJSONAttempts {
		result, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
		if err != nil {
			return fmt.Errorf("gemini API error: %w", err)
		}

		if result.UsageMetadata != nil {
			p.trackUsage(int64(result.UsageMetadata.PromptTokenCount), int64(result.UsageMetadata.CandidatesTokenCount))
		}

		content := result.Text()
		if content == "" {
			return errors.New("no response text from model")
		}
		lastResponse = content

		if err := json.Unmarshal([]byte(stripCodeFence(content)), out); err != nil {
			lastError = err

			contents = append(contents,
				&genai.Content{
					Role:  "model",
					Parts: []*genai.Part{{Text: content}},
				},
				&genai.Content{
					Role:  "user",
					Parts: []*genai.Part{{Text: parseFeedback(err)}},
				},
			)
			continue
		}

		return nil
	}

	return fmt.Errorf("invalid JSON response from AI after %d attempts: %w (last response: %s)", maxJSONAttempts, lastError, lastResponse)
}
