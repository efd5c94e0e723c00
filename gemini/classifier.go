package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/room4-2/bookingline/intent"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.5-flash-lite"

	systemPrompt = "Classify as: cancellation, delivery, or status. One word only."
)

// Classifier answers ambiguous utterances with one of the intent labels
// using the Gemini API. It implements intent.Fallback.
type Classifier struct {
	client *genai.Client
	model  string
}

// Option customises the underlying client.
type Option func(*genai.ClientConfig)

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(url string) Option {
	return func(cc *genai.ClientConfig) {
		cc.HTTPOptions.BaseURL = url
	}
}

// NewClassifier creates a Gemini API client for intent classification
func NewClassifier(ctx context.Context, apiKey, model string, opts ...Option) (*Classifier, error) {
	if model == "" {
		model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cc)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Classifier{client: client, model: model}, nil
}

// Classify asks the model for a single intent label.
func (c *Classifier) Classify(ctx context.Context, utterance string) (intent.Intent, error) {
	enum := make([]string, 0, len(intent.Labels))
	for _, l := range intent.Labels {
		enum = append(enum, string(l))
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
		Temperature:      genai.Ptr[float32](0),
		MaxOutputTokens:  8,
		ResponseMIMEType: "text/x.enum",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeString,
			Enum: enum,
		},
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr[int32](0),
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(utterance), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	label, ok := intent.ParseLabel(resp.Text())
	if !ok {
		return "", fmt.Errorf("%w: %q", intent.ErrUnparsable, resp.Text())
	}
	return label, nil
}
