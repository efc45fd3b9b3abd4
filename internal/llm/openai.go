// Package llm provides the language-model collaborators of the support graph:
// an OpenAI-backed classifier/drafter and a heuristic fallback used when no
// API key is configured.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dkrenev/supportflow/internal/agent"
	"github.com/dkrenev/supportflow/internal/domain"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// OpenAI classifies and drafts through an OpenAI-compatible chat completion
// API. Classification uses native structured output so the response parses
// directly into a domain.Classification.
type OpenAI struct {
	client openai.Client
	model  string
}

var (
	_ agent.Classifier = (*OpenAI)(nil)
	_ agent.Drafter    = (*OpenAI)(nil)
)

// NewOpenAI creates an OpenAI-backed classifier and drafter. baseURL may be
// empty for the default endpoint; model falls back to DefaultModel.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	opts := []openaiopt.RequestOption{openaiopt.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, openaiopt.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Model returns the configured model name.
func (m *OpenAI) Model() string {
	return m.model
}

// classificationSchema constrains the model's classification output.
var classificationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"intent": map[string]any{
			"type": "string",
			"enum": []string{"QUESTION", "BUG", "FEATURE", "BILLING", "COMPLEX", "OTHER"},
		},
		"urgency": map[string]any{
			"type": "string",
			"enum": []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"},
		},
		"topic":   map[string]any{"type": "string"},
		"summary": map[string]any{"type": "string"},
	},
	"required":             []string{"intent", "urgency", "topic", "summary"},
	"additionalProperties": false,
}

// Classify implements agent.Classifier.
func (m *OpenAI) Classify(ctx context.Context, message, userName string) (domain.Classification, error) {
	prompt := fmt.Sprintf(`Analyze this customer message and classify it:

Message: %s
From: %s

Provide classification including intent, urgency, topic, and summary.`, message, userName)

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(m.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "message_classification",
					Schema: classificationSchema,
					Strict: openai.Bool(true),
				},
			},
		},
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("classification completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return domain.Classification{}, errors.New("classification completion returned no choices")
	}

	var classification domain.Classification
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &classification); err != nil {
		return domain.Classification{}, fmt.Errorf("parse classification: %w", err)
	}
	return classification, nil
}

// Draft implements agent.Drafter.
func (m *OpenAI) Draft(ctx context.Context, req agent.DraftRequest) (string, error) {
	var sections []string
	if len(req.SearchResults) > 0 {
		var docs strings.Builder
		docs.WriteString("Relevant documentation:\n")
		for _, result := range req.SearchResults {
			docs.WriteString("- " + result + "\n")
		}
		sections = append(sections, docs.String())
	}
	if req.CustomerTier != "" {
		sections = append(sections, "Customer tier: "+req.CustomerTier)
	}

	prompt := fmt.Sprintf(`Draft a response to this customer:
%s

Message intent: %s
Urgency level: %s

%s

Guidelines:
- Be professional and helpful
- Address their specific concern
- Use the provided documentation when relevant`,
		req.MessageContent, req.Intent, req.Urgency, strings.Join(sections, "\n"))

	completion, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(m.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("draft completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("draft completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
