package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/commguard/commguard/internal/port"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Classifier implements port.TextClassifier over the OpenAI chat API. It is
// only consulted for communications whose rule-based score lands in the
// ambiguous high band.
type Classifier struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewClassifier creates an OpenAI-backed text classifier.
func NewClassifier(apiKey, model string, temperature float32, maxTokens int, logger *zap.Logger) *Classifier {
	return &Classifier{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      logger,
	}
}

// maxClassifyChars bounds prompt size for long communications.
const maxClassifyChars = 8000

// Classify asks the model for a refined risk score and category.
func (c *Classifier) Classify(ctx context.Context, text string) (*port.TextClassification, error) {
	if len(text) > maxClassifyChars {
		text = text[:maxClassifyChars]
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a security analyst reviewing workplace communications for data exfiltration, credential sharing, regulatory exposure and fraud. Always respond with valid JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: c.buildPrompt(text),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		c.logger.Error("OpenAI API call failed", zap.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content

	var result port.TextClassification
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		c.logger.Error("Failed to parse OpenAI response",
			zap.Error(err),
			zap.String("content", content))
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Score < 0 || result.Score > 100 {
		return nil, fmt.Errorf("classifier returned out-of-range score %d", result.Score)
	}

	c.logger.Info("Text classification completed",
		zap.Int("score", result.Score),
		zap.String("category", result.Category),
		zap.Float64("confidence", result.Confidence))

	return &result, nil
}

// buildPrompt builds the risk assessment prompt.
func (c *Classifier) buildPrompt(text string) string {
	return fmt.Sprintf(`Assess the security and compliance risk of this workplace communication:

---
%s
---

Respond with ONLY a valid JSON object with this exact structure:
{
  "score": integer between 0 and 100,
  "category": string (one of: data_exfiltration, credential_sharing, external_sharing, financial_fraud, harassment, gdpr, hipaa, pci_dss, sox, benign),
  "reasoning": string explaining your assessment,
  "confidence": number between 0.0 and 1.0
}

Score guidance: 0-39 benign, 40-69 suspicious, 70-89 likely policy violation, 90-100 clear exfiltration or regulated-data exposure.`, text)
}
