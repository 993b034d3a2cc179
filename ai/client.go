package ai

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// DefaultSystemInstruction is used when no active system prompt is configured
// for the requested role.
const DefaultSystemInstruction = `You are an experienced Traditional Chinese Medicine practitioner assisting a telehealth consultation. Analyse the structured examination findings you are given, reason according to TCM diagnostic principles (八纲辨证, 脏腑辨证), and produce a clear, compassionate consultation report. State plainly when the provided findings are insufficient for a confident assessment, and always advise seeing a licensed practitioner for serious symptoms.`

// Client wraps the hosted model used for diagnosis generation and report
// chat. The model's output is relayed to callers unmodified.
type Client struct {
	genaiClient *genai.Client
	model       string
	logger      *zap.Logger
}

func NewClient(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Client{
		genaiClient: genaiClient,
		model:       model,
		logger:      logger,
	}, nil
}

// GenerateDiagnosis sends the assembled consultation prompt and returns the
// full response text.
func (c *Client) GenerateDiagnosis(ctx context.Context, systemInstruction, prompt string) (string, error) {
	if c.genaiClient == nil {
		return "", fmt.Errorf("genai client not initialized")
	}
	if systemInstruction == "" {
		systemInstruction = DefaultSystemInstruction
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
	}

	start := time.Now()
	result, err := c.genaiClient.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("failed to generate diagnosis: %w", err)
	}

	response := result.Text()
	c.logger.Info("diagnosis generated",
		zap.Duration("duration", time.Since(start)),
		zap.Int("response_length", len(response)))
	return response, nil
}

// StreamDiagnosis relays the model's token stream to onChunk as it arrives.
func (c *Client) StreamDiagnosis(ctx context.Context, systemInstruction, prompt string, onChunk func(text string) error) error {
	if c.genaiClient == nil {
		return fmt.Errorf("genai client not initialized")
	}
	if systemInstruction == "" {
		systemInstruction = DefaultSystemInstruction
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	for resp, err := range c.genaiClient.Models.GenerateContentStream(ctx, c.model, contents, config) {
		if err != nil {
			return fmt.Errorf("stream failed: %w", err)
		}
		if text := resp.Text(); text != "" {
			if err := onChunk(text); err != nil {
				return err
			}
		}
	}
	return nil
}

// AnswerReportQuestion answers a question against an uploaded report's
// extracted text.
func (c *Client) AnswerReportQuestion(ctx context.Context, reportText, question string) (string, error) {
	if c.genaiClient == nil {
		return "", fmt.Errorf("genai client not initialized")
	}

	prompt := fmt.Sprintf(`A patient uploaded a medical report and has a question about it.

Report contents:
%s

Question: %s

Answer based only on the report above. If the report does not contain the information needed, say so. Do not invent findings.`, reportText, question)

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(
			"You are a medical assistant helping a patient understand their own medical report. Be accurate, plain-spoken and cautious.",
			genai.RoleUser,
		),
	}

	result, err := c.genaiClient.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("failed to answer report question: %w", err)
	}
	return result.Text(), nil
}
