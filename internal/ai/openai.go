// Package ai wraps the OpenAI chat and embedding endpoints used for categorization.
package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse is returned when the model answers without any content.
var ErrEmptyResponse = errors.New("ai: empty response from model")

// Options configures the OpenAI client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float32
}

// Client calls OpenAI for chat completions and embeddings.
type Client struct {
	api            *openai.Client
	model          string
	embeddingModel openai.EmbeddingModel
	temperature    float32
}

// New creates an OpenAI-backed client.
func New(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	temp := opts.Temperature
	if temp == 0 {
		temp = 0.1
	}
	return &Client{
		api:            openai.NewClientWithConfig(cfg),
		model:          opts.Model,
		embeddingModel: openai.EmbeddingModel(opts.EmbeddingModel),
		temperature:    temp,
	}
}

// Embed returns the embedding vector of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.embeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("ai: create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyResponse
	}
	return resp.Data[0].Embedding, nil
}

// Complete sends a system and user message and returns the model's JSON answer.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("ai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
