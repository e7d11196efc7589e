package connector

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"resty.dev/v3"

	"github.com/workyterm/workyterm/pkg/models"
)

// OpenAI calls an OpenAI-compatible /chat/completions endpoint.
type OpenAI struct {
	desc   models.ProviderDescriptor
	apiKey string
	client *resty.Client
}

// NewOpenAI creates an OpenAI connector using apiKey as bearer token.
func NewOpenAI(desc models.ProviderDescriptor, apiKey string, logger zerolog.Logger) *OpenAI {
	return &OpenAI{desc: desc, apiKey: apiKey, client: newClient(string(desc.ID), logger)}
}

// ID implements Connector.
func (o *OpenAI) ID() models.ProviderID { return o.desc.ID }

// Invoke implements Connector.
func (o *OpenAI) Invoke(ctx context.Context, prompt string, p Params, onChunk ChunkFunc) models.Outcome {
	return invoke(ctx, o.desc, prompt, p, func(ctx context.Context, model string) (string, error) {
		return o.complete(ctx, prompt, model)
	})
}

func (o *OpenAI) complete(ctx context.Context, prompt, model string) (string, error) {
	request := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   o.desc.MaxTokens,
		Temperature: float32(o.desc.Temperature),
	}

	req := o.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request)
	if o.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+o.apiKey)
	}
	resp, err := req.Post(endpointURL(o.desc.Endpoint, "/chat/completions"))
	if err != nil {
		return "", transportError(err)
	}
	if resp.IsError() {
		return "", classifyStatus(resp.StatusCode(), resp.String())
	}

	var completion openai.ChatCompletionResponse
	if err := json.Unmarshal(resp.Bytes(), &completion); err != nil {
		return "", fail(models.FailureMalformedResponse, "decode response: %v", err)
	}
	if len(completion.Choices) == 0 {
		return "", fail(models.FailureMalformedResponse, "response has no choices")
	}
	text := completion.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", fail(models.FailureMalformedResponse, "empty completion (finish_reason %s)", completion.Choices[0].FinishReason)
	}
	return text, nil
}
