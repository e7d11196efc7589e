package connector

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"github.com/workyterm/workyterm/pkg/models"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 4096
)

// Anthropic calls the Anthropic /messages API.
type Anthropic struct {
	desc   models.ProviderDescriptor
	apiKey string
	client *resty.Client
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// NewAnthropic creates an Anthropic connector.
func NewAnthropic(desc models.ProviderDescriptor, apiKey string, logger zerolog.Logger) *Anthropic {
	return &Anthropic{desc: desc, apiKey: apiKey, client: newClient(string(desc.ID), logger)}
}

// ID implements Connector.
func (a *Anthropic) ID() models.ProviderID { return a.desc.ID }

// Invoke implements Connector.
func (a *Anthropic) Invoke(ctx context.Context, prompt string, p Params, onChunk ChunkFunc) models.Outcome {
	return invoke(ctx, a.desc, prompt, p, func(ctx context.Context, model string) (string, error) {
		return a.message(ctx, prompt, model)
	})
}

func (a *Anthropic) message(ctx context.Context, prompt, model string) (string, error) {
	maxTokens := a.desc.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}
	body := anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		Temperature: a.desc.Temperature,
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", a.apiKey).
		SetHeader("anthropic-version", anthropicVersion).
		SetBody(body).
		Post(endpointURL(a.desc.Endpoint, "/messages"))
	if err != nil {
		return "", transportError(err)
	}
	if resp.IsError() {
		return "", classifyStatus(resp.StatusCode(), resp.String())
	}

	var msg anthropicResponse
	if err := json.Unmarshal(resp.Bytes(), &msg); err != nil {
		return "", fail(models.FailureMalformedResponse, "decode response: %v", err)
	}
	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", fail(models.FailureMalformedResponse, "response has no text content")
	}
	return out.String(), nil
}
