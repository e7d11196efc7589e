package connector

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"github.com/workyterm/workyterm/pkg/models"
)

// Ollama talks to a local Ollama server and streams its NDJSON output.
type Ollama struct {
	desc   models.ProviderDescriptor
	client *resty.Client
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// NewOllama creates an Ollama connector.
func NewOllama(desc models.ProviderDescriptor, logger zerolog.Logger) *Ollama {
	return &Ollama{desc: desc, client: newClient(string(desc.ID), logger)}
}

// ID implements Connector.
func (o *Ollama) ID() models.ProviderID { return o.desc.ID }

// Invoke implements Connector.
func (o *Ollama) Invoke(ctx context.Context, prompt string, p Params, onChunk ChunkFunc) models.Outcome {
	return invoke(ctx, o.desc, prompt, p, func(ctx context.Context, model string) (string, error) {
		return o.generate(ctx, prompt, model, onChunk)
	})
}

func (o *Ollama) generate(ctx context.Context, prompt, model string, onChunk ChunkFunc) (string, error) {
	body := ollamaRequest{Model: model, Prompt: prompt, Stream: true}
	if o.desc.Temperature > 0 || o.desc.MaxTokens > 0 {
		body.Options = map[string]any{}
		if o.desc.Temperature > 0 {
			body.Options["temperature"] = o.desc.Temperature
		}
		if o.desc.MaxTokens > 0 {
			body.Options["num_predict"] = o.desc.MaxTokens
		}
	}

	resp, err := o.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetDoNotParseResponse(true).
		Post(endpointURL(o.desc.Endpoint, "/api/generate"))
	if err != nil {
		return "", transportError(err)
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return "", fail(models.FailureMalformedResponse, "empty response body")
	}
	defer resp.RawResponse.Body.Close()

	if resp.IsError() {
		data, _ := io.ReadAll(io.LimitReader(resp.RawResponse.Body, 4096))
		return "", classifyStatus(resp.StatusCode(), string(data))
	}

	var out strings.Builder
	scanner := bufio.NewScanner(resp.RawResponse.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk ollamaChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return "", fail(models.FailureMalformedResponse, "decode stream: %v", err)
		}
		if chunk.Error != "" {
			return "", fail(models.FailureMalformedResponse, "%s", chunk.Error)
		}
		if chunk.Response != "" {
			out.WriteString(chunk.Response)
			if onChunk != nil {
				onChunk(chunk.Response)
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", transportError(err)
	}
	return out.String(), nil
}
