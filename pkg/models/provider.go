package models

import "time"

// ProviderID names a configured backend.
type ProviderID string

// Well-known provider ids.
const (
	ProviderOllama    ProviderID = "ollama"
	ProviderGeminiCLI ProviderID = "gemini-cli"
	ProviderClaudeCLI ProviderID = "claude-cli"
	ProviderCodexCLI  ProviderID = "codex-cli"
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"

	// ProviderCouncil is reported as the producer of deliberated answers.
	ProviderCouncil ProviderID = "council"
)

// ProviderKind selects the connector variant used for a provider.
type ProviderKind string

const (
	KindLocalExecutable ProviderKind = "local-executable"
	KindLocalEndpoint   ProviderKind = "local-endpoint"
	KindRemoteAPI       ProviderKind = "remote-api"
)

// Valid reports whether k is one of the known kinds.
func (k ProviderKind) Valid() bool {
	switch k {
	case KindLocalExecutable, KindLocalEndpoint, KindRemoteAPI:
		return true
	}
	return false
}

// ProviderDescriptor is the static description of one provider.
// Endpoint is used by endpoint and remote kinds, Command and Args by
// executables. CredentialRef is either a literal secret or a $VAR reference.
type ProviderDescriptor struct {
	ID            ProviderID    `json:"id"`
	Kind          ProviderKind  `json:"kind"`
	Enabled       bool          `json:"enabled"`
	Model         string        `json:"model,omitempty"`
	Endpoint      string        `json:"endpoint,omitempty"`
	Command       string        `json:"command,omitempty"`
	Args          []string      `json:"args,omitempty"`
	Stdin         bool          `json:"stdin,omitempty"`
	CredentialRef string        `json:"-"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	MaxTokens     int           `json:"max_tokens,omitempty"`
	Temperature   float64       `json:"temperature,omitempty"`
}
