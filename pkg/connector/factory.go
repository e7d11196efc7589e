package connector

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/workyterm/workyterm/pkg/config"
	"github.com/workyterm/workyterm/pkg/models"
)

// Factory builds the connector for a descriptor.
type Factory func(desc models.ProviderDescriptor) (Connector, error)

// NewFactory returns the Factory dispatching on ProviderKind. Remote API
// variants are picked by provider id: "anthropic" speaks the Messages API,
// any other remote provider the OpenAI chat completions API.
func NewFactory(logger zerolog.Logger) Factory {
	return func(desc models.ProviderDescriptor) (Connector, error) {
		switch desc.Kind {
		case models.KindLocalExecutable:
			if desc.Command == "" {
				return nil, fmt.Errorf("provider %s: no command configured", desc.ID)
			}
			return NewExec(desc, logger), nil
		case models.KindLocalEndpoint:
			return NewOllama(desc, logger), nil
		case models.KindRemoteAPI:
			key := config.ResolveCredential(desc.CredentialRef)
			if desc.ID == models.ProviderAnthropic || strings.Contains(desc.Endpoint, "anthropic.com") {
				return NewAnthropic(desc, key, logger), nil
			}
			return NewOpenAI(desc, key, logger), nil
		}
		return nil, fmt.Errorf("provider %s: unknown kind %q", desc.ID, desc.Kind)
	}
}
