package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/workyterm/workyterm/pkg/models"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all workyterm configuration. It is loaded once per process
// and treated as an immutable snapshot afterwards.
type Config struct {
	Listen    string            `yaml:"listen" env:"WORKYTERM_LISTEN"`
	DBPath    string            `yaml:"db_path" env:"WORKYTERM_DB_PATH"`
	Providers []ProviderConfig  `yaml:"providers"`
	Routes    map[string]string `yaml:"routes"`
	Council   CouncilConfig     `yaml:"council"`
	Cache     CacheConfig       `yaml:"cache"`
	Timeouts  TimeoutConfig     `yaml:"timeouts"`
	Log       LogConfig         `yaml:"log"`
}

// ProviderConfig defines one backend. Kind is "local-executable",
// "local-endpoint" or "remote-api". APIKey may be a literal or a $VAR
// reference resolved when the connector is built.
type ProviderConfig struct {
	ID          string        `yaml:"id"`
	Kind        string        `yaml:"kind"`
	Enabled     *bool         `yaml:"enabled,omitempty"`
	Model       string        `yaml:"model,omitempty"`
	Endpoint    string        `yaml:"endpoint,omitempty"`
	Command     string        `yaml:"command,omitempty"`
	Args        []string      `yaml:"args,omitempty"`
	Stdin       bool          `yaml:"stdin,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	Temperature float64       `yaml:"temperature,omitempty"`
}

// IsEnabled reports whether the provider is enabled; providers are enabled
// unless explicitly turned off.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// CouncilConfig controls multi-provider deliberation.
type CouncilConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Members      []string      `yaml:"members"`
	Rounds       int           `yaml:"rounds"`
	Threshold    float64       `yaml:"threshold"`
	Synthesizer  string        `yaml:"synthesizer,omitempty"`
	RoundTimeout time.Duration `yaml:"round_timeout"`
	ExcerptLimit int           `yaml:"excerpt_limit"`
	Scorer       string        `yaml:"scorer"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	TTL        time.Duration `yaml:"ttl" env:"WORKYTERM_CACHE_TTL"`
	Path       string        `yaml:"path"`
	MemorySize int           `yaml:"memory_size"`
}

// TimeoutConfig holds global call deadlines.
type TimeoutConfig struct {
	Default time.Duration `yaml:"default"`
	Probe   time.Duration `yaml:"probe"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level" env:"WORKYTERM_LOG_LEVEL"`
	Format string `yaml:"format" env:"WORKYTERM_LOG_FORMAT"`
	File   string `yaml:"file,omitempty"`
}

func enabled(v bool) *bool { return &v }

// Default returns a Config with sensible defaults. Local CLIs and ollama are
// enabled; remote APIs need a key and start disabled.
func Default() *Config {
	dir := DataDir()
	return &Config{
		Listen: "127.0.0.1:7878",
		DBPath: filepath.Join(dir, "history.db"),
		Providers: []ProviderConfig{
			{ID: "gemini-cli", Kind: string(models.KindLocalExecutable), Command: "gemini", Args: []string{"-p", "{prompt}"}},
			{ID: "claude-cli", Kind: string(models.KindLocalExecutable), Command: "claude", Args: []string{"-p", "{prompt}"}},
			{ID: "codex-cli", Kind: string(models.KindLocalExecutable), Command: "codex", Args: []string{"exec", "{prompt}"}},
			{ID: "ollama", Kind: string(models.KindLocalEndpoint), Endpoint: "http://localhost:11434", Model: "llama3.2"},
			{ID: "openai", Kind: string(models.KindRemoteAPI), Enabled: enabled(false), Endpoint: "https://api.openai.com/v1", Model: "gpt-4o-mini", APIKey: "$OPENAI_API_KEY"},
			{ID: "anthropic", Kind: string(models.KindRemoteAPI), Enabled: enabled(false), Endpoint: "https://api.anthropic.com/v1", Model: "claude-3-5-sonnet-20241022", APIKey: "$ANTHROPIC_API_KEY", MaxTokens: 4096},
		},
		Routes: map[string]string{
			string(models.TaskResearch): "gemini-cli",
			string(models.TaskAnalysis): "codex-cli",
			string(models.TaskWriting):  "claude-cli",
			string(models.TaskCreative): "claude-cli",
			string(models.TaskEditing):  "claude-cli",
			string(models.TaskGeneral):  "claude-cli",
		},
		Council: CouncilConfig{
			Rounds:       2,
			Threshold:    0.7,
			RoundTimeout: 2 * time.Minute,
			ExcerptLimit: 500,
			Scorer:       "jaccard",
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        24 * time.Hour,
			Path:       filepath.Join(dir, "cache.db"),
			MemorySize: 512,
		},
		Timeouts: TimeoutConfig{
			Default: 2 * time.Minute,
			Probe:   2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DataDir is the directory holding the cache and history databases.
func DataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "workyterm")
	}
	return ".workyterm"
}

// DefaultPath is the config file used when none is given.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "workyterm", "config.yaml")
	}
	return "workyterm.yaml"
}

// Load reads a YAML config file, expands environment variables and applies
// WORKYTERM_* overrides. A missing file at the default path yields defaults.
func Load(path string) (*Config, error) {
	usingDefault := path == ""
	if usingDefault {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && usingDefault:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	ids := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: provider %d has no id", ErrInvalidConfig, i)
		}
		if ids[p.ID] {
			return fmt.Errorf("%w: duplicate provider id %q", ErrInvalidConfig, p.ID)
		}
		ids[p.ID] = true
		kind := models.ProviderKind(p.Kind)
		if !kind.Valid() {
			return fmt.Errorf("%w: provider %q has unknown kind %q", ErrInvalidConfig, p.ID, p.Kind)
		}
		if kind == models.KindLocalExecutable && p.Command == "" {
			return fmt.Errorf("%w: provider %q needs a command", ErrInvalidConfig, p.ID)
		}
		if kind != models.KindLocalExecutable && p.Endpoint == "" {
			return fmt.Errorf("%w: provider %q needs an endpoint", ErrInvalidConfig, p.ID)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("%w: provider %q has a negative timeout", ErrInvalidConfig, p.ID)
		}
	}

	// Routes may name providers that are absent; the router skips them.
	for cat := range c.Routes {
		if _, ok := models.ParseTaskCategory(cat); !ok {
			return fmt.Errorf("%w: unknown route category %q", ErrInvalidConfig, cat)
		}
	}

	cc := c.Council
	if cc.Rounds < 1 {
		return fmt.Errorf("%w: council rounds must be at least 1", ErrInvalidConfig)
	}
	if cc.Threshold < 0 || cc.Threshold > 1 {
		return fmt.Errorf("%w: council threshold must be within [0,1]", ErrInvalidConfig)
	}
	for _, m := range cc.Members {
		if !ids[m] {
			return fmt.Errorf("%w: council member %q is not a configured provider", ErrInvalidConfig, m)
		}
	}
	if cc.Synthesizer != "" && !ids[cc.Synthesizer] {
		return fmt.Errorf("%w: council synthesizer %q is not a configured provider", ErrInvalidConfig, cc.Synthesizer)
	}
	if cc.Enabled && len(cc.Members) < 2 {
		return fmt.Errorf("%w: council needs at least 2 members", ErrInvalidConfig)
	}
	switch strings.ToLower(cc.Scorer) {
	case "", "jaccard", "exact":
	default:
		return fmt.Errorf("%w: unknown council scorer %q", ErrInvalidConfig, cc.Scorer)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("%w: cache ttl must not be negative", ErrInvalidConfig)
	}
	if c.Timeouts.Default <= 0 {
		return fmt.Errorf("%w: default timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Descriptors converts the provider list into registry descriptors. A
// provider without its own timeout inherits Timeouts.Default.
func (c *Config) Descriptors() []models.ProviderDescriptor {
	out := make([]models.ProviderDescriptor, 0, len(c.Providers))
	for _, p := range c.Providers {
		timeout := p.Timeout
		if timeout == 0 {
			timeout = c.Timeouts.Default
		}
		out = append(out, models.ProviderDescriptor{
			ID:            models.ProviderID(p.ID),
			Kind:          models.ProviderKind(p.Kind),
			Enabled:       p.IsEnabled(),
			Model:         p.Model,
			Endpoint:      strings.TrimRight(p.Endpoint, "/"),
			Command:       p.Command,
			Args:          p.Args,
			Stdin:         p.Stdin,
			CredentialRef: p.APIKey,
			Timeout:       timeout,
			MaxTokens:     p.MaxTokens,
			Temperature:   p.Temperature,
		})
	}
	return out
}

// RouteTable returns the category defaults keyed by canonical category.
func (c *Config) RouteTable() map[models.TaskCategory]models.ProviderID {
	out := make(map[models.TaskCategory]models.ProviderID, len(c.Routes))
	for cat, id := range c.Routes {
		if tc, ok := models.ParseTaskCategory(cat); ok {
			out[tc] = models.ProviderID(id)
		}
	}
	return out
}

// CouncilMembers returns the configured members as provider ids.
func (c *Config) CouncilMembers() []models.ProviderID {
	out := make([]models.ProviderID, 0, len(c.Council.Members))
	for _, m := range c.Council.Members {
		out = append(out, models.ProviderID(m))
	}
	return out
}

// ResolveCredential returns the secret for ref. "$VAR" and "${VAR}" are read
// from the environment; anything else is returned as is.
func ResolveCredential(ref string) string {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, "$") {
		return ref
	}
	name := strings.TrimPrefix(ref, "$")
	name = strings.TrimSuffix(strings.TrimPrefix(name, "{"), "}")
	return os.Getenv(name)
}
