package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config file location when no explicit path is given.
const EnvConfigPath = "VOICE3D_CONFIG"

var defaultPaths = []string{"config.yaml", ".config.yaml", "data/config.yaml"}

// Loader reads config.yaml on top of DefaultConfig and fills secrets from the environment.
type Loader struct {
	useDotEnv bool
	path      string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader that reads .env and searches the default paths.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the config file location.
func (l *Loader) WithPath(path string) *Loader {
	l.path = strings.TrimSpace(path)
	return l
}

// WithEnv overrides environment lookups (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Result captures the loaded configuration and its origin path.
// Path is empty when only defaults were used.
type Result struct {
	Config *Config
	Path   string
}

// Load reads the configuration, applies env fallbacks and validates the result.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		// a missing .env is normal outside development
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()
	path, err := l.resolvePath()
	if err != nil {
		return nil, err
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		expanded := l.expandVars(raw)
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	l.applyEnvFallbacks(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

// envRef matches ${NAME}. Bare $NAME is left alone so prompt text keeps
// its dollar signs.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func (l *Loader) expandVars(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(ref []byte) []byte {
		v, _ := l.lookupEnv(string(ref[2 : len(ref)-1]))
		return []byte(v)
	})
}

func (l *Loader) resolvePath() (string, error) {
	if l.path != "" {
		if _, err := os.Stat(l.path); err != nil {
			return "", fmt.Errorf("config file %s: %w", l.path, err)
		}
		return l.path, nil
	}
	if envPath, ok := l.lookupEnv(EnvConfigPath); ok && strings.TrimSpace(envPath) != "" {
		envPath = strings.TrimSpace(envPath)
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("config file %s (from %s): %w", envPath, EnvConfigPath, err)
		}
		return envPath, nil
	}
	for _, candidate := range defaultPaths {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", nil
}

func (l *Loader) env(key string) string {
	v, ok := l.lookupEnv(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func (l *Loader) applyEnvFallbacks(cfg *Config) {
	openaiKey := l.env("OPENAI_API_KEY")

	for name, c := range cfg.ASR {
		if c.APIKey == "" && c.Type == "openai" {
			c.APIKey = openaiKey
		}
		cfg.ASR[name] = c
	}
	for name, c := range cfg.LLM {
		if c.APIKey == "" {
			switch c.Type {
			case "openai":
				c.APIKey = openaiKey
			case "gemini":
				c.APIKey = l.env("GEMINI_API_KEY")
			}
		}
		cfg.LLM[name] = c
	}
	for name, c := range cfg.Image {
		if c.APIKey == "" && c.Type == "openai" {
			c.APIKey = openaiKey
		}
		cfg.Image[name] = c
	}
	for name, c := range cfg.Mesh {
		if c.APIKey == "" && c.Type == "stability" {
			c.APIKey = l.env("STABILITY_API_KEY")
		}
		cfg.Mesh[name] = c
	}
	for name, c := range cfg.Publish {
		switch c.Type {
		case "github":
			if c.Token == "" {
				c.Token = l.env("GITHUB_TOKEN")
			}
			if c.Owner == "" {
				c.Owner = l.env("GITHUB_OWNER")
			}
			if c.Repo == "" {
				c.Repo = l.env("GITHUB_REPO")
			}
		case "s3":
			if c.AccessKey == "" {
				c.AccessKey = l.env("AWS_ACCESS_KEY_ID")
			}
			if c.SecretKey == "" {
				c.SecretKey = l.env("AWS_SECRET_ACCESS_KEY")
			}
			if c.Bucket == "" {
				c.Bucket = l.env("S3_BUCKET")
			}
		}
		cfg.Publish[name] = c
	}
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if err := positive("recording.max_duration", cfg.Recording.MaxDuration); err != nil {
		return err
	}
	if err := positive("recording.flush_grace", cfg.Recording.FlushGrace); err != nil {
		return err
	}
	if cfg.Recording.SampleRate <= 0 {
		return fmt.Errorf("invalid recording.sample_rate: %d", cfg.Recording.SampleRate)
	}
	if cfg.Recording.Channels <= 0 {
		return fmt.Errorf("invalid recording.channels: %d", cfg.Recording.Channels)
	}
	if cfg.Pipeline.NameMaxLength <= 0 {
		return fmt.Errorf("invalid pipeline.name_max_length: %d", cfg.Pipeline.NameMaxLength)
	}
	if !strings.HasPrefix(cfg.Web.ArtifactPrefix, "/") {
		return fmt.Errorf("web.artifact_prefix must start with '/': %q", cfg.Web.ArtifactPrefix)
	}

	if _, ok := cfg.ASR[cfg.Selected.ASR]; !ok {
		return fmt.Errorf("selected ASR %q is not configured", cfg.Selected.ASR)
	}
	if _, ok := cfg.LLM[cfg.Selected.LLM]; !ok {
		return fmt.Errorf("selected LLM %q is not configured", cfg.Selected.LLM)
	}
	if _, ok := cfg.Image[cfg.Selected.Image]; !ok {
		return fmt.Errorf("selected Image %q is not configured", cfg.Selected.Image)
	}
	if _, ok := cfg.Mesh[cfg.Selected.Mesh]; !ok {
		return fmt.Errorf("selected Mesh %q is not configured", cfg.Selected.Mesh)
	}
	if _, ok := cfg.Publish[cfg.Selected.Publish]; !ok {
		return fmt.Errorf("selected Publish %q is not configured", cfg.Selected.Publish)
	}
	return nil
}

func positive(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("invalid %s: %s", name, d)
	}
	return nil
}

// SelectedASR returns the active transcription entry.
func (c *Config) SelectedASR() ASRConfig { return c.ASR[c.Selected.ASR] }

// SelectedLLM returns the active prompt optimizer entry.
func (c *Config) SelectedLLM() LLMConfig { return c.LLM[c.Selected.LLM] }

// SelectedImage returns the active image generator entry.
func (c *Config) SelectedImage() ImageConfig { return c.Image[c.Selected.Image] }

// SelectedMesh returns the active 3D generator entry.
func (c *Config) SelectedMesh() MeshConfig { return c.Mesh[c.Selected.Mesh] }

// SelectedPublish returns the active artifact store entry.
func (c *Config) SelectedPublish() PublishConfig { return c.Publish[c.Selected.Publish] }
