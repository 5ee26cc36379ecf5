// Package config resolves docufill settings from config file, environment,
// and CLI flags, tracking where each value came from so `docufill config`
// can explain the effective configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// ResolvedValue is a setting plus its provenance.
type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries the CLI-level overrides into resolution.
// Precedence: CLI > env > config file > built-in default.
type ResolveOptions struct {
	ConfigPath string
	CLIModel   string
	CLIDBPath  string
	CLIInbox   string
}

// ResolvedConfig is the effective configuration.
type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath     ResolvedValue `json:"db_path"`
	InferModel ResolvedValue `json:"infer_model"`
	InboxDir   ResolvedValue `json:"inbox_dir"`
	SkipPolicy ResolvedValue `json:"skip_policy"`

	// List-valued settings come from the config file only; empty means use
	// the package defaults.
	IdiomPatterns []string `json:"idiom_patterns,omitempty"`
	DateLayouts   []string `json:"date_layouts,omitempty"`

	ContextWindow ResolvedValue `json:"context_window"`

	LLMKeys map[string]ResolvedValue `json:"llm_keys,omitempty"`
}

type fileConfig struct {
	DBPath string `yaml:"db_path"`
	Inbox  string `yaml:"inbox"`
	LLM    struct {
		Model         string `yaml:"model"`
		APIKey        string `yaml:"api_key"`
		ContextWindow string `yaml:"context_window"`
	} `yaml:"llm"`
	Extract struct {
		IdiomPatterns []string `yaml:"idiom_patterns"`
	} `yaml:"extract"`
	Validate struct {
		DateLayouts []string `yaml:"date_layouts"`
	} `yaml:"validate"`
	Assemble struct {
		SkipPolicy string `yaml:"skip_policy"`
	} `yaml:"assemble"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".docufill", "config.yaml")
}

// ResolveConfig loads and merges every configuration source.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.InferModel, cfg.LLM.Model, SourceConfig, path)
		apply(&out.InboxDir, cfg.Inbox, SourceConfig, path)
		apply(&out.SkipPolicy, cfg.Assemble.SkipPolicy, SourceConfig, path)
		apply(&out.ContextWindow, cfg.LLM.ContextWindow, SourceConfig, path)

		out.IdiomPatterns = cfg.Extract.IdiomPatterns
		out.DateLayouts = cfg.Validate.DateLayouts

		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			p := providerOf(cfg.LLM.Model)
			if p == "" {
				p = "default"
			}
			out.LLMKeys[p] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
	}

	applyEnv(&out.DBPath, "DOCUFILL_DB")
	applyEnv(&out.InferModel, "DOCUFILL_MODEL")
	applyEnv(&out.InboxDir, "DOCUFILL_INBOX")
	applyEnv(&out.SkipPolicy, "DOCUFILL_SKIP_POLICY")
	applyEnv(&out.ContextWindow, "DOCUFILL_CONTEXT_WINDOW")

	for env, provider := range map[string]string{
		"OPENAI_API_KEY":     "openai",
		"OPENROUTER_API_KEY": "openrouter",
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			out.LLMKeys[provider] = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}

	apply(&out.InferModel, opts.CLIModel, SourceCLI, "--model")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.InboxDir, opts.CLIInbox, SourceCLI, "--inbox")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	if out.InboxDir.Value != "" {
		out.InboxDir.Value = expandUserPath(out.InboxDir.Value)
	}

	return out, nil
}

// APIKeyForModel returns the key for a "provider/model" spec, falling back to
// the default key when no provider-specific one is configured.
func (r ResolvedConfig) APIKeyForModel(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
