// Package config loads parley configuration by merging a global file under
// the user config directory with a workspace-local file found by walking up
// from the working directory. The local file wins wherever both set a value.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fwojciec/parley"
	"github.com/fwojciec/parley/llm"
)

// FileName is the workspace-local configuration file. Its presence marks
// the workspace root.
const FileName = ".parley-config.json"

// DefaultSystemPrompt is used when no systemPrompt is configured.
const DefaultSystemPrompt = `You are an agent named parley helping a software developer work in the current directory.

DO ASSUME file content is correct.

DO NOT ASSUME any file edits you have previously made were persisted, or were correct.

DO NOT ASSUME that you should make file edits. Only make changes when asked; when asked to "show" or "tell", just answer.`

// Config is the merged, validated parley configuration.
type Config struct {
	SystemPrompt string
	Editor       string
	History      bool
	Env          map[string]string
	LLM          llm.Config
	Servers      []Server

	// Root is the workspace directory, where the local config file lives.
	Root string
}

// Server declares one MCP tool server process.
type Server struct {
	Name          string
	Command       string
	Args          []string
	Env           map[string]string
	Enabled       bool
	DisabledTools []string
}

// loader carries Load options.
type loader struct {
	globalPath string
	logger     *zap.Logger
}

// Option configures Load and Init.
type Option func(*loader)

// WithGlobalPath overrides the global configuration file location. Defaults
// to parley/config.json under the user config directory.
func WithGlobalPath(path string) Option {
	return func(l *loader) {
		l.globalPath = path
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *loader) {
		l.logger = logger
	}
}

func newLoader(opts []Option) *loader {
	l := &loader{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	if l.globalPath == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			l.globalPath = filepath.Join(dir, "parley", "config.json")
		}
	}
	return l
}

// Load merges the global and workspace configuration for dir and applies
// defaults and environment fallbacks. A workspace file is required; Load
// fails if none is found in dir or any parent.
func Load(dir string, opts ...Option) (*Config, error) {
	l := newLoader(opts)

	globalRaw, globalData, err := loadRaw(l.globalPath)
	if err != nil {
		return nil, err
	}

	localPath, ok := findUp(dir)
	if !ok {
		return nil, parley.Errorf(parley.FaultUser,
			"no %s found in %s or any parent directory (run \"parley -init\" to create one)", FileName, dir)
	}
	localRaw, localData, err := loadRaw(localPath)
	if err != nil {
		return nil, err
	}

	merged := deepMerge(globalRaw, localRaw)
	order := serverOrder(globalData, localData)

	cfg, err := parse(merged, order, filepath.Dir(localPath))
	if err != nil {
		return nil, err
	}

	envCfg, err := parseEnv()
	if err != nil {
		return nil, err
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Editor == "" {
		cfg.Editor = envCfg.Editor
	}
	if cfg.Editor == "" {
		cfg.Editor = "vim"
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = envCfg.OpenAIAPIKey
	}

	if cfg.LLM.Provider == "" {
		return nil, parley.Errorf(parley.FaultUser, "must specify \"llm\" in %s", FileName)
	}

	l.logger.Debug("loaded configuration",
		zap.String("global", l.globalPath),
		zap.String("local", localPath),
		zap.String("provider", cfg.LLM.Provider),
		zap.Int("servers", len(cfg.Servers)))
	return cfg, nil
}

// fileDTO is the JSON shape of a configuration file.
type fileDTO struct {
	SystemPrompt string               `json:"systemPrompt"`
	Editor       string               `json:"editor"`
	History      *bool                `json:"history"`
	Env          map[string]string    `json:"env"`
	LLM          *llmDTO              `json:"llm"`
	MCPServers   map[string]serverDTO `json:"mcpServers"`
}

type llmDTO struct {
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url"`
	Region      string   `json:"region"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
	TopP        *float64 `json:"top_p"`
}

// serverDTO uses pointers for the required keys so a missing key can be
// reported by name.
type serverDTO struct {
	Command       *string           `json:"command"`
	Args          *[]string         `json:"args"`
	Env           map[string]string `json:"env"`
	Enabled       *bool             `json:"enabled"`
	DisabledTools []string          `json:"disabledTools"`
}

func parse(merged map[string]any, order []string, root string) (*Config, error) {
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, parley.WrapError(parley.FaultInternal, "encode merged configuration", err)
	}
	var dto fileDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, parley.WrapError(parley.FaultUser, "invalid configuration", err)
	}

	cfg := &Config{
		SystemPrompt: dto.SystemPrompt,
		Editor:       dto.Editor,
		History:      dto.History == nil || *dto.History,
		Env:          dto.Env,
		Root:         root,
	}
	if dto.LLM != nil {
		cfg.LLM = llm.Config{
			Provider:    dto.LLM.Provider,
			Model:       dto.LLM.Model,
			APIKey:      dto.LLM.APIKey,
			BaseURL:     dto.LLM.BaseURL,
			Region:      dto.LLM.Region,
			MaxTokens:   dto.LLM.MaxTokens,
			Temperature: dto.LLM.Temperature,
			TopP:        dto.LLM.TopP,
		}
	}

	for _, name := range order {
		s, ok := dto.MCPServers[name]
		if !ok {
			continue
		}
		var missing []string
		if s.Command == nil {
			missing = append(missing, "command")
		}
		if s.Args == nil {
			missing = append(missing, "args")
		}
		if len(missing) > 0 {
			return nil, parley.Errorf(parley.FaultUser,
				"the MCP server %q is missing required keys: %s", name, strings.Join(missing, ", "))
		}
		cfg.Servers = append(cfg.Servers, Server{
			Name:          name,
			Command:       *s.Command,
			Args:          *s.Args,
			Env:           s.Env,
			Enabled:       s.Enabled == nil || *s.Enabled,
			DisabledTools: s.DisabledTools,
		})
	}
	return cfg, nil
}

// loadRaw reads a configuration file into a generic map. A missing file is
// an empty configuration.
func loadRaw(path string) (map[string]any, []byte, error) {
	if path == "" {
		return map[string]any{}, nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, parley.WrapError(parley.FaultUser, fmt.Sprintf("parse %s", path), err)
	}
	return raw, data, nil
}

// findUp walks from dir toward the filesystem root looking for the local
// configuration file.
func findUp(dir string) (string, bool) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		path := filepath.Join(dir, FileName)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
