package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fwojciec/parley"
	"github.com/fwojciec/parley/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLocal(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(content), 0o600))
}

func writeGlobal(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// missingGlobal points at a global config path that does not exist, so the
// test is independent of the machine's real user config directory.
func missingGlobal(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

func TestLoad_LocalOnly(t *testing.T) {
	dir := t.TempDir()
	writeLocal(t, dir, `{
		"systemPrompt": "Be brief.",
		"editor": "nano",
		"env": {"AWS_PROFILE": "dev"},
		"llm": {
			"provider": "bedrock",
			"model": "anthropic.claude-3-5-sonnet-20241022-v2:0",
			"region": "us-east-1",
			"max_tokens": 2048,
			"temperature": 0.3,
			"top_p": 0.1
		},
		"mcpServers": {
			"calc": {
				"command": "calc-server",
				"args": ["--stdio"],
				"env": {"CALC_MODE": "float"},
				"disabledTools": ["div"]
			}
		}
	}`)

	cfg, err := config.Load(dir, config.WithGlobalPath(missingGlobal(t)))
	require.NoError(t, err)

	assert.Equal(t, "Be brief.", cfg.SystemPrompt)
	assert.Equal(t, "nano", cfg.Editor)
	assert.True(t, cfg.History)
	assert.Equal(t, map[string]string{"AWS_PROFILE": "dev"}, cfg.Env)
	assert.Equal(t, dir, cfg.Root)

	assert.Equal(t, "bedrock", cfg.LLM.Provider)
	assert.Equal(t, "anthropic.claude-3-5-sonnet-20241022-v2:0", cfg.LLM.Model)
	assert.Equal(t, "us-east-1", cfg.LLM.Region)
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.InDelta(t, 0.3, *cfg.LLM.Temperature, 1e-9)
	require.NotNil(t, cfg.LLM.TopP)
	assert.InDelta(t, 0.1, *cfg.LLM.TopP, 1e-9)

	require.Len(t, cfg.Servers, 1)
	s := cfg.Servers[0]
	assert.Equal(t, "calc", s.Name)
	assert.Equal(t, "calc-server", s.Command)
	assert.Equal(t, []string{"--stdio"}, s.Args)
	assert.Equal(t, map[string]string{"CALC_MODE": "float"}, s.Env)
	assert.True(t, s.Enabled)
	assert.Equal(t, []string{"div"}, s.DisabledTools)
}

func TestLoad_MergesGlobalAndLocal(t *testing.T) {
	global := writeGlobal(t, `{
		"editor": "nano",
		"env": {"GLOBAL_VAR": "global", "SHARED_VAR": "from-global"},
		"llm": {"provider": "bedrock", "model": "global-model"},
		"mcpServers": {
			"shared": {"command": "shared-server", "args": []}
		}
	}`)

	dir := t.TempDir()
	writeLocal(t, dir, `{
		"systemPrompt": "Local prompt",
		"env": {"LOCAL_VAR": "local", "SHARED_VAR": "from-local"},
		"llm": {"model": "local-model", "temperature": 0.7},
		"mcpServers": {
			"shared": {"enabled": false}
		}
	}`)

	cfg, err := config.Load(dir, config.WithGlobalPath(global))
	require.NoError(t, err)

	// Local scalars win; global-only values survive.
	assert.Equal(t, "Local prompt", cfg.SystemPrompt)
	assert.Equal(t, "nano", cfg.Editor)

	// Nested objects merge field by field.
	assert.Equal(t, "bedrock", cfg.LLM.Provider)
	assert.Equal(t, "local-model", cfg.LLM.Model)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.InDelta(t, 0.7, *cfg.LLM.Temperature, 1e-9)

	assert.Equal(t, map[string]string{
		"GLOBAL_VAR": "global",
		"LOCAL_VAR":  "local",
		"SHARED_VAR": "from-local",
	}, cfg.Env)

	// The local file disabled the globally declared server without
	// restating command and args.
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, "shared", cfg.Servers[0].Name)
	assert.Equal(t, "shared-server", cfg.Servers[0].Command)
	assert.False(t, cfg.Servers[0].Enabled)
}

func TestLoad_ServerOrderAndCasePreserved(t *testing.T) {
	global := writeGlobal(t, `{
		"llm": {"provider": "ollama"},
		"mcpServers": {
			"zeta": {"command": "z", "args": []},
			"Alpha": {"command": "a", "args": []}
		}
	}`)

	dir := t.TempDir()
	writeLocal(t, dir, `{
		"mcpServers": {
			"middle": {"command": "m", "args": []}
		}
	}`)

	cfg, err := config.Load(dir, config.WithGlobalPath(global))
	require.NoError(t, err)

	names := make([]string, len(cfg.Servers))
	for i, s := range cfg.Servers {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"zeta", "Alpha", "middle"}, names)
}

func TestLoad_FindsConfigInParent(t *testing.T) {
	root := t.TempDir()
	writeLocal(t, root, `{"llm": {"provider": "ollama"}}`)
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	cfg, err := config.Load(nested, config.WithGlobalPath(missingGlobal(t)))
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Root)
}

func TestLoad_MissingLocalConfig(t *testing.T) {
	_, err := config.Load(t.TempDir(), config.WithGlobalPath(missingGlobal(t)))
	require.Error(t, err)
	assert.Equal(t, parley.FaultUser, parley.OwnerOf(err))
	assert.Contains(t, err.Error(), "parley -init")
}

func TestLoad_MissingLLM(t *testing.T) {
	dir := t.TempDir()
	writeLocal(t, dir, `{"mcpServers": {}}`)

	_, err := config.Load(dir, config.WithGlobalPath(missingGlobal(t)))
	require.Error(t, err)
	assert.Equal(t, parley.FaultUser, parley.OwnerOf(err))
	assert.Contains(t, err.Error(), `"llm"`)
}

func TestLoad_ServerMissingRequiredKeys(t *testing.T) {
	dir := t.TempDir()
	writeLocal(t, dir, `{
		"llm": {"provider": "ollama"},
		"mcpServers": {"broken": {"command": "x"}}
	}`)

	_, err := config.Load(dir, config.WithGlobalPath(missingGlobal(t)))
	require.Error(t, err)
	assert.Equal(t, parley.FaultUser, parley.OwnerOf(err))
	assert.Contains(t, err.Error(), `"broken"`)
	assert.Contains(t, err.Error(), "args")
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	writeLocal(t, dir, `{not json`)

	_, err := config.Load(dir, config.WithGlobalPath(missingGlobal(t)))
	require.Error(t, err)
	assert.Equal(t, parley.FaultUser, parley.OwnerOf(err))
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EDITOR", "")
	t.Setenv("OPENAI_API_KEY", "")

	dir := t.TempDir()
	writeLocal(t, dir, `{"llm": {"provider": "ollama"}, "history": false}`)

	cfg, err := config.Load(dir, config.WithGlobalPath(missingGlobal(t)))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSystemPrompt, cfg.SystemPrompt)
	assert.Equal(t, "vim", cfg.Editor)
	assert.False(t, cfg.History)
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestLoad_EnvFallbacks(t *testing.T) {
	t.Setenv("EDITOR", "hx")
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	dir := t.TempDir()
	writeLocal(t, dir, `{"llm": {"provider": "openai"}}`)

	cfg, err := config.Load(dir, config.WithGlobalPath(missingGlobal(t)))
	require.NoError(t, err)
	assert.Equal(t, "hx", cfg.Editor)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
}

func TestLoad_ConfigKeyBeatsEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	dir := t.TempDir()
	writeLocal(t, dir, `{"llm": {"provider": "openai", "api_key": "sk-from-config"}}`)

	cfg, err := config.Load(dir, config.WithGlobalPath(missingGlobal(t)))
	require.NoError(t, err)
	assert.Equal(t, "sk-from-config", cfg.LLM.APIKey)
}

func TestInit(t *testing.T) {
	global := writeGlobal(t, `{"llm": {"provider": "bedrock", "model": "m"}}`)
	dir := t.TempDir()

	path, err := config.Init(dir, config.WithGlobalPath(global))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, config.FileName), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))

	var servers map[string]struct {
		Command string   `json:"command"`
		Args    []string `json:"args"`
	}
	require.NoError(t, json.Unmarshal(raw["mcpServers"], &servers))
	fs, ok := servers["filesystem"]
	require.True(t, ok, "expected a filesystem server in the starter config")
	assert.Equal(t, "npx", fs.Command)
	require.NotEmpty(t, fs.Args)
	assert.Contains(t, fs.Args, "@modelcontextprotocol/server-filesystem")

	// The global llm section was carried over, so Load succeeds as-is.
	cfg, err := config.Load(dir, config.WithGlobalPath(global))
	require.NoError(t, err)
	assert.Equal(t, "bedrock", cfg.LLM.Provider)
}

func TestInit_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	writeLocal(t, dir, `{}`)

	_, err := config.Init(dir, config.WithGlobalPath(missingGlobal(t)))
	require.Error(t, err)
	assert.Equal(t, parley.FaultUser, parley.OwnerOf(err))
	assert.Contains(t, err.Error(), "already exists")
}
