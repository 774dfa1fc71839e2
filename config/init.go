package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fwojciec/parley"
)

// Init writes a starter workspace configuration to dir, seeded from the
// global configuration plus a filesystem MCP server scoped to the
// workspace. It refuses to overwrite an existing file and returns the path
// it created.
func Init(dir string, opts ...Option) (string, error) {
	l := newLoader(opts)

	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return "", parley.Errorf(parley.FaultUser, "%s already exists", path)
	}

	starter, _, err := loadRaw(l.globalPath)
	if err != nil {
		return "", err
	}
	for key, value := range starter {
		if value == nil {
			delete(starter, key)
		}
	}

	if _, ok := starter["llm"]; !ok {
		starter["llm"] = map[string]any{"provider": "", "model": ""}
	}

	servers, ok := starter["mcpServers"].(map[string]any)
	if !ok {
		servers = map[string]any{}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	servers["filesystem"] = map[string]any{
		"command": "npx",
		"args":    []string{"-y", "@modelcontextprotocol/server-filesystem", abs},
	}
	starter["mcpServers"] = servers

	data, err := json.MarshalIndent(starter, "", "  ")
	if err != nil {
		return "", parley.WrapError(parley.FaultInternal, "encode starter configuration", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", parley.WrapError(parley.FaultInternal, "write starter configuration", err)
	}
	return path, nil
}
