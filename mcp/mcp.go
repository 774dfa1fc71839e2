// Package mcp connects to Model Context Protocol tool servers over stdio.
//
// A Server launches its configured command as a child process, performs the
// protocol handshake, discovers the advertised tools, and routes invocations
// to the running session. Close tears the session down and is safe on every
// exit path, including before Connect and more than once.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fwojciec/parley"
)

const (
	clientName    = "parley"
	clientVersion = "0.1.0"
)

// transportBuilder is overridden in tests to stub the transport factory.
var transportBuilder = func(cmd *exec.Cmd) mcpsdk.Transport {
	return &mcpsdk.CommandTransport{Command: cmd}
}

// Interface compliance check.
var _ parley.Connector = (*Server)(nil)

// Config describes one tool server: how to launch it and which of its tools
// to expose. Env entries are added to the child's environment explicitly;
// the parent process environment is never mutated.
type Config struct {
	Name          string
	Command       string
	Args          []string
	Env           map[string]string
	Enabled       bool
	DisabledTools []string
	Logger        *zap.Logger
}

// Server is a connector to a single MCP tool server.
type Server struct {
	name     string
	command  string
	args     []string
	env      map[string]string
	enabled  bool
	disabled map[string]bool
	logger   *zap.Logger

	// mu serializes tool invocations and guards session state.
	mu      sync.Mutex
	session *mcpsdk.ClientSession
	tools   []parley.Tool
}

// New creates a Server from cfg. The server is not launched until Connect.
func New(cfg Config) *Server {
	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		name:     cfg.Name,
		command:  cfg.Command,
		args:     cfg.Args,
		env:      cfg.Env,
		enabled:  cfg.Enabled,
		disabled: disabled,
		logger:   logger,
	}
}

// Name returns the configured server name.
func (s *Server) Name() string { return s.name }

// Connect launches the server process, performs the handshake, and discovers
// tools. A disabled server connects to nothing and reports zero tools. The
// child process lifetime is bound to ctx.
func (s *Server) Connect(ctx context.Context) error {
	if !s.enabled {
		s.logger.Info("server is not enabled", zap.String("server", s.name))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return parley.Errorf(parley.FaultInternal, "%s server is already connected", s.name)
	}

	cmd := exec.CommandContext(ctx, s.command, s.args...)
	cmd.Env = childEnv(s.env)

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: clientName, Version: clientVersion}, nil)
	session, err := client.Connect(ctx, transportBuilder(cmd), nil)
	if err != nil {
		return &parley.Error{
			Owner:     parley.FaultMCPServer,
			Retriable: true,
			Message:   fmt.Sprintf("connect to %s server", s.name),
			Err:       err,
		}
	}

	var tools []parley.Tool
	var names []string
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return &parley.Error{
				Owner:     parley.FaultMCPServer,
				Retriable: true,
				Message:   fmt.Sprintf("list tools on %s server", s.name),
				Err:       err,
			}
		}
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			_ = session.Close()
			return parley.WrapError(parley.FaultMCPServer, fmt.Sprintf("tool %s on %s server has an unusable schema", tool.Name, s.name), err)
		}
		enabled := !s.disabled[tool.Name]
		tools = append(tools, parley.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
			Enabled:     enabled,
		})
		if enabled {
			names = append(names, tool.Name)
		} else {
			names = append(names, tool.Name+" (disabled)")
		}
	}

	s.session = session
	s.tools = tools
	s.logger.Info("connected", zap.String("server", s.name), zap.Strings("tools", names))
	return nil
}

// Tools returns the discovered tools, including disabled ones. Callers filter
// on Tool.Enabled.
func (s *Server) Tools() []parley.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tools := make([]parley.Tool, len(s.tools))
	copy(tools, s.tools)
	return tools
}

// Invoke calls a tool on the connected server. Calls are serialized: one
// in-flight invocation per server.
func (s *Server) Invoke(ctx context.Context, name string, input json.RawMessage) (*parley.CallResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, parley.Errorf(parley.FaultMCPServer, "%s server is not connected", s.name)
	}

	params := &mcpsdk.CallToolParams{Name: name}
	if len(input) > 0 {
		params.Arguments = input
	}
	start := time.Now()
	res, err := s.session.CallTool(ctx, params)
	if err != nil {
		return nil, &parley.Error{
			Owner:     parley.FaultMCPServer,
			Retriable: true,
			Message:   fmt.Sprintf("call %s on %s server", name, s.name),
			Err:       err,
		}
	}
	s.logger.Debug("tool call",
		zap.String("server", s.name),
		zap.String("tool", name),
		zap.Bool("is_error", res.IsError),
		zap.Duration("took", time.Since(start)))

	result := &parley.CallResult{IsError: res.IsError}
	for _, content := range res.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			result.Content = append(result.Content, parley.ToolOutput{Text: text.Text})
		}
	}
	return result, nil
}

// Close shuts down the session and the child process. It is idempotent and
// safe to call on a server that never connected.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Close()
	s.session = nil
	if err != nil {
		return fmt.Errorf("mcp: close %s server: %w", s.name, err)
	}
	return nil
}

// childEnv builds the child process environment: the parent environment plus
// the configured entries, sorted for determinism. A nil result means inherit.
func childEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := os.Environ()
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
