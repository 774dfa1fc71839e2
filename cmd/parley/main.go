// Command parley is a conversational agent for the terminal. It loads the
// workspace config, launches the configured MCP tool servers, and runs a
// query through an LLM backend, letting the model call tools until it
// produces a final answer.
//
// Usage:
//
//	parley [flags] [query ...]
//	parley -init
//	OPENAI_API_KEY=sk-... parley "what changed in cmd/ this week?"
//
// Flags:
//
//	-init            Create a starter config file in the current directory
//	-list            List known sessions, most recent first
//	-delete string   Delete the session for the given directory
//	-clear           Delete all sessions and their message logs
//	-edit            Compose the query in your editor
//	-max-turns int   Abort after this many model turns (0 = no limit)
//	-no-history      Do not load or save the message log
//	-verbose         Debug logging and error causes
//	-quiet           Only warnings and errors
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"

	"github.com/fwojciec/parley"
	"github.com/fwojciec/parley/agent"
	"github.com/fwojciec/parley/config"
	"github.com/fwojciec/parley/history"
	"github.com/fwojciec/parley/llm"
	"github.com/fwojciec/parley/mcp"
	"github.com/fwojciec/parley/prompt"
	"github.com/fwojciec/parley/render"
	"github.com/fwojciec/parley/session"
	"go.uber.org/zap"
)

var (
	initFlag   = flag.Bool("init", false, "Create a starter config file in the current directory")
	listFlag   = flag.Bool("list", false, "List known sessions, most recent first")
	deleteFlag = flag.String("delete", "", "Delete the session for the given directory")
	clearFlag  = flag.Bool("clear", false, "Delete all sessions and their message logs")
	editFlag   = flag.Bool("edit", false, "Compose the query in your editor")
	maxTurns   = flag.Int("max-turns", 0, "Abort after this many model turns (0 = no limit)")
	noHistory  = flag.Bool("no-history", false, "Do not load or save the message log")
	verbose    = flag.Bool("verbose", false, "Debug logging and error causes")
	quiet      = flag.Bool("quiet", false, "Only warnings and errors")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		render.New(parley.DefaultTheme(), render.WithVerbose(*verbose)).Fault(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	modes := 0
	for _, on := range []bool{*initFlag, *listFlag, *clearFlag, *deleteFlag != ""} {
		if on {
			modes++
		}
	}
	if modes > 1 {
		return parley.Errorf(parley.FaultUser, "-init, -list, -delete, and -clear are mutually exclusive")
	}

	logger, err := newLogger(*verbose, *quiet)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	switch {
	case *initFlag:
		return runInit()
	case *listFlag:
		return runList(logger)
	case *deleteFlag != "":
		return runDelete(logger, *deleteFlag)
	case *clearFlag:
		return runClear(logger)
	}

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" && !*editFlag {
		flag.Usage()
		return nil
	}

	// Handle OS signals for graceful shutdown. Cancellation also reaps the
	// tool server child processes.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	cfg, err := config.Load(cwd, config.WithLogger(logger))
	if err != nil {
		return err
	}

	if *editFlag {
		query, err = composeInEditor(cfg.Editor, query)
		if err != nil {
			return err
		}
		if query == "" {
			return parley.Errorf(parley.FaultUser, "editor produced an empty query")
		}
	}

	sessions, err := session.Open(session.WithLogger(logger))
	if err != nil {
		return err
	}
	if _, err := sessions.Touch(cfg.Root); err != nil {
		return err
	}

	log, err := history.Open(cfg.Root,
		history.WithDisabled(!cfg.History || *noHistory),
		history.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := log.Save(); err != nil {
			logger.Warn("save message log", zap.Error(err))
		}
	}()

	expander := prompt.New(cfg.Root, prompt.WithLogger(logger))
	system := expander.Expand(cfg.SystemPrompt)
	query = expander.Expand(query)

	connectors := make([]parley.Connector, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		connectors = append(connectors, mcp.New(mcp.Config{
			Name:          s.Name,
			Command:       s.Command,
			Args:          s.Args,
			Env:           mergedEnv(cfg.Env, s.Env),
			Enabled:       s.Enabled,
			DisabledTools: s.DisabledTools,
			Logger:        logger,
		}))
	}

	factory := func(tools []parley.Tool) (parley.Backend, error) {
		return llm.New(ctx, cfg.LLM, system, tools)
	}

	renderer := render.New(parley.DefaultTheme(), render.WithVerbose(*verbose))
	ag := agent.New(factory, log, connectors,
		agent.WithLogger(logger),
		agent.WithMaxTurns(*maxTurns),
		agent.WithMessageHandler(func(msg parley.Message) {
			renderer.Message(os.Stdout, msg)
		}),
	)
	defer func() {
		if err := ag.Close(); err != nil {
			logger.Warn("close tool servers", zap.Error(err))
		}
	}()

	if err := ag.Connect(ctx); err != nil {
		return err
	}
	return ag.Run(ctx, query)
}

// mergedEnv overlays per-server entries on the config-wide env block.
// Config env reaches tool servers through their launch spec, never by
// mutating this process's environment.
func mergedEnv(global, server map[string]string) map[string]string {
	if len(global) == 0 {
		return server
	}
	merged := make(map[string]string, len(global)+len(server))
	for k, v := range global {
		merged[k] = v
	}
	for k, v := range server {
		merged[k] = v
	}
	return merged
}

func newLogger(verbose, quiet bool) (*zap.Logger, error) {
	level := zap.InfoLevel
	switch {
	case verbose:
		level = zap.DebugLevel
	case quiet:
		level = zap.WarnLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func runInit() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	path, err := config.Init(cwd)
	if err != nil {
		return err
	}
	fmt.Printf("created %s\n", path)
	return nil
}

func runList(logger *zap.Logger) error {
	sessions, err := session.Open(session.WithLogger(logger))
	if err != nil {
		return err
	}
	for _, rec := range sessions.List() {
		fmt.Printf("%s  %s  %s\n", rec.ID, rec.UpdatedAt.Format("2006-01-02 15:04"), rec.Directory)
	}
	return nil
}

func runDelete(logger *zap.Logger, dir string) error {
	sessions, err := session.Open(session.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := sessions.Delete(dir); err != nil {
		return err
	}
	fmt.Printf("deleted session for %s\n", dir)
	return nil
}

func runClear(logger *zap.Logger) error {
	sessions, err := session.Open(session.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := sessions.Clear(); err != nil {
		return err
	}
	fmt.Println("cleared all sessions")
	return nil
}

// composeInEditor opens the user's editor on a temp file seeded with initial
// and returns the trimmed result. The editor value may carry arguments,
// e.g. "code -w".
func composeInEditor(editor, initial string) (string, error) {
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return "", parley.Errorf(parley.FaultUser, "no editor configured")
	}

	f, err := os.CreateTemp("", "parley-*.md")
	if err != nil {
		return "", parley.WrapError(parley.FaultInternal, "create query file", err)
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.WriteString(initial); err != nil {
		f.Close()
		return "", parley.WrapError(parley.FaultInternal, "seed query file", err)
	}
	if err := f.Close(); err != nil {
		return "", parley.WrapError(parley.FaultInternal, "close query file", err)
	}

	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", parley.WrapError(parley.FaultUser, fmt.Sprintf("editor %s failed", parts[0]), err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", parley.WrapError(parley.FaultInternal, "read edited query", err)
	}
	return strings.TrimSpace(string(data)), nil
}
