// Wip-agent is a widget-aware chat agent.
//
// It sits between a chat UI and an OpenAI-compatible completion
// endpoint, shows the model a catalog of UI widgets published by an
// MCP server, runs the model's tool calls against that server, and
// normalizes every answer into a widget-selection contract the UI can
// render. Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	wip-agent serve          Start the API server
//	wip-agent ask <message>  Run a single turn (for testing)
//	wip-agent version        Print version and build information
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/wiplab/wip-agent/internal/api"
	"github.com/wiplab/wip-agent/internal/buildinfo"
	"github.com/wiplab/wip-agent/internal/config"
	"github.com/wiplab/wip-agent/internal/llm"
	"github.com/wiplab/wip-agent/internal/mcp"
	"github.com/wiplab/wip-agent/internal/memory"
	"github.com/wiplab/wip-agent/internal/orchestrator"
	"github.com/wiplab/wip-agent/internal/rag"
)

// main constructs the OS-level environment and delegates to run so the
// full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which interfere with
// calling run concurrently from tests, and the surface is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	switch command {
	case "", "help":
		return printUsage(stdout)
	case "version":
		return versionCommand(stdout)
	case "serve":
		return serveCommand(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: wip-agent ask <message>")
		}
		return askCommand(ctx, stdout, configPath, strings.Join(cmdArgs, " "))
	default:
		return fmt.Errorf("unknown command %q (try: wip-agent help)", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintf(w, `wip-agent %s — widget-aware chat agent

Usage:

  wip-agent [flags] <command>

Commands:

  serve          Start the API server
  ask <message>  Run a single chat turn and print the result
  version        Print version and build information

Flags:

  -config <path>  Config file (default: search %v)
`, buildinfo.Version, config.DefaultSearchPaths())
	return nil
}

func versionCommand(w io.Writer) error {
	fmt.Fprintln(w, buildinfo.String())
	return nil
}

// components holds everything a command needs after wiring.
type components struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *llm.OpenAIClient
	mcpc    *mcp.Client
	store   *memory.Store
	archive *memory.Archive
	orch    *orchestrator.Orchestrator
}

func (c *components) close() {
	if c.archive != nil {
		c.archive.Close()
	}
	if c.mcpc != nil {
		c.mcpc.Close()
	}
}

// setup loads configuration and wires the orchestrator stack.
func setup(ctx context.Context, stdout io.Writer, configPath string) (*components, error) {
	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logger := newLogger(stdout, parseLogLevel(cfg.LogLevel), cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("starting", "version", buildinfo.Version, "config", cfgPath)

	var transport mcp.Transport
	switch cfg.MCP.Transport {
	case "", "stdio":
		transport, err = mcp.NewStdioTransport(cfg.MCP.Command, cfg.MCP.Args, cfg.MCP.Env)
		if err != nil {
			return nil, fmt.Errorf("start widget server: %w", err)
		}
	case "http":
		transport = mcp.NewHTTPTransport(cfg.MCP.URL, cfg.MCP.Headers)
	default:
		return nil, fmt.Errorf("unknown mcp transport %q", cfg.MCP.Transport)
	}

	c := &components{
		cfg:    cfg,
		logger: logger,
		client: llm.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model),
		mcpc:   mcp.NewClient(transport, logger),
		store:  memory.NewStore(cfg.Memory.Capacity),
	}

	if cfg.Memory.ArchivePath != "" {
		c.archive, err = memory.OpenArchive(cfg.Memory.ArchivePath, logger)
		if err != nil {
			c.close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
	}

	var retriever rag.Retriever
	if cfg.Retriever.Enabled {
		retriever, err = buildRetriever(ctx, c, cfg)
		if err != nil {
			c.close()
			return nil, err
		}
	}

	c.orch = orchestrator.New(c.client, c.mcpc, c.store, logger, orchestrator.Options{
		SystemPrompt: cfg.SystemPrompt,
		ToolErrors:   cfg.ToolErrors,
		TopK:         cfg.Retriever.TopK,
		Archive:      c.archive,
		Retriever:    retriever,
	})
	return c, nil
}

// buildRetriever indexes the full widget catalog at startup.
func buildRetriever(ctx context.Context, c *components, cfg *config.Config) (rag.Retriever, error) {
	index := rag.NewIndex(rag.NewEmbeddingClient(cfg.Retriever.BaseURL, cfg.Retriever.Model))

	docs, err := c.orchestratorlessCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load widget catalog for retriever: %w", err)
	}
	if err := index.Add(ctx, docs...); err != nil {
		return nil, fmt.Errorf("index widget catalog: %w", err)
	}
	c.logger.Info("widget retriever ready", "widgets", index.Len())
	return index, nil
}

// orchestratorlessCatalog reads the widget catalog directly off the
// MCP client; the orchestrator is not wired yet when the retriever is
// being built.
func (c *components) orchestratorlessCatalog(ctx context.Context) ([]string, error) {
	resources, err := c.mcpc.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	var docs []string
	for _, r := range resources {
		if !strings.HasPrefix(r.URI, "wip://") {
			continue
		}
		text, err := c.mcpc.ReadResource(ctx, r.URI)
		if err != nil {
			c.logger.Warn("widget resource unreadable", "uri", r.URI, "error", err)
			continue
		}
		docs = append(docs, text)
	}
	return docs, nil
}

func serveCommand(ctx context.Context, stdout io.Writer, configPath string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := setup(ctx, stdout, configPath)
	if err != nil {
		return err
	}
	defer c.close()

	addr := fmt.Sprintf("%s:%d", c.cfg.Listen.Address, c.cfg.Listen.Port)
	server := api.New(addr, c.orch, c.mcpc, c.store, c.archive, c.client, c.logger)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	c.logger.Info("shutdown complete")
	return nil
}

func askCommand(ctx context.Context, stdout io.Writer, configPath, message string) error {
	c, err := setup(ctx, io.Discard, configPath)
	if err != nil {
		return err
	}
	defer c.close()

	result, err := c.orch.RunTurn(ctx, uuid.NewString(), message)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
