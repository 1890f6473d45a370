// Package cmd provides the plantia CLI commands.
//
// Commands:
//   - serve:  HTTP API server
//   - mcp:    Model Context Protocol server for editor/desktop integration
//   - ask:    one-shot question from the terminal
//   - agents: list configured agents
//   - topics: list configured topics
//
// Signal handling and graceful shutdown are implemented for the long-running
// commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/plantia/plantia/internal/log"
)

// Execute is the main entry point for the plantia CLI application.
func Execute() error {
	logger := newLogger()
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger)
	case "mcp":
		return runMCP(logger)
	case "ask":
		return runAsk(logger)
	case "agents":
		return runAgents(logger)
	case "topics":
		return runTopics(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// newLogger builds the process logger once at entry.
// PLANTIA_DEBUG enables debug level; PLANTIA_LOG_JSON switches to JSON output
// for log collectors.
func newLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("PLANTIA_DEBUG") != "" {
		cfg.Level = slog.LevelDebug
		cfg.AddSource = true
	}
	if os.Getenv("PLANTIA_LOG_JSON") != "" {
		cfg.JSON = true
	}
	return log.New(cfg)
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Plantia - multi-topic plant care assistant")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  plantia serve [addr]            Start HTTP API server (default: 127.0.0.1:8080)")
	fmt.Println("  plantia mcp                     Start MCP server (stdio, for Claude Desktop/Cursor)")
	fmt.Println("  plantia ask [flags] <question>  Ask a one-shot question")
	fmt.Println("  plantia agents                  List configured agents")
	fmt.Println("  plantia topics                  List configured topics")
	fmt.Println("  plantia --version               Show version information")
	fmt.Println("  plantia --help                  Show this help")
	fmt.Println()
	fmt.Println("Ask flags:")
	fmt.Println("  --agent <name>     Force a specific agent instead of automatic selection")
	fmt.Println("  --sources          Include source excerpts in the output")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  PLANTIA_CONFIG_DIR   Dynamic config directory (default: ./data/configs)")
	fmt.Println("  PLANTIA_PROVIDER     LLM provider: ollama (default), gemini")
	fmt.Println("  GEMINI_API_KEY       Required when provider is gemini")
	fmt.Println("  PLANTIA_DEBUG        Enable debug logging")
	fmt.Println()
	fmt.Println("Learn more: https://github.com/plantia/plantia")
}
