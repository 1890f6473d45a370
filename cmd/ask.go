package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/plantia/plantia/internal/agents"
	"github.com/plantia/plantia/internal/app"
	"github.com/plantia/plantia/internal/config"
	"github.com/plantia/plantia/internal/log"
	"github.com/plantia/plantia/internal/session"
)

// runAsk answers a single question and exits.
func runAsk(logger log.Logger) error {
	askFlags := flag.NewFlagSet("ask", flag.ContinueOnError)
	askFlags.SetOutput(os.Stderr)
	agentName := askFlags.String("agent", "", "Force a specific agent by name")
	sources := askFlags.Bool("sources", false, "Include source excerpts in the output")

	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}
	if err := askFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing ask flags: %w", err)
	}

	question := strings.TrimSpace(strings.Join(askFlags.Args(), " "))
	if question == "" {
		return fmt.Errorf("usage: plantia ask [--agent name] [--sources] <question>")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	result, err := a.Agents.ProcessQuestion(ctx, agents.ProcessRequest{
		Question:       question,
		SessionID:      session.NewSessionID(),
		AgentType:      *agentName,
		IncludeSources: *sources,
	})
	if err != nil {
		return fmt.Errorf("processing question: %w", err)
	}

	fmt.Println(result.Answer)

	if agent, ok := result.Metadata["agent"]; ok {
		if conf, ok := result.Metadata["confidence"].(float64); ok {
			fmt.Fprintf(os.Stderr, "\n[agent: %v, confidence: %.2f]\n", agent, conf)
		}
	}
	if *sources {
		if raw, ok := result.Metadata["sources"].([]map[string]any); ok && len(raw) > 0 {
			fmt.Fprintln(os.Stderr, "\nSources:")
			for i, src := range raw {
				fmt.Fprintf(os.Stderr, "  [%d] %v\n", i+1, src["excerpt"])
			}
		}
	}

	return nil
}
