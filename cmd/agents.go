package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/plantia/plantia/internal/config"
	"github.com/plantia/plantia/internal/configstore"
	"github.com/plantia/plantia/internal/log"
)

// runAgents lists the configured agents. Reads configuration only, no
// database or LLM required.
func runAgents(logger log.Logger) error {
	store, err := openConfigStore(logger)
	if err != nil {
		return err
	}

	defs, err := store.LoadAgents()
	if err != nil {
		return fmt.Errorf("loading agent definitions: %w", err)
	}
	if len(defs) == 0 {
		fmt.Println("No agents configured. Run `plantia serve` once to seed defaults.")
		return nil
	}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if defs[names[i]].Priority != defs[names[j]].Priority {
			return defs[names[i]].Priority < defs[names[j]].Priority
		}
		return names[i] < names[j]
	})

	fmt.Printf("%-20s %-24s %-8s %-8s %s\n", "NAME", "CLASS", "PRIORITY", "ENABLED", "TOPICS")
	for _, name := range names {
		def := defs[name]
		flags := ""
		if def.FallbackEnabled {
			flags = " (fallback)"
		}
		fmt.Printf("%-20s %-24s %-8d %-8t %s%s\n",
			name, def.ClassName, def.Priority, def.Enabled,
			strings.Join(def.Topics, ","), flags)

		v := configstore.ValidateAgent(def)
		for _, e := range v.Errors {
			fmt.Printf("  ! %s\n", e)
		}
	}

	return nil
}

// openConfigStore opens the dynamic config directory from the application
// config.
func openConfigStore(logger log.Logger) (*configstore.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	store, err := configstore.New(cfg.ConfigDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening config directory: %w", err)
	}
	return store, nil
}
