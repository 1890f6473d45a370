package cmd

import (
	"fmt"
	"sort"

	"github.com/plantia/plantia/internal/log"
)

// runTopics lists the configured topics with their validation state. Reads
// configuration only, no database or LLM required.
func runTopics(logger log.Logger) error {
	store, err := openConfigStore(logger)
	if err != nil {
		return err
	}

	names := store.DiscoverTopics()
	if len(names) == 0 {
		fmt.Println("No topics configured. Run `plantia serve` once to seed defaults.")
		return nil
	}
	sort.Strings(names)

	fmt.Printf("%-20s %-24s %-8s %-10s %s\n", "NAME", "COLLECTION", "ENABLED", "SEARCH", "STATUS")
	for _, name := range names {
		cfg, err := store.LoadTopic(name)
		if err != nil {
			fmt.Printf("%-20s %-24s %-8s %-10s unreadable: %v\n", name, "-", "-", "-", err)
			continue
		}

		status := "ok"
		v := store.ValidateTopic(name)
		if !v.Valid {
			status = fmt.Sprintf("invalid (%d errors)", len(v.Errors))
		} else if len(v.Warnings) > 0 {
			status = fmt.Sprintf("ok (%d warnings)", len(v.Warnings))
		}

		fmt.Printf("%-20s %-24s %-8t %-10s %s\n",
			name, cfg.Vectorstore.CollectionName, cfg.Enabled, cfg.Retrieval.SearchType, status)
		for _, e := range v.Errors {
			fmt.Printf("  ! %s\n", e)
		}
	}

	return nil
}
