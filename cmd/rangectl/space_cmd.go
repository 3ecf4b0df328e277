package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/decoyrange/pkg/config"
)

type spaceEntry struct {
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Lower     int     `json:"lower"`
	Upper     int     `json:"upper"`
	Immediate float64 `json:"immediate"`
	Recurring float64 `json:"recurring"`
}

// runSpaceCmd implements `rangectl space`: the dispatcher bounds and reward
// pair of every blue action, in registration order.
func runSpaceCmd(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	cmd := flag.NewFlagSet("space", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	fileFlags(cmd, &cfg)
	var jsonOutput bool
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	files, err := loadFiles(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	rt, err := files.runtime(context.Background(), cfg.Logger(stderr))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	table := rt.RewardTable()
	entries := make([]spaceEntry, 0)
	for _, e := range rt.Entries() {
		r, _ := table.Lookup(e.Name)
		entries = append(entries, spaceEntry{
			Name:      e.Name,
			Kind:      e.Kind.String(),
			Lower:     e.Lower,
			Upper:     e.Upper,
			Immediate: r.Immediate,
			Recurring: r.Recurring,
		})
	}

	if jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{
			"capacity":    rt.Capacity(),
			"fingerprint": rt.Fingerprint(),
			"actions":     entries,
		})
		return 0
	}

	_, _ = fmt.Fprintf(stdout, "%-24s %-8s %-12s %10s %10s\n", "ACTION", "KIND", "TOKENS", "IMMEDIATE", "RECURRING")
	for _, e := range entries {
		_, _ = fmt.Fprintf(stdout, "%-24s %-8s %-12s %10.2f %10.2f\n",
			e.Name, e.Kind, fmt.Sprintf("[%d,%d)", e.Lower, e.Upper), e.Immediate, e.Recurring)
	}
	_, _ = fmt.Fprintf(stdout, "capacity %d\n", rt.Capacity())
	return 0
}
