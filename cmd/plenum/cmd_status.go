package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"plenum/internal/pipeline"
	"plenum/internal/runstore"
)

var statusCmd = &cobra.Command{
	Use:   "status <meeting-id>",
	Short: "Show a meeting run's manifest",
	Long:  "Reads the run manifest and lists which stages exist, their sizes and timestamps. Needs no generation backend.",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, args []string) error {
	run, err := runstore.Open(flagRunDir, args[0])
	if err != nil {
		return err
	}
	m, err := run.Manifest()
	if err != nil {
		return err
	}

	fmt.Printf("meeting %s (created %s)\n", m.MeetingID, m.CreatedAt)
	if len(m.Context) > 0 {
		keys := make([]string, 0, len(m.Context))
		for k := range m.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %v\n", k, m.Context[k])
		}
	}

	done := 0
	for _, stage := range pipeline.Order {
		info, ok := m.Artifacts[string(stage)]
		if !ok {
			fmt.Printf("  %-18s -\n", stage)
			continue
		}
		done++
		fmt.Printf("  %-18s %8d bytes  %s\n", stage, info.Bytes, info.UpdatedAt)
	}
	fmt.Printf("%d/%d stages complete\n", done, len(pipeline.Order))

	// Side artifacts outside the stage order (statement, minutes, transcript).
	var extras []string
	for name := range m.Artifacts {
		if _, err := pipeline.ParseStage(name); err != nil {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		info := m.Artifacts[name]
		fmt.Printf("  %-18s %8d bytes  %s\n", name, info.Bytes, info.Path)
	}
	return nil
}
