package main

import (
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
)

var runRefresh bool

var runCmd = &cobra.Command{
	Use:   "run <meeting-id>",
	Short: "Run the full meeting pipeline for one meeting",
	Long: `Runs every stage in order, reusing cached artifacts unless --refresh is
given. Briefing files are read from <materials-dir>/<meeting-id>/
(macro.md, employment.md, inflation.md, policy_rule.md).`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runRefresh, "refresh", false, "regenerate every stage even when cached")
}

func runRun(cmd *cobra.Command, args []string) error {
	meetingID := args[0]
	o, err := buildOrchestrator()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := o.RunAll(ctx, meetingID, runRefresh)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(m.Artifacts))
	for name := range m.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Printf("meeting %s: %d artifacts\n", m.MeetingID, len(names))
	for _, name := range names {
		info := m.Artifacts[name]
		fmt.Printf("  %-18s %8d bytes  %s\n", name, info.Bytes, info.Path)
	}
	return nil
}
