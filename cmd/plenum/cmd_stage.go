package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"plenum/internal/pipeline"
)

var stageRefresh bool

var stageCmd = &cobra.Command{
	Use:   "stage <meeting-id> <stage>",
	Short: "Ensure one stage and print its artifact",
	Long: `Ensures the named stage exists (running missing upstream stages first)
and writes the artifact to stdout. Stages: blackboard, stance_cards,
opening, chair_questions, answers, round_summary, packages,
package_views, votes, tally, drafts.`,
	Args: cobra.ExactArgs(2),
	RunE: runStage,
}

func init() {
	stageCmd.Flags().BoolVar(&stageRefresh, "refresh", false, "regenerate this stage even when cached")
}

func runStage(cmd *cobra.Command, args []string) error {
	meetingID := args[0]
	stage, err := pipeline.ParseStage(args[1])
	if err != nil {
		return err
	}
	o, err := buildOrchestrator()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, raw, err := o.EnsureStage(ctx, meetingID, stage, stageRefresh)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(raw, '\n'))
	if err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}
