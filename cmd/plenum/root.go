// plenum simulates one policy-committee meeting as a resumable pipeline:
// briefing materials in, per-stage JSON artifacts and markdown drafts out.
//
// Usage:
//
//	plenum run <meeting-id> [--refresh]
//	plenum stage <meeting-id> <stage> [--refresh]
//	plenum status <meeting-id>
//	plenum materials <meeting-id>
//	plenum serve [--jobs-db <path>]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"plenum/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	flagRunDir       string
	flagMaterialsDir string
	flagCommittee    string
	flagLogLevel     string
	flagLogFormat    string
	flagGatewayURL   string
	flagModel        string
)

var rootCmd = &cobra.Command{
	Use:   "plenum",
	Short: "Simulated policy-committee meetings with auditable artifacts",
	Long: "Plenum runs a scripted committee meeting against a generation backend:\n" +
		"briefings become a shared fact blackboard, members take stances, debate,\n" +
		"vote, and the run ends in a statement and minutes. Every stage is cached\n" +
		"on disk and every generation call is logged.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logging.Init(logging.ParseLevel(flagLogLevel), flagLogFormat)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagRunDir, "run-dir", ".plenum/runs", "directory holding per-meeting run artifacts")
	pf.StringVar(&flagMaterialsDir, "materials-dir", ".plenum/materials", "directory holding per-meeting briefing files")
	pf.StringVar(&flagCommittee, "committee", "", "committee config YAML (default: embedded three-member committee)")
	pf.StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&flagLogFormat, "log-format", "text", "log format: text or json")
	pf.StringVar(&flagGatewayURL, "gateway-url", "", "chat-completions base URL (default: DeepSeek)")
	pf.StringVar(&flagModel, "model", "", "model name for the generation backend")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(materialsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
