package main

import (
	"context"

	"github.com/spf13/cobra"

	"plenum/internal/jobs"
	"plenum/internal/logging"
	mcpserver "plenum/internal/mcp"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	serveJobsDB  string
	serveJobsMem bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout exposing start_meeting,
meeting_status, get_stage and get_manifest. Meeting runs execute as
background jobs; their status survives restarts in the SQLite job store.

The server monitors for parent process death and self-terminates when the
client disconnects, to prevent zombie processes.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveJobsDB, "jobs-db", jobs.DefaultDBPath, "SQLite job store path")
	serveCmd.Flags().BoolVar(&serveJobsMem, "jobs-mem", false, "keep jobs in memory only (testing)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	o, err := buildOrchestrator()
	if err != nil {
		return err
	}

	var store jobs.Store
	if serveJobsMem {
		store = jobs.NewMemStore()
	} else {
		store, err = jobs.Open(serveJobsDB)
		if err != nil {
			return err
		}
	}
	defer store.Close()

	srv := mcpserver.NewServer(o, store)
	defer srv.Wait()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	mcpserver.WatchParent(ctx, cancel)

	logging.New("mcp").Info("starting plenum MCP server over stdio (parent watchdog active)")
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
