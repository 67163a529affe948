// Package mcp exposes the meeting pipeline over the Model Context
// Protocol. Long runs execute as background jobs; clients poll job status
// and read stage artifacts once they land.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"plenum/internal/jobs"
	"plenum/internal/logging"
	"plenum/internal/pipeline"
	"plenum/internal/runstore"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP SDK server around one pipeline orchestrator and a
// job store.
type Server struct {
	MCPServer *sdkmcp.Server

	orch   *pipeline.Orchestrator
	store  jobs.Store
	runner *jobs.Runner
	log    *slog.Logger
}

// NewServer creates an MCP server serving the given orchestrator, with
// background runs tracked in store.
func NewServer(orch *pipeline.Orchestrator, store jobs.Store) *Server {
	s := &Server{orch: orch, store: store, log: logging.New("mcp")}
	s.runner = jobs.NewRunner(store, s.runJob)
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "plenum", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "start_meeting",
		Description: "Start a meeting simulation in the background. Returns a job ID to poll with meeting_status.",
	}, s.handleStartMeeting)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "meeting_status",
		Description: "Get a background job's status and its log so far.",
	}, s.handleMeetingStatus)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_stage",
		Description: "Read one stage artifact of a meeting run. Fails if the stage has not been produced yet.",
	}, s.handleGetStage)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_manifest",
		Description: "Read a meeting run's manifest: every artifact with its checksum and timestamps.",
	}, s.handleGetManifest)
}

// --- Tool input/output types ---

type startMeetingInput struct {
	MeetingID string `json:"meeting_id" jsonschema:"meeting identifier, e.g. 2025-09-17"`
	Stage     string `json:"stage,omitempty" jsonschema:"run only up to this stage (default: full run)"`
	Refresh   bool   `json:"refresh,omitempty" jsonschema:"regenerate even when cached artifacts exist"`
}

type startMeetingOutput struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type meetingStatusInput struct {
	JobID string `json:"job_id" jsonschema:"job ID from start_meeting"`
}

type meetingStatusOutput struct {
	Job *jobs.Job       `json:"job"`
	Log []jobs.LogEntry `json:"log"`
}

type getStageInput struct {
	MeetingID string `json:"meeting_id" jsonschema:"meeting identifier"`
	Stage     string `json:"stage" jsonschema:"stage name (blackboard, stance_cards, ..., drafts)"`
}

type getStageOutput struct {
	Stage     string `json:"stage"`
	UpdatedAt string `json:"updated_at"`
	Artifact  string `json:"artifact"`
}

type getManifestInput struct {
	MeetingID string `json:"meeting_id" jsonschema:"meeting identifier"`
}

type getManifestOutput struct {
	Manifest *runstore.Manifest `json:"manifest"`
}

// --- Tool handlers ---

func (s *Server) handleStartMeeting(_ context.Context, _ *sdkmcp.CallToolRequest, input startMeetingInput) (*sdkmcp.CallToolResult, startMeetingOutput, error) {
	if input.MeetingID == "" {
		return nil, startMeetingOutput{}, fmt.Errorf("meeting_id is required")
	}
	if input.Stage != "" {
		if _, err := pipeline.ParseStage(input.Stage); err != nil {
			return nil, startMeetingOutput{}, err
		}
	}

	job := &jobs.Job{MeetingID: input.MeetingID, Stage: input.Stage, Refresh: input.Refresh}
	// The run outlives this tool call; detach it from the request context.
	id, err := s.runner.Start(context.Background(), job)
	if err != nil {
		return nil, startMeetingOutput{}, fmt.Errorf("start meeting: %w", err)
	}
	s.log.Info("meeting job started", "job", id, "meeting", input.MeetingID, "stage", input.Stage, "refresh", input.Refresh)
	return nil, startMeetingOutput{JobID: id, Status: string(jobs.StatusPending)}, nil
}

func (s *Server) handleMeetingStatus(_ context.Context, _ *sdkmcp.CallToolRequest, input meetingStatusInput) (*sdkmcp.CallToolResult, meetingStatusOutput, error) {
	job, err := s.store.Get(input.JobID)
	if err != nil {
		return nil, meetingStatusOutput{}, fmt.Errorf("meeting_status: %w", err)
	}
	if job == nil {
		return nil, meetingStatusOutput{}, fmt.Errorf("no such job: %s", input.JobID)
	}
	log, err := s.store.Log(input.JobID)
	if err != nil {
		return nil, meetingStatusOutput{}, fmt.Errorf("meeting_status: %w", err)
	}
	return nil, meetingStatusOutput{Job: job, Log: log}, nil
}

func (s *Server) handleGetStage(_ context.Context, _ *sdkmcp.CallToolRequest, input getStageInput) (*sdkmcp.CallToolResult, getStageOutput, error) {
	stage, err := pipeline.ParseStage(input.Stage)
	if err != nil {
		return nil, getStageOutput{}, err
	}
	info, raw, err := s.orch.GetStage(input.MeetingID, stage)
	if err != nil {
		return nil, getStageOutput{}, fmt.Errorf("get_stage: %w", err)
	}
	return nil, getStageOutput{
		Stage:     string(stage),
		UpdatedAt: info.UpdatedAt,
		Artifact:  string(raw),
	}, nil
}

func (s *Server) handleGetManifest(_ context.Context, _ *sdkmcp.CallToolRequest, input getManifestInput) (*sdkmcp.CallToolResult, getManifestOutput, error) {
	m, err := s.orch.Manifest(input.MeetingID)
	if err != nil {
		return nil, getManifestOutput{}, fmt.Errorf("get_manifest: %w", err)
	}
	return nil, getManifestOutput{Manifest: m}, nil
}

// runJob executes one job stage by stage so the job log shows progress.
func (s *Server) runJob(ctx context.Context, job *jobs.Job) error {
	order := pipeline.Order
	if job.Stage != "" {
		target, err := pipeline.ParseStage(job.Stage)
		if err != nil {
			return err
		}
		for i, st := range pipeline.Order {
			if st == target {
				order = pipeline.Order[:i+1]
				break
			}
		}
	}
	for _, st := range order {
		refresh := job.Refresh && (job.Stage == "" || string(st) == job.Stage)
		if _, _, err := s.orch.EnsureStage(ctx, job.MeetingID, st, refresh); err != nil {
			return fmt.Errorf("stage %s: %w", st, err)
		}
		_ = s.store.AppendLog(job.ID, fmt.Sprintf("stage %s ready", st))
	}
	return nil
}

// Wait blocks until all background jobs finish. Called on shutdown.
func (s *Server) Wait() { s.runner.Wait() }
