// Package pipeline orchestrates the eleven-stage meeting state machine
// over the run store. Stages execute in strict dependency order; within
// a stage, independent per-role calls fan out in parallel. Every stage
// is cache-checked: an existing artifact short-circuits generation
// unless a refresh is requested.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"plenum/internal/committee"
	"plenum/internal/gateway"
	"plenum/internal/logging"
	"plenum/internal/meeting"
	"plenum/internal/runstore"
)

// ErrMaterialMissing means no briefing text at all was available for a
// meeting. A partially missing set degrades gracefully instead: the
// blackboard records the absent sources.
var ErrMaterialMissing = errors.New("pipeline: no briefing materials for meeting")

// ErrUnknownStage means the requested stage key is not part of the
// state machine.
var ErrUnknownStage = errors.New("pipeline: unknown stage")

// MaterialsProvider supplies the four briefing texts a meeting is
// grounded in. Absent texts are returned empty, not as errors.
type MaterialsProvider interface {
	Materials(ctx context.Context, meetingID string) (meeting.Materials, error)
}

// Orchestrator drives the stage table for one artifact root.
type Orchestrator struct {
	root      string
	cfg       *committee.Config
	engine    *meeting.Engine
	materials MaterialsProvider
	log       *slog.Logger
}

func New(root string, cfg *committee.Config, gw gateway.Gateway, materials MaterialsProvider) *Orchestrator {
	return &Orchestrator{
		root:      root,
		cfg:       cfg,
		engine:    meeting.NewEngine(gw, cfg),
		materials: materials,
		log:       logging.New("pipeline"),
	}
}

// EnsureStage returns the stage's artifact, generating it first when it
// is absent or refresh is set. Missing dependency stages are ensured
// (without refresh) before the requested stage runs. The run directory
// is locked for the duration: a second writer gets
// runstore.ErrLocked.
func (o *Orchestrator) EnsureStage(ctx context.Context, meetingID string, stage Stage, refresh bool) (*runstore.ArtifactInfo, []byte, error) {
	def, ok := stageDefs[stage]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}

	run, err := runstore.Open(o.root, meetingID)
	if err != nil {
		return nil, nil, err
	}

	// Cached and not refreshing: no lock, no gateway traffic.
	if !refresh {
		if ok, err := run.Exists(string(stage)); err != nil {
			return nil, nil, err
		} else if ok {
			return run.GetRaw(string(stage))
		}
	}

	lock, err := runstore.AcquireLock(run)
	if err != nil {
		return nil, nil, err
	}
	defer lock.Release()

	if err := o.ensureLocked(ctx, run, def, refresh); err != nil {
		return nil, nil, err
	}
	return run.GetRaw(string(stage))
}

// GetStage returns a stage artifact without ever generating. Absent
// artifacts surface as runstore.ErrNotFound.
func (o *Orchestrator) GetStage(meetingID string, stage Stage) (*runstore.ArtifactInfo, []byte, error) {
	if _, ok := stageDefs[stage]; !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	run, err := runstore.Open(o.root, meetingID)
	if err != nil {
		return nil, nil, err
	}
	return run.GetRaw(string(stage))
}

// RunAll drives every stage in order and returns the final manifest.
// With refresh set, every stage is regenerated; without it, cached
// stages are left untouched and cost zero gateway calls.
func (o *Orchestrator) RunAll(ctx context.Context, meetingID string, refresh bool) (*runstore.Manifest, error) {
	run, err := runstore.Open(o.root, meetingID)
	if err != nil {
		return nil, err
	}
	lock, err := runstore.AcquireLock(run)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	for _, stage := range Order {
		if err := o.ensureLocked(ctx, run, stageDefs[stage], refresh); err != nil {
			return nil, fmt.Errorf("pipeline: stage %s: %w", stage, err)
		}
	}
	return run.Manifest()
}

// Manifest returns the run's manifest without generating anything.
func (o *Orchestrator) Manifest(meetingID string) (*runstore.Manifest, error) {
	run, err := runstore.Open(o.root, meetingID)
	if err != nil {
		return nil, err
	}
	return run.Manifest()
}

// ensureLocked runs one stage (and, non-refreshing, its missing
// dependencies) under an already-held run lock.
func (o *Orchestrator) ensureLocked(ctx context.Context, run *runstore.Run, def stageDef, refresh bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, dep := range def.deps {
		ok, err := run.Exists(string(dep))
		if err != nil {
			return err
		}
		if !ok {
			if err := o.ensureLocked(ctx, run, stageDefs[dep], false); err != nil {
				return err
			}
		}
	}

	if !refresh {
		ok, err := run.Exists(string(def.key))
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	o.log.Info("running stage", "meeting", run.MeetingID, "stage", def.key, "refresh", refresh)
	if err := def.run(ctx, o, run); err != nil {
		o.log.Error("stage failed", "meeting", run.MeetingID, "stage", def.key, "error", err)
		return err
	}
	return nil
}
