package main

import (
	"fmt"
	"os"
	"path/filepath"

	"plenum/internal/committee"
	"plenum/internal/gateway"
	"plenum/internal/pipeline"
)

// apiKeyEnv is where the backend credential comes from. Never a flag:
// flags leak into shell history and process lists.
const apiKeyEnv = "PLENUM_API_KEY"

func loadCommittee() (*committee.Config, error) {
	if flagCommittee == "" {
		return committee.Default(), nil
	}
	return committee.Load(flagCommittee)
}

// buildGateway returns the HTTP gateway wrapped in the prompt-run audit
// log. One JSONL file per run dir; records carry the meeting id.
func buildGateway() (gateway.Gateway, error) {
	key := os.Getenv(apiKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%s is not set", apiKeyEnv)
	}
	gw, err := gateway.NewHTTPGateway(gateway.HTTPConfig{
		BaseURL: flagGatewayURL,
		Model:   flagModel,
		APIKey:  key,
	})
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(flagRunDir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	return gateway.NewAudited(gw, filepath.Join(flagRunDir, "prompt-runs.jsonl")), nil
}

func buildOrchestrator() (*pipeline.Orchestrator, error) {
	cfg, err := loadCommittee()
	if err != nil {
		return nil, err
	}
	gw, err := buildGateway()
	if err != nil {
		return nil, err
	}
	materials := pipeline.DirMaterials{Dir: flagMaterialsDir}
	return pipeline.New(flagRunDir, cfg, gw, materials), nil
}
