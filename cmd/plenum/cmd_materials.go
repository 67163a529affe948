package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"plenum/internal/pipeline"
)

var materialsCmd = &cobra.Command{
	Use:   "materials <meeting-id>",
	Short: "Show which briefing files a meeting has",
	Long: `Reads <materials-dir>/<meeting-id>/ and reports each briefing source
(macro, employment, inflation, policy-rule) as present or missing. A run
degrades gracefully with partial materials but fails when all four are
missing.`,
	Args: cobra.ExactArgs(1),
	RunE: runMaterials,
}

func runMaterials(cmd *cobra.Command, args []string) error {
	provider := pipeline.DirMaterials{Dir: flagMaterialsDir}
	m, err := provider.Materials(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	sizes := map[string]int{
		"macro":       len(m.Macro),
		"employment":  len(m.Employment),
		"inflation":   len(m.Inflation),
		"policy-rule": len(m.PolicyRule),
	}
	missing := map[string]bool{}
	for _, name := range m.Missing() {
		missing[name] = true
	}
	for _, name := range []string{"macro", "employment", "inflation", "policy-rule"} {
		if missing[name] {
			fmt.Printf("  %-12s missing\n", name)
			continue
		}
		fmt.Printf("  %-12s %d bytes\n", name, sizes[name])
	}
	if len(missing) == 4 {
		return fmt.Errorf("no briefing materials for %s under %s", args[0], flagMaterialsDir)
	}
	return nil
}
