// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tributech/cadastro-extractor/internal/snapshot"
	"github.com/tributech/cadastro-extractor/internal/stats"
)

var estatisticasCmd = &cobra.Command{
	Use:   "estatisticas [snapshot-file]",
	Short: "Analyze an extraction snapshot",
	Long: `Estatisticas computes completeness, code-coverage, and area-distribution
analyses over a snapshot (the newest complete one by default) and prints a
plain-text report. With --yaml the full summary is also written to a file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEstatisticas,
}

func init() {
	estatisticasCmd.Flags().String("yaml", "", "also write the summary as YAML to this path")

	rootCmd.AddCommand(estatisticasCmd)
}

func runEstatisticas(cmd *cobra.Command, args []string) error {
	path, err := snapshotArg(args)
	if err != nil {
		return err
	}

	env, err := snapshot.Load(path)
	if err != nil {
		return err
	}
	fmt.Printf("snapshot: %s\n\n", filepath.Base(path))

	summary := stats.Analyze(env.Cadastros)
	summary.Report(os.Stdout)

	if out, _ := cmd.Flags().GetString("yaml"); out != "" {
		if err := summary.ExportYAML(out); err != nil {
			return err
		}
		fmt.Printf("\nrelatorio salvo em %s\n", out)
	}
	return nil
}
