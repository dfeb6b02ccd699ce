// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tributech/cadastro-extractor/internal/cache"
	"github.com/tributech/cadastro-extractor/internal/extract"
	"github.com/tributech/cadastro-extractor/internal/snapshot"
	"github.com/tributech/cadastro-extractor/internal/soap"
	"github.com/tributech/cadastro-extractor/pkg/types"
)

var extrairCmd = &cobra.Command{
	Use:   "extrair",
	Short: "Extract cadastral records from the SOAP service",
	Long: `Extrair partitions the configured code range into intervals, fetches each
interval cache-first from the SOAP service, and writes timestamped JSON
snapshots. Interrupting the run (Ctrl-C) saves accumulated progress before
exiting. With --modulos every discovered record additionally fans out to
the per-record sub-module lookups (owners, addresses, frontages, ...).`,
	RunE: runExtrair,
}

func init() {
	extrairCmd.Flags().Int("primeiro", 0, "first cadastral code (default from config)")
	extrairCmd.Flags().Int("ultimo", 0, "last cadastral code (default from config)")
	extrairCmd.Flags().Int("intervalo", 0, "codes per SOAP query, capped at 100")
	extrairCmd.Flags().Bool("modulos", false, "fetch per-record sub-module datasets")
	extrairCmd.Flags().Bool("limpar-cache", false, "clear the interval cache before running")

	rootCmd.AddCommand(extrairCmd)
}

func runExtrair(cmd *cobra.Command, args []string) error {
	cfg := types.ExtractionConfig{
		FirstCode:       viper.GetInt("extraction.first_code"),
		LastCode:        viper.GetInt("extraction.last_code"),
		IntervalSize:    viper.GetInt("extraction.interval_size"),
		MaxIntervalSize: viper.GetInt("extraction.max_interval_size"),
		SaveInterval:    viper.GetInt("extraction.save_interval"),
		RequestDelay:    viper.GetDuration("extraction.request_delay"),
		FetchModules:    viper.GetBool("extraction.fetch_modules"),
		CacheDir:        viper.GetString("extraction.cache_dir"),
		DataDir:         viper.GetString("extraction.data_dir"),
	}

	if v, _ := cmd.Flags().GetInt("primeiro"); v > 0 {
		cfg.FirstCode = v
	}
	if v, _ := cmd.Flags().GetInt("ultimo"); v > 0 {
		cfg.LastCode = v
	}
	if v, _ := cmd.Flags().GetInt("intervalo"); v > 0 {
		cfg.IntervalSize = v
	}
	if v, _ := cmd.Flags().GetBool("modulos"); v {
		cfg.FetchModules = true
	}
	if cfg.LastCode < cfg.FirstCode {
		return fmt.Errorf("intervalo invalido: %d-%d", cfg.FirstCode, cfg.LastCode)
	}

	soapCfg := soapConfig()
	if soapCfg.Endpoint == "" {
		return fmt.Errorf("soap.endpoint not configured")
	}

	c, err := cache.New(cfg.CacheDir)
	if err != nil {
		return err
	}
	if clear, _ := cmd.Flags().GetBool("limpar-cache"); clear {
		if err := c.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "cache limpo")
	}

	snaps, err := snapshot.New(cfg.DataDir)
	if err != nil {
		return err
	}

	client := soap.NewClient(soapCfg, nil)

	progress := func(p extract.Progress) {
		fmt.Printf("[%d/%d] intervalo %s  cadastros: %d  decorrido: %s\n",
			p.IntervalsDone, p.IntervalsTotal, p.Interval,
			p.Records, p.Elapsed.Round(time.Second))
	}

	runner := extract.NewRunner(client, c, snaps, cfg, slog.Default(), progress)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := runner.Run(ctx)

	fmt.Printf("\ncadastros: %d  requisicoes: %d  duracao: %s\n",
		result.TotalRecords, result.RequestCount, result.Duration.Round(time.Millisecond))
	if result.SnapshotPath != "" {
		fmt.Printf("snapshot: %s\n", result.SnapshotPath)
	}

	if !result.Success {
		return fmt.Errorf("extracao incompleta: %w", result.Err)
	}
	return nil
}
