// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tributech/cadastro-extractor/internal/db"
	"github.com/tributech/cadastro-extractor/internal/snapshot"
)

var carregarCmd = &cobra.Command{
	Use:   "carregar [snapshot-file]",
	Short: "Load a snapshot into the relational database",
	Long: `Carregar reads an extraction snapshot (the newest complete one by
default) and upserts its records into the destination database. Records
already present by codigo_cadastro are updated in place; failures are
isolated per record and summarized in an audit log row.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCarregar,
}

func init() {
	carregarCmd.Flags().String("driver", "", `database driver: "pgx" or "sqlite3" (default from config)`)
	carregarCmd.Flags().String("dsn", "", "database connection string")

	rootCmd.AddCommand(carregarCmd)
}

func runCarregar(cmd *cobra.Command, args []string) error {
	path, err := snapshotArg(args)
	if err != nil {
		return err
	}

	env, err := snapshot.Load(path)
	if err != nil {
		return err
	}
	fmt.Printf("snapshot: %s (%d cadastros, %s)\n", filepath.Base(path), len(env.Cadastros), env.Meta.Tag)

	dbCfg := databaseConfig()
	if v, _ := cmd.Flags().GetString("driver"); v != "" {
		dbCfg.Driver = v
	}
	if v, _ := cmd.Flags().GetString("dsn"); v != "" {
		dbCfg.DSN = v
	}

	store, err := db.Open(dbCfg)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := store.Process(cmd.Context(), env.Cadastros, filepath.Base(path))
	if err != nil {
		return err
	}

	fmt.Printf("total: %d  inseridos: %d  atualizados: %d  erros: %d  status: %s  duracao: %s\n",
		result.Total, result.Inserted, result.Updated, result.Errored,
		result.Status, result.Duration.Round(time.Millisecond))
	for _, detail := range result.ErrorDetails {
		fmt.Println("  erro:", detail)
	}

	if result.Status == db.StatusError {
		return fmt.Errorf("nenhum cadastro carregado")
	}
	return nil
}

// snapshotArg resolves the snapshot path: an explicit argument wins, else
// the newest complete snapshot under the configured data directory.
func snapshotArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	snaps, err := snapshot.New(viper.GetString("extraction.data_dir"))
	if err != nil {
		return "", err
	}
	return snaps.Latest()
}
