// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tributech/cadastro-extractor/internal/db"
	"github.com/tributech/cadastro-extractor/internal/soap"
)

var verificarCmd = &cobra.Command{
	Use:   "verificar",
	Short: "Check SOAP and database connectivity",
	Long: `Verificar probes the SOAP endpoint with a minimal general search and
pings the database, then prints per-table row counts.`,
	RunE: runVerificar,
}

func init() {
	rootCmd.AddCommand(verificarCmd)
}

func runVerificar(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	failed := false

	soapCfg := soapConfig()
	if soapCfg.Endpoint == "" {
		fmt.Println("soap: endpoint nao configurado")
		failed = true
	} else if soap.NewClient(soapCfg, nil).TestarConexao(ctx) {
		fmt.Println("soap: ok")
	} else {
		fmt.Println("soap: falhou")
		failed = true
	}

	store, err := db.Open(databaseConfig())
	if err != nil {
		fmt.Println("banco:", err)
		failed = true
	} else {
		defer store.Close()
		if err := store.Ping(ctx); err != nil {
			fmt.Println("banco:", err)
			failed = true
		} else {
			fmt.Println("banco: ok")
			counts, err := store.Counts(ctx)
			if err == nil {
				for _, table := range []string{"cadastros_imobiliarios", "proprietarios", "enderecos", "zoneamentos", "processamento_logs"} {
					fmt.Printf("  %s: %d\n", table, counts[table])
				}
			}
		}
	}

	if failed {
		return fmt.Errorf("verificacao falhou")
	}
	return nil
}
