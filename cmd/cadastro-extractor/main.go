// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the cadastro-extractor CLI.
// Each pipeline stage is a subcommand: extrair pulls records from the
// municipal SOAP service, carregar loads a snapshot into the relational
// destination, estatisticas reports on an extracted snapshot, and cache
// inspects the per-interval cache.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tributech/cadastro-extractor/internal/secrets"
	"github.com/tributech/cadastro-extractor/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback when set, else the secret value for key.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the cadastro-extractor CLI.
var rootCmd = &cobra.Command{
	Use:   "cadastro-extractor",
	Short: "Extrator de cadastros imobiliarios municipais",
	Long: `cadastro-extractor extracts real-estate cadastral records from a municipal
SOAP service, normalizes and caches them per code interval, snapshots the
results to JSON, and loads snapshots into a relational database.

Each stage is a subcommand: extrair, carregar, estatisticas, cache, and
verificar. Credentials come from flags, config file, environment
(CADASTRO_EXTRACTOR_*), or .secrets/ files.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}

		initLogger(cmd)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./cadastro-extractor.yaml or ~/.config/cadastro-extractor/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("cadastro-extractor")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "cadastro-extractor"))
		}
	}

	viper.SetEnvPrefix("CADASTRO_EXTRACTOR")
	viper.AutomaticEnv()

	viper.SetDefault("soap.timeout", 30*time.Second)
	viper.SetDefault("soap.max_retries", 3)
	viper.SetDefault("soap.backoff_factor", time.Second)
	viper.SetDefault("soap.backoff_max", 10*time.Second)
	viper.SetDefault("extraction.first_code", 1)
	viper.SetDefault("extraction.last_code", 100)
	viper.SetDefault("extraction.interval_size", 100)
	viper.SetDefault("extraction.max_interval_size", 100)
	viper.SetDefault("extraction.save_interval", 250)
	viper.SetDefault("extraction.request_delay", 150*time.Millisecond)
	viper.SetDefault("extraction.cache_dir", "dados/cache")
	viper.SetDefault("extraction.data_dir", "dados")
	viper.SetDefault("database.driver", "pgx")
	viper.SetDefault("database.schema", "cadastro")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// initLogger installs a tinted slog handler on stderr.
func initLogger(cmd *cobra.Command) {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})))
}

// soapConfig assembles the SOAP settings from config, environment, and
// secrets.
func soapConfig() types.SOAPConfig {
	return types.SOAPConfig{
		Endpoint:      viper.GetString("soap.endpoint"),
		Username:      secretDefault("soap-username", viper.GetString("soap.username")),
		Password:      secretDefault("soap-password", viper.GetString("soap.password")),
		MonitorCPF:    secretDefault("monitor-cpf", viper.GetString("soap.monitor_cpf")),
		Timeout:       viper.GetDuration("soap.timeout"),
		MaxRetries:    viper.GetInt("soap.max_retries"),
		BackoffFactor: viper.GetDuration("soap.backoff_factor"),
		BackoffMax:    viper.GetDuration("soap.backoff_max"),
	}
}

// databaseConfig assembles the destination settings.
func databaseConfig() types.DatabaseConfig {
	return types.DatabaseConfig{
		Driver: viper.GetString("database.driver"),
		DSN:    secretDefault("database-dsn", viper.GetString("database.dsn")),
		Schema: viper.GetString("database.schema"),
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
