// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package db persists extracted cadastral records to a relational
// database. The SQL is portable between PostgreSQL (driver "pgx") and
// SQLite (driver "sqlite3"); the latter backs local runs and tests.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tributech/cadastro-extractor/pkg/types"
)

// Store manages the cadastral database connection.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects using cfg. Driver defaults to "pgx"; SQLite DSNs get
// WAL and foreign-key pragmas appended unless the DSN already carries
// options. For PostgreSQL a non-default schema is selected through the
// DSN search_path; CreateSchema only ensures it exists.
func Open(cfg types.DatabaseConfig) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "pgx"
	}

	dsn := cfg.DSN
	if driver == "sqlite3" && !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_foreign_keys=on"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.createSchema(cfg.Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) createSchema(schema string) error {
	if s.driver == "pgx" && schema != "" {
		if _, err := s.db.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, schema)); err != nil {
			return fmt.Errorf("creating schema %s: %w", schema, err)
		}
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS cadastros_imobiliarios (
			codigo_cadastro TEXT PRIMARY KEY,
			tipo_cadastro INTEGER,
			categoria TEXT,
			situacao TEXT,
			ativo BOOLEAN,
			area_terreno REAL,
			area_construida REAL,
			data_cadastro TEXT,
			dados_originais TEXT,
			arquivo_origem TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS proprietarios (
			id TEXT PRIMARY KEY,
			codigo_cadastro TEXT NOT NULL REFERENCES cadastros_imobiliarios(codigo_cadastro) ON DELETE CASCADE,
			nome TEXT,
			documento TEXT,
			dados TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_proprietarios_cadastro ON proprietarios(codigo_cadastro)`,
		`CREATE TABLE IF NOT EXISTS enderecos (
			id TEXT PRIMARY KEY,
			codigo_cadastro TEXT NOT NULL REFERENCES cadastros_imobiliarios(codigo_cadastro) ON DELETE CASCADE,
			logradouro TEXT,
			numero TEXT,
			bairro TEXT,
			cep TEXT,
			dados TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_enderecos_cadastro ON enderecos(codigo_cadastro)`,
		`CREATE TABLE IF NOT EXISTS zoneamentos (
			id TEXT PRIMARY KEY,
			codigo_cadastro TEXT NOT NULL REFERENCES cadastros_imobiliarios(codigo_cadastro) ON DELETE CASCADE,
			zona TEXT,
			dados TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_zoneamentos_cadastro ON zoneamentos(codigo_cadastro)`,
		`CREATE TABLE IF NOT EXISTS processamento_logs (
			id TEXT PRIMARY KEY,
			arquivo_origem TEXT,
			iniciado_em TEXT NOT NULL,
			finalizado_em TEXT,
			total_registros INTEGER,
			inseridos INTEGER,
			atualizados INTEGER,
			erros INTEGER,
			status TEXT,
			detalhes_erros TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Counts returns the row count of each table.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	tables := []string{
		"cadastros_imobiliarios", "proprietarios", "enderecos",
		"zoneamentos", "processamento_logs",
	}

	counts := make(map[string]int, len(tables))
	for _, table := range tables {
		var n int
		err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM `+table).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
