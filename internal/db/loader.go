// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tributech/cadastro-extractor/internal/normalize"
	"github.com/tributech/cadastro-extractor/pkg/types"
)

// maxErrorDetails caps how many per-record failure messages a load run
// records in its audit row and result.
const maxErrorDetails = 10

// Load statuses recorded in processamento_logs.
const (
	StatusSuccess = "sucesso"
	StatusPartial = "parcial"
	StatusError   = "erro"
)

// Result summarizes one load run.
type Result struct {
	Total        int
	Inserted     int
	Updated      int
	Errored      int
	Status       string
	ErrorDetails []string
	Duration     time.Duration
}

// Process loads records in a single transaction. Each record is wrapped
// in a savepoint so one bad record rolls back alone while the rest of
// the batch commits. New records insert the parent row plus its child
// collections; existing records update scalar fields only, leaving
// children as first loaded. An audit row is written in the same
// transaction.
func (s *Store) Process(ctx context.Context, records []types.Record, sourceFile string) (Result, error) {
	started := time.Now()
	result := Result{Total: len(records)}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		inserted, err := s.processRecord(ctx, tx, rec, sourceFile)
		if err != nil {
			result.Errored++
			if len(result.ErrorDetails) < maxErrorDetails {
				result.ErrorDetails = append(result.ErrorDetails,
					fmt.Sprintf("cadastro %s: %v", rec.CodigoCadastro, err))
			}
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	result.Status = loadStatus(result)
	result.Duration = time.Since(started)

	if err := s.writeAuditRow(ctx, tx, sourceFile, started, result); err != nil {
		return result, err
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("committing load: %w", err)
	}
	return result, nil
}

func loadStatus(r Result) string {
	switch {
	case r.Errored == 0:
		return StatusSuccess
	case r.Errored == r.Total:
		return StatusError
	default:
		return StatusPartial
	}
}

// processRecord upserts one record inside a savepoint. Returns true when
// the record was inserted rather than updated.
func (s *Store) processRecord(ctx context.Context, tx *sql.Tx, rec types.Record, sourceFile string) (bool, error) {
	if rec.CodigoCadastro == "" {
		return false, errors.New("codigo_cadastro vazio")
	}

	if _, err := tx.ExecContext(ctx, `SAVEPOINT sp_cadastro`); err != nil {
		return false, fmt.Errorf("creating savepoint: %w", err)
	}

	inserted, err := s.upsertRecord(ctx, tx, rec, sourceFile)
	if err != nil {
		if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT sp_cadastro`); rbErr != nil {
			return false, fmt.Errorf("rolling back record: %v (after %w)", rbErr, err)
		}
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT sp_cadastro`); err != nil {
		return false, fmt.Errorf("releasing savepoint: %w", err)
	}
	return inserted, nil
}

func (s *Store) upsertRecord(ctx context.Context, tx *sql.Tx, rec types.Record, sourceFile string) (bool, error) {
	var exists int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM cadastros_imobiliarios WHERE codigo_cadastro = $1`,
		rec.CodigoCadastro,
	).Scan(&exists)
	switch {
	case err == nil:
		return false, s.updateRecord(ctx, tx, rec)
	case errors.Is(err, sql.ErrNoRows):
		return true, s.insertRecord(ctx, tx, rec, sourceFile)
	default:
		return false, fmt.Errorf("checking cadastro: %w", err)
	}
}

func (s *Store) insertRecord(ctx context.Context, tx *sql.Tx, rec types.Record, sourceFile string) error {
	original, _ := json.Marshal(rec.Original)
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := tx.ExecContext(ctx,
		`INSERT INTO cadastros_imobiliarios
			(codigo_cadastro, tipo_cadastro, categoria, situacao, ativo,
			 area_terreno, area_construida, data_cadastro, dados_originais,
			 arquivo_origem, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.CodigoCadastro, rec.TipoCadastro, categoria(rec.TipoCadastro),
		rec.Situacao, rec.Situacao == "1",
		rec.AreaTerreno, rec.AreaConstruida, rec.DataCadastro,
		string(original), sourceFile, now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting cadastro: %w", err)
	}

	if err := s.insertChildren(ctx, tx, rec); err != nil {
		return err
	}
	return nil
}

func (s *Store) updateRecord(ctx context.Context, tx *sql.Tx, rec types.Record) error {
	original, _ := json.Marshal(rec.Original)

	_, err := tx.ExecContext(ctx,
		`UPDATE cadastros_imobiliarios SET
			tipo_cadastro = $1, categoria = $2, situacao = $3, ativo = $4,
			area_terreno = $5, area_construida = $6, data_cadastro = $7,
			dados_originais = $8, updated_at = $9
		 WHERE codigo_cadastro = $10`,
		rec.TipoCadastro, categoria(rec.TipoCadastro), rec.Situacao,
		rec.Situacao == "1", rec.AreaTerreno, rec.AreaConstruida,
		rec.DataCadastro, string(original),
		time.Now().UTC().Format(time.RFC3339), rec.CodigoCadastro,
	)
	if err != nil {
		return fmt.Errorf("updating cadastro: %w", err)
	}
	return nil
}

func (s *Store) insertChildren(ctx context.Context, tx *sql.Tx, rec types.Record) error {
	for _, p := range rec.Proprietarios {
		dados, _ := json.Marshal(p)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO proprietarios (id, codigo_cadastro, nome, documento, dados)
			 VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), rec.CodigoCadastro,
			normalize.String(p["nome"]), ownerDocument(p), string(dados),
		)
		if err != nil {
			return fmt.Errorf("inserting proprietario: %w", err)
		}
	}

	for _, e := range rec.Enderecos {
		dados, _ := json.Marshal(e)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO enderecos (id, codigo_cadastro, logradouro, numero, bairro, cep, dados)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.NewString(), rec.CodigoCadastro,
			normalize.String(e["logradouro"]), normalize.String(e["numero"]),
			normalize.String(e["bairro"]), normalize.String(e["cep"]), string(dados),
		)
		if err != nil {
			return fmt.Errorf("inserting endereco: %w", err)
		}
	}

	for _, z := range rec.Zoneamentos {
		dados, _ := json.Marshal(z)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO zoneamentos (id, codigo_cadastro, zona, dados)
			 VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), rec.CodigoCadastro,
			normalize.String(z["zona"]), string(dados),
		)
		if err != nil {
			return fmt.Errorf("inserting zoneamento: %w", err)
		}
	}
	return nil
}

func (s *Store) writeAuditRow(ctx context.Context, tx *sql.Tx, sourceFile string, started time.Time, r Result) error {
	details, _ := json.Marshal(r.ErrorDetails)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO processamento_logs
			(id, arquivo_origem, iniciado_em, finalizado_em,
			 total_registros, inseridos, atualizados, erros, status, detalhes_erros)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.NewString(), sourceFile,
		started.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339),
		r.Total, r.Inserted, r.Updated, r.Errored, r.Status, string(details),
	)
	if err != nil {
		return fmt.Errorf("writing audit row: %w", err)
	}
	return nil
}

// categoria maps tipo_cadastro to its label.
func categoria(tipo *int) string {
	if tipo == nil {
		return "desconhecido"
	}
	switch *tipo {
	case 1:
		return "terreno"
	case 2:
		return "unidade"
	case 3:
		return "rural"
	default:
		return "desconhecido"
	}
}

// ownerDocument picks the first document field present on an owner map.
func ownerDocument(p map[string]any) string {
	for _, key := range []string{"cpf_cnpj", "cpfCnpj", "cpf", "cnpj", "documento"} {
		if v := normalize.String(p[key]); v != "" {
			return v
		}
	}
	return ""
}
