// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package soap

import (
	"context"
	"strconv"

	"github.com/tributech/cadastro-extractor/internal/normalize"
)

// moduleOp describes one per-record sub-module lookup: the primary
// operation name, its legacy fallback, and the collection key the response
// nests its items under.
type moduleOp struct {
	primary  string
	fallback string
	key      string
}

var (
	opProprietarios = moduleOp{"buscaProprietario", "buscaProprietarioBCI", "proprietarios"}
	opEnderecos     = moduleOp{"buscaEndereco", "buscaEnderecoBCI", "enderecos"}
	opTestadas      = moduleOp{"buscaTestada", "buscaTestadaBCI", "testadas"}
	opSubreceitas   = moduleOp{"buscaSubreceita", "buscaSubreceitaBCI", "subreceitas"}
	opZoneamentos   = moduleOp{"buscaZoneamento", "buscaZoneamentoBCI", "zoneamentos"}
	opAnexos        = moduleOp{"buscaAnexo", "buscaAnexoBCI", "anexos"}
	opHistorico     = moduleOp{"buscaHistoricoAlteracao", "buscaHistoricoAlteracaoBCI", "historicos"}
	opBlocoItens    = moduleOp{"buscaBlocoItens", "buscaBlocoItensBCI", "blocoitens"}
	opITBI          = moduleOp{"buscaItbiCadastroImobiliario", "buscaItbiCadastroImobiliarioBCI", "itbis"}
)

// BuscarCadastroGeral runs the general cadastre search for a code filter,
// which is either a single code ("123") or an interval ("1-100"). The
// result is the flat list of record maps; zero matches yield an empty
// slice, not an error.
func (c *Client) BuscarCadastroGeral(ctx context.Context, codigoCadastro string, tipoConsulta, situacao int) ([]map[string]any, error) {
	entrada := Param{Name: "entrada", Children: []Param{
		{Name: "cpf_monitoracao", Value: c.cfg.MonitorCPF},
		{Name: "codigo_cadastro", Value: codigoCadastro},
		{Name: "inscricao_imobiliaria"},
		{Name: "proprietario_cpfcnpj"},
		{Name: "codigo_terreno"},
		{Name: "data_hora_alteracao"},
		{Name: "tipo_consulta", Value: strconv.Itoa(tipoConsulta)},
		{Name: "situacao", Value: strconv.Itoa(situacao)},
	}}

	resp, err := c.Call(ctx, "buscaCadastroImobiliarioGeral", nil, entrada)
	if err != nil {
		return nil, err
	}
	return collection(resp, "cadastros"), nil
}

// TestarConexao probes connectivity with a minimal general search.
func (c *Client) TestarConexao(ctx context.Context) bool {
	_, err := c.BuscarCadastroGeral(ctx, "1-2", 1, 1)
	return err == nil
}

// Per-record sub-module lookups. Each takes the parent business code and
// returns that module's rows; linkage tagging is the orchestrator's job.

func (c *Client) BuscarProprietarios(ctx context.Context, codigo string) ([]map[string]any, error) {
	return c.fetchModule(ctx, opProprietarios, codigo)
}

func (c *Client) BuscarEnderecos(ctx context.Context, codigo string) ([]map[string]any, error) {
	return c.fetchModule(ctx, opEnderecos, codigo)
}

func (c *Client) BuscarTestadas(ctx context.Context, codigo string) ([]map[string]any, error) {
	return c.fetchModule(ctx, opTestadas, codigo)
}

func (c *Client) BuscarSubreceitas(ctx context.Context, codigo string) ([]map[string]any, error) {
	return c.fetchModule(ctx, opSubreceitas, codigo)
}

func (c *Client) BuscarZoneamentos(ctx context.Context, codigo string) ([]map[string]any, error) {
	return c.fetchModule(ctx, opZoneamentos, codigo)
}

func (c *Client) BuscarAnexos(ctx context.Context, codigo string) ([]map[string]any, error) {
	return c.fetchModule(ctx, opAnexos, codigo)
}

func (c *Client) BuscarHistorico(ctx context.Context, codigo string) ([]map[string]any, error) {
	return c.fetchModule(ctx, opHistorico, codigo)
}

func (c *Client) BuscarBlocoItens(ctx context.Context, codigo string) ([]map[string]any, error) {
	return c.fetchModule(ctx, opBlocoItens, codigo)
}

func (c *Client) BuscarITBI(ctx context.Context, codigo string) ([]map[string]any, error) {
	return c.fetchModule(ctx, opITBI, codigo)
}

func (c *Client) fetchModule(ctx context.Context, op moduleOp, codigo string) ([]map[string]any, error) {
	resp, err := c.Call(ctx, op.primary, []string{op.fallback},
		Param{Name: "codigoCadastro", Value: codigo})
	if err != nil {
		return nil, err
	}
	return collection(resp, op.key), nil
}

// collection extracts the module's item list from a decoded response,
// tolerating both the keyed-map shape and a bare sequence.
func collection(resp any, key string) []map[string]any {
	switch r := resp.(type) {
	case map[string]any:
		return normalize.ToMaps(r[key])
	case []any:
		return normalize.ToMaps(r)
	default:
		return []map[string]any{}
	}
}
