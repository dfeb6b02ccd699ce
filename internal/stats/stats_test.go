// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stats

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/tributech/cadastro-extractor/pkg/types"
)

func fptr(f float64) *float64 { return &f }
func iptr(n int) *int         { return &n }

func codeRecords(codes ...string) []types.Record {
	records := make([]types.Record, 0, len(codes))
	for _, c := range codes {
		records = append(records, types.Record{CodigoCadastro: c})
	}
	return records
}

func TestAnalyzeCodes_GapsSortedBySize(t *testing.T) {
	a := AnalyzeCodes(codeRecords("1", "2", "3", "7", "8", "10"))

	assert.Equal(t, 1, a.Min)
	assert.Equal(t, 10, a.Max)
	assert.Equal(t, 10, a.Span)
	assert.Equal(t, 2, a.TotalGaps)
	require.Len(t, a.Gaps, 2)
	assert.Equal(t, Gap{Start: 4, End: 6, Size: 3}, a.Gaps[0])
	assert.Equal(t, Gap{Start: 9, End: 9, Size: 1}, a.Gaps[1])
	assert.InDelta(t, 2.0, a.MeanGapSize, 1e-9)
}

func TestAnalyzeCodes_Density(t *testing.T) {
	a := AnalyzeCodes(codeRecords("1", "2", "3", "5"))

	assert.Equal(t, 5, a.Span)
	assert.InDelta(t, 80.0, a.Density, 1e-9)
	assert.Equal(t, 4, a.Unique)
	assert.Equal(t, 0, a.Duplicates)
}

func TestAnalyzeCodes_DuplicatesAndInvalid(t *testing.T) {
	a := AnalyzeCodes(codeRecords("10", "10", "12", "abc", ""))

	assert.Equal(t, 3, a.Total)
	assert.Equal(t, 2, a.Invalid)
	assert.Equal(t, 2, a.Unique)
	assert.Equal(t, 1, a.Duplicates)
	require.Len(t, a.Gaps, 1)
	assert.Equal(t, Gap{Start: 11, End: 11, Size: 1}, a.Gaps[0])
}

func TestAnalyzeCodes_TopGapsCapped(t *testing.T) {
	// 12 isolated codes spaced apart produce 11 gaps.
	a := AnalyzeCodes(codeRecords("1", "5", "10", "16", "23", "31", "40", "50", "61", "73", "86", "100"))

	assert.Equal(t, 11, a.TotalGaps)
	assert.Len(t, a.Gaps, topGaps)
	// Largest gap is 87-99 (13 codes).
	assert.Equal(t, Gap{Start: 87, End: 99, Size: 13}, a.Gaps[0])
}

func TestAnalyzeCodes_Empty(t *testing.T) {
	a := AnalyzeCodes(nil)

	assert.Zero(t, a.Total)
	assert.Zero(t, a.Span)
	assert.Zero(t, a.Density)
	assert.Empty(t, a.Gaps)
}

func TestAnalyzeQuality(t *testing.T) {
	records := []types.Record{
		{
			CodigoCadastro: "1",
			TipoCadastro:   iptr(1),
			Situacao:       "1",
			AreaTerreno:    fptr(250),
			AreaConstruida: fptr(120),
			Proprietarios:  []map[string]any{{"nome": "Ana"}},
			Enderecos:      []map[string]any{{"logradouro": "Rua A"}},
		},
		{
			// Required complete, areas missing.
			CodigoCadastro: "2",
			TipoCadastro:   iptr(2),
			Situacao:       "1",
		},
		{
			// Missing situacao.
			CodigoCadastro: "3",
			TipoCadastro:   iptr(1),
			AreaTerreno:    fptr(300),
			AreaConstruida: fptr(80),
			Proprietarios:  []map[string]any{{"nome": "Bia"}},
			Enderecos:      []map[string]any{{"logradouro": "Rua B"}},
		},
	}

	q := AnalyzeQuality(records)

	assert.Equal(t, 3, q.Total)
	assert.Equal(t, 2, q.RequiredComplete)
	assert.Equal(t, 2, q.ImportantComplete)
	assert.Equal(t, 1, q.FullyComplete)
	assert.InDelta(t, 66.7, q.RequiredPercent, 0.1)
	assert.InDelta(t, 33.3, q.FullyPercent, 0.1)
}

func TestAnalyzeQuality_ZeroAreaNotImportant(t *testing.T) {
	q := AnalyzeQuality([]types.Record{{
		CodigoCadastro: "1",
		TipoCadastro:   iptr(1),
		Situacao:       "1",
		AreaTerreno:    fptr(0),
		AreaConstruida: fptr(100),
		Proprietarios:  []map[string]any{{}},
		Enderecos:      []map[string]any{{}},
	}})

	assert.Equal(t, 1, q.RequiredComplete)
	assert.Zero(t, q.ImportantComplete)
}

func TestAnalyzeAreas(t *testing.T) {
	records := []types.Record{
		{AreaTerreno: fptr(100), AreaConstruida: fptr(50)},
		{AreaTerreno: fptr(200), AreaConstruida: fptr(150)},
		{AreaTerreno: fptr(300)},
		{AreaTerreno: fptr(0)}, // non-positive values are excluded
		{},
	}

	a := AnalyzeAreas(records)

	assert.Equal(t, 3, a.Terreno.Count)
	assert.InDelta(t, 100, a.Terreno.Min, 1e-9)
	assert.InDelta(t, 300, a.Terreno.Max, 1e-9)
	assert.InDelta(t, 200, a.Terreno.Mean, 1e-9)
	assert.InDelta(t, 200, a.Terreno.Median, 1e-9)

	// Even count takes the mean of the middle pair.
	assert.Equal(t, 2, a.Construida.Count)
	assert.InDelta(t, 100, a.Construida.Median, 1e-9)
}

func TestAnalyzeAreas_Empty(t *testing.T) {
	a := AnalyzeAreas(nil)
	assert.Zero(t, a.Terreno.Count)
	assert.Zero(t, a.Construida.Count)
}

func TestAnalyze_Report(t *testing.T) {
	records := []types.Record{
		{CodigoCadastro: "1", TipoCadastro: iptr(1), Situacao: "1", AreaTerreno: fptr(250)},
		{CodigoCadastro: "3", TipoCadastro: iptr(2), Situacao: "1"},
	}

	var buf bytes.Buffer
	Analyze(records).Report(&buf)

	out := buf.String()
	assert.Contains(t, out, "Cadastros analisados: 2")
	assert.Contains(t, out, "menor: 1  maior: 3")
	assert.Contains(t, out, "2-2 (1 codigos)")
	assert.Contains(t, out, "Area terreno")
}

func TestExportYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "estatisticas.yaml")
	summary := Analyze(codeRecords("1", "2", "5"))

	require.NoError(t, summary.ExportYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded Summary
	require.NoError(t, yaml.Unmarshal(data, &loaded))
	assert.Equal(t, summary.Codes.Span, loaded.Codes.Span)
	assert.InDelta(t, summary.Codes.Density, loaded.Codes.Density, 1e-9)
}

func TestMetaFields(t *testing.T) {
	m := Analyze(codeRecords("1", "2", "5")).MetaFields()
	assert.InDelta(t, 60.0, m["densidade_ocupacao"].(float64), 1e-9)
	assert.Equal(t, 3, m["codigos_unicos"])
}
