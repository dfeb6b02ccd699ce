// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package stats computes read-only analyses over extracted cadastral
// records: field completeness, code-space coverage with gap detection, and
// area distributions. Every function tolerates an empty input and returns
// a zero-shaped result.
package stats

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"go.yaml.in/yaml/v3"

	"github.com/tributech/cadastro-extractor/pkg/types"
)

// topGaps caps how many gap ranges a CodeAnalysis reports.
const topGaps = 10

// Quality summarizes field completeness across records. Required fields
// are codigo_cadastro, tipo_cadastro, and situacao; important fields are
// the two areas (positive) and the owner/address collections (non-empty).
type Quality struct {
	Total             int     `json:"total" yaml:"total"`
	RequiredComplete  int     `json:"obrigatorios_completos" yaml:"obrigatorios_completos"`
	ImportantComplete int     `json:"importantes_completos" yaml:"importantes_completos"`
	FullyComplete     int     `json:"completos" yaml:"completos"`
	RequiredPercent   float64 `json:"percentual_obrigatorios" yaml:"percentual_obrigatorios"`
	ImportantPercent  float64 `json:"percentual_importantes" yaml:"percentual_importantes"`
	FullyPercent      float64 `json:"percentual_geral" yaml:"percentual_geral"`
}

// Gap is a contiguous run of missing codes.
type Gap struct {
	Start int `json:"inicio" yaml:"inicio"`
	End   int `json:"fim" yaml:"fim"`
	Size  int `json:"tamanho" yaml:"tamanho"`
}

// CodeAnalysis describes coverage of the numeric code space.
type CodeAnalysis struct {
	Total       int     `json:"total" yaml:"total"`
	Invalid     int     `json:"codigos_invalidos" yaml:"codigos_invalidos"`
	Unique      int     `json:"codigos_unicos" yaml:"codigos_unicos"`
	Duplicates  int     `json:"duplicados" yaml:"duplicados"`
	Min         int     `json:"menor_codigo" yaml:"menor_codigo"`
	Max         int     `json:"maior_codigo" yaml:"maior_codigo"`
	Span        int     `json:"intervalo_cobertura" yaml:"intervalo_cobertura"`
	Density     float64 `json:"densidade_ocupacao" yaml:"densidade_ocupacao"`
	TotalGaps   int     `json:"total_lacunas" yaml:"total_lacunas"`
	MeanGapSize float64 `json:"lacuna_media" yaml:"lacuna_media"`
	Gaps        []Gap   `json:"maiores_lacunas" yaml:"maiores_lacunas"`
}

// Distribution holds aggregate and dispersion stats for one numeric field.
type Distribution struct {
	Count  int     `json:"count" yaml:"count"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Mean   float64 `json:"media" yaml:"media"`
	Median float64 `json:"mediana" yaml:"mediana"`
}

// AreaAnalysis holds distributions for terrain and built areas.
type AreaAnalysis struct {
	Terreno    Distribution `json:"terreno" yaml:"terreno"`
	Construida Distribution `json:"construida" yaml:"construida"`
}

// Summary aggregates every analysis over one record set.
type Summary struct {
	Quality Quality      `json:"qualidade" yaml:"qualidade"`
	Codes   CodeAnalysis `json:"codigos" yaml:"codigos"`
	Areas   AreaAnalysis `json:"areas" yaml:"areas"`
}

// Analyze computes the full summary.
func Analyze(records []types.Record) Summary {
	return Summary{
		Quality: AnalyzeQuality(records),
		Codes:   AnalyzeCodes(records),
		Areas:   AnalyzeAreas(records),
	}
}

// AnalyzeQuality checks required and important field completeness.
func AnalyzeQuality(records []types.Record) Quality {
	q := Quality{Total: len(records)}

	for _, rec := range records {
		required := rec.CodigoCadastro != "" && rec.TipoCadastro != nil && rec.Situacao != ""
		important := positive(rec.AreaTerreno) && positive(rec.AreaConstruida) &&
			len(rec.Enderecos) > 0 && len(rec.Proprietarios) > 0

		if required {
			q.RequiredComplete++
		}
		if important {
			q.ImportantComplete++
		}
		if required && important {
			q.FullyComplete++
		}
	}

	if q.Total > 0 {
		q.RequiredPercent = float64(q.RequiredComplete) / float64(q.Total) * 100
		q.ImportantPercent = float64(q.ImportantComplete) / float64(q.Total) * 100
		q.FullyPercent = float64(q.FullyComplete) / float64(q.Total) * 100
	}
	return q
}

func positive(f *float64) bool { return f != nil && *f > 0 }

// AnalyzeCodes parses the business keys as integers and measures coverage:
// min, max, span, density, duplicates, and the largest gap runs.
func AnalyzeCodes(records []types.Record) CodeAnalysis {
	var a CodeAnalysis

	var codes []int
	for _, rec := range records {
		n, err := strconv.Atoi(rec.CodigoCadastro)
		if err != nil {
			a.Invalid++
			continue
		}
		codes = append(codes, n)
	}

	a.Total = len(codes)
	if len(codes) == 0 {
		a.Gaps = []Gap{}
		return a
	}

	unique := dedupe(codes)
	a.Unique = len(unique)
	a.Duplicates = a.Total - a.Unique
	a.Min = unique[0]
	a.Max = unique[len(unique)-1]
	a.Span = a.Max - a.Min + 1
	a.Density = float64(a.Total) / float64(a.Span) * 100

	gaps := findGaps(unique)
	a.TotalGaps = len(gaps)
	if len(gaps) > 0 {
		var sum int
		for _, g := range gaps {
			sum += g.Size
		}
		a.MeanGapSize = float64(sum) / float64(len(gaps))
	}
	if len(gaps) > topGaps {
		gaps = gaps[:topGaps]
	}
	a.Gaps = gaps
	return a
}

// dedupe returns the sorted unique values of codes.
func dedupe(codes []int) []int {
	sorted := append([]int(nil), codes...)
	sort.Ints(sorted)
	unique := sorted[:0]
	for i, n := range sorted {
		if i == 0 || n != sorted[i-1] {
			unique = append(unique, n)
		}
	}
	return unique
}

// findGaps returns the missing runs between consecutive unique sorted
// codes, largest first (ties keep ascending start order).
func findGaps(unique []int) []Gap {
	var gaps []Gap
	for i := 0; i+1 < len(unique); i++ {
		if unique[i+1]-unique[i] > 1 {
			gaps = append(gaps, Gap{
				Start: unique[i] + 1,
				End:   unique[i+1] - 1,
				Size:  unique[i+1] - unique[i] - 1,
			})
		}
	}
	sort.SliceStable(gaps, func(i, j int) bool { return gaps[i].Size > gaps[j].Size })
	if gaps == nil {
		gaps = []Gap{}
	}
	return gaps
}

// AnalyzeAreas builds distributions over the positive terrain and built
// areas.
func AnalyzeAreas(records []types.Record) AreaAnalysis {
	var terreno, construida []float64
	for _, rec := range records {
		if positive(rec.AreaTerreno) {
			terreno = append(terreno, *rec.AreaTerreno)
		}
		if positive(rec.AreaConstruida) {
			construida = append(construida, *rec.AreaConstruida)
		}
	}
	return AreaAnalysis{
		Terreno:    distribution(terreno),
		Construida: distribution(construida),
	}
}

func distribution(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return Distribution{
		Count:  n,
		Min:    sorted[0],
		Max:    sorted[n-1],
		Mean:   sum / float64(n),
		Median: median,
	}
}

// Report writes a plain-text rendering of the summary.
func (s Summary) Report(w io.Writer) {
	fmt.Fprintf(w, "Cadastros analisados: %d\n", s.Quality.Total)

	if s.Codes.Total > 0 {
		fmt.Fprintf(w, "\nCodigos:\n")
		fmt.Fprintf(w, "  menor: %d  maior: %d  cobertura: %d\n", s.Codes.Min, s.Codes.Max, s.Codes.Span)
		fmt.Fprintf(w, "  densidade: %.1f%%  duplicados: %d  invalidos: %d\n",
			s.Codes.Density, s.Codes.Duplicates, s.Codes.Invalid)
		if s.Codes.TotalGaps > 0 {
			fmt.Fprintf(w, "  lacunas: %d (media %.1f)\n", s.Codes.TotalGaps, s.Codes.MeanGapSize)
			for _, g := range s.Codes.Gaps {
				fmt.Fprintf(w, "    %d-%d (%d codigos)\n", g.Start, g.End, g.Size)
			}
		}
	}

	fmt.Fprintf(w, "\nQualidade:\n")
	fmt.Fprintf(w, "  obrigatorios completos: %d (%.1f%%)\n", s.Quality.RequiredComplete, s.Quality.RequiredPercent)
	fmt.Fprintf(w, "  importantes completos:  %d (%.1f%%)\n", s.Quality.ImportantComplete, s.Quality.ImportantPercent)
	fmt.Fprintf(w, "  totalmente completos:   %d (%.1f%%)\n", s.Quality.FullyComplete, s.Quality.FullyPercent)

	for _, area := range []struct {
		name string
		d    Distribution
	}{{"terreno", s.Areas.Terreno}, {"construida", s.Areas.Construida}} {
		if area.d.Count == 0 {
			continue
		}
		fmt.Fprintf(w, "\nArea %s (m2):\n", area.name)
		fmt.Fprintf(w, "  count: %d  min: %.2f  max: %.2f  media: %.2f  mediana: %.2f\n",
			area.d.Count, area.d.Min, area.d.Max, area.d.Mean, area.d.Median)
	}
}

// ExportYAML writes the summary to path as YAML.
func (s Summary) ExportYAML(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding statistics report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing statistics report: %w", err)
	}
	return nil
}

// MetaFields renders the headline numbers for snapshot metadata.
func (s Summary) MetaFields() map[string]any {
	return map[string]any{
		"densidade_ocupacao": s.Codes.Density,
		"codigos_unicos":     s.Codes.Unique,
		"duplicados":         s.Codes.Duplicates,
		"percentual_geral":   s.Quality.FullyPercent,
		"total_lacunas":      s.Codes.TotalGaps,
	}
}
