// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the domain records and configuration shared across
// the extraction, statistics, and persistence stages.
package types

// Record is one cadastral record. The fields the pipeline reasons about are
// typed; the complete source payload is preserved verbatim in Original so
// nothing the municipality sends is lost on the way to storage.
type Record struct {
	CodigoCadastro string   `json:"codigo_cadastro"`
	TipoCadastro   *int     `json:"tipo_cadastro,omitempty"`
	Situacao       string   `json:"situacao,omitempty"`
	AreaTerreno    *float64 `json:"area_terreno,omitempty"`
	AreaConstruida *float64 `json:"area_construida,omitempty"`
	DataCadastro   string   `json:"data_cadastro,omitempty"`

	// Child collections delivered inline with the general search. Always
	// non-nil after normalization; downstream code never branches on
	// missing-vs-empty.
	Proprietarios []map[string]any `json:"proprietariosbci"`
	Enderecos     []map[string]any `json:"enderecos"`
	Zoneamentos   []map[string]any `json:"zoneamentos"`

	// Original is the full normalized payload as received from the wire.
	Original map[string]any `json:"dados_originais,omitempty"`
}

// Module names for the per-record sub-module fan-out, in fetch order.
const (
	ModuleEnderecos     = "enderecos"
	ModuleProprietarios = "proprietarios"
	ModuleTestadas      = "testadas"
	ModuleSubreceitas   = "subreceitas"
	ModuleZoneamento    = "zoneamento"
	ModuleAnexos        = "anexos"
	ModuleHistorico     = "historico"
	ModuleBCI           = "bci"
	ModuleITBI          = "itbi"
)

// ModuleNames lists every sub-module dataset an extraction run produces.
var ModuleNames = []string{
	ModuleEnderecos,
	ModuleProprietarios,
	ModuleTestadas,
	ModuleSubreceitas,
	ModuleZoneamento,
	ModuleAnexos,
	ModuleHistorico,
	ModuleBCI,
	ModuleITBI,
}

// Datasets maps a module name to the accumulated sub-records for that
// module, each tagged with its parent codigo_cadastro.
type Datasets map[string][]map[string]any

// NewDatasets returns a Datasets with an empty slice per module, so an empty
// run still writes every module file.
func NewDatasets() Datasets {
	d := make(Datasets, len(ModuleNames))
	for _, name := range ModuleNames {
		d[name] = []map[string]any{}
	}
	return d
}
