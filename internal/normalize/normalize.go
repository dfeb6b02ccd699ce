// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize converts raw SOAP field values into canonical types:
// Brazilian dates to ISO, comma-decimal numbers to floats, and the three
// wire shapes of a SOAP collection to a flat slice of maps. All functions
// are pure and never panic on malformed input.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tributech/cadastro-extractor/pkg/types"
)

var (
	brDateRe  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})( \d{2}:\d{2}:\d{2})?$`)
	isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
)

// Date converts DD/MM/YYYY[ HH:MM:SS] to YYYY-MM-DD[ HH:MM:SS]. Values
// already in ISO form pass through unchanged. Empty or unconvertible input
// returns "". This is the record-level policy; the wire layer keeps the
// original string instead (see WireDate).
func Date(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if isoDateRe.MatchString(s) {
		return s
	}
	if iso, ok := convertBRDate(s); ok {
		return iso
	}
	return ""
}

// WireDate is the leaf-value policy applied while decoding SOAP responses:
// convertible Brazilian dates become ISO, everything else is returned
// unchanged so free-form text survives the pass.
func WireDate(s string) string {
	if iso, ok := convertBRDate(strings.TrimSpace(s)); ok {
		return iso
	}
	return s
}

func convertBRDate(s string) (string, bool) {
	m := brDateRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	// Reject impossible dates such as 31/02: time.Date silently rolls them
	// over, so round-trip the components.
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		return "", false
	}

	return fmt.Sprintf("%04d-%02d-%02d%s", year, month, day, m[4]), true
}

// Float converts numeric values and comma-decimal strings to *float64.
// Returns nil when the value cannot be parsed.
func Float(v any) *float64 {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		return &x
	case float32:
		f := float64(x)
		return &f
	case int:
		f := float64(x)
		return &f
	case int64:
		f := float64(x)
		return &f
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", ".")
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// Int converts numeric values and digit strings to *int, truncating
// float-like input. Returns nil when the value cannot be parsed.
func Int(v any) *int {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return &x
	case int64:
		n := int(x)
		return &n
	case float64:
		n := int(x)
		return &n
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		if n, err := strconv.Atoi(s); err == nil {
			return &n
		}
		if f := Float(x); f != nil {
			n := int(*f)
			return &n
		}
		return nil
	default:
		return nil
	}
}

// String renders a scalar leaf as text. Floats that carry integral values
// print without a fraction so numeric codes keep their original form.
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// ToMaps coerces the three shapes a SOAP collection arrives in (a single
// map meaning one item, a map with an "item" key holding the sequence, or an
// already-flat sequence) into a flat slice of maps. Non-map entries are
// dropped silently. Precedence: the "item" key is only unwrapped when it is
// the collection wrapper, i.e. when its value is itself a sequence.
func ToMaps(v any) []map[string]any {
	switch x := v.(type) {
	case nil:
		return []map[string]any{}
	case map[string]any:
		if inner, ok := x["item"].([]any); ok {
			return ToMaps(inner)
		}
		if inner, ok := x["item"].(map[string]any); ok {
			return []map[string]any{inner}
		}
		return []map[string]any{x}
	case []any:
		out := make([]map[string]any, 0, len(x))
		for _, item := range x {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case []map[string]any:
		return x
	default:
		return []map[string]any{}
	}
}

// Cadastro canonicalizes one raw record from the general search: resolves
// the business key (some responses use "codigo" instead of
// "codigo_cadastro"), types the scalar fields, and defaults the inline
// child collections to empty slices.
func Cadastro(raw map[string]any) types.Record {
	codigo := String(raw["codigo_cadastro"])
	if codigo == "" {
		codigo = String(raw["codigo"])
		if codigo != "" {
			raw["codigo_cadastro"] = codigo
		}
	}

	return types.Record{
		CodigoCadastro: codigo,
		TipoCadastro:   Int(raw["tipo_cadastro"]),
		Situacao:       String(raw["situacao"]),
		AreaTerreno:    Float(raw["area_terreno"]),
		AreaConstruida: Float(raw["area_construida"]),
		DataCadastro:   Date(String(raw["data_cadastro"])),
		Proprietarios:  ToMaps(raw["proprietariosbci"]),
		Enderecos:      ToMaps(raw["enderecos"]),
		Zoneamentos:    ToMaps(raw["zoneamentos"]),
		Original:       raw,
	}
}
