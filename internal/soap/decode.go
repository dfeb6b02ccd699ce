// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package soap

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/tributech/cadastro-extractor/internal/normalize"
)

// DecodeResponse parses a SOAP response body into a tree of map[string]any,
// []any, and string values. Namespace prefixes are discarded, repeated
// sibling elements collapse into a sequence, "return"/"retorno" wrapper
// keys are unwrapped, and every string leaf passes through wire-level date
// normalization. A SOAP Fault in the body is returned as a *Fault error.
func DecodeResponse(r io.Reader) (any, error) {
	dec := xml.NewDecoder(r)

	// Walk to the Body element, then parse its single child (the
	// operation response element).
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "Body" {
			continue
		}

		inner, err := firstChild(dec)
		if err != nil {
			return nil, err
		}
		if inner == nil {
			return nil, fmt.Errorf("empty SOAP body")
		}
		if inner.Name.Local == "Fault" {
			return nil, parseFault(dec)
		}

		value, err := parseElement(dec)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", inner.Name.Local, err)
		}
		return unwrapReturn(value), nil
	}
}

// firstChild advances the decoder to the next start element, or returns nil
// at the enclosing end element.
func firstChild(dec *xml.Decoder) (*xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return &t, nil
		case xml.EndElement:
			return nil, nil
		}
	}
}

// parseElement consumes the content of the element the decoder is inside
// and returns it as a string leaf, a map, or (for callers that collapse
// siblings) contributes to a sequence. Mixed content keeps the child
// elements and drops surrounding text.
func parseElement(dec *xml.Decoder) (any, error) {
	children := map[string]any{}
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			value, err := parseElement(dec)
			if err != nil {
				return nil, err
			}
			addChild(children, t.Name.Local, value)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if len(children) > 0 {
				return children, nil
			}
			return normalize.WireDate(strings.TrimSpace(text.String())), nil
		}
	}
}

// addChild inserts value under name, collapsing repeated siblings into a
// sequence: the second occurrence converts the entry to []any.
func addChild(children map[string]any, name string, value any) {
	existing, ok := children[name]
	if !ok {
		children[name] = value
		return
	}
	if seq, ok := existing.([]any); ok {
		children[name] = append(seq, value)
		return
	}
	children[name] = []any{existing, value}
}

// unwrapReturn hoists the content of single-key "return"/"retorno"
// envelopes so callers address the payload directly.
func unwrapReturn(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	for key, inner := range m {
		if key == "return" || key == "retorno" {
			return unwrapReturn(inner)
		}
	}
	return v
}

func parseFault(dec *xml.Decoder) error {
	var f Fault
	tree, err := parseElement(dec)
	if err != nil {
		return fmt.Errorf("parsing fault: %w", err)
	}
	if m, ok := tree.(map[string]any); ok {
		f.Code = normalize.String(m["faultcode"])
		f.String = normalize.String(m["faultstring"])
	}
	return &f
}
