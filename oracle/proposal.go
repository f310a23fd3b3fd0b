package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SetupProposal is a new long entry suggested by the oracle. Size is zero
// when the oracle left sizing to the account model.
type SetupProposal struct {
	Symbol     string              `json:"symbol"`
	Entry      decimal.Decimal     `json:"entry"`
	Target     decimal.Decimal     `json:"target"`
	Stop       decimal.Decimal     `json:"stop"`
	Size       decimal.Decimal     `json:"size"`
	Confidence decimal.NullDecimal `json:"confidence"`
	Reason     string              `json:"reason"`
}

var proposalFields = map[string][]string{
	"symbol":     {"symbol", "ticker"},
	"entry":      {"entry", "entry_price"},
	"stop":       {"stop", "stop_price", "stop_loss"},
	"target":     {"target", "target_price", "take_profit"},
	"size":       {"size", "position_size", "shares"},
	"confidence": {"confidence"},
	"reason":     {"reason", "rationale"},
}

func DecodeProposal(b []byte) (SetupProposal, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return SetupProposal{}, &ParseError{Field: "proposal", Msg: err.Error()}
	}
	return ParseProposal(m)
}

// ParseProposal folds field synonyms into a SetupProposal and checks that
// symbol, entry, stop and target are present and positive.
func ParseProposal(m map[string]any) (SetupProposal, error) {
	lookup := make(map[string]any, len(m))
	for k, v := range m {
		lookup[strings.ToLower(strings.TrimSpace(k))] = v
	}
	get := func(field string) (any, bool) {
		for _, k := range proposalFields[field] {
			if v, ok := lookup[k]; ok && v != nil {
				return v, true
			}
		}
		return nil, false
	}

	var p SetupProposal
	if v, ok := get("symbol"); ok {
		p.Symbol = strings.ToUpper(strings.TrimSpace(stringify(v)))
	}
	if p.Symbol == "" {
		return SetupProposal{}, &ParseError{Field: "symbol", Msg: "missing"}
	}

	for _, f := range []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"entry", &p.Entry},
		{"stop", &p.Stop},
		{"target", &p.Target},
	} {
		v, ok := get(f.name)
		if !ok {
			return SetupProposal{}, &ParseError{Field: f.name, Msg: "missing"}
		}
		n, err := parseNumber(stringify(v))
		if err != nil {
			return SetupProposal{}, &ParseError{Field: f.name, Msg: err.Error()}
		}
		if !n.IsPositive() {
			return SetupProposal{}, &ParseError{Field: f.name, Msg: fmt.Sprintf("must be positive, got %s", n)}
		}
		*f.dst = n
	}

	if v, ok := get("size"); ok {
		n, err := parseNumber(stringify(v))
		if err != nil || n.IsNegative() {
			return SetupProposal{}, &ParseError{Field: "size", Msg: fmt.Sprintf("invalid size %v", v)}
		}
		p.Size = n
	}
	if v, ok := get("confidence"); ok {
		n, err := parseNumber(stringify(v))
		if err != nil {
			return SetupProposal{}, &ParseError{Field: "confidence", Msg: err.Error()}
		}
		p.Confidence = decimal.NewNullDecimal(n)
	}
	if v, ok := get("reason"); ok {
		p.Reason = stringify(v)
	}
	return p, nil
}
