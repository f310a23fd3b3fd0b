package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ActionKind is what the oracle asks the engine to do with an open
// position. Kinds outside the four known ones are kept verbatim so the
// engine can log them before treating them as HOLD.
type ActionKind string

const (
	Hold        ActionKind = "HOLD"
	Exit        ActionKind = "EXIT"
	PartialExit ActionKind = "PARTIAL_EXIT"
	AdjustStops ActionKind = "ADJUST_STOPS"
)

func (k ActionKind) Known() bool {
	switch k {
	case Hold, Exit, PartialExit, AdjustStops:
		return true
	}
	return false
}

// Canonical parameter keys. Synonyms are folded into these by ParseAction.
const (
	ParamStopPrice      = "stop_price"
	ParamExitPercentage = "exit_percentage"
	ParamExitFraction   = "exit_fraction"
	ParamScalePoints    = "scale_points"
)

var paramSynonyms = map[string]string{
	"stop":            ParamStopPrice,
	"stop_price":      ParamStopPrice,
	"new_stop":        ParamStopPrice,
	"stop_loss":       ParamStopPrice,
	"exit_percentage": ParamExitPercentage,
	"exit_percent":    ParamExitPercentage,
	"exit_fraction":   ParamExitFraction,
	"fraction":        ParamExitFraction,
	"scale_points":    ParamScalePoints,
}

// Action is one normalized oracle decision for a position.
type Action struct {
	Kind   ActionKind        `json:"kind"`
	Params map[string]string `json:"params,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

// Decimal reads a numeric parameter. ok is false when the key is absent.
func (a Action) Decimal(key string) (v decimal.Decimal, ok bool, err error) {
	s, ok := a.Params[key]
	if !ok {
		return decimal.Zero, false, nil
	}
	v, err = parseNumber(s)
	if err != nil {
		return decimal.Zero, true, &ParseError{Field: "params." + key, Msg: err.Error()}
	}
	return v, true, nil
}

// RawAction is the wire form. Params is either an object or, in the
// legacy format, a bare string such as "stop=12.30" or "12.30".
type RawAction struct {
	Kind   string `json:"kind"`
	Action string `json:"action"`
	Params any    `json:"params"`
	Reason string `json:"reason"`
}

var ErrParse = errors.New("unparseable oracle output")

// ParseError reports oracle output the engine cannot act on.
type ParseError struct {
	Field string
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("oracle: %s: %s", e.Field, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}

func DecodeAction(b []byte) (Action, error) {
	var raw RawAction
	if err := json.Unmarshal(b, &raw); err != nil {
		return Action{}, &ParseError{Field: "action", Msg: err.Error()}
	}
	return ParseAction(raw)
}

// ParseAction normalizes a raw action: the kind is trimmed and upper
// cased, the legacy "action" key stands in for "kind", and parameter
// synonyms are folded into the canonical keys.
func ParseAction(raw RawAction) (Action, error) {
	kind := raw.Kind
	if strings.TrimSpace(kind) == "" {
		kind = raw.Action
	}
	kind = strings.ToUpper(strings.TrimSpace(kind))
	kind = strings.ReplaceAll(kind, " ", "_")
	if kind == "" {
		return Action{}, &ParseError{Field: "kind", Msg: "missing"}
	}

	a := Action{
		Kind:   ActionKind(kind),
		Reason: strings.TrimSpace(raw.Reason),
		Params: map[string]string{},
	}

	switch p := raw.Params.(type) {
	case nil:
	case map[string]any:
		for k, v := range p {
			a.Params[canonicalParam(k)] = stringify(v)
		}
	case map[string]string:
		for k, v := range p {
			a.Params[canonicalParam(k)] = v
		}
	case string:
		parseLegacyParams(a.Kind, p, a.Params)
	case float64, json.Number:
		if a.Kind == AdjustStops {
			a.Params[ParamStopPrice] = stringify(p)
		}
	default:
		return Action{}, &ParseError{Field: "params", Msg: fmt.Sprintf("unsupported type %T", raw.Params)}
	}
	return a, nil
}

// parseLegacyParams handles "key=value" pairs separated by commas or
// semicolons. A bare number is the new stop for ADJUST_STOPS.
func parseLegacyParams(kind ActionKind, s string, out map[string]string) {
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, found := strings.Cut(part, "=")
		if !found {
			if kind == AdjustStops {
				out[ParamStopPrice] = part
			}
			continue
		}
		out[canonicalParam(k)] = strings.TrimSpace(v)
	}
}

func canonicalParam(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	if c, ok := paramSynonyms[k]; ok {
		return c
	}
	return k
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return decimal.NewFromFloat(t).String()
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(t)
	}
}

// parseNumber accepts plain numbers and the "$12.30", "1,250" and "50%"
// forms the oracle tends to produce.
func parseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	return decimal.NewFromString(strings.TrimSpace(s))
}
