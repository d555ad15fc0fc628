package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ParameterKV is one widget parameter. Parameters are an ordered list,
// not a map: rendering order matters to the widget host.
type ParameterKV struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ValidatedAnswer is the contract a turn's final answer is normalized
// into. An empty URI means no widget was selected.
type ValidatedAnswer struct {
	URI        string        `json:"uri"`
	Parameters []ParameterKV `json:"parameters"`
	Text       string        `json:"text"`
}

// answerSchema constrains the repair completion to the answer contract.
var answerSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"uri": map[string]any{"type": "string"},
		"parameters": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":  map[string]any{"type": "string"},
					"value": map[string]any{"type": "string"},
				},
				"required":             []string{"name", "value"},
				"additionalProperties": false,
			},
		},
		"text": map[string]any{"type": "string"},
	},
	"required":             []string{"uri", "parameters", "text"},
	"additionalProperties": false,
}

const repairInstructions = `Extract the widget selection from the text below.
Return the widget uri (empty string if none), its parameters as a list of
name/value pairs, and the assistant's message text. Preserve parameter order.`

// validate normalizes the model's raw final answer into a
// ValidatedAnswer. Lenient parsing is tried first; if the text is not
// a usable answer document, one schema-constrained repair completion
// is attempted. Either way the URI is checked against the widgets
// visible this turn: a URI the model was never shown is cleared along
// with its parameters.
func (o *Orchestrator) validate(ctx context.Context, raw string, visible map[string]bool) (*ValidatedAnswer, bool, error) {
	if answer, ok := parseAnswer(raw); ok {
		enforceVisibility(answer, visible)
		return answer, false, nil
	}

	o.logger.Debug("answer not parseable, attempting repair")
	resp, err := o.llm.ChatStructured(ctx, raw, repairInstructions, "widget_answer", answerSchema)
	if err != nil {
		return nil, false, fmt.Errorf("repair completion: %w", err)
	}

	answer, ok := parseAnswer(resp.Message.Content)
	if !ok {
		// Constrained output still unusable: degrade to plain text.
		o.logger.Warn("repair output not parseable, falling back to text answer")
		return &ValidatedAnswer{Parameters: []ParameterKV{}, Text: raw}, true, nil
	}
	enforceVisibility(answer, visible)
	return answer, true, nil
}

// enforceVisibility clears the URI and parameters unless the URI names
// a widget shown this turn. The empty URI never names a widget, so an
// answer that selected nothing cannot smuggle parameters through.
func enforceVisibility(answer *ValidatedAnswer, visible map[string]bool) {
	if !visible[answer.URI] {
		answer.URI = ""
		answer.Parameters = []ParameterKV{}
	}
}

// parseAnswer leniently parses an answer document. It accepts
// parameters either as an ordered pair list or as a JSON object (keys
// kept in document order), stringifies non-string values, defaults a
// missing text to "", and strips a surrounding markdown code fence.
func parseAnswer(raw string) (*ValidatedAnswer, bool) {
	text := stripFence(strings.TrimSpace(raw))

	var doc struct {
		URI        string          `json:"uri"`
		Parameters json.RawMessage `json:"parameters"`
		Text       string          `json:"text"`
	}
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, false
	}

	answer := &ValidatedAnswer{
		URI:        doc.URI,
		Parameters: []ParameterKV{},
		Text:       doc.Text,
	}
	if len(doc.Parameters) == 0 || string(doc.Parameters) == "null" {
		return answer, true
	}

	params, ok := parseParameters(doc.Parameters)
	if !ok {
		return nil, false
	}
	answer.Parameters = params
	return answer, true
}

// parseParameters handles both parameter shapes.
func parseParameters(raw json.RawMessage) ([]ParameterKV, bool) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(trimmed, "["):
		return parseParameterList(raw)
	case strings.HasPrefix(trimmed, "{"):
		return parseParameterObject(raw)
	default:
		return nil, false
	}
}

// parseParameterList parses the canonical [{"name":..,"value":..}]
// shape, stringifying non-string values.
func parseParameterList(raw json.RawMessage) ([]ParameterKV, bool) {
	var items []struct {
		Name  string          `json:"name"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	params := make([]ParameterKV, 0, len(items))
	for _, item := range items {
		params = append(params, ParameterKV{Name: item.Name, Value: stringify(item.Value)})
	}
	return params, true
}

// parseParameterObject converts a {"name": value, ...} object into an
// ordered pair list. The token stream is walked directly so the pairs
// come out in document order; unmarshalling into a map would shuffle
// them.
func parseParameterObject(raw json.RawMessage) ([]ParameterKV, bool) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, false
	}

	var params []ParameterKV
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, false
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		params = append(params, ParameterKV{Name: key, Value: stringify(value)})
	}
	if params == nil {
		params = []ParameterKV{}
	}
	return params, true
}

// stringify renders a JSON value as the parameter string: strings are
// unquoted, everything else keeps its JSON form.
func stringify(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// stripFence removes a surrounding markdown code fence if present.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
