package orchestrator

import (
	"testing"
)

func TestParseAnswerCanonical(t *testing.T) {
	answer, ok := parseAnswer(`{"uri": "wip://w/a", "parameters": [{"name": "x", "value": "1"}], "text": "hi"}`)
	if !ok {
		t.Fatal("parse failed")
	}
	if answer.URI != "wip://w/a" || answer.Text != "hi" {
		t.Errorf("answer = %+v", answer)
	}
	if len(answer.Parameters) != 1 || answer.Parameters[0] != (ParameterKV{"x", "1"}) {
		t.Errorf("parameters = %+v", answer.Parameters)
	}
}

func TestParseAnswerObjectParametersKeepOrder(t *testing.T) {
	answer, ok := parseAnswer(`{"uri": "wip://w/a", "parameters": {"symbol": "ACME", "range": "1d", "currency": "USD"}, "text": ""}`)
	if !ok {
		t.Fatal("parse failed")
	}
	want := []ParameterKV{{"symbol", "ACME"}, {"range", "1d"}, {"currency", "USD"}}
	if len(answer.Parameters) != len(want) {
		t.Fatalf("parameters = %+v", answer.Parameters)
	}
	for i, p := range want {
		if answer.Parameters[i] != p {
			t.Errorf("parameters[%d] = %+v, want %+v", i, answer.Parameters[i], p)
		}
	}
}

func TestParseAnswerStringifiesValues(t *testing.T) {
	answer, ok := parseAnswer(`{"uri": "wip://w/a", "parameters": {"count": 3, "live": true, "tags": ["a","b"]}, "text": ""}`)
	if !ok {
		t.Fatal("parse failed")
	}
	want := []ParameterKV{{"count", "3"}, {"live", "true"}, {"tags", `["a","b"]`}}
	for i, p := range want {
		if answer.Parameters[i] != p {
			t.Errorf("parameters[%d] = %+v, want %+v", i, answer.Parameters[i], p)
		}
	}
}

func TestParseAnswerMissingFields(t *testing.T) {
	answer, ok := parseAnswer(`{"uri": "wip://w/a"}`)
	if !ok {
		t.Fatal("parse failed")
	}
	if answer.Text != "" {
		t.Errorf("text = %q, want empty", answer.Text)
	}
	if answer.Parameters == nil || len(answer.Parameters) != 0 {
		t.Errorf("parameters = %#v, want empty list", answer.Parameters)
	}
}

func TestParseAnswerNullParameters(t *testing.T) {
	answer, ok := parseAnswer(`{"uri": "", "parameters": null, "text": "plain"}`)
	if !ok {
		t.Fatal("parse failed")
	}
	if len(answer.Parameters) != 0 {
		t.Errorf("parameters = %+v", answer.Parameters)
	}
}

func TestParseAnswerCodeFence(t *testing.T) {
	raw := "```json\n{\"uri\": \"wip://w/a\", \"parameters\": [], \"text\": \"fenced\"}\n```"
	answer, ok := parseAnswer(raw)
	if !ok {
		t.Fatal("parse failed")
	}
	if answer.Text != "fenced" {
		t.Errorf("text = %q", answer.Text)
	}
}

func TestParseAnswerProseRejected(t *testing.T) {
	if _, ok := parseAnswer("Sure, here's the stock card you asked for!"); ok {
		t.Fatal("prose accepted as answer document")
	}
}

func TestParseAnswerBadParameterShape(t *testing.T) {
	if _, ok := parseAnswer(`{"uri": "", "parameters": "symbol=ACME", "text": ""}`); ok {
		t.Fatal("string parameters accepted")
	}
}

func TestEnforceVisibility(t *testing.T) {
	visible := map[string]bool{"wip://w/a": true}

	keep := &ValidatedAnswer{URI: "wip://w/a", Parameters: []ParameterKV{{"x", "1"}}, Text: "t"}
	enforceVisibility(keep, visible)
	if keep.URI != "wip://w/a" || len(keep.Parameters) != 1 {
		t.Errorf("visible answer mutated: %+v", keep)
	}

	drop := &ValidatedAnswer{URI: "wip://w/other", Parameters: []ParameterKV{{"x", "1"}}, Text: "t"}
	enforceVisibility(drop, visible)
	if drop.URI != "" || len(drop.Parameters) != 0 {
		t.Errorf("invisible answer kept: %+v", drop)
	}
	if drop.Text != "t" {
		t.Errorf("text cleared: %+v", drop)
	}

	empty := &ValidatedAnswer{URI: "", Text: "no widget"}
	enforceVisibility(empty, visible)
	if empty.Text != "no widget" {
		t.Errorf("empty-URI answer text mutated: %+v", empty)
	}

	// No widget selected means no parameters either.
	emptyWithParams := &ValidatedAnswer{URI: "", Parameters: []ParameterKV{{"x", "1"}}, Text: "hi"}
	enforceVisibility(emptyWithParams, visible)
	if len(emptyWithParams.Parameters) != 0 {
		t.Errorf("empty-URI answer kept parameters: %+v", emptyWithParams)
	}
}

func TestStripFence(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"```json\n{}\n```", "{}"},
		{"```\n{}\n```", "{}"},
		{"{}", "{}"},
		{"plain text", "plain text"},
	}
	for _, c := range cases {
		if got := stripFence(c.in); got != c.want {
			t.Errorf("stripFence(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
