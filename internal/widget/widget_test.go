package widget

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDescriptor(t *testing.T) {
	text := `{
		"uri": "wip://widgets/stock-card",
		"name": "Stock Card",
		"description": "Displays a stock quote",
		"use_cases_hints": ["show a share price"],
		"version": "1.2.0",
		"input_parameters_schema": {
			"type": "object",
			"properties": {"symbol": {"type": "string"}}
		}
	}`

	m, err := ParseDescriptor(text)
	if err != nil {
		t.Fatalf("ParseDescriptor failed: %v", err)
	}
	if m.URI != "wip://widgets/stock-card" {
		t.Errorf("URI = %q", m.URI)
	}
	if m.Name != "Stock Card" {
		t.Errorf("Name = %q", m.Name)
	}
	if len(m.UseCasesHints) != 1 {
		t.Errorf("UseCasesHints = %v", m.UseCasesHints)
	}
	if m.Raw != text {
		t.Error("Raw does not preserve the original document")
	}
}

func TestParseDescriptorMissingURI(t *testing.T) {
	if _, err := ParseDescriptor(`{"name": "no uri here"}`); err == nil {
		t.Fatal("expected error for descriptor without uri")
	}
}

func TestParseDescriptorInvalidJSON(t *testing.T) {
	if _, err := ParseDescriptor(`{not json`); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestIsWidgetURI(t *testing.T) {
	cases := []struct {
		uri  string
		want bool
	}{
		{"wip://widgets/stock-card", true},
		{"wip://", true},
		{"file://widgets/stock-card", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsWidgetURI(c.uri); got != c.want {
			t.Errorf("IsWidgetURI(%q) = %v, want %v", c.uri, got, c.want)
		}
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("b.json", `{"uri": "wip://widgets/weather", "name": "Weather"}`)
	write("a.json", `{"uri": "wip://widgets/calendar", "name": "Calendar"}`)
	write("broken.json", `{"name": "no uri"}`)
	write("notes.txt", `not a descriptor`)

	manifests, errs := LoadDir(dir)
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
	}
	if len(manifests) != 2 {
		t.Fatalf("got %d manifests, want 2", len(manifests))
	}
	// Sorted by URI.
	if manifests[0].URI != "wip://widgets/calendar" || manifests[1].URI != "wip://widgets/weather" {
		t.Errorf("order = [%s, %s]", manifests[0].URI, manifests[1].URI)
	}
}

func TestLoadDirMissing(t *testing.T) {
	_, errs := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if len(errs) == 0 {
		t.Fatal("expected error for missing directory")
	}
}
