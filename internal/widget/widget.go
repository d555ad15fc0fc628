// Package widget models UI widget manifests. A manifest is a JSON
// document describing one renderable widget: its wip:// URI, the
// parameters it accepts, and hints for when the assistant should pick
// it. The raw JSON is kept alongside the parsed fields because the
// document text itself is what gets shown to the model.
package widget

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Scheme is the URI scheme widget manifests live under.
const Scheme = "wip://"

// Manifest is a parsed widget descriptor.
type Manifest struct {
	URI                   string         `json:"uri"`
	Name                  string         `json:"name,omitempty"`
	Description           string         `json:"description,omitempty"`
	UseCasesHints         []string       `json:"use_cases_hints,omitempty"`
	Version               string         `json:"version,omitempty"`
	InputParametersSchema map[string]any `json:"input_parameters_schema,omitempty"`
	Capabilities          map[string]any `json:"capabilities,omitempty"`

	// Raw is the original document text. It is what the prompt
	// composer and the retriever index see, not a re-marshal.
	Raw string `json:"-"`
}

// ParseDescriptor parses a widget descriptor document. The uri field
// is mandatory; everything else is optional.
func ParseDescriptor(text string) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return nil, fmt.Errorf("parse descriptor: %w", err)
	}
	if m.URI == "" {
		return nil, fmt.Errorf("descriptor missing uri")
	}
	m.Raw = text
	return &m, nil
}

// IsWidgetURI reports whether uri uses the widget scheme.
func IsWidgetURI(uri string) bool {
	return strings.HasPrefix(uri, Scheme)
}

// LoadDir reads every .json file under dir (non-recursive) and parses
// it as a widget descriptor. Files that fail to parse are skipped and
// reported in the returned slice of errors; a bad file never prevents
// loading the rest. Results are sorted by URI for stable ordering.
func LoadDir(dir string) ([]*Manifest, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("read dir %s: %w", dir, err)}
	}

	var manifests []*Manifest
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", path, err))
			continue
		}
		m, err := ParseDescriptor(string(data))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		manifests = append(manifests, m)
	}

	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].URI < manifests[j].URI
	})
	return manifests, errs
}
