// Package directory serves the static reference data shipped with the
// application: agricultural experts and government schemes. The data is
// embedded at build time and read-only.
package directory

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed data/*.json
var dataFS embed.FS

// Expert is one entry in the expert helpline directory.
type Expert struct {
	Name         string   `json:"name"`
	State        string   `json:"state"`
	Specialty    string   `json:"specialty"`
	Organization string   `json:"organization"`
	Phone        string   `json:"phone"`
	Languages    []string `json:"languages"`
}

// Scheme is one government support scheme.
type Scheme struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Eligibility string `json:"eligibility"`
	Link        string `json:"link"`
}

// Directory holds the decoded fixtures.
type Directory struct {
	experts []Expert
	schemes []Scheme
}

// Load decodes the embedded fixtures. Fails only on a broken build.
func Load() (*Directory, error) {
	d := &Directory{}
	if err := loadJSON("data/experts.json", &d.experts); err != nil {
		return nil, err
	}
	if err := loadJSON("data/schemes.json", &d.schemes); err != nil {
		return nil, err
	}
	return d, nil
}

func loadJSON(path string, v any) error {
	data, err := dataFS.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Experts returns experts, optionally filtered by state (case-insensitive).
// An empty state returns all.
func (d *Directory) Experts(state string) []Expert {
	if state == "" {
		return append([]Expert(nil), d.experts...)
	}
	var out []Expert
	for _, e := range d.experts {
		if strings.EqualFold(e.State, state) {
			out = append(out, e)
		}
	}
	return out
}

// Schemes returns schemes, optionally filtered by category.
// An empty category returns all.
func (d *Directory) Schemes(category string) []Scheme {
	if category == "" {
		return append([]Scheme(nil), d.schemes...)
	}
	var out []Scheme
	for _, s := range d.schemes {
		if strings.EqualFold(s.Category, category) {
			out = append(out, s)
		}
	}
	return out
}
