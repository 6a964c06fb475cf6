package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hesusruiz/rmd2ptx/ptx"
	"gopkg.in/yaml.v3"
)

//go:embed chapters.yaml
var defaultTable []byte

// Chapter pairs a source R Markdown document with its target PreTeXt document.
// Paths are relative to the base directory of the run.
type Chapter struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Target string `yaml:"target"`

	// Indentation level of the inserted blocks. The run default is used when nil.
	Indent *int `yaml:"indent,omitempty"`

	// HeadingFallback places chunks not matched by any rule after the
	// nearest heading before them in the source. Enabled when nil.
	HeadingFallback *bool `yaml:"heading-fallback,omitempty"`

	Rules []Rule `yaml:"rules"`
}

// Example is a hand-written code block for a section with no chunk in the source.
type Example struct {
	Search      string `yaml:"search"`
	Code        string `yaml:"code"`
	Indent      *int   `yaml:"indent,omitempty"`
	Description string `yaml:"description"`
}

// ExampleSet is the list of examples for one target document.
type ExampleSet struct {
	Target   string    `yaml:"target"`
	Examples []Example `yaml:"examples"`
}

// Table is the complete set of chapters and examples of a run.
type Table struct {
	Chapters []Chapter    `yaml:"chapters"`
	Examples []ExampleSet `yaml:"examples"`
}

// Default returns the table of the statistical thinking book, compiled into the binary.
func Default() (*Table, error) {
	return Parse(defaultTable)
}

// Load reads a YAML table file and validates it.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a YAML table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks that every chapter, rule and example is usable.
func (t *Table) Validate() error {
	var errs []error

	names := map[string]bool{}
	for i, c := range t.Chapters {
		if len(c.Name) == 0 {
			errs = append(errs, fmt.Errorf("chapter %d: name is required", i+1))
		} else if names[c.Name] {
			errs = append(errs, fmt.Errorf("chapter %q: duplicate name", c.Name))
		}
		names[c.Name] = true

		if len(c.Source) == 0 || len(c.Target) == 0 {
			errs = append(errs, fmt.Errorf("chapter %q: source and target are required", c.Name))
		}
		if c.Indent != nil && *c.Indent < 0 {
			errs = append(errs, fmt.Errorf("chapter %q: negative indent", c.Name))
		}
		for j, r := range c.Rules {
			if len(r.Keyword) == 0 || len(r.Anchor) == 0 {
				errs = append(errs, fmt.Errorf("chapter %q, rule %d: keyword and anchor are required", c.Name, j+1))
			}
		}
	}

	for _, set := range t.Examples {
		if len(set.Target) == 0 {
			errs = append(errs, errors.New("example set without target"))
		}
		for j, ex := range set.Examples {
			if len(ex.Search) == 0 || len(ex.Code) == 0 {
				errs = append(errs, fmt.Errorf("examples for %q, entry %d: search and code are required", set.Target, j+1))
			}
			if ex.Indent != nil && *ex.Indent < 0 {
				errs = append(errs, fmt.Errorf("examples for %q, entry %d: negative indent", set.Target, j+1))
			}
		}
	}

	return errors.Join(errs...)
}

// Select returns a copy of the table with only the named chapters, in table order.
// The examples are kept only for the targets of the selected chapters.
func (t *Table) Select(names []string) (*Table, error) {
	if len(names) == 0 {
		return t, nil
	}

	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}

	sel := &Table{}
	targets := map[string]bool{}
	for _, c := range t.Chapters {
		if want[c.Name] {
			sel.Chapters = append(sel.Chapters, c)
			targets[c.Target] = true
			delete(want, c.Name)
		}
	}
	if len(want) > 0 {
		var unknown []string
		for n := range want {
			unknown = append(unknown, n)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown chapters: %s", strings.Join(unknown, ", "))
	}

	for _, set := range t.Examples {
		if targets[set.Target] {
			sel.Examples = append(sel.Examples, set)
		}
	}

	return sel, nil
}

// IndentOr returns the indentation level of the chapter, or def if not set.
func (c Chapter) IndentOr(def int) int {
	if c.Indent != nil {
		return *c.Indent
	}
	return def
}

// FallbackEnabled reports whether unmatched chunks are placed by heading.
func (c Chapter) FallbackEnabled() bool {
	return c.HeadingFallback == nil || *c.HeadingFallback
}

// Candidates returns the candidates for a list of examples, in order.
func (s ExampleSet) Candidates(def int) []ptx.Candidate {
	cands := make([]ptx.Candidate, 0, len(s.Examples))
	for _, ex := range s.Examples {
		indent := def
		if ex.Indent != nil {
			indent = *ex.Indent
		}
		cands = append(cands, ptx.Candidate{SearchKey: ex.Search, Body: ex.Code, Indent: indent})
	}
	return cands
}
