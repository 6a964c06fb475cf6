// Package rules decides where each extracted chunk goes in its target document.
//
// A chapter has an ordered list of keyword rules. The first rule whose keyword
// appears in the body of a chunk gives the anchor text for that chunk. Chunks
// matched by no rule can fall back to the nearest markdown heading before them.
package rules

import (
	"strings"
	"unicode/utf8"

	"github.com/hesusruiz/rmd2ptx/ptx"
	"github.com/hesusruiz/rmd2ptx/rmd"
)

// Heading fallback limits
const (
	headingWindow   = 200
	headingMaxRunes = 40
)

// Rule maps chunks containing Keyword to the line of the target containing Anchor.
type Rule struct {
	Keyword string `yaml:"keyword"`

	// Require lists more substrings that must all be in the body
	Require []string `yaml:"require,omitempty"`

	// Chunk, if not empty, must be equal to the chunk name
	Chunk string `yaml:"chunk,omitempty"`

	Anchor string `yaml:"anchor"`
}

// Match reports whether the rule applies to the chunk.
func (r Rule) Match(c rmd.Chunk) bool {
	if !strings.Contains(c.Body, r.Keyword) {
		return false
	}
	for _, s := range r.Require {
		if !strings.Contains(c.Body, s) {
			return false
		}
	}
	if len(r.Chunk) > 0 && r.Chunk != c.Name {
		return false
	}
	return true
}

// Placement is where a chunk was sent, and why.
type Placement struct {
	Chunk     rmd.Chunk
	Candidate ptx.Candidate
	ByHeading bool
}

// BuildCandidates returns one candidate for every chunk that a rule or the heading
// fallback can place, in chunk order, and the chunks that could not be placed.
func BuildCandidates(chunks []rmd.Chunk, rules []Rule, headingFallback bool, indent int) (placed []Placement, dropped []rmd.Chunk) {
	for _, c := range chunks {
		anchor, byHeading, ok := Place(c, rules, headingFallback)
		if !ok {
			dropped = append(dropped, c)
			continue
		}
		placed = append(placed, Placement{
			Chunk:     c,
			Candidate: ptx.Candidate{SearchKey: anchor, Body: c.Body, Indent: indent},
			ByHeading: byHeading,
		})
	}
	return placed, dropped
}

// Candidates returns the candidates of a list of placements.
func Candidates(placed []Placement) []ptx.Candidate {
	cands := make([]ptx.Candidate, 0, len(placed))
	for _, p := range placed {
		cands = append(cands, p.Candidate)
	}
	return cands
}

// Place returns the anchor text for a chunk. Rules are tried in order and the
// first match wins. Otherwise, if headingFallback is set, the anchor is derived
// from the last heading in the text just before the chunk.
func Place(c rmd.Chunk, rules []Rule, headingFallback bool) (anchor string, byHeading bool, ok bool) {
	for _, r := range rules {
		if r.Match(c) {
			return r.Anchor, false, true
		}
	}

	if !headingFallback {
		return "", false, false
	}

	anchor, ok = HeadingAnchor(c.ContextBefore)
	return anchor, ok, ok
}

// HeadingAnchor looks for a markdown heading in the last 200 characters of
// context and returns its title, trimmed to at most 40 characters.
func HeadingAnchor(context string) (string, bool) {
	from := len(context)
	for n := 0; n < headingWindow && from > 0; n++ {
		_, w := utf8.DecodeLastRuneInString(context[:from])
		from -= w
	}
	context = context[from:]

	lines := strings.Split(context, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "#") {
			continue
		}

		title := rmd.StripAttributes(strings.Trim(line, "#"))
		title = truncate(title, headingMaxRunes)
		if len(title) == 0 {
			return "", false
		}
		return title, true
	}

	return "", false
}

func truncate(s string, max int) string {
	n := 0
	for i := range s {
		if n == max {
			return strings.TrimSpace(s[:i])
		}
		n++
	}
	return s
}
