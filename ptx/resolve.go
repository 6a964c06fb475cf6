package ptx

import (
	"strings"
	"unicode/utf8"

	"github.com/hesusruiz/rmd2ptx/sliceedit"
	"go.uber.org/zap"
)

// ProbeLen is the number of characters of the escaped body used to detect
// code that was already inserted in a previous run.
const ProbeLen = 50

// Candidate is a code body to be inserted after the first line containing SearchKey.
type Candidate struct {
	SearchKey string
	Body      string
	Indent    int
}

// InsertionPoint is a rendered fragment to insert before line AnchorLine (0-based)
// of the document it was resolved against.
type InsertionPoint struct {
	AnchorLine int
	Fragment   string
	Key        string
}

// MissReason tells why a candidate was not accepted.
type MissReason int

const (
	// Duplicate means the body is already present in the document
	Duplicate MissReason = iota
	// AnchorNotFound means no line of the document contains the search key
	AnchorNotFound
	// EmptyBody means there was nothing to insert
	EmptyBody
)

func (r MissReason) String() string {
	switch r {
	case Duplicate:
		return "duplicate"
	case AnchorNotFound:
		return "anchor not found"
	case EmptyBody:
		return "empty body"
	}
	return "unknown"
}

// Miss is a candidate that was discarded.
type Miss struct {
	Key    string
	Reason MissReason
}

// Resolution is the outcome of resolving a list of candidates against one document.
type Resolution struct {
	Points []InsertionPoint
	Misses []Miss
}

// Resolver maps candidates to insertion points.
type Resolver struct {
	Formatter Formatter
	Log       *zap.SugaredLogger
}

// Resolve resolves candidates with the default formatter. See Resolver.Resolve.
func Resolve(doc string, candidates []Candidate) Resolution {
	r := &Resolver{Formatter: Formatter{Lang: DefaultLang}}
	return r.Resolve(doc, candidates)
}

// Resolve finds the insertion point of each candidate in doc.
//
// Candidates are independent of each other: each one is resolved against the
// unmodified doc, whatever happened to the others. A candidate is discarded if
// its body is already in the document or if no line contains its search key.
// Discarded candidates are reported in the Misses of the result.
func (r *Resolver) Resolve(doc string, candidates []Candidate) Resolution {
	log := r.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var res Resolution

	lines := strings.Split(doc, "\n")

	for _, c := range candidates {

		if len(strings.TrimSpace(c.Body)) == 0 {
			res.Misses = append(res.Misses, Miss{Key: c.SearchKey, Reason: EmptyBody})
			continue
		}

		// The document is its own ledger of what was already inserted
		if AlreadyPresent(doc, c.Body) {
			res.Misses = append(res.Misses, Miss{Key: c.SearchKey, Reason: Duplicate})
			continue
		}

		anchor, ok := FindAnchor(lines, c.SearchKey)
		if !ok {
			res.Misses = append(res.Misses, Miss{Key: c.SearchKey, Reason: AnchorNotFound})
			continue
		}

		if hits := sliceedit.FindAll([]byte(doc), c.SearchKey); len(hits) > 1 {
			log.Debugw("search key is ambiguous, using the first line", "key", c.SearchKey, "hits", len(hits), "line", anchor)
		}

		res.Points = append(res.Points, InsertionPoint{
			AnchorLine: anchor,
			Fragment:   r.Formatter.Format(c.Body, c.Indent),
			Key:        c.SearchKey,
		})
	}

	return res
}

// FindAnchor returns the index of the line following the first line containing key.
// An empty key never matches.
func FindAnchor(lines []string, key string) (int, bool) {
	if len(key) == 0 {
		return 0, false
	}
	for i, line := range lines {
		if strings.Contains(line, key) {
			return i + 1, true
		}
	}
	return 0, false
}

// AlreadyPresent reports whether the beginning of body, once escaped and
// formatted, is already in doc.
func AlreadyPresent(doc, body string) bool {
	return strings.Contains(unindent(doc), unindent(probe(body)))
}

// probe returns the first ProbeLen characters of the escaped body.
func probe(body string) string {
	s := Escape(body)
	if utf8.RuneCountInString(s) <= ProbeLen {
		return s
	}
	n := 0
	for i := range s {
		if n == ProbeLen {
			return s[:i]
		}
		n++
	}
	return s
}

// unindent removes the leading blanks of every line, as the Formatter adds
// its own indentation to each line of a body.
func unindent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimLeft(line, " \t")
	}
	return strings.Join(lines, "\n")
}
