// Package rmd extracts code chunks from R Markdown documents.
//
// Extraction is pattern based and best effort: a fence that does not match
// (unterminated, wrong language tag, malformed header) is simply not reported.
package rmd

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultLang is the language tag of the chunks extracted by Extract.
const DefaultLang = "r"

// Unnamed is the name given to chunks that do not declare one.
const Unnamed = "unnamed"

// Size in characters of the context windows kept around each chunk
const (
	ContextBeforeSize = 1000
	ContextAfterSize  = 500
)

// Chunk is one displayable code chunk of a source document.
type Chunk struct {
	Name    string // Declared name, or Unnamed
	Options string // Raw header text after the language tag
	Body    string // Code, trimmed of surrounding whitespace. Never empty.

	// SourceLine is the 1-based line of the opening fence
	SourceLine int

	ContextBefore string
	ContextAfter  string
}

// The echo option hides the code of a chunk in the rendered document
var reEchoFalse = regexp.MustCompile(`(?i)\becho\s*=\s*(FALSE|F)\b`)

// Extractor finds the chunks of a given language.
type Extractor struct {
	Lang string
	re   *regexp.Regexp
}

// NewExtractor returns an Extractor for chunks tagged with lang, like ```{lang name, opt=val}.
func NewExtractor(lang string) *Extractor {
	if len(lang) == 0 {
		lang = DefaultLang
	}

	// The language tag must be followed by whitespace, a comma or the end of the header,
	// so '{r' does not match '{rcpp}'. The body is matched non-greedily up to the next fence.
	pattern := "(?s)```\\{" + regexp.QuoteMeta(lang) + `(?:[\s,]([^}]*))?\}(.*?)` + "```"

	return &Extractor{
		Lang: lang,
		re:   regexp.MustCompile(pattern),
	}
}

var defaultExtractor = NewExtractor(DefaultLang)

// Extract returns the displayable R chunks of text, in order of appearance.
func Extract(text string) []Chunk {
	return defaultExtractor.Extract(text)
}

// Extract returns the displayable chunks of text, in order of appearance.
// Chunks with an empty body or hidden with echo=FALSE are skipped.
func (e *Extractor) Extract(text string) []Chunk {
	var chunks []Chunk

	text = NormalizeNewlines(text)

	// Line numbers are computed incrementally, as matches come in order
	line := 1
	lastPos := 0

	for _, m := range e.re.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]

		header := ""
		if m[2] >= 0 {
			header = strings.TrimSpace(text[m[2]:m[3]])
		}
		body := strings.TrimSpace(text[m[4]:m[5]])

		if len(body) == 0 {
			continue
		}

		name, hidden := ParseHeader(header)
		if hidden {
			continue
		}

		line += strings.Count(text[lastPos:start], "\n")
		lastPos = start

		chunks = append(chunks, Chunk{
			Name:          name,
			Options:       header,
			Body:          body,
			SourceLine:    line,
			ContextBefore: sliceBefore(text, start, ContextBeforeSize),
			ContextAfter:  sliceAfter(text, end, ContextAfterSize),
		})
	}

	return chunks
}

// NormalizeNewlines converts CRLF line endings to LF.
func NormalizeNewlines(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}

// ParseHeader returns the chunk name declared in a fence header and whether the
// chunk is hidden with echo=FALSE.
// The name is the first comma-separated option if it has no '='.
func ParseHeader(header string) (name string, hidden bool) {
	name = Unnamed

	// Allow the '{r, echo=FALSE}' form, where the comma follows the language tag
	header = strings.TrimLeft(header, ", \t")

	if len(header) > 0 {
		first, _, _ := strings.Cut(header, ",")
		first = strings.TrimSpace(first)
		if len(first) > 0 && !strings.Contains(first, "=") {
			name = first
		}
	}

	return name, reEchoFalse.MatchString(header)
}

// sliceBefore returns at most size characters of text ending at byte offset pos.
func sliceBefore(text string, pos, size int) string {
	from := pos
	for n := 0; n < size && from > 0; n++ {
		_, w := utf8.DecodeLastRuneInString(text[:from])
		from -= w
	}
	return text[from:pos]
}

// sliceAfter returns at most size characters of text starting at byte offset pos.
func sliceAfter(text string, pos, size int) string {
	to := pos
	for n := 0; n < size && to < len(text); n++ {
		_, w := utf8.DecodeRuneInString(text[to:])
		to += w
	}
	return text[pos:to]
}
