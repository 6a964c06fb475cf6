package inserter

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/hesusruiz/rmd2ptx/rmd"
)

// ListOptions configure ListChunks.
type ListOptions struct {
	Lang string

	// Highlight prints the body of each chunk with terminal colors
	Highlight bool

	// Style is the name of the chroma style used to highlight
	Style string
}

// ListChunks writes the displayable chunks of a source document, each with the
// section of the document it belongs to.
func ListChunks(w io.Writer, name string, src []byte, opts ListOptions) error {
	chunks := rmd.NewExtractor(opts.Lang).Extract(string(src))
	sections := rmd.Outline(src)

	fmt.Fprintf(w, "%s: %d displayable chunks\n", name, len(chunks))

	for _, c := range chunks {
		where := "(before any heading)"
		if s := rmd.EnclosingSection(sections, c.SourceLine); s != nil {
			where = strings.Repeat("#", s.Level) + " " + s.Title
		}
		fmt.Fprintf(w, "  - '%s' at line %d, in %s\n", c.Name, c.SourceLine, where)

		if opts.Highlight {
			if err := Highlight(w, c.Body, opts.Lang, opts.Style); err != nil {
				return err
			}
			fmt.Fprintln(w)
		}
	}

	return nil
}

// Highlight writes code with terminal colors.
func Highlight(w io.Writer, code, lang, styleName string) error {

	// Determine lexer
	l := lexers.Get(lang)
	if l == nil {
		l = lexers.Analyse(code)
	}
	if l == nil {
		l = lexers.Fallback
	}
	l = chroma.Coalesce(l)

	s := styles.Get(styleName)

	f := formatters.Get("terminal256")
	if f == nil {
		f = formatters.Fallback
	}

	it, err := l.Tokenise(nil, code)
	if err != nil {
		return err
	}

	return f.Format(w, s, it)
}
