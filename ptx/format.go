// Package ptx renders code chunks as PreTeXt program blocks and splices them
// into existing PreTeXt documents.
//
// The target document is handled as plain lines of text, there is no XML parsing.
// Insertion points are always resolved against the unmodified text and applied
// in a single pass afterwards (see Resolve and Apply).
package ptx

import (
	"strings"
)

// DefaultLang is the value of the language attribute of the program element.
const DefaultLang = "r"

// DefaultIndent is the indentation level used when none is configured.
const DefaultIndent = 2

const indentUnit = "  "

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
var unescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")

// Escape replaces the characters '&', '<' and '>' with their XML entities.
// Replacement is done in a single pass, so the '&' of an entity produced for
// '<' or '>' is never escaped again.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Unescape reverses Escape.
func Unescape(s string) string {
	return unescaper.Replace(s)
}

// Formatter renders chunk bodies as program blocks.
type Formatter struct {
	// Lang is the language attribute of the program element
	Lang string
}

// Format renders body with the default language. See Formatter.Format.
func Format(body string, indent int) string {
	return Formatter{Lang: DefaultLang}.Format(body, indent)
}

// Format renders body as a program element with an input child, indented
// with indent levels of two spaces:
//
//	<program language="r">
//	  <input>
//	  x &lt;- 1
//	  </input>
//	</program>
//
// The body is escaped. Blank lines are kept, without trailing whitespace.
// The result does not end with a newline.
func (f Formatter) Format(body string, indent int) string {
	if indent < 0 {
		indent = 0
	}
	lang := f.Lang
	if len(lang) == 0 {
		lang = DefaultLang
	}

	base := strings.Repeat(indentUnit, indent)
	inner := base + indentUnit

	var b strings.Builder
	b.WriteString(base + `<program language="` + lang + `">` + "\n")
	b.WriteString(inner + "<input>\n")

	for _, line := range strings.Split(Escape(body), "\n") {
		if len(strings.TrimSpace(line)) > 0 {
			b.WriteString(inner)
			b.WriteString(line)
		}
		b.WriteString("\n")
	}

	b.WriteString(inner + "</input>\n")
	b.WriteString(base + "</program>")

	return b.String()
}
