package rmd

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Section is a markdown heading of a source document.
type Section struct {
	Level int
	Title string
	Line  int // 1-based
}

var md = goldmark.New()

// Outline returns the headings of an R Markdown document in order of appearance.
// Lines starting with '#' inside code fences are R comments, not headings,
// and are not reported.
func Outline(src []byte) []Section {
	var sections []Section

	doc := md.Parser().Parse(text.NewReader(src))

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}

		line := 1
		if lines := heading.Lines(); lines.Len() > 0 {
			line += bytes.Count(src[:lines.At(0).Start], []byte("\n"))
		}

		sections = append(sections, Section{
			Level: heading.Level,
			Title: StripAttributes(string(heading.Text(src))),
			Line:  line,
		})

		return ast.WalkSkipChildren, nil
	})

	return sections
}

// EnclosingSection returns the last section starting before line, or nil.
func EnclosingSection(sections []Section, line int) *Section {
	var found *Section
	for i := range sections {
		if sections[i].Line > line {
			break
		}
		found = &sections[i]
	}
	return found
}

// StripAttributes removes a trailing pandoc attribute block like '{#sec-intro .unnumbered}'
// from a heading title.
func StripAttributes(title string) string {
	title = strings.TrimSpace(title)
	if !strings.HasSuffix(title, "}") {
		return title
	}
	i := strings.LastIndex(title, "{")
	if i == -1 {
		return title
	}
	return strings.TrimSpace(title[:i])
}
