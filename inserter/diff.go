package inserter

import (
	"fmt"
	"io"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// RenderDiff writes the lines added to and removed from a document, with the
// line numbers of the new text for additions and of the old text for removals.
func RenderDiff(w io.Writer, name, before, after string) {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	fmt.Fprintf(w, "--- %s\n+++ %s\n", name, name)

	oldLine := 1
	newLine := 1
	for _, diff := range diffs {
		lines := splitLines(diff.Text)
		switch diff.Type {
		case diffmatchpatch.DiffEqual:
			oldLine += len(lines)
			newLine += len(lines)
		case diffmatchpatch.DiffInsert:
			fmt.Fprintf(w, "@@ +%d,%d @@\n", newLine, len(lines))
			for _, line := range lines {
				fmt.Fprintf(w, "+%s\n", line)
			}
			newLine += len(lines)
		case diffmatchpatch.DiffDelete:
			fmt.Fprintf(w, "@@ -%d,%d @@\n", oldLine, len(lines))
			for _, line := range lines {
				fmt.Fprintf(w, "-%s\n", line)
			}
			oldLine += len(lines)
		}
	}
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
