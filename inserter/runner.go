// Package inserter runs the whole process over a set of documents: it extracts
// the chunks of every source document, places them in the target documents
// and rewrites the targets.
//
// Documents are processed one at a time. A failure reading or writing one
// document is reported and the run goes on with the next one.
package inserter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/hesusruiz/rmd2ptx/ptx"
	"github.com/hesusruiz/rmd2ptx/rmd"
	"github.com/hesusruiz/rmd2ptx/rules"
	"go.uber.org/zap"
)

// DocumentError is an I/O failure on one document. It stops the processing
// of that document only.
type DocumentError struct {
	Path string
	Op   string
	Err  error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Options configure a Runner.
type Options struct {
	// Base is the directory the paths of the table are relative to
	Base string

	// Lang is the language tag of the source chunks and of the program elements
	Lang string

	// Indent is the default indentation level of the inserted blocks
	Indent int

	// NoExamples skips the static examples of the table
	NoExamples bool

	// DryRun computes every change but writes nothing
	DryRun bool

	// Diff prints the changes made to each document
	Diff bool

	// Out receives the progress report. Defaults to os.Stdout.
	Out io.Writer
}

// Summary is the outcome of a run.
type Summary struct {
	// Modified lists the documents changed (or that would change in a dry run), without repetitions
	Modified []string

	// Failed lists the documents that could not be processed
	Failed []*DocumentError

	// Inserted is the total number of blocks inserted
	Inserted int
}

// Runner processes the chapters and examples of a table.
type Runner struct {
	table     *rules.Table
	opts      Options
	out       io.Writer
	log       *zap.SugaredLogger
	extractor *rmd.Extractor
	resolver  *ptx.Resolver

	// Documents changed during the run, in order
	modified map[string]bool
	order    []string
}

// NewRunner returns a Runner for the table.
func NewRunner(table *rules.Table, opts Options, logger *zap.SugaredLogger) *Runner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if len(opts.Lang) == 0 {
		opts.Lang = rmd.DefaultLang
	}
	if opts.Indent < 0 {
		opts.Indent = ptx.DefaultIndent
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	return &Runner{
		table:     table,
		opts:      opts,
		out:       out,
		log:       logger,
		extractor: rmd.NewExtractor(opts.Lang),
		resolver: &ptx.Resolver{
			Formatter: ptx.Formatter{Lang: opts.Lang},
			Log:       logger,
		},
	}
}

// Run processes every chapter of the table and then the examples.
// It only returns an error if ctx is done; the summary is valid anyway.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{}
	r.modified = map[string]bool{}
	r.order = nil

	r.printf("%s\n", rule)
	r.printf("R code insertion for PreTeXt files\n")
	if r.opts.DryRun {
		r.printf("Dry run: no file will be written\n")
	}
	r.printf("%s\n", rule)

	for _, ch := range r.table.Chapters {
		if err := ctx.Err(); err != nil {
			return r.finish(sum), err
		}

		n, err := r.processChapter(ch)
		sum.Inserted += n
		r.collect(sum, ch.Name, err)
	}

	if !r.opts.NoExamples && len(r.table.Examples) > 0 {
		r.printf("\n%s\n", rule)
		r.printf("Adding example code to chapters without displayable Rmd chunks...\n")
		r.printf("%s\n", rule)

		for _, set := range r.table.Examples {
			if err := ctx.Err(); err != nil {
				return r.finish(sum), err
			}

			n, err := r.processExamples(set)
			sum.Inserted += n
			r.collect(sum, set.Target, err)
		}
	}

	r.finish(sum)

	r.printf("\n%s\n", rule)
	r.printf("Processing complete: %d documents updated with R code\n", len(sum.Modified))
	r.printf("%s\n", rule)

	return sum, nil
}

// finish records in sum the documents modified so far.
func (r *Runner) finish(sum *Summary) *Summary {
	sum.Modified = append([]string(nil), r.order...)
	return sum
}

const rule = "================================================================================"

func (r *Runner) collect(sum *Summary, name string, err error) {
	if err == nil {
		return
	}

	var derr *DocumentError
	if !errors.As(err, &derr) {
		derr = &DocumentError{Path: name, Op: "process", Err: err}
	}

	r.printf("✗ Error processing %s: %v\n", name, err)
	r.log.Errorw("document failed", "name", name, "path", derr.Path, "op", derr.Op, "error", derr.Err)
	sum.Failed = append(sum.Failed, derr)
}

// processChapter inserts the chunks of the chapter source into its target.
func (r *Runner) processChapter(ch rules.Chapter) (int, error) {
	source := filepath.Join(r.opts.Base, ch.Source)
	target := filepath.Join(r.opts.Base, ch.Target)

	if !exists(source) {
		r.printf("⚠ Warning: %s not found\n", source)
		return 0, nil
	}
	if !exists(target) {
		r.printf("⚠ Warning: %s not found\n", target)
		return 0, nil
	}

	r.printf("\nProcessing %s: %s -> %s\n", ch.Name, ch.Source, ch.Target)

	data, err := os.ReadFile(source)
	if err != nil {
		return 0, &DocumentError{Path: source, Op: "read", Err: err}
	}
	if !utf8.Valid(data) {
		return 0, &DocumentError{Path: source, Op: "read", Err: errors.New("invalid UTF-8 content")}
	}

	chunks := r.extractor.Extract(string(data))
	r.printf("Found %d displayable R code chunks\n", len(chunks))
	if len(chunks) == 0 {
		r.printf("  No displayable chunks found\n")
		return 0, nil
	}

	for _, c := range chunks {
		r.printf("  - Chunk '%s' at line %d: %s...\n", c.Name, c.SourceLine, clip(firstLine(c.Body), 60))
	}

	placed, dropped := rules.BuildCandidates(chunks, ch.Rules, ch.FallbackEnabled(), ch.IndentOr(r.opts.Indent))
	for _, c := range dropped {
		r.log.Debugw("no placement for chunk", "chapter", ch.Name, "chunk", c.Name, "line", c.SourceLine)
	}
	for _, p := range placed {
		r.log.Debugw("chunk placed", "chapter", ch.Name, "chunk", p.Chunk.Name, "anchor", p.Candidate.SearchKey, "byHeading", p.ByHeading)
	}

	if len(placed) == 0 {
		r.printf("  No appropriate insertion points found\n")
		return 0, nil
	}

	return r.insert(target, rules.Candidates(placed))
}

// processExamples inserts the static examples of one target document.
func (r *Runner) processExamples(set rules.ExampleSet) (int, error) {
	target := filepath.Join(r.opts.Base, set.Target)

	if !exists(target) {
		r.log.Debugw("target of examples not found", "path", target)
		return 0, nil
	}

	r.printf("\nAdding example code to %s\n", filepath.Base(target))

	return r.insert(target, set.Candidates(r.opts.Indent))
}

// insert resolves the candidates against the target document and rewrites it.
// All insertion points are resolved before the document is changed.
func (r *Runner) insert(path string, candidates []ptx.Candidate) (int, error) {
	doc, err := ptx.ReadDocument(path)
	if err != nil {
		return 0, &DocumentError{Path: path, Op: "read", Err: err}
	}

	res := doc.Resolve(r.resolver, candidates)

	for _, m := range res.Misses {
		switch m.Reason {
		case ptx.Duplicate:
			r.printf("  ⊘ Code already exists near: %s...\n", clip(m.Key, 50))
		case ptx.AnchorNotFound:
			r.printf("  ✗ Could not find insertion point for: %s...\n", clip(m.Key, 60))
		default:
			r.printf("  ✗ Skipped %s: %s\n", clip(m.Key, 50), m.Reason)
		}
	}

	updated, n := doc.Rewrite(res.Points)
	if n == 0 {
		return 0, nil
	}

	for _, p := range ptx.SortForSplice(res.Points) {
		r.printf("  ✓ Inserted code after line %d: %s...\n", p.AnchorLine, clip(p.Key, 50))
	}

	if r.opts.Diff {
		RenderDiff(r.out, path, doc.Text, updated.Text)
	}

	if !r.opts.DryRun {
		if err := updated.WriteFile(); err != nil {
			return 0, &DocumentError{Path: path, Op: "write", Err: err}
		}
	}

	r.log.Infow("document updated", "path", path, "inserted", n, "dryrun", r.opts.DryRun)
	r.markModified(path)

	return n, nil
}

func (r *Runner) markModified(path string) {
	if r.modified[path] {
		return
	}
	r.modified[path] = true
	r.order = append(r.order, path)
}

func (r *Runner) printf(format string, a ...any) {
	fmt.Fprintf(r.out, format, a...)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}

// clip returns the first n characters of s.
func clip(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
