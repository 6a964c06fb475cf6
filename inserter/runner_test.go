package inserter

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hesusruiz/rmd2ptx/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/tools/txtar"
)

// setup extracts the archive in a temporary directory. Files under want/ are
// returned separately, keyed by their path without the prefix.
func setup(t *testing.T, name string) (dir string, want map[string]string) {
	t.Helper()

	a, err := txtar.ParseFile(filepath.Join("testdata", name))
	require.NoError(t, err)

	dir = t.TempDir()
	want = map[string]string{}
	for _, f := range a.Files {
		if rest, ok := strings.CutPrefix(f.Name, "want/"); ok {
			want[rest] = string(f.Data)
			continue
		}
		path := filepath.Join(dir, f.Name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, f.Data, 0644))
	}
	return dir, want
}

func newRunner(t *testing.T, dir string, out *bytes.Buffer, opts Options) *Runner {
	t.Helper()

	table, err := rules.Load(filepath.Join(dir, "rules.yaml"))
	require.NoError(t, err)

	opts.Base = dir
	opts.Out = out
	opts.Indent = 2
	return NewRunner(table, opts, zaptest.NewLogger(t).Sugar())
}

func TestRun_EndToEnd(t *testing.T) {
	dir, want := setup(t, "means.txtar")
	target := filepath.Join(dir, "means.ptx")

	var out bytes.Buffer
	sum, err := newRunner(t, dir, &out, Options{}).Run(context.Background())
	require.NoError(t, err)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, want["means.ptx"], string(got))

	assert.Equal(t, []string{target}, sum.Modified)
	assert.Equal(t, 3, sum.Inserted)
	assert.Empty(t, sum.Failed)

	report := out.String()
	assert.Contains(t, report, "Found 3 displayable R code chunks")
	assert.Contains(t, report, "  - Chunk 'bf' at line 9: bf <- ttestBF(x, mu = 0)...")
	assert.Contains(t, report, "  ✓ Inserted code after line 8: Plots...")
	assert.Contains(t, report, "  ✓ Inserted code after line 4: Bayes factor...")
	assert.Contains(t, report, "⚠ Warning: "+filepath.Join(dir, "missing.Rmd")+" not found")
	assert.Contains(t, report, "Adding example code to means.ptx")
	assert.NotContains(t, report, "absent.ptx")
	assert.Contains(t, report, "Processing complete: 1 documents updated with R code")

	// Bottom insertion is reported first
	assert.Less(t, strings.Index(report, "after line 8"), strings.Index(report, "after line 4"))
}

func TestRun_Idempotent(t *testing.T) {
	dir, want := setup(t, "means.txtar")
	target := filepath.Join(dir, "means.ptx")

	var out bytes.Buffer
	_, err := newRunner(t, dir, &out, Options{}).Run(context.Background())
	require.NoError(t, err)

	out.Reset()
	sum, err := newRunner(t, dir, &out, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, sum.Modified)
	assert.Equal(t, 0, sum.Inserted)
	assert.Contains(t, out.String(), "  ⊘ Code already exists near: Bayes factor...")
	assert.Contains(t, out.String(), "  ⊘ Code already exists near: mixed model...")

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, want["means.ptx"], string(got))
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	dir, _ := setup(t, "means.txtar")
	target := filepath.Join(dir, "means.ptx")
	before, err := os.ReadFile(target)
	require.NoError(t, err)

	var out bytes.Buffer
	sum, err := newRunner(t, dir, &out, Options{DryRun: true, Diff: true}).Run(context.Background())
	require.NoError(t, err)

	after, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.Equal(t, []string{target}, sum.Modified)
	assert.Contains(t, out.String(), "Dry run: no file will be written")
	assert.Contains(t, out.String(), "+    bf &lt;- ttestBF(x, mu = 0)\n")
}

func TestRun_AnchorNotFoundLeavesDocumentUnchanged(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.Rmd"), []byte("```{r}\nprint(1)\n```\n"), 0644))
	original := "<section>\n  <p>Nothing to see.</p>\n</section>\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.ptx"), []byte(original), 0644))

	table := &rules.Table{Chapters: []rules.Chapter{{
		Name:   "a",
		Source: "a.Rmd",
		Target: "a.ptx",
		Rules:  []rules.Rule{{Keyword: "print", Anchor: "Results"}},
	}}}

	var out bytes.Buffer
	sum, err := NewRunner(table, Options{Base: dir, Out: &out, Indent: 2}, nil).Run(context.Background())
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "a.ptx"))
	require.NoError(t, err)
	assert.Equal(t, original, string(got))
	assert.Empty(t, sum.Modified)
	assert.Equal(t, 1, strings.Count(out.String(), "✗ Could not find insertion point for: Results..."))
}

func TestRun_DocumentFailureDoesNotStopTheRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.Rmd"), []byte("```{r}\nprint(1)\n```\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.ptx"), []byte{'<', 0xff, '>', '\n'}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.ptx"), []byte("<p>Results</p>\n"), 0644))

	rule := []rules.Rule{{Keyword: "print", Anchor: "Results"}}
	table := &rules.Table{Chapters: []rules.Chapter{
		{Name: "bad", Source: "a.Rmd", Target: "bad.ptx", Rules: rule},
		{Name: "good", Source: "a.Rmd", Target: "good.ptx", Rules: rule},
	}}

	var out bytes.Buffer
	sum, err := NewRunner(table, Options{Base: dir, Out: &out, Indent: 0}, zaptest.NewLogger(t).Sugar()).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sum.Failed, 1)
	assert.Equal(t, filepath.Join(dir, "bad.ptx"), sum.Failed[0].Path)
	assert.Equal(t, "read", sum.Failed[0].Op)
	assert.Contains(t, out.String(), "✗ Error processing bad:")

	assert.Equal(t, []string{filepath.Join(dir, "good.ptx")}, sum.Modified)
	got, err := os.ReadFile(filepath.Join(dir, "good.ptx"))
	require.NoError(t, err)
	assert.Equal(t, "<p>Results</p>\n\n<program language=\"r\">\n  <input>\n  print(1)\n  </input>\n</program>\n", string(got))
}

func TestRun_NoPlacement(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.Rmd"), []byte("```{r}\nsummary(x)\n```\n```{r, echo=FALSE}\nhidden()\n```\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.ptx"), []byte("<p/>\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.Rmd"), []byte("No code here.\n"), 0644))

	table := &rules.Table{Chapters: []rules.Chapter{
		{Name: "a", Source: "a.Rmd", Target: "a.ptx"},
		{Name: "b", Source: "b.Rmd", Target: "a.ptx"},
	}}

	var out bytes.Buffer
	sum, err := NewRunner(table, Options{Base: dir, Out: &out}, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, sum.Modified)
	assert.Contains(t, out.String(), "Found 1 displayable R code chunks")
	assert.Contains(t, out.String(), "  No appropriate insertion points found")
	assert.Contains(t, out.String(), "  No displayable chunks found")
}

func TestRun_HeadingFallbackByDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.Rmd"), []byte("## Summary statistics\n\n```{r}\nsummary(x)\n```\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.ptx"), []byte("<title>Summary statistics</title>\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.ptx"), []byte("<title>Summary statistics</title>\n"), 0644))

	off := false
	table := &rules.Table{Chapters: []rules.Chapter{
		{Name: "a", Source: "a.Rmd", Target: "a.ptx"},
		{Name: "b", Source: "a.Rmd", Target: "b.ptx", HeadingFallback: &off},
	}}

	var out bytes.Buffer
	sum, err := NewRunner(table, Options{Base: dir, Out: &out}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.ptx")}, sum.Modified)
	assert.Contains(t, out.String(), "  ✓ Inserted code after line 1: Summary statistics...")
}

func TestRun_CRLFSourceIsInsertedOnce(t *testing.T) {
	dir := t.TempDir()
	src := "## Bayes\r\n\r\n```{r bf}\r\nlibrary(BayesFactor)\r\n\r\nbf <- ttestBF(x)\r\n```\r\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.Rmd"), []byte(src), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.ptx"), []byte("<p>Bayes factor</p>\r\n<p>end</p>\r\n"), 0644))

	table := &rules.Table{Chapters: []rules.Chapter{{
		Name:   "a",
		Source: "a.Rmd",
		Target: "a.ptx",
		Rules:  []rules.Rule{{Keyword: "ttestBF", Anchor: "Bayes factor"}},
	}}}

	var out bytes.Buffer
	sum, err := NewRunner(table, Options{Base: dir, Out: &out, Indent: 0}, nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Modified, 1)

	first, err := os.ReadFile(filepath.Join(dir, "a.ptx"))
	require.NoError(t, err)
	assert.NotContains(t, string(first), "\r")
	assert.Contains(t, string(first), "  library(BayesFactor)\n\n  bf &lt;- ttestBF(x)\n")

	out.Reset()
	sum, err = NewRunner(table, Options{Base: dir, Out: &out, Indent: 0}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sum.Modified)
	assert.Contains(t, out.String(), "⊘ Code already exists near: Bayes factor...")

	second, err := os.ReadFile(filepath.Join(dir, "a.ptx"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRun_Canceled(t *testing.T) {
	dir, _ := setup(t, "means.txtar")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	sum, err := newRunner(t, dir, &out, Options{}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, sum)
	assert.Empty(t, sum.Modified)
}

// cancelOnWrite cancels a context as soon as a report line contains marker.
type cancelOnWrite struct {
	bytes.Buffer
	marker string
	cancel context.CancelFunc
}

func (w *cancelOnWrite) Write(p []byte) (int, error) {
	if strings.Contains(string(p), w.marker) {
		w.cancel()
	}
	return w.Buffer.Write(p)
}

func TestRun_CanceledKeepsModifiedDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.Rmd"), []byte("```{r}\nprint(1)\n```\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.ptx"), []byte("<p>Results</p>\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.ptx"), []byte("<p>Results</p>\n"), 0644))

	rule := []rules.Rule{{Keyword: "print", Anchor: "Results"}}
	table := &rules.Table{Chapters: []rules.Chapter{
		{Name: "one", Source: "a.Rmd", Target: "one.ptx", Rules: rule},
		{Name: "two", Source: "a.Rmd", Target: "two.ptx", Rules: rule},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &cancelOnWrite{marker: "✓ Inserted", cancel: cancel}

	sum, err := NewRunner(table, Options{Base: dir, Out: out}, nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{filepath.Join(dir, "one.ptx")}, sum.Modified)
	assert.Equal(t, 1, sum.Inserted)

	untouched, err := os.ReadFile(filepath.Join(dir, "two.ptx"))
	require.NoError(t, err)
	assert.Equal(t, "<p>Results</p>\n", string(untouched))
}

func TestDocumentError(t *testing.T) {
	err := error(&DocumentError{Path: "x.ptx", Op: "write", Err: os.ErrPermission})
	assert.Equal(t, "write x.ptx: permission denied", err.Error())
	assert.True(t, errors.Is(err, os.ErrPermission))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "Cram", clip("Cramér's V", 4))
	assert.Equal(t, "Cramé", clip("Cramér's V", 5))
	assert.Equal(t, "short", clip("short", 50))
}
