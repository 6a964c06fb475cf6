package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hesusruiz/rmd2ptx/inserter"
	"github.com/hesusruiz/rmd2ptx/ptx"
	"github.com/hesusruiz/rmd2ptx/rmd"
	"github.com/hesusruiz/rmd2ptx/rules"
	"github.com/hesusruiz/vcutils/yaml"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const defaultConfigFile = "rmd2ptx.yaml"

// settings are the values that can be set in the configuration file.
// Command line flags take precedence over them.
type settings struct {
	lang      string
	indent    int
	codeStyle string
	examples  bool
	rules     string
}

func defaultSettings() settings {
	return settings{
		lang:      rmd.DefaultLang,
		indent:    ptx.DefaultIndent,
		codeStyle: "github",
		examples:  true,
	}
}

// loadSettings reads the configuration file. If fileName is empty, the default file in
// the base directory is used when it exists.
func loadSettings(fileName string, base string) (settings, error) {
	s := defaultSettings()

	if len(fileName) == 0 {
		fileName = filepath.Join(base, defaultConfigFile)
		if _, err := os.Stat(fileName); err != nil {
			return s, nil
		}
	}

	cfg, err := yaml.ParseYamlFile(fileName)
	if err != nil {
		return s, fmt.Errorf("reading configuration %s: %w", fileName, err)
	}

	s.lang = cfg.String("rmd2ptx.lang", s.lang)
	s.codeStyle = cfg.String("rmd2ptx.codeStyle", s.codeStyle)
	s.rules = cfg.String("rmd2ptx.rules", s.rules)

	indent := cfg.String("rmd2ptx.indent", strconv.Itoa(s.indent))
	s.indent, err = strconv.Atoi(indent)
	if err != nil || s.indent < 0 {
		return s, fmt.Errorf("%s: invalid value for rmd2ptx.indent: %q", fileName, indent)
	}

	examples := cfg.String("rmd2ptx.examples", strconv.FormatBool(s.examples))
	s.examples, err = strconv.ParseBool(examples)
	if err != nil {
		return s, fmt.Errorf("%s: invalid value for rmd2ptx.examples: %q", fileName, examples)
	}

	return s, nil
}

// newLogger sets up the logging system
func newLogger(debug bool) *zap.SugaredLogger {
	var z *zap.Logger
	var err error

	if debug {
		z, err = zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
	} else {
		z, err = zap.NewProduction()
		if err != nil {
			panic(err)
		}
	}

	return z.Sugar()
}

// loadTable returns the rule table of the file, or the built-in one if fileName is empty
func loadTable(fileName string, only []string) (*rules.Table, error) {
	var table *rules.Table
	var err error

	if len(fileName) == 0 {
		table, err = rules.Default()
	} else {
		table, err = rules.Load(fileName)
	}
	if err != nil {
		return nil, err
	}

	return table.Select(only)
}

// process is the main entry point of the program
func process(c *cli.Context) error {

	base := c.String("base")

	sugar := newLogger(c.Bool("debug"))
	defer sugar.Sync()

	s, err := loadSettings(c.String("config"), base)
	if err != nil {
		return cli.Exit(err, 2)
	}

	// The rules flag overrides the configuration file, where paths are relative to base
	rulesFile := c.String("rules")
	if len(rulesFile) == 0 && len(s.rules) > 0 {
		rulesFile = s.rules
		if !filepath.IsAbs(rulesFile) {
			rulesFile = filepath.Join(base, rulesFile)
		}
	}

	table, err := loadTable(rulesFile, c.StringSlice("only"))
	if err != nil {
		return cli.Exit(err, 2)
	}

	sugar.Debugw("starting", "base", base, "rules", rulesFile, "chapters", len(table.Chapters), "lang", s.lang, "indent", s.indent)

	runner := inserter.NewRunner(table, inserter.Options{
		Base:       base,
		Lang:       s.lang,
		Indent:     s.indent,
		NoExamples: c.Bool("no-examples") || !s.examples,
		DryRun:     c.Bool("dryrun"),
		Diff:       c.Bool("diff"),
		Out:        os.Stdout,
	}, sugar)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	sum, err := runner.Run(ctx)
	if err != nil {
		return cli.Exit(err, 130)
	}

	if len(sum.Failed) > 0 {
		sugar.Warnw("some documents could not be processed", "failed", len(sum.Failed))
	}

	if len(sum.Modified) == 0 {
		return cli.Exit("no documents were modified", 1)
	}

	return nil
}

// listChunks prints the displayable chunks of the source documents given as arguments
func listChunks(c *cli.Context) error {

	if !c.Args().Present() {
		return cli.Exit("no input file provided", 2)
	}

	s, err := loadSettings(c.String("config"), ".")
	if err != nil {
		return cli.Exit(err, 2)
	}

	opts := inserter.ListOptions{
		Lang:      s.lang,
		Highlight: c.Bool("highlight"),
		Style:     s.codeStyle,
	}

	for _, fileName := range c.Args().Slice() {
		src, err := os.ReadFile(fileName)
		if err != nil {
			return err
		}
		if err := inserter.ListChunks(os.Stdout, fileName, src, opts); err != nil {
			return err
		}
	}

	return nil
}

// newApp returns the command line application
func newApp() *cli.App {

	return &cli.App{
		Name:     "rmd2ptx",
		Version:  "v0.1",
		Compiled: time.Now(),
		Authors: []*cli.Author{
			{
				Name:  "Jesus Ruiz",
				Email: "hesus.ruiz@gmail.com",
			},
		},
		Usage:     "insert the R code of R Markdown chapters into their PreTeXt conversion",
		UsageText: "rmd2ptx [options]",
		Action:    process,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "base",
				Aliases: []string{"b"},
				Value:   ".",
				Usage:   "resolve the paths of the rule table relative to `DIR`",
			},
			&cli.StringFlag{
				Name:    "rules",
				Aliases: []string{"r"},
				Usage:   "read the chapter table and the examples from `FILE` (default is the built-in table)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "read settings from `FILE` (default is " + defaultConfigFile + " in the base directory)",
			},
			&cli.StringSliceFlag{
				Name:  "only",
				Usage: "process only the chapter `NAME` (can be repeated)",
			},
			&cli.BoolFlag{
				Name:  "no-examples",
				Usage: "do not add the static examples",
			},
			&cli.BoolFlag{
				Name:    "dryrun",
				Aliases: []string{"n"},
				Usage:   "compute the insertions without writing any file",
			},
			&cli.BoolFlag{
				Name:  "diff",
				Usage: "print the lines added to each document",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "run in debug mode",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "chunks",
				Usage:     "list the displayable chunks of R Markdown files",
				ArgsUsage: "FILE...",
				Action:    listChunks,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "read settings from `FILE`",
					},
					&cli.BoolFlag{
						Name:  "highlight",
						Usage: "print the code of each chunk with syntax highlighting",
					},
				},
			},
		},
	}
}

func main() {

	app := newApp()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

}
