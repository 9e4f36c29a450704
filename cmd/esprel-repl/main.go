// Command esprel-repl is a small embedder demo: a line-oriented REPL
// plus file/module runners over the esprel.Context API. The engine
// core deliberately ships no CLI of its own; this is what a host
// wiring the embedding surface looks like.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	gort "runtime"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/wudi/esprel"
	"github.com/wudi/esprel/values"
)

func main() {
	app := &cli.Command{
		Name:  "esprel-repl",
		Usage: "An embeddable ECMAScript engine written in Go",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Evaluate every input in strict mode",
			},
			&cli.BoolFlag{
				Name:  "module",
				Usage: "Treat the input file as a module rather than a script",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Load engine options from a YAML <file>",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "Print evaluation time and allocation statistics after each run",
			},
			&cli.StringFlag{
				Name:    "code",
				Aliases: []string{"r"},
				Usage:   "Evaluate <code> and exit",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, err := optionsFor(cmd)
			if err != nil {
				return err
			}
			eng := newEngine(opts)

			if code := cmd.String("code"); code != "" {
				return evalAndPrint(eng, code, cmd.Bool("stats"))
			}
			if args := cmd.Args(); args.Len() > 0 {
				return runFile(eng, args.First(), cmd.Bool("module"), cmd.Bool("stats"))
			}
			return runREPL(eng, cmd.Bool("stats"))
		},
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "esprel-repl:", err)
		os.Exit(1)
	}
}

func optionsFor(cmd *cli.Command) (esprel.Options, error) {
	var opts esprel.Options
	if path := cmd.String("config"); path != "" {
		loaded, err := esprel.LoadOptions(path)
		if err != nil {
			return opts, err
		}
		opts = loaded
	}
	if cmd.Bool("strict") {
		opts.Strict = true
	}
	return opts, nil
}

func newEngine(opts esprel.Options) *esprel.Context {
	root := opts.ModuleRoot
	if root == "" {
		root = "."
	}
	return esprel.New(opts, esprel.HostHooks{
		LoadModuleSource: func(referrer, specifier string) (string, error) {
			path := specifier
			if referrer != "" && !filepath.IsAbs(specifier) {
				path = filepath.Join(filepath.Dir(referrer), specifier)
			} else if !filepath.IsAbs(specifier) {
				path = filepath.Join(root, specifier)
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return "", err
			}
			return string(raw), nil
		},
		OnUnhandledRejection: func(reason values.Value) {
			fmt.Fprintln(os.Stderr, "Uncaught (in promise)", reason.ToStringValue())
		},
		Print: func(line string) { fmt.Println(line) },
	})
}

func runFile(eng *esprel.Context, path string, asModule, stats bool) error {
	if asModule {
		started := time.Now()
		if _, _, err := eng.LoadModule(path); err != nil {
			return err
		}
		if stats {
			printStats(started)
		}
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return evalAndPrint(eng, string(raw), stats)
}

func evalAndPrint(eng *esprel.Context, code string, stats bool) error {
	started := time.Now()
	result, err := eng.Eval(code)
	if err != nil {
		return err
	}
	if !result.IsUndefined() {
		fmt.Println(result.ToStringValue())
	}
	if stats {
		printStats(started)
	}
	return nil
}

func printStats(started time.Time) {
	var ms gort.MemStats
	gort.ReadMemStats(&ms)
	fmt.Fprintf(os.Stderr, "// %v elapsed, %s heap in use\n",
		time.Since(started).Round(time.Microsecond), humanize.IBytes(ms.HeapInuse))
}

func runREPL(eng *esprel.Context, stats bool) error {
	rl, err := readline.New("esprel> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	var pending strings.Builder
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			pending.Reset()
			rl.SetPrompt("esprel> ")
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		pending.WriteString(line)
		pending.WriteString("\n")
		src := pending.String()
		if needsMoreInput(src) {
			rl.SetPrompt("   ...> ")
			continue
		}
		pending.Reset()
		rl.SetPrompt("esprel> ")

		if strings.TrimSpace(src) == "" {
			continue
		}
		if err := evalAndPrint(eng, src, stats); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

// needsMoreInput applies a brace/paren/bracket balance check to decide
// between evaluating now and reading a continuation line.
// String/template contents are skipped so a brace inside a literal
// doesn't hold the prompt open.
func needsMoreInput(src string) bool {
	depth := 0
	var quote byte
	escaped := false
	for i := 0; i < len(src); i++ {
		ch := src[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"', '`':
			quote = ch
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		}
	}
	return depth > 0
}
