// Package main provides m2isa-enctree, which builds and prints the decode
// trees of every core and instruction set of a model file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/davecgh/go-spew/spew"

	"github.com/sarchlab/m2isa/arch"
	"github.com/sarchlab/m2isa/enctree"
	"github.com/sarchlab/m2isa/loader"
	"github.com/sarchlab/m2isa/log"
	"github.com/sarchlab/m2isa/report"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("m2isa-enctree", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		logLevel  = fs.String("log", "info", "Log level (trace, debug, info, warn, error)")
		logFormat = fs.String("log-format", "console", "Log format (console, json)")
		width     = fs.Int("width", 0, "Only build trees for this instruction width (0 = all)")
		output    = fs.String("o", "", "Write the report to a file instead of stdout")
		dump      = fs.Bool("dump", false, "Dump the decode tree entries to stdout")
		decode    = fs.String("decode", "", "Decode an instruction word instead of printing the report")
	)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: m2isa-enctree [options] <model.json>\n")
		fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 1
	}

	if err := log.Configure(*logLevel, *logFormat, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var word uint64
	if *decode != "" {
		var err error
		word, err = strconv.ParseUint(*decode, 0, 64)
		if err != nil {
			fmt.Fprintf(stderr, "Error: invalid instruction word %q\n", *decode)
			return 1
		}
	}

	model, err := loader.Load(fs.Arg(0), loader.WithLogger(log.Loader))
	if err != nil {
		log.CLI.Error().Err(err).Msg("loading model failed")
		return 1
	}

	opts := setOptions{width: *width, decode: *decode != "", word: word}
	if *dump {
		opts.dump = stdout
	}

	out := stdout
	var file *os.File
	if *output != "" {
		file, err = os.Create(*output)
		if err != nil {
			log.CLI.Error().Err(err).Msg("creating report failed")
			return 1
		}
		defer func() { _ = file.Close() }()
		out = file
	}

	if code := writeSets(out, model, opts); code != 0 {
		return code
	}

	if file != nil {
		if err := file.Close(); err != nil {
			log.CLI.Error().Err(err).Msg("closing report failed")
			return 1
		}
	}
	return 0
}

type setOptions struct {
	width  int       // 0 keeps every width
	dump   io.Writer // receives the tree entries when set
	decode bool
	word   uint64
}

// writeSets builds the trees of every set and writes the report, or the
// decoded instruction when decoding.
func writeSets(out io.Writer, model *arch.Model, opts setOptions) int {
	builder := enctree.NewBuilder(enctree.WithLogger(log.EncTree))
	for _, set := range model.All() {
		var groups []enctree.Group
		for _, g := range enctree.GroupByWidth(set.Encoded()) {
			if opts.width == 0 || g.Width == opts.width {
				groups = append(groups, g)
			}
		}
		if len(groups) == 0 {
			log.CLI.Debug().Str("set", set.Name).Msg("no encoded instructions")
			continue
		}
		if len(set.Unencoded) > 0 {
			log.CLI.Warn().
				Str("set", set.Name).
				Int("unencoded", len(set.Unencoded)).
				Msg("skipping instructions without encoding")
		}

		if opts.dump != nil {
			spew.Fdump(opts.dump, groups)
		}

		trees, err := builder.BuildGroups(groups)
		if err != nil {
			var conflict *enctree.EncodingSpaceConflictError
			if errors.As(err, &conflict) {
				log.CLI.Error().
					Str("set", set.Name).
					Strs("instructions", conflict.Names()).
					Msg("encoding space conflict")
			}
			log.CLI.Error().Err(err).Str("set", set.Name).Msg("building decode tree failed")
			return 1
		}

		if opts.decode {
			if err := decodeWord(out, set.Name, trees, opts.word); err != nil {
				log.CLI.Error().Err(err).Msg("writing result failed")
				return 1
			}
			continue
		}

		if _, err := fmt.Fprintf(out, "== %s ==\n", set.Name); err != nil {
			log.CLI.Error().Err(err).Msg("writing report failed")
			return 1
		}
		if err := report.Write(out, trees); err != nil {
			log.CLI.Error().Err(err).Msg("writing report failed")
			return 1
		}
	}

	return 0
}

// decodeWord prints the instruction a word decodes to in the first tree
// that recognizes it.
func decodeWord(w io.Writer, set string, trees []*enctree.Node, word uint64) error {
	for _, root := range trees {
		if word>>uint(root.Size) != 0 {
			continue
		}
		if leaf, ok := root.Decode(word); ok {
			_, err := fmt.Fprintf(w, "%s: %s\n", set, leaf.Name)
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s: no match\n", set)
	return err
}
