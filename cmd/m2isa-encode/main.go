// Package main provides m2isa-encode, which synthesizes encodings for every
// unencoded instruction of a model file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/sarchlab/m2isa/alloc"
	"github.com/sarchlab/m2isa/loader"
	"github.com/sarchlab/m2isa/log"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// outputPath returns <dir>/<stem>.encoded<ext> for an input path.
func outputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".encoded" + ext
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("m2isa-encode", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		logLevel   = fs.String("log", "info", "Log level (trace, debug, info, warn, error)")
		logFormat  = fs.String("log-format", "console", "Log format (console, json)")
		configPath = fs.String("config", "", "Path to encoder configuration JSON file")
		output     = fs.String("o", "", "Output model path (default <model>.encoded.json)")
		inplace    = fs.Bool("inplace", false, "Overwrite the input model")
		dump       = fs.Bool("dump", false, "Dump the encoded model to stdout")
	)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: m2isa-encode [options] <model.json>\n")
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
	if *inplace && *output != "" {
		fmt.Fprintf(stderr, "Error: -inplace and -o are mutually exclusive\n")
		return 1
	}

	if err := log.Configure(*logLevel, *logFormat, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	modelPath := fs.Arg(0)
	model, err := loader.Load(modelPath, loader.WithLogger(log.Loader))
	if err != nil {
		log.CLI.Error().Err(err).Msg("loading model failed")
		return 1
	}

	config := alloc.DefaultConfig()
	if *configPath != "" {
		config, err = alloc.LoadConfig(*configPath)
		if err != nil {
			log.CLI.Error().Err(err).Msg("loading encoder config failed")
			return 1
		}
	}
	if err := config.Validate(); err != nil {
		log.CLI.Error().Err(err).Msg("invalid encoder config")
		return 1
	}

	encoder := alloc.NewEncoder(alloc.WithConfig(config), alloc.WithLogger(log.Alloc))
	allocs, err := encoder.EncodeModel(model)
	if err != nil {
		var unsupported *alloc.UnsupportedFormatError
		if errors.As(err, &unsupported) {
			log.CLI.Error().
				Str("instruction", unsupported.Instruction).
				Int("immediates", unsupported.Immediates).
				Int("inputs", unsupported.Inputs).
				Int("outputs", unsupported.Outputs).
				Msg("no encoding format for operand shape")
		}
		log.CLI.Error().Err(err).Msg("encoding failed")
		return 1
	}

	snaps := 0
	for _, a := range allocs {
		snaps += len(a.Snaps)
	}
	log.CLI.Info().
		Int("encoded", len(allocs)).
		Int("snapped", snaps).
		Msg("encoding done")

	if *dump {
		spew.Fdump(stdout, model)
	}

	dest := outputPath(modelPath)
	switch {
	case *inplace:
		dest = modelPath
	case *output != "":
		dest = *output
	}
	if err := loader.Save(dest, model); err != nil {
		log.CLI.Error().Err(err).Msg("writing model failed")
		return 1
	}
	log.CLI.Info().Str("path", dest).Msg("wrote model")

	return 0
}
