// Package main provides the entry point for m2isa.
// m2isa synthesizes encodings for custom instructions and builds decode
// trees over encoded instruction sets.
//
// For the tools, use: go run ./cmd/m2isa-encode or go run ./cmd/m2isa-enctree
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("m2isa - instruction encoding tools")
	fmt.Println("")
	fmt.Println("Usage: m2isa-encode [options] <model.json>")
	fmt.Println("  -log         Log level (trace, debug, info, warn, error)")
	fmt.Println("  -log-format  Log format (console, json)")
	fmt.Println("  -config      Path to encoder configuration JSON file")
	fmt.Println("  -o           Output model path")
	fmt.Println("  -inplace     Overwrite the input model")
	fmt.Println("  -dump        Dump the encoded model")
	fmt.Println("")
	fmt.Println("Usage: m2isa-enctree [options] <model.json>")
	fmt.Println("  -width       Only build trees for this instruction width")
	fmt.Println("  -o           Write the report to a file")
	fmt.Println("  -decode      Decode an instruction word")
	fmt.Println("  -dump        Dump the decode tree entries")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/m2isa-encode' or 'go run ./cmd/m2isa-enctree'.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use one of the commands above instead.")
	}
}
