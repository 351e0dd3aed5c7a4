// Command fai-assemble translates assembly source into bitcode, per the
// assembler CLI surface: read source from a file (or stdin when no file is
// given), write encoded words to stdout (or -o) in one of three formats.
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/devyn/fai/internal/asmback"
	"github.com/devyn/fai/internal/asmparse"
	"github.com/devyn/fai/internal/disasm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var format string
	var outPath string

	cmd := &cobra.Command{
		Use:   "fai-assemble [source-file]",
		Short: "Assemble a source file into bitcode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("fai-assemble: internal error: %v", r)
				}
			}()
			return run(args, format, outPath)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "binary", "output format: pretty, plaintext, or binary")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (default: stdout)")

	return cmd
}

func run(args []string, format, outPath string) error {
	src, err := readSource(args)
	if err != nil {
		return err
	}

	sections, err := asmparse.Parse(src)
	if err != nil {
		return fmt.Errorf("fai-assemble: %w", err)
	}

	words, err := asmback.Assemble(sections)
	if err != nil {
		return fmt.Errorf("fai-assemble: %w", err)
	}

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("fai-assemble: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch format {
	case "pretty":
		text, err := disasm.Format(words)
		if err != nil {
			return fmt.Errorf("fai-assemble: %w", err)
		}
		_, err = io.WriteString(out, text)
		return err

	case "plaintext":
		for _, w := range words {
			if _, err := fmt.Fprintf(out, "0x%08x\n", w); err != nil {
				return err
			}
		}
		return nil

	case "binary":
		buf := make([]byte, 4*len(words))
		for i, w := range words {
			binary.LittleEndian.PutUint32(buf[i*4:], w)
		}
		_, err := out.Write(buf)
		return err

	default:
		return fmt.Errorf("fai-assemble: unknown format %q (want pretty, plaintext, or binary)", format)
	}
}

func readSource(args []string) (string, error) {
	if len(args) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("fai-assemble: reading stdin: %w", err)
		}
		return string(b), nil
	}

	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("fai-assemble: %w", err)
	}
	return string(b), nil
}
