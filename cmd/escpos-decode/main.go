// cmd/escpos-decode/main.go
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"escpos-service/internal/escpos"
	"escpos-service/internal/receipt"
	"escpos-service/internal/render"
)

type options struct {
	verbosity        int
	jsonOutput       bool
	receiptOutput    bool
	maxCommandLength int
	debugLog         bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootCmd returns the escpos-decode command
func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "escpos-decode [file ...]",
		Short: "Decode ESC/POS print jobs into readable text",
		Long: "Decodes ESC/POS byte streams from files, or from stdin when no file\n" +
			"(or \"-\") is given. Repeat -v to show commands (-v) and raw bytes (-vv).",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"-"}
			}
			for _, name := range args {
				if err := decodeFile(cmd, name, opts); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	flags := cmd.Flags()
	flags.CountVarP(&opts.verbosity, "verbose", "v", "increase verbosity (-v commands, -vv raw bytes)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print one JSON object per instruction")
	flags.BoolVar(&opts.receiptOutput, "receipt", false, "print the extracted receipt message as JSON")
	flags.IntVar(&opts.maxCommandLength, "max-command-length", escpos.DefaultMaxCommandLength, "largest command accepted before decoding stops")
	flags.BoolVar(&opts.debugLog, "debug", false, "log decoder diagnostics to stderr")

	return cmd
}

func decodeFile(cmd *cobra.Command, name string, opts *options) error {
	var in io.Reader = cmd.InOrStdin()
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", name, err)
		}
		defer f.Close()
		in = f
	}

	decoderOpts := []escpos.Option{escpos.WithMaxCommandLength(opts.maxCommandLength)}
	if opts.debugLog {
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.AddSync(cmd.ErrOrStderr()),
			zapcore.DebugLevel,
		)
		logger := zap.New(core)
		defer logger.Sync()
		decoderOpts = append(decoderOpts, escpos.WithLogger(logger.With(zap.String("file", name))))
	}

	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()

	level := render.LevelFromCount(opts.verbosity)
	renderer := render.NewTextRenderer()
	enc := json.NewEncoder(out)

	var (
		instructions []escpos.Instruction
		decodeErr    error
	)
	for inst, err := range escpos.Instructions(in, decoderOpts...) {
		if err != nil {
			decodeErr = err
			break
		}
		if opts.receiptOutput {
			instructions = append(instructions, inst)
		}

		if opts.jsonOutput {
			if err := enc.Encode(inst); err != nil {
				return fmt.Errorf("failed to write instruction: %w", err)
			}
			continue
		}
		if !opts.receiptOutput {
			out.WriteString(renderer.Render(inst, level))
		}
	}

	if opts.receiptOutput {
		if decodeErr != nil && !escpos.IsFatal(decodeErr) {
			return reportError(cmd, name, decodeErr)
		}
		msg := receipt.NewMessage(receipt.Extract(instructions), decodeErr, receipt.PrinterStatusUnknown)
		if err := enc.Encode(msg); err != nil {
			return fmt.Errorf("failed to write receipt: %w", err)
		}
	}

	if decodeErr != nil {
		return reportError(cmd, name, decodeErr)
	}
	return nil
}

func reportError(cmd *cobra.Command, name string, err error) error {
	var fatal *escpos.FatalError
	if errors.As(err, &fatal) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: decoding stopped: %v\n", name, err)
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", name, err)
	}
	return err
}
