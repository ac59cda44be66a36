package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/velikanov/chip8vm/internal/chip8"
	"github.com/velikanov/chip8vm/internal/disasm"
	"github.com/velikanov/chip8vm/internal/hal"
)

func main() {
	root := &cobra.Command{
		Use:           filepath.Base(os.Args[0]),
		Short:         "CHIP-8 emulator and ROM tools",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	verbose := root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")
	root.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		loggerOpts := &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}
		if *verbose {
			loggerOpts.Level = slog.LevelDebug
		}

		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, loggerOpts)))
	}

	root.AddCommand(runCommand(), disasmCommand())

	root.SetArgs(os.Args[1:])
	if err := root.Execute(); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run PATH_TO_ROM_FILE",
		Short: "Run a ROM in the emulator",
		Args:  cobra.ExactArgs(1),
	}

	speed := cmd.Flags().Int("speed", hal.DefaultSpeed, "CPU clock, instructions per second")
	shiftQuirk := cmd.Flags().Bool("shift-quirk", false, "8XY6/8XYE shift VY instead of VX (COSMAC VIP behavior)")
	loadStoreQuirk := cmd.Flags().Bool("load-store-quirk", false, "FX55/FX65 increment I by X+1 (COSMAC VIP behavior)")
	clip := cmd.Flags().Bool("clip", false, "clip sprites at screen edges instead of wrapping")

	cmd.RunE = func(_ *cobra.Command, args []string) error {
		path := args[0]
		rom, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("unable to load file %q: %w", path, err)
		}

		h, err := hal.New()
		if err != nil {
			return fmt.Errorf("unable to initialize hal: %w", err)
		}
		defer h.Shutdown()

		machine := chip8.New(chip8.Quirks{
			ShiftSourceY:   *shiftQuirk,
			IncrementIndex: *loadStoreQuirk,
			ClipSprites:    *clip,
		})

		return hal.Run(h, machine, rom, hal.Options{
			Speed:     *speed,
			StatePath: path + ".state",
		})
	}

	return cmd
}

func disasmCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disasm PATH_TO_ROM_FILE",
		Short: "Print a linear listing of a ROM",
		Args:  cobra.ExactArgs(1),
	}

	output := cmd.Flags().StringP("output", "o", "", "write the listing to a file instead of stdout")

	cmd.RunE = func(_ *cobra.Command, args []string) error {
		path := args[0]
		rom, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("unable to load file %q: %w", path, err)
		}

		w := os.Stdout
		if *output != "" {
			f, err := os.Create(*output)
			if err != nil {
				return fmt.Errorf("unable to create %q: %w", *output, err)
			}
			defer f.Close()
			w = f
		}

		return disasm.Disassemble(w, rom)
	}

	return cmd
}
