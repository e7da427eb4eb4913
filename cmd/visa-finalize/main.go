// Package main is the visa-finalize CLI: compile, watch, and version
// subcommands over the builder/allocator/spill pipeline, rebuilt on
// spf13/cobra in place of the teacher's hand-rolled flag parsing
// (cmd/orizon-compiler/main.go, cmd/orizon-config/main.go), modeled on
// the subcommand/flags shape of oisee-z80-optimizer's cmd/z80opt/main.go.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/0o001/visa-finalizer/internal/bytecode"
	"github.com/0o001/visa-finalizer/internal/config"
	"github.com/0o001/visa-finalizer/internal/finalize"
	"github.com/0o001/visa-finalizer/internal/remotebuild"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "visa-finalize",
		Short: "vISA byte-code finalizer: register allocation, spill rewriting, relocatable binary output",
	}

	rootCmd.AddCommand(newCompileCmd(), newWatchCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newCompileCmd() *cobra.Command {
	var (
		outPath        string
		totalGRF       uint32
		grfToUse       uint32
		reservedGRF    uint32
		abortOnSpill   bool
		spillCompress  bool
		workaroundPath string
	)

	cmd := &cobra.Command{
		Use:   "compile [byte-code-file]",
		Short: "finalize a vISA byte-code module into a relocatable binary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bc, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			opts := config.DefaultBuildOptions()

			if totalGRF > 0 {
				opts.TotalGRFNum = totalGRF
			}

			if grfToUse > 0 {
				opts.GRFNumToUse = grfToUse
			}

			opts.ReservedGRFNum = reservedGRF
			opts.AbortOnSpill = abortOnSpill
			opts.SpillSpaceCompression = spillCompress

			if workaroundPath != "" {
				wt, err := config.LoadWorkaroundTable(workaroundPath)
				if err != nil {
					return fmt.Errorf("loading workaround table: %w", err)
				}

				_ = wt // carried for future decision-logic wiring; §9 scopes only the frozen struct here
			}

			result, err := finalize.Run(bc, opts, remotebuild.NewWireEncoder(), remotebuild.ConcatEmitter{})
			if err != nil {
				return fmt.Errorf("finalize: %w", err)
			}

			for _, msg := range result.Messages {
				fmt.Fprintln(cmd.ErrOrStderr(), msg)
			}

			if outPath == "" {
				_, err := cmd.OutOrStdout().Write(result.Binary)

				return err
			}

			return os.WriteFile(outPath, result.Binary, 0o644)
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output path for the relocatable binary (stdout if omitted)")
	cmd.Flags().Uint32Var(&totalGRF, "total-grf", 0, "total GRF rows in the physical file (0 = default 128)")
	cmd.Flags().Uint32Var(&grfToUse, "grf-to-use", 0, "GRF rows the allocator may use (0 = default 128)")
	cmd.Flags().Uint32Var(&reservedGRF, "reserved-grf", 0, "GRF rows withheld from the allocator's tail")
	cmd.Flags().BoolVar(&abortOnSpill, "abort-on-spill", false, "fail instead of invoking the spill manager")
	cmd.Flags().BoolVar(&spillCompress, "spill-compression", false, "share non-interfering spill slots")
	cmd.Flags().StringVar(&workaroundPath, "workarounds", "", "path to a JSON workaround table")

	return cmd
}

func newWatchCmd() *cobra.Command {
	var workaroundPath string

	cmd := &cobra.Command{
		Use:   "watch [byte-code-file]",
		Short: "recompile a vISA byte-code file on every save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			var wt *config.Watcher

			if workaroundPath != "" {
				w, err := config.NewWatcher(workaroundPath)
				if err != nil {
					return fmt.Errorf("watching workaround table: %w", err)
				}

				defer w.Close()

				wt = w
			}

			fsw, err := newFileWatcher(path)
			if err != nil {
				return err
			}
			defer fsw.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "watching %s for changes (Ctrl+C to stop)\n", path)

			for range fsw.Events() {
				bc, err := os.ReadFile(path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "read error: %v\n", err)

					continue
				}

				opts := config.DefaultBuildOptions()

				if wt != nil {
					_ = wt.Current() // frozen struct read, no decision logic (§9 Non-goal)
				}

				result, err := finalize.Run(bc, opts, remotebuild.NewWireEncoder(), remotebuild.ConcatEmitter{})
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "finalize error: %v\n", err)

					continue
				}

				fmt.Fprintf(cmd.OutOrStdout(), "recompiled %s: %d bytes, %d routines\n", path, len(result.Binary), len(result.Meta))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&workaroundPath, "workarounds", "", "path to a JSON workaround table, hot-reloaded alongside the input file")

	return cmd
}

func newVersionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "report the supported vISA byte-code version range",
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetEscapeHTML(false)

				return enc.Encode(map[string]string{"supportedRange": bytecode.SupportedRange.String()})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "visa-finalize: supports byte-code versions %s\n", bytecode.SupportedRange.String())

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")

	return cmd
}
