// Package main provides the starcoal command-line tool.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tomopfuku/starcoal"
	"github.com/tomopfuku/starcoal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	err := newRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "starcoal",
		Short: "Species tree inference under the multispecies coalescent",
		Long: `starcoal samples species trees and population sizes given a set of
gene trees, or scores a fixed species tree against them.

Commands:
  run       Run the MCMC sampler
  score     Score the starting species tree`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./starcoal.yaml)")

	rootCmd.AddCommand(runCmd(&configPath))
	rootCmd.AddCommand(scoreCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func runCmd(configPath *string) *cobra.Command {
	var cpuProfile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the MCMC sampler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}

			if cpuProfile != "" {
				f, err := os.Create(cpuProfile)
				if err != nil {
					return fmt.Errorf("creating profile: %w", err)
				}
				defer f.Close()
				if err := pprof.StartCPUProfile(f); err != nil {
					return fmt.Errorf("starting profile: %w", err)
				}
				defer pprof.StopCPUProfile()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return runChain(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&cpuProfile, "cpuprofile", "", "write a CPU profile to this file")

	return cmd
}

func runChain(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	s, err := newSetup(cfg, stderr)
	if err != nil {
		return err
	}

	trace := stdout
	if cfg.Output.Trace != "" {
		f, err := os.Create(cfg.Output.Trace)
		if err != nil {
			return fmt.Errorf("creating trace: %w", err)
		}
		defer f.Close()
		trace = f
	}

	chain, err := s.chain(trace)
	if err != nil {
		return err
	}
	if err := chain.Run(ctx); err != nil {
		return err
	}

	summary := stdout
	if cfg.Output.Summary != "" {
		f, err := os.Create(cfg.Output.Summary)
		if err != nil {
			return fmt.Errorf("creating summary: %w", err)
		}
		defer f.Close()
		summary = f
	}
	return writeSummary(summary, s, chain)
}

func writeSummary(w io.Writer, s *setup, chain *starcoal.Chain) error {
	lp, ll := chain.LogPosterior()
	out := struct {
		LogLikelihood float64 `yaml:"log_likelihood"`
		LogPrior      float64 `yaml:"log_prior"`
		Tree          any     `yaml:"tree"`
	}{ll, lp, s.tree.Summary()}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return enc.Close()
}

func scoreCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Score the starting species tree against the gene trees",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			s, err := newSetup(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return score(cmd.OutOrStdout(), s)
		},
	}
}

func score(w io.Writer, s *setup) error {
	fmt.Fprintf(w, "species tree\t%s\n", s.tree.Newick(true))
	for i := range s.engine.NGeneTrees() {
		fmt.Fprintf(w, "%s\tcompatible=%t\n", s.engine.Binding(i).Tree().Name, s.engine.IsCompatible(i))
	}
	_, err := fmt.Fprintf(w, "logLikelihood\t%.6f\n", s.engine.Score())
	return err
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "starcoal %s\n", version)
		},
	}
}
