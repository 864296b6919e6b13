package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tomopfuku/starcoal"
	"github.com/tomopfuku/starcoal/coalescent"
	"github.com/tomopfuku/starcoal/config"
	"github.com/tomopfuku/starcoal/demog"
	"github.com/tomopfuku/starcoal/genetree"
	"github.com/tomopfuku/starcoal/species"
	"github.com/tomopfuku/starcoal/sptree"
)

// setup is everything a command needs once the configuration is loaded.
type setup struct {
	cfg      *config.Config
	log      *slog.Logger
	reg      *species.Registry
	bindings []*genetree.Binding
	tree     *sptree.Tree
	engine   *starcoal.Engine
}

func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func loadGeneTrees(cfg config.GeneTreesConfig) ([]*genetree.Tree, error) {
	var trees []*genetree.Tree
	for i, nwk := range cfg.Newick {
		tr, err := genetree.ReadTree(fmt.Sprintf("newick:%d", i+1), nwk)
		if err != nil {
			return nil, fmt.Errorf("gene tree %d: %w", i+1, err)
		}
		trees = append(trees, tr)
	}
	for _, path := range cfg.Files {
		tt, err := starcoal.ReadTreeFile(path)
		if err != nil {
			return nil, err
		}
		trees = append(trees, tt...)
	}
	return trees, nil
}

func branchModel(cfg config.ModelConfig) (coalescent.BranchModel, error) {
	if cfg.Kind == config.ModelAnalytic {
		return coalescent.NewAnalytic(cfg.Components, cfg.PriorScale)
	}
	return coalescent.Numeric{}, nil
}

func startTree(cfg *config.Config, reg *species.Registry, bindings []*genetree.Binding, opts ...sptree.Option) (*sptree.Tree, error) {
	pop := cfg.Model.InitialPopulation
	switch cfg.StartTree.Kind {
	case config.StartUninformed:
		return sptree.NewUninformed(reg, bindings, pop, opts...)
	case config.StartNewick:
		return sptree.FromNewick(reg, cfg.StartTree.Newick, pop, opts...)
	default:
		return sptree.NewMaximumTree(reg, bindings, pop, opts...)
	}
}

func newSetup(cfg *config.Config, logOut io.Writer) (*setup, error) {
	s := &setup{cfg: cfg, log: newLogger(logOut, cfg.Logging)}

	reg, err := species.NewRegistry(cfg.Species)
	if err != nil {
		return nil, fmt.Errorf("species: %w", err)
	}
	s.reg = reg

	trees, err := loadGeneTrees(cfg.GeneTrees)
	if err != nil {
		return nil, err
	}
	s.bindings, err = starcoal.BindAll(reg, trees, genetree.WithLogger(s.log))
	if err != nil {
		return nil, fmt.Errorf("binding gene trees: %w", err)
	}

	kind := demog.Linear
	switch cfg.Model.Demography {
	case config.DemographyStepwise:
		kind = demog.Stepwise
	case config.DemographyExponential:
		kind = demog.Exponential
	}
	s.tree, err = startTree(cfg, reg, s.bindings, sptree.WithLogger(s.log), sptree.WithDemography(kind))
	if err != nil {
		return nil, fmt.Errorf("start tree: %w", err)
	}

	model, err := branchModel(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	s.engine, err = starcoal.NewEngine(s.tree, s.bindings, model, starcoal.WithLogger(s.log))
	if err != nil {
		return nil, err
	}

	s.log.Info("setup complete",
		"species", reg.Len(),
		"geneTrees", len(s.bindings),
		"model", cfg.Model.Kind,
		"start", cfg.StartTree.Kind,
	)
	return s, nil
}

func (s *setup) chain(trace io.Writer) (*starcoal.Chain, error) {
	m := s.cfg.MCMC
	cc := starcoal.ChainConfig{
		Generations: m.Generations,
		PrintFreq:   m.PrintFreq,
		SampleFreq:  m.SampleFreq,
		BurninTune:  m.BurninTune,
		StepLen:     m.StepLen,
		Seed:        m.Seed,
	}
	opts := []starcoal.ChainOption{starcoal.WithChainLogger(s.log)}

	var pops *starcoal.PopulationPrior
	if s.cfg.Model.Kind == config.ModelAnalytic {
		sc, err := starcoal.NewScalePrior(s.cfg.Model.ScalePriorSigma)
		if err != nil {
			return nil, err
		}
		opts = append(opts, starcoal.WithScalePrior(sc))
	} else {
		var err error
		pops, err = starcoal.NewPopulationPrior(s.cfg.Model.PopulationPrior.Alpha, s.cfg.Model.PopulationPrior.Beta)
		if err != nil {
			return nil, err
		}
	}
	return starcoal.NewChain(s.engine, pops, cc, trace, opts...), nil
}
