package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/snagasuri/deebo-prototype/internal/scenario"
	deebo "github.com/snagasuri/deebo-prototype/internal/server"
)

func newScenarioCmd(g *globals) *cobra.Command {
	var a scenario.Args
	cmd := &cobra.Command{
		Use:    "scenario",
		Short:  "Investigate one hypothesis (started by the mother agent)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.Validate(); err != nil {
				_ = scenario.WriteFailure(cmd.ErrOrStderr(), a, err)
				return exitError{err}
			}
			cfg, logger, err := g.load()
			if err != nil {
				_ = scenario.WriteFailure(cmd.ErrOrStderr(), a, err)
				return exitError{err}
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := deebo.RunScenario(ctx, deebo.ScenarioOptions{
				Config: cfg,
				Logger: logger.Named("scenario").With(zap.String("id", a.ID), zap.String("session", a.SessionID)),
			}, a)
			if err != nil {
				_ = scenario.WriteFailure(cmd.ErrOrStderr(), a, err)
				return exitError{err}
			}
			return scenario.WriteReport(cmd.OutOrStdout(), a, report)
		},
	}

	f := cmd.Flags()
	f.StringVar(&a.ID, scenario.FlagID, "", "scenario id")
	f.StringVar(&a.SessionID, scenario.FlagSession, "", "debug session id")
	f.StringVar(&a.Error, scenario.FlagError, "", "error being debugged")
	f.StringVar(&a.Context, scenario.FlagContext, "", "extra context from the host")
	f.StringVar(&a.Hypothesis, scenario.FlagHypothesis, "", "hypothesis to test")
	f.StringVar(&a.Language, scenario.FlagLanguage, "", "language of the code")
	f.StringVar(&a.File, scenario.FlagFile, "", "file most relevant to the error")
	f.StringVar(&a.Repo, scenario.FlagRepo, "", "repository path")
	return cmd
}
