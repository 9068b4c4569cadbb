package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/snagasuri/deebo-prototype/internal/config"
)

// globals holds what every subcommand shares.
type globals struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:   "deebo",
		Short: "Autonomous debugging agent for MCP hosts",
		Long: "deebo investigates bugs in the background: a mother agent forms hypotheses " +
			"and tests each one in parallel in an isolated scenario agent, on its own git branch.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", os.Getenv(config.EnvConfigPath),
		"path to the deebo config file (env "+config.EnvConfigPath+")")

	rootCmd.AddCommand(
		newServeCmd(g),
		newScenarioCmd(g),
		newVersionCmd(),
	)
	return rootCmd
}

// load reads the configuration and builds the process logger. The logger
// always writes to stderr: stdout carries the MCP transport or, in a
// scenario process, the verdict.
func (g *globals) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("log_level: %w", err)
		}
		zcfg.Level = level
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}
