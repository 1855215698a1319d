package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/loopgraph/config"
	"github.com/dshills/loopgraph/graph/model"
	"github.com/dshills/loopgraph/internal/logging"
)

// app holds what every subcommand shares once flags are parsed.
type app struct {
	configPath string
	provider   string
	storeDSN   string
	driver     string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
	costs  *model.CostTracker
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "loopgraph",
		Short:         "Run cyclic multi-agent workflows",
		Long:          `loopgraph executes research-synthesis and supervisor-routed workflows on a bounded, checkpointed graph engine.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to config YAML file")
	flags.StringVar(&a.provider, "provider", "", "LLM provider: mock, anthropic, openai or google")
	flags.StringVar(&a.driver, "store", "", "checkpoint store: memory, sqlite, mysql or redis")
	flags.StringVar(&a.storeDSN, "dsn", "", "checkpoint store DSN")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newResearchCmd(a),
		newSuperviseCmd(a),
		newResumeCmd(a),
		newGraphCmd(a),
	)
	return root
}

// load reads the config and applies flag overrides.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.provider != "" && a.provider != cfg.LLM.Provider {
		cfg.LLM.Provider = a.provider
		cfg.LLM.APIKey = os.Getenv(config.APIKeyEnv(a.provider))
	}
	if a.driver != "" {
		cfg.Store.Driver = a.driver
	}
	if a.storeDSN != "" {
		cfg.Store.DSN = a.storeDSN
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, nil)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.costs = model.NewCostTracker()
	return nil
}
