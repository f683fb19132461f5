// Package commands implements the grader command line.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"honest-grader/internal/app"
	"honest-grader/internal/config"
	"honest-grader/internal/logger"
)

type buildFunc func(cfg config.Config, log *slog.Logger) (app.Core, error)

// cli carries state shared by subcommands once the root pre-run has wired it.
type cli struct {
	build buildFunc

	provider string
	host     string
	model    string
	verbose  bool

	cfg  config.Config
	log  *slog.Logger
	core app.Core
}

func Execute() error {
	c := &cli{build: func(cfg config.Config, log *slog.Logger) (app.Core, error) {
		return app.BuildGrader(cfg, log, nil, nil)
	}}
	return newRootCmd(c).Execute()
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "grader",
		Short:         "Grade student work against a rubric with a local model",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.LoadEnvFile(); err != nil {
				return err
			}
			c.cfg = config.Load()
			if c.provider != "" {
				c.cfg.LLMProvider = c.provider
			}
			if c.host != "" {
				c.cfg.OllamaHost = c.host
			}
			if c.model != "" {
				c.cfg.LLMModel = c.model
			}
			level := "warn"
			if c.verbose {
				level = "debug"
			}
			c.log = logger.NewWithWriter(os.Stderr, level, "text")

			core, err := c.build(c.cfg, c.log)
			if err != nil {
				return err
			}
			c.core = core
			return nil
		},
	}

	root.PersistentFlags().StringVar(&c.provider, "provider", "", "LLM provider: ollama or openai (default $LLM_PROVIDER)")
	root.PersistentFlags().StringVar(&c.host, "host", "", "Ollama host (default $OLLAMA_HOST)")
	root.PersistentFlags().StringVarP(&c.model, "model", "m", "", "model name (default $OLLAMA_MODEL)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(gradeCmd(c), rubricsCmd(c), pingCmd(c))
	return root
}
