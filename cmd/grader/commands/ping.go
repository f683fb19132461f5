package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func pingCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the model is reachable and pulled",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := c.core.LLM.Ping(ctx); err != nil {
				return fmt.Errorf("model %q unreachable: %w", c.core.LLM.Model(), err)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "ok: %s is ready (%s)\n", c.core.LLM.Model(), c.cfg.LLMProvider)
			return err
		},
	}
}
