package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func rubricsCmd(c *cli) *cobra.Command {
	var show string
	cmd := &cobra.Command{
		Use:   "rubrics",
		Short: "List built-in rubric presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if show != "" {
				p, err := c.core.Rubrics.Get(show)
				if err != nil {
					return fmt.Errorf("%w: %s", err, show)
				}
				_, err = fmt.Fprintf(out, "%s (%s)\n\n%s\n", p.Name, p.AssignmentType, p.Text)
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tASSIGNMENT TYPE")
			for _, p := range c.core.Rubrics.List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, p.AssignmentType)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&show, "show", "", "print the full text of one preset")
	return cmd
}
