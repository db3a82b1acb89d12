package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/batis-go/cli/internal/ui"
)

var describeCmd = &cobra.Command{
	Use:   "describe <statement>",
	Short: "Show the settings and inputs of a statement",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribe,
}

var describeProvider string

func init() {
	describeCmd.Flags().StringVarP(&describeProvider, "provider", "p", "", "Provider whose database id selects vendor statements")

	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	d, _ := resolveDialect(describeProvider, cfg)
	reg, err := loadRegistry(cmd.Context(), cfg, d)
	if err != nil {
		ui.PrintErrors(err)
		return fmt.Errorf("invalid mappers in %s", cfg.Mappers)
	}
	s, err := reg.Statement(args[0])
	if err != nil {
		return err
	}
	return ui.PrintMarkdown(describeStatement(s))
}
