package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/batis-go/cli/internal/ui"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the mapper files",
	Long: `Load every mapper file and build the statement registry.

This command will:
- Parse every .yaml and .yml file below the mapper directory
- Check placeholders, predicates and control nodes
- Resolve includes and cache references
- List the registered statements`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

var validateProvider string

func init() {
	validateCmd.Flags().StringVarP(&validateProvider, "provider", "p", "", "Provider whose database id selects vendor statements")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ui.PrintHeader("batis", "Validate mappers")
	return validateMappers(cmd, true)
}

// validateMappers loads the registry and reports the result. The provider
// is optional here; without one every database id applies.
func validateMappers(cmd *cobra.Command, list bool) error {
	d, _ := resolveDialect(validateProvider, cfg)
	reg, err := loadRegistry(cmd.Context(), cfg, d)
	if err != nil {
		ui.PrintError("Mapper validation failed:")
		ui.PrintErrors(err)
		return fmt.Errorf("invalid mappers in %s", cfg.Mappers)
	}

	statements := reg.Statements()
	ui.PrintSuccess("%d statement(s) in %s", len(statements), cfg.Mappers)
	if !list {
		return nil
	}
	fmt.Println()
	rows := make([][]string, 0, len(statements))
	for _, s := range statements {
		rows = append(rows, []string{s.ID, s.Kind.String(), s.Cache, s.DatabaseID, s.Resource})
	}
	ui.PrintTable([]string{"ID", "KIND", "CACHE", "DATABASE ID", "FILE"}, rows)
	return nil
}
