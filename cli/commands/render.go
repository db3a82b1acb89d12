package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/batis-go/cli/internal/ui"
	"github.com/satishbabariya/batis-go/query/compiler"
)

var renderCmd = &cobra.Command{
	Use:   "render <statement>",
	Short: "Render the SQL of a statement for a parameter",
	Long: `Compile a mapped statement against a JSON parameter object and print
the resulting SQL with its bound parameters. No database is contacted.

EXAMPLES:
    batis render users.search --params '{"name": "ada", "ids": [1, 2]}'
    batis render search --provider postgresql`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var (
	renderParams   string
	renderProvider string
)

func init() {
	renderCmd.Flags().StringVar(&renderParams, "params", "", "Parameter object as JSON")
	renderCmd.Flags().StringVarP(&renderProvider, "provider", "p", "", "Provider whose placeholder syntax is used")

	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	d, err := resolveDialect(renderProvider, cfg)
	if err != nil {
		return err
	}
	reg, err := loadRegistry(cmd.Context(), cfg, d)
	if err != nil {
		ui.PrintErrors(err)
		return fmt.Errorf("invalid mappers in %s", cfg.Mappers)
	}
	s, err := reg.Statement(args[0])
	if err != nil {
		return err
	}
	param, err := parseParams(renderParams)
	if err != nil {
		return err
	}

	bound, err := compiler.ForRegistry(reg, d).Compile(s, param)
	if err != nil {
		return err
	}

	ui.PrintHeader("batis", s.ID)
	ui.PrintSQL(bound.SQL)
	if len(bound.Parameters) == 0 {
		ui.PrintInfo("No bound parameters")
		return nil
	}
	fmt.Println()
	rows := make([][]string, 0, len(bound.Parameters))
	for i, p := range bound.Parameters {
		rows = append(rows, []string{strconv.Itoa(i + 1), p.Property, formatValue(p.Value), p.SQLType, p.Mode.String()})
	}
	ui.PrintTable([]string{"#", "PROPERTY", "VALUE", "SQL TYPE", "MODE"}, rows)
	return nil
}
