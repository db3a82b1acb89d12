package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/batis-go/cli/internal/ui"
	"github.com/satishbabariya/batis-go/internal/debug"
	"github.com/satishbabariya/batis-go/mapping"
	"github.com/satishbabariya/batis-go/query/middleware"
	"github.com/satishbabariya/batis-go/runtime/client"
	"github.com/satishbabariya/batis-go/telemetry"
)

var execCmd = &cobra.Command{
	Use:   "exec <statement>",
	Short: "Execute a mapped statement",
	Long: `Run a mapped statement against the configured database.

Selects print their rows. Inserts, updates and deletes print the affected
row count and are committed unless --rollback is given.

EXAMPLES:
    batis exec users.search --params '{"name": "ada"}'
    batis exec users.insert --params '{"name": "grace"}' --rollback`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

var (
	execParams   string
	execProvider string
	execRollback bool
	execLimit    int
	execSlow     time.Duration
	execStats    bool
)

func init() {
	execCmd.Flags().StringVar(&execParams, "params", "", "Parameter object as JSON")
	execCmd.Flags().StringVarP(&execProvider, "provider", "p", "", "Database provider (default from config or url)")
	execCmd.Flags().BoolVar(&execRollback, "rollback", false, "Roll back instead of committing")
	execCmd.Flags().IntVar(&execLimit, "limit", 0, "Maximum number of rows to fetch (0 for all)")
	execCmd.Flags().DurationVar(&execSlow, "slow", time.Second, "Warn about statements slower than this")
	execCmd.Flags().BoolVar(&execStats, "stats", false, "Print statement and cache metrics afterwards")

	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	d, err := resolveDialect(execProvider, cfg)
	if err != nil {
		return err
	}
	reg, err := loadRegistry(ctx, cfg, d)
	if err != nil {
		ui.PrintErrors(err)
		return fmt.Errorf("invalid mappers in %s", cfg.Mappers)
	}
	s, err := reg.Statement(args[0])
	if err != nil {
		return err
	}
	param, err := parseParams(execParams)
	if err != nil {
		return err
	}

	var metrics *prometheus.Registry
	if execStats {
		metrics = prometheus.NewRegistry()
		if err := telemetry.Register(metrics); err != nil {
			return err
		}
	}

	factory, err := client.Open(reg, d.Name(), cfg.DatabaseURL,
		client.WithLogger(debug.Logger()),
		client.WithInterceptors(
			middleware.Logging(debug.Logger()),
			middleware.SlowQuery(debug.Logger(), execSlow),
		),
	)
	if err != nil {
		return err
	}
	defer factory.Close()

	spinner, _ := ui.PrintSpinner("Executing " + s.ID)
	stop := func(ok bool, msg string) {
		if spinner == nil {
			return
		}
		if ok {
			spinner.Success(msg)
		} else {
			spinner.Fail(msg)
		}
		spinner = nil
	}

	session, err := factory.OpenSession(ctx, client.AutoCommit(false))
	if err != nil {
		stop(false, "Could not open a session")
		return err
	}
	defer session.Close()

	if err := execute(cmd, session, s, param, stop); err != nil {
		stop(false, "Execution failed")
		return err
	}
	if metrics != nil {
		return printMetrics(metrics)
	}
	return nil
}

func execute(cmd *cobra.Command, session *client.Session, s *mapping.Statement, param any, stop func(bool, string)) error {
	ctx := cmd.Context()
	if s.IsSelect() {
		var bounds []mapping.RowBounds
		if execLimit > 0 {
			bounds = append(bounds, mapping.RowBounds{Limit: execLimit})
		}
		rows, err := session.SelectList(ctx, s.ID, param, bounds...)
		if err != nil {
			return err
		}
		stop(true, fmt.Sprintf("%d row(s)", len(rows)))
		if len(rows) > 0 {
			ui.PrintTable(rowTable(rows))
		}
		return session.Commit(ctx)
	}

	n, err := session.Update(ctx, s.ID, param)
	if err != nil {
		return err
	}
	stop(true, fmt.Sprintf("%d row(s) affected", n))
	if execRollback {
		ui.PrintWarning("Rolled back")
		return session.Rollback(ctx)
	}
	return session.Commit(ctx)
}

// printMetrics prints the non-zero counters and histogram counts gathered
// from g.
func printMetrics(g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	var rows [][]string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			var value string
			switch {
			case m.GetCounter() != nil:
				value = fmt.Sprint(m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				value = fmt.Sprintf("%d calls, %s", h.GetSampleCount(), time.Duration(h.GetSampleSum()*float64(time.Second)))
			default:
				continue
			}
			rows = append(rows, []string{mf.GetName(), strings.Join(labels, " "), value})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	fmt.Println()
	ui.PrintSection("Metrics")
	ui.PrintTable([]string{"METRIC", "LABELS", "VALUE"}, rows)
	return nil
}
