package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/batis-go/cli/internal/ui"
	"github.com/satishbabariya/batis-go/cli/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Validate the mappers whenever they change",
	Long: `Watch the mapper directory and validate the mappers on every change.

Press Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchDebounce time.Duration

func init() {
	watchCmd.Flags().StringVarP(&validateProvider, "provider", "p", "", "Provider whose database id selects vendor statements")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Delay before revalidating after a change")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := watch.NewWatcher(cfg.Mappers, func() error {
		fmt.Println()
		ui.PrintInfo("%s", time.Now().Format(time.TimeOnly))
		// Invalid mappers are reported but keep the watcher running.
		_ = validateMappers(cmd, false)
		return nil
	})
	if err != nil {
		return err
	}
	w.SetDebounce(watchDebounce)

	ui.PrintHeader("batis", "Watching "+cfg.Mappers)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	ui.PrintInfo("Stopped watching")
	return nil
}
