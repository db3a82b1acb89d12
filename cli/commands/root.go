package commands

import (
	"github.com/spf13/cobra"

	"github.com/satishbabariya/batis-go/cli/internal/config"
	"github.com/satishbabariya/batis-go/cli/internal/ui"
	"github.com/satishbabariya/batis-go/cli/internal/version"
	"github.com/satishbabariya/batis-go/internal/debug"
)

var rootCmd = &cobra.Command{
	Use:   "batis",
	Short: "Dynamic SQL mapper toolkit",
	Long: `batis loads YAML mapper files, compiles their dynamic SQL and runs
mapped statements against a database.

EXAMPLES:
    batis init
    batis validate
    batis render users.search --params '{"name": "ada"}'
    batis exec users.search --params '{"name": "ada"}'
    batis watch`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var (
	configPath  string
	debugMode   bool
	noColor     bool
	mappersFlag string

	// cfg is filled in before any command runs.
	cfg *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default .batis.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVarP(&mappersFlag, "mappers", "m", "", "Mapper directory (overrides config)")

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Get().String() + "\n")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	debug.Init(debugMode)
	if noColor {
		ui.DisableColor()
	}
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if mappersFlag != "" {
		c.Mappers = mappersFlag
	}
	if c.File != "" {
		debug.Debug("loaded config", "file", c.File)
	}
	cfg = c
	return nil
}

// Execute is the main entry point for the CLI
func Execute() error {
	return rootCmd.Execute()
}
