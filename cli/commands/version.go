package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/batis-go/cli/internal/ui"
	"github.com/satishbabariya/batis-go/cli/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	// No config is needed to print the version.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runVersion,
}

var (
	versionShort  bool
	versionLatest string
	versionFormat string
)

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print the version number only")
	versionCmd.Flags().StringVar(&versionLatest, "latest", "", "Latest released version to compare against")
	versionCmd.Flags().StringVar(&versionFormat, "format", "", "Report whether this mapper format version can be loaded")

	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := version.Get()
	if versionShort {
		fmt.Println(info.Version)
	} else {
		ui.PrintKeyValue("Version", info.Version)
		ui.PrintKeyValue("Build Date", info.BuildDate)
		ui.PrintKeyValue("Git Commit", info.GitCommit)
		ui.PrintKeyValue("Platform", info.Platform)
		ui.PrintKeyValue("Go Version", info.GoVersion)
		ui.PrintKeyValue("Mapper Formats", info.MapperFormats)
	}
	if versionFormat != "" {
		ok, err := version.SupportsFormat(versionFormat)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("mapper format %s is not supported (supported: %s)", versionFormat, info.MapperFormats)
		}
		ui.PrintSuccess("Mapper format %s is supported", versionFormat)
	}
	if versionLatest == "" {
		return nil
	}
	newer, err := version.IsNewer(versionLatest)
	if err != nil {
		return err
	}
	if newer {
		fmt.Println()
		ui.PrintWarning("A new version is available: %s", versionLatest)
		fmt.Println("Update with: go install github.com/satishbabariya/batis-go/cli@latest")
	}
	return nil
}
