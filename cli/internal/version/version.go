package version

import (
	"fmt"
	"runtime"

	goversion "github.com/hashicorp/go-version"

	"github.com/satishbabariya/batis-go/mapping/builder"
)

var (
	// Version is the version of the CLI
	Version = "0.1.0"
	// BuildDate is the build date
	BuildDate = "unknown"
	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// Info holds version information
type Info struct {
	Version       string
	BuildDate     string
	GitCommit     string
	GoVersion     string
	Platform      string
	MapperFormats string
}

// Get returns version information
func Get() Info {
	return Info{
		Version:       Version,
		BuildDate:     BuildDate,
		GitCommit:     GitCommit,
		GoVersion:     runtime.Version(),
		Platform:      fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		MapperFormats: builder.SupportedVersions,
	}
}

// String returns a formatted version string
func (i Info) String() string {
	return fmt.Sprintf("batis version %s (%s %s)", i.Version, i.Platform, i.GoVersion)
}

// SupportsFormat reports whether mapper files of format version v can be
// loaded.
func SupportsFormat(v string) (bool, error) {
	parsed, err := goversion.NewVersion(v)
	if err != nil {
		return false, fmt.Errorf("invalid version format: %w", err)
	}
	c, err := goversion.NewConstraint(builder.SupportedVersions)
	if err != nil {
		return false, err
	}
	return c.Check(parsed), nil
}

// IsNewer reports whether latest is a later release than the running CLI.
func IsNewer(latest string) (bool, error) {
	current, err := goversion.NewVersion(Version)
	if err != nil {
		return false, fmt.Errorf("invalid version format: %w", err)
	}
	l, err := goversion.NewVersion(latest)
	if err != nil {
		return false, fmt.Errorf("invalid latest version format: %w", err)
	}
	return current.LessThan(l), nil
}
