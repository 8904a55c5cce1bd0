// =============================================================================
// Settlement Export - Version Command
// =============================================================================
//
// 'version' reports the build and the organizations compiled into the binary.
//
// COMMAND USAGE:
//   settlement-export version [--short]
//
// Release builds stamp the variables below, e.g.
//   -ldflags "-X github.com/ginjaninja78/settlement-export/cmd.Version=$TAG"
// Without a stamped commit the VCS revision recorded by the Go toolchain is
// used instead.
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/settlement-export/internal/config"
)

var (
	Version   = "1.0.0"
	BuildDate = "unknown"
	Commit    = "unknown"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the application version",
	Long: `Print the release, the source revision it was built from and the
organization configurations embedded in this binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout(), versionShort)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the version number")
}

func printVersion(out io.Writer, short bool) {
	if short {
		fmt.Fprintln(out, Version)
		return
	}

	fmt.Fprintln(out, "Settlement Export")
	fmt.Fprintf(out, "Version:    %s\n", Version)
	fmt.Fprintf(out, "Commit:     %s\n", revision())
	fmt.Fprintf(out, "Build Date: %s\n", BuildDate)
	fmt.Fprintf(out, "Go Version: %s (%s/%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	if orgs, err := config.DefaultOrganizationConfigs(); err == nil {
		keys := make([]string, 0, len(orgs))
		for k := range orgs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(out, "Built-in:   %s\n", strings.Join(keys, ", "))
	}
}

// revision prefers the stamped Commit, then vcs.revision from the build info.
func revision() string {
	if Commit != "unknown" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Commit
	}
	var rev, dirty string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "-dirty"
			}
		}
	}
	if rev == "" {
		return Commit
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return rev + dirty
}
