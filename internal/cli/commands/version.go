package commands

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/leapstack-labs/pawseed/pkg/backend"
	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command. It reports the build and
// the numerical backends compiled into the binary.
func NewVersionCommand(version string) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version and available backends",
		Long: `Print the pawseed version, the Go toolchain and VCS revision it was built
from, and the numerical backends registered in this binary. Any of them can be
selected with --backend or backend.type.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if short {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version)
				return
			}
			writeVersion(cmd.OutOrStdout(), version, revision(), backend.Registered())
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}

func writeVersion(w io.Writer, version, rev string, backends []backend.Registration) {
	_, _ = fmt.Fprintf(w, "pawseed %s\n", version)
	_, _ = fmt.Fprintf(w, "  go:       %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if rev != "" {
		_, _ = fmt.Fprintf(w, "  revision: %s\n", rev)
	}
	if len(backends) == 0 {
		_, _ = fmt.Fprintln(w, "  backends: none registered")
		return
	}
	_, _ = fmt.Fprintln(w, "  backends:")
	for _, r := range backends {
		_, _ = fmt.Fprintf(w, "    %-12s %s\n", r.Name, r.Summary)
	}
}

// revision is the VCS commit stamped by the go tool, shortened.
func revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}
