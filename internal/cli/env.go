package cli

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	vector "github.com/tingold/orb-vector"
)

func newEnvCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show drivers and runtime configuration",
		Long: `Show the registered drivers with the access modes each supports, and the
configuration assembled from --config and VECTOR_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printEnv(cmd.OutOrStdout(), g)
		},
	}
}

func printEnv(w io.Writer, g *globals) error {
	enabled := g.env.EnabledDrivers()
	var b strings.Builder
	b.WriteString("Drivers:\n")
	for _, name := range vector.Drivers() {
		mark := ""
		if len(enabled) > 0 && !slices.Contains(enabled, name) {
			mark = " (disabled)"
		}
		fmt.Fprintf(&b, "  %-16s %-4s%s\n", name, vector.SupportedModes(name), mark)
	}
	fmt.Fprintf(&b, "Temp dir: %s\n", g.env.TempDir())
	if g.cfg.LogLevel != "" {
		fmt.Fprintf(&b, "Log level: %s\n", g.cfg.LogLevel)
	}
	if len(g.cfg.Options) > 0 {
		b.WriteString("Options:\n")
		keys := make([]string, 0, len(g.cfg.Options))
		for k := range g.cfg.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s=%s\n", k, g.cfg.Options[k])
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
