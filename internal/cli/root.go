// Package cli implements the fio command tree.
package cli

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	vector "github.com/tingold/orb-vector"
	_ "github.com/tingold/orb-vector/driver/all"
)

// globals are the persistent flags and the runtime context they build.
type globals struct {
	configPath string
	verbose    bool

	cfg vector.Config
	env *vector.Env
}

// NewRootCmd builds the fio command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:   "fio",
		Short: "Vector dataset tool",
		Long: `fio reads and writes vector datasets through the registered drivers.

Examples:
  fio ls data.gpkg
  fio info --layer roads data.gpkg
  fio dump --bbox -10,40,10,60 cities.shp
  cat cities.geojson | fio load --driver GPKG cities.gpkg
  fio env`,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "JSONC configuration file")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log debug events")

	rootCmd.AddCommand(
		newInfoCmd(g),
		newDumpCmd(g),
		newLoadCmd(g),
		newLsCmd(g),
		newEnvCmd(g),
	)
	return rootCmd
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func (g *globals) setup(cmd *cobra.Command) error {
	cfg, err := vector.LoadConfig(g.configPath, os.Environ())
	if err != nil {
		return err
	}
	if g.verbose {
		cfg.LogLevel = "debug"
	}
	env, err := vector.NewEnv(cfg)
	if err != nil {
		return err
	}
	g.cfg, g.env = cfg, env

	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetLevel(logrus.WarnLevel)
	if cfg.LogLevel != "" {
		if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			log.SetLevel(level)
		}
	}
	vector.SetLogger(log)
	return nil
}

// options returns Open options bound to the runtime context.
func (g *globals) options() *vector.Options {
	return &vector.Options{Env: g.env}
}
