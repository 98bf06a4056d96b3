package cmd

import (
	"Dumbbell/pkg/config"
	"Dumbbell/pkg/logging"

	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "dumbbell",
	Short: "Dumbbell congestion control experiments",
	Long: `Runs competing TCP transfers across an emulated dumbbell network
(docker hosts, OVS switches, shaped veth links) and turns the measurement
logs into time aligned bandwidth and congestion window series.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("config", "", "Path to a TOML experiment file")
	f.String("out", "", "Output directory (default \"output\")")
	f.String("image", "", "Host container image")
	f.Float64("grace", 0, "Drain grace factor applied to the remaining flow time (default 1.2)")
	f.Duration("settle", 0, "Wait between starting receivers and the first sender (default 1s)")
	f.String("log-level", "", "Log level: debug, info, warn, error")
	f.String("log-file", "", "Also write logs to this file, rotated")
}

// loadConfig reads the config file, if any, and lets flags override it.
func loadConfig(cmd *cobra.Command) error {
	f := cmd.Flags()

	path, _ := f.GetString("config")
	if path == "" {
		cfg = config.Default()
	} else {
		c, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = c
	}

	if f.Changed("out") {
		cfg.Output.Dir, _ = f.GetString("out")
	}
	if f.Changed("image") {
		cfg.Runtime.Image, _ = f.GetString("image")
	}
	if f.Changed("grace") {
		cfg.Experiment.GraceFactor, _ = f.GetFloat64("grace")
	}
	if f.Changed("settle") {
		settle, _ := f.GetDuration("settle")
		cfg.Runtime.ReceiverSettle = settle.String()
	}
	if f.Changed("log-level") {
		cfg.Log.Level, _ = f.GetString("log-level")
	}
	if f.Changed("log-file") {
		cfg.Log.File, _ = f.GetString("log-file")
	}

	return logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
}
