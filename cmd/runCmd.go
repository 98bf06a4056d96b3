package cmd

import (
	"Dumbbell/api"
	"Dumbbell/pkg"
	"Dumbbell/pkg/orchestrator"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <algorithm> <total_duration_sec> <stagger_delay_sec> <delay_class>",
	Short: "Run a two flow experiment",
	Long: `Brings up the dumbbell topology, starts S1->R1 at once and S2->R2 after
the stagger delay, waits for both, then tears everything down. Flow logs and
manifest.json are written to <out>/<algorithm>/. Arguments override the
[experiment] section of the config file.`,
	Args: cobra.MaximumNArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ec, err := experimentConfig(args)
		if err != nil {
			return err
		}
		return runExperiment(ec)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func experimentConfig(args []string) (api.ExperimentConfig, error) {
	ec := cfg.Experiment
	var err error
	if len(args) > 0 {
		ec.CongestionAlgorithm = args[0]
	}
	if len(args) > 1 {
		if ec.TotalDurationSec, err = strconv.ParseFloat(args[1], 64); err != nil {
			return ec, fmt.Errorf("%w: total duration: %v", orchestrator.ErrInvalidConfig, err)
		}
	}
	if len(args) > 2 {
		if ec.StaggerDelaySec, err = strconv.ParseFloat(args[2], 64); err != nil {
			return ec, fmt.Errorf("%w: stagger delay: %v", orchestrator.ErrInvalidConfig, err)
		}
	}
	if len(args) > 3 {
		if ec.DelayClass, err = api.ParseDelayClass(args[3]); err != nil {
			return ec, fmt.Errorf("%w: %v", orchestrator.ErrInvalidConfig, err)
		}
	}
	if err := ec.Validate(); err != nil {
		return ec, fmt.Errorf("%w: %v", orchestrator.ErrInvalidConfig, err)
	}
	return ec, nil
}

func runExperiment(ec api.ExperimentConfig) error {
	durations, err := cfg.Durations()
	if err != nil {
		return err
	}

	mgr, err := pkg.NewManager(cfg.Runtime.Image)
	if err != nil {
		return fmt.Errorf("%w: %v", orchestrator.ErrSetup, err)
	}

	dir := filepath.Join(cfg.Output.Dir, ec.CongestionAlgorithm)
	o := orchestrator.New(mgr, orchestrator.Options{
		LogDir:         dir,
		GraceFactor:    ec.GraceFactor,
		ReceiverSettle: durations.ReceiverSettle,
		MinDrain:       durations.MinDrain,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("run: %s, %.0fs total, s2 after %.0fs, %s delay", ec.CongestionAlgorithm, ec.TotalDurationSec, ec.StaggerDelaySec, ec.DelayClass)
	res, runErr := o.Run(ctx, pkg.BuildDumbbell(ec.DelayClass), ec.Flows(), ec.CongestionAlgorithm)
	if res == nil {
		return runErr
	}

	res.Config = ec
	manifest := filepath.Join(dir, orchestrator.ManifestFile)
	if err := orchestrator.WriteManifest(manifest, res); err != nil {
		log.Errorf("run: failed to write %s: %v", manifest, err)
	}
	showResult(res)
	return runErr
}

func showResult(res *api.ExperimentResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Flow", "Route", "Offset (s)", "State", "Log"})
	for _, f := range res.Flows {
		table.Append([]string{
			f.Flow.Label,
			fmt.Sprintf("%s -> %s:%d", f.Flow.SourceHost, f.Flow.DestHost, f.Flow.Port),
			fmt.Sprintf("%.2f", f.ActualOffsetSec),
			string(f.State),
			f.LogFile,
		})
	}
	table.Render()
}
