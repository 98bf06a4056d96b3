package cmd

import (
	"Dumbbell/api"
	"Dumbbell/pkg/orchestrator"
	"Dumbbell/pkg/telemetry"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var plotCmd = &cobra.Command{
	Use:   "plot <algorithm> <stagger_delay_sec>",
	Short: "Align flow logs of a run",
	Long: `Parses the flow logs in <out>/<algorithm>/, shifts each flow by its start
offset and writes bandwidth.csv and congestion.csv next to them. Offsets come
from manifest.json when present, otherwise s1 starts at 0 and s2 at the
stagger delay.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		stagger, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid stagger delay %q: %w", args[1], err)
		}
		return plot(filepath.Join(cfg.Output.Dir, args[0]), stagger)
	},
}

func init() {
	rootCmd.AddCommand(plotCmd)
}

type plotFlow struct {
	label  string
	offset float64
	failed bool
}

// plotFlows prefers the launch offsets measured during the run.
func plotFlows(dir string, stagger float64) []plotFlow {
	res, err := orchestrator.ReadManifest(filepath.Join(dir, orchestrator.ManifestFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warnf("plot: ignoring manifest: %v", err)
		}
		return []plotFlow{{label: "s1"}, {label: "s2", offset: stagger}}
	}

	var flows []plotFlow
	for _, f := range res.Flows {
		offset := f.ActualOffsetSec
		if f.LogFile == "" {
			offset = f.Flow.StartOffsetSec
		}
		flows = append(flows, plotFlow{label: f.Flow.Label, offset: offset, failed: f.Failed()})
	}
	return flows
}

func plot(dir string, stagger float64) error {
	transfer := telemetry.Merge()
	window := telemetry.Merge()

	for _, f := range plotFlows(dir, stagger) {
		if f.failed {
			// keep the series so the flow still shows up, empty
			log.WithField("flow", f.label).Warn("plot: flow failed during the run, skipping its log")
			transfer.Add(api.AlignedSeries{Label: f.label, OffsetSec: f.offset})
			window.Add(api.AlignedSeries{Label: f.label, OffsetSec: f.offset})
			continue
		}
		path := filepath.Join(dir, f.label+".txt")
		bw, err := telemetry.ReadFile(path, telemetry.Parser{Kind: api.UnitTransfer})
		if err != nil {
			log.WithField("flow", f.label).Warnf("plot: %v", err)
		}
		cw, err := telemetry.ReadFile(path, telemetry.Parser{Kind: api.UnitCongestionWindow})
		if err != nil {
			log.WithField("flow", f.label).Debugf("plot: %v", err)
		}
		if len(bw) == 0 {
			log.WithField("flow", f.label).Warn("plot: no samples")
		}
		transfer.Add(telemetry.Align(f.label, bw, f.offset))
		window.Add(telemetry.Align(f.label, cw, f.offset))
	}

	if err := writeCSV(filepath.Join(dir, "bandwidth.csv"), telemetry.Bandwidth, transfer); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(dir, "congestion.csv"), telemetry.Volume, window); err != nil {
		return err
	}

	if err := telemetry.RenderDataset(telemetry.NewTableRenderer(os.Stdout, telemetry.Bandwidth), transfer); err != nil {
		return err
	}
	return telemetry.RenderDataset(telemetry.NewTableRenderer(os.Stdout, telemetry.Volume), window)
}

func writeCSV(path string, m telemetry.Metric, d *telemetry.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := telemetry.RenderDataset(telemetry.NewCSVRenderer(f, m), d); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	log.Infof("plot: wrote %s", path)
	return nil
}
