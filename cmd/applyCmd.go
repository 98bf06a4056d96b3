package cmd

import (
	"Dumbbell/pkg"
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply Topology",
	Long: `Bring up a topology and keep it until interrupted, then tear it down.
Without --from the dumbbell of --delay is used.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topo, err := topologyFromFlags(cmd)
		if err != nil {
			return err
		}

		mgr, err := pkg.NewManager(cfg.Runtime.Image)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// before any error can leave resources behind
		defer func() {
			if err := mgr.Teardown(context.Background()); err != nil {
				log.Errorf("apply: teardown: %v", err)
			}
		}()

		if algorithm, _ := cmd.Flags().GetString("cc"); algorithm != "" {
			if err := mgr.SetCongestionControl(algorithm); err != nil {
				return err
			}
		}
		if err := mgr.CreateTopology(ctx, topo); err != nil {
			return err
		}

		pkg.ShowNodes(os.Stdout, mgr.Topology)
		pkg.ShowLinks(os.Stdout, mgr.Topology)
		log.Info("apply: topology up, interrupt to tear down")
		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().String("cc", "", "TCP congestion control algorithm to select")
	addTopologyFlags(applyCmd)
}
