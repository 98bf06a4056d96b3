package cmd

import (
	"Dumbbell/api"
	"Dumbbell/pkg"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show Resources",
	Long:  `Show the nodes and links of a topology with their computed link parameters.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topo, err := topologyFromFlags(cmd)
		if err != nil {
			return err
		}

		class, _ := cmd.Flags().GetString("class")
		switch class {
		case "nodes":
			pkg.ShowNodes(os.Stdout, topo)
		case "links":
			pkg.ShowLinks(os.Stdout, topo)
		case "all":
			pkg.ShowNodes(os.Stdout, topo)
			pkg.ShowLinks(os.Stdout, topo)
		default:
			return fmt.Errorf("invalid class %q, want nodes|links|all", class)
		}

		if save, _ := cmd.Flags().GetString("save"); save != "" {
			if err := pkg.SaveTopology(save, topo); err != nil {
				return err
			}
			log.Infof("show: topology saved to %s", save)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().String("class", "all", "Class of the element to show: nodes, links or all")
	showCmd.Flags().String("save", "", "Write the topology as YAML to this path")
	addTopologyFlags(showCmd)
}

func addTopologyFlags(c *cobra.Command) {
	c.Flags().StringP("from", "f", "", "Path to a topology YAML file instead of the dumbbell")
	c.Flags().String("delay", "short", "Dumbbell delay class: short, medium or large")
}

func topologyFromFlags(cmd *cobra.Command) (api.Topology, error) {
	if from, _ := cmd.Flags().GetString("from"); from != "" {
		return pkg.LoadTopology(from)
	}
	delay, _ := cmd.Flags().GetString("delay")
	class, err := api.ParseDelayClass(delay)
	if err != nil {
		return api.Topology{}, err
	}
	return pkg.BuildDumbbell(class), nil
}
