package orchestrator

import (
	"Dumbbell/api"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/host"
	log "github.com/sirupsen/logrus"
)

const ManifestFile = "manifest.json"

func kernelVersion() string {
	v, err := host.KernelVersion()
	if err != nil {
		log.Debugf("orchestrator: kernel version unavailable: %v", err)
		return ""
	}
	return v
}

// WriteManifest stores the result of a run next to its flow logs.
func WriteManifest(path string, res *api.ExperimentResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling manifest: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func ReadManifest(path string) (*api.ExperimentResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var res api.ExperimentResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("error unmarshaling manifest %s: %w", path, err)
	}
	return &res, nil
}
