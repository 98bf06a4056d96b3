package config

import (
	"Dumbbell/api"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dumbbell.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[experiment]
delay_class = "large"
stagger_delay_sec = 50
total_duration_sec = 200
congestion_algorithm = "bbr"

[runtime]
receiver_settle = "500ms"

[output]
dir = "/tmp/runs"
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, api.ExperimentConfig{
		DelayClass:          api.DelayLarge,
		StaggerDelaySec:     50,
		TotalDurationSec:    200,
		CongestionAlgorithm: "bbr",
		GraceFactor:         1.2,
	}, c.Experiment)
	assert.Equal(t, "/tmp/runs", c.Output.Dir)
	assert.Equal(t, "info", c.Log.Level)

	d, err := c.Durations()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d.ReceiverSettle)
	assert.Equal(t, 2*time.Second, d.MinDrain)
}

func TestLoadEmpty(t *testing.T) {
	c, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, api.DelayShort, c.Experiment.DelayClass)
}

func TestLoadErrors(t *testing.T) {
	for name, body := range map[string]string{
		"bad delay class": "[experiment]\ndelay_class = \"huge\"\n",
		"unknown key":     "[experiment]\nflows = 3\n",
		"bad duration":    "[runtime]\nmin_drain = \"soon\"\n",
		"not toml":        "[experiment\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
