package logging

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
	})

	file := filepath.Join(t.TempDir(), "logs", "dumbbell.log")
	require.NoError(t, Setup(Options{Level: "debug", File: file}))
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	log.Info("hello")
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestSetupBadLevel(t *testing.T) {
	assert.Error(t, Setup(Options{Level: "loud"}))
}
