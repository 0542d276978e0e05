package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunWritesResults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "loop.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
sim:
  randomSeed: 3
  ioThroughputMBps: 50
  traffic:
    writeRateMBps: 60
tuner:
  hardwareConcurrency: 16
`), 0o644))
	out := filepath.Join(dir, "out.json")

	var stdout, stderr bytes.Buffer
	err := run([]string{"-config", cfgPath, "-duration", "20", "-policy", "hysteresis",
		"-output", out, "-reports"}, &stdout, &stderr)
	require.NoError(t, err)
	require.Empty(t, stdout.String())
	require.Contains(t, stderr.String(), "run finished")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var res struct {
		Config struct {
			Tuner struct {
				Policy string `json:"policy"`
			} `json:"tuner"`
		} `json:"config"`
		VirtualTime float64           `json:"virtualTime"`
		Reports     []json.RawMessage `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(data, &res))
	require.Equal(t, "hysteresis", res.Config.Tuner.Policy)
	require.GreaterOrEqual(t, res.VirtualTime, 20.0)
	require.NotEmpty(t, res.Reports)
}

func TestRunRejectsBadFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.ErrorContains(t, run([]string{"-log.level", "loud"}, &stdout, &stderr), "invalid log level")
	require.ErrorContains(t, run([]string{"-policy", "ark"}, &stdout, &stderr), "invalid policy")
	require.ErrorContains(t, run([]string{"-config", "/nonexistent.yaml"}, &stdout, &stderr), "reading config")
}
