package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	"github.com/iln-nexus/iln/pkg/core"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ILN_API_KEY", "")
	t.Setenv("ILN_GATED_LEVELS", "")

	// flags are package globals; reset them between runs
	verbose, apiKey, configFile, output = false, "", "", "text"
	level, backend, priority, domain, base = 1, "auto", "", "", ""
	timeout = time.Minute

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunCommandJSON(t *testing.T) {
	out, err := execute(t, "run", "chan!('d', p) && own!('m', buf)", "--backend", "go", "-o", "json")
	require.NoError(t, err)

	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, true, res["success"])
	assert.Equal(t, "go", res["backend"])
	assert.Equal(t, []interface{}{"chan", "own"}, res["annotations_used"])
}

func TestRunCommandText(t *testing.T) {
	out, err := execute(t, "run", "own!('m', a) safe!('u', v)", "--level", "3", "--base", "python")
	require.NoError(t, err)
	assert.Contains(t, out, "Success! Level 3")
	assert.Contains(t, out, "Backend: python→")
	assert.Contains(t, out, "Annotations: own, safe")
}

func TestRunCommandGatedLevel(t *testing.T) {
	out, err := execute(t, "run", "chan!('d', p)", "--level", "4")
	require.Error(t, err)
	assert.Contains(t, out, "Error [entitlement]")
	assert.Contains(t, out, core.UpgradeURL)

	out, err = execute(t, "run", "chan!('d', p)", "--level", "4", "--api-key", "pro-key", "-o", "yaml")
	require.NoError(t, err)
	var res map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.Equal(t, true, res["success"])
}

func TestInfoCommand(t *testing.T) {
	out, err := execute(t, "info")
	require.NoError(t, err)

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, false, info["has_pro"])
	assert.Equal(t, []interface{}{float64(1), float64(2), float64(3)}, info["levels_available"])
	assert.Contains(t, info["backends"], "rust")
}

func TestDemoCommand(t *testing.T) {
	out, err := execute(t, "demo")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "Success!"))
	assert.Contains(t, out, "Level 1: chan!('data_pipeline', concurrent_processing)")
}

func TestNexusLogsThroughCLILogger(t *testing.T) {
	t.Setenv("ILN_API_KEY", "")
	apiKey, configFile = "", ""
	obs, logs := observer.New(zapcore.DebugLevel)
	prev := logger
	logger = zap.New(obs)
	t.Cleanup(func() { logger = prev })

	nx, err := newNexus(context.Background())
	require.NoError(t, err)
	defer nx.Close()

	nx.Level1(context.Background(), "chan!('d', p)", "go")

	assert.Equal(t, 1, logs.FilterMessage("Nexus initialized").Len())
	completed := logs.FilterMessage("Execution completed").All()
	require.Len(t, completed, 1)
	assert.Equal(t, "go", completed[0].ContextMap()["backend"])
	assert.Equal(t, "iln", completed[0].ContextMap()["component"])
}

func TestRenderUnknownFormat(t *testing.T) {
	var out bytes.Buffer
	err := render(&out, "xml", map[string]int{"a": 1})
	assert.ErrorContains(t, err, "unknown output format")
}
