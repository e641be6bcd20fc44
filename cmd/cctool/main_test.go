package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/covered_call/internal/strategy"
)

// run executes the root command with a config path that does not exist, so the
// built-in defaults and the mock provider are used.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	chdir(t, t.TempDir())
	return execute(append([]string{"--mock"}, args...))
}

func execute(args []string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

const tradierNoKeyConfig = `
environment:
  mode: sandbox
  log_level: error
broker:
  provider: tradier
  api_key: ""
`

func TestCoveredCallCommand_Text(t *testing.T) {
	out, err := run(t, "cc", "spy")
	require.NoError(t, err)
	assert.Contains(t, out, "Expiration Dates: ")
	assert.Contains(t, out, "Share Price: $450, Ex Date: ")
	assert.Contains(t, out, "\t455.00,")
	assert.NotContains(t, out, "\t460.00,")
}

func TestCoveredCallCommand_JSON(t *testing.T) {
	out, err := run(t, "--json", "cc", "SPY")
	require.NoError(t, err)

	var body struct {
		Ticker       string           `json:"ticker"`
		OptionsChain []map[string]any `json:"options_chain"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "SPY", body.Ticker)
	assert.NotEmpty(t, body.OptionsChain)
}

func TestCoveredCallCommand_Table(t *testing.T) {
	out, err := run(t, "--table", "cc", "SPY")
	require.NoError(t, err)
	assert.Contains(t, out, "BREAK EVEN")
	assert.Contains(t, out, "455.00")
}

func TestCoveredCallCommand_ValidationError(t *testing.T) {
	_, err := run(t, "cc", "TOOLONG")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOOLONG")

	_, err = run(t, "cc", "SPY", "2001-01-05")
	require.Error(t, err)
}

func TestBulkCommand(t *testing.T) {
	out, err := run(t, "bulk", "SPY", "3")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "Ex Date: "))

	_, err = run(t, "bulk", "SPY", "three")
	assert.Error(t, err)
}

func TestOpenCommand(t *testing.T) {
	out, err := run(t, "open", "2024-01-06T15:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "Market is closed\n", out)

	out, err = run(t, "--json", "open", "2024-01-10T15:00:00Z")
	require.NoError(t, err)
	assert.JSONEq(t, `{"open":true}`, out)

	_, err = run(t, "open", "tomorrow")
	assert.Error(t, err)
}

func TestExplicitMissingConfigFails(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "open")
	assert.Error(t, err)
}

func TestJSONAndTableExclusive(t *testing.T) {
	_, err := run(t, "--json", "--table", "open")
	assert.Error(t, err)
}

func TestCandidateRow_MissingFields(t *testing.T) {
	strike := 95.0
	row := candidateRow(strategy.CoveredCall{Strike: &strike})
	assert.Equal(t, "95.00", row[0])
	for _, c := range row[1:] {
		assert.Equal(t, "n/a", c)
	}
}

func TestOpenCommand_TradierConfigWithoutKey(t *testing.T) {
	t.Setenv("TRADIER_API_KEY", "")
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tradierNoKeyConfig), 0o600))

	out, err := execute([]string{"--config", path, "open", "2024-01-06T15:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, "Market is closed\n", out)

	_, err = execute([]string{"--config", path, "cc", "SPY"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("chdir: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("chdir: restoring working directory: %v", err)
		}
	})
}
