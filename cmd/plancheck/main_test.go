package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/plancheck/internal/verify"
)

const snapshotYAML = `
tables:
  usertable:
    - {start_key: "", end_key: "m", id: 1}
    - {start_key: "m", end_key: "", id: 1}
  orders:
    - {start_key: "", end_key: "", id: 3}
assignments:
  "usertable,,1": rs1:60020
  "usertable,m,1": rs9:60020
  "orders,,3": rs2:60020
plan:
  "usertable,,1": [rs1:60020, rs2:60020, rs3:60020]
  "usertable,m,1": [rs1:60020, rs2:60020, rs3:60020]
  "orders,,3": [rs1:60020, rs2:60020, rs3:60020]
locality:
  "usertable,,1": {rs1: 0.9}
`

func writeSnapshot(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(snapshotYAML), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// TestCheckText tests the default text output for all tables
func TestCheckText(t *testing.T) {
	path := writeSnapshot(t)

	out, _, err := execute(t, "check", "--snapshot", path, "--detail")
	require.NoError(t, err)

	ordersAt := strings.Index(out, "for Table: orders")
	usersAt := strings.Index(out, "for Table: usertable")
	require.True(t, ordersAt >= 0 && usersAt > ordersAt, "tables are printed by name")
	assert.Contains(t, out, "\t\tusertable,m,1\n")
	assert.Contains(t, out, "The actual avg locality is 45 %")
}

// TestCheckJSONSingleTable tests table selection and JSON output
func TestCheckJSONSingleTable(t *testing.T) {
	path := writeSnapshot(t)

	out, _, err := execute(t, "check", "--snapshot", path, "--table", "usertable", "--format", "json")
	require.NoError(t, err)

	var summaries []verify.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "usertable", summaries[0].Table)
	assert.Equal(t, 1, summaries[0].TotalCompliant)
	assert.Equal(t, []string{"usertable,m,1"}, summaries[0].NonFavored)
}

// TestCheckStrictAndMetrics tests --strict failures and the metrics textfile
func TestCheckStrictAndMetrics(t *testing.T) {
	path := writeSnapshot(t)
	metricsPath := filepath.Join(t.TempDir(), "plancheck.prom")

	_, stderr, err := execute(t, "check", "--snapshot", path, "--strict", "--metrics-out", metricsPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, errViolations)
	assert.Contains(t, stderr, "placement violations found")

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `plancheck_shards_total{table="usertable"} 2`)
	assert.Contains(t, string(data), `plancheck_shards{classification="non_favored",table="usertable"} 1`)

	_, _, err = execute(t, "check", "--snapshot", path, "--table", "orders", "--strict")
	assert.NoError(t, err, "orders is fully compliant")
}

// TestCheckErrors tests flag and input validation
func TestCheckErrors(t *testing.T) {
	path := writeSnapshot(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no snapshot", []string{"check"}},
		{"both sources", []string{"check", "--snapshot", path, "--snapshot-url", "http://x"}},
		{"missing file", []string{"check", "--snapshot", filepath.Join(t.TempDir(), "nope.yaml")}},
		{"unknown table", []string{"check", "--snapshot", path, "--table", "nope"}},
		{"bad format", []string{"check", "--snapshot", path, "--format", "csv"}},
		{"bad log level", []string{"--log-level", "loud", "check", "--snapshot", path}},
		{"bad log format", []string{"--log-format", "xml", "check", "--snapshot", path}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

// TestCheckFromURL tests pulling the snapshot from a running server
func TestCheckFromURL(t *testing.T) {
	srv, err := newServer(writeSnapshot(t), 2, testLogger())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	out, _, err := execute(t, "check", "--snapshot-url", ts.URL+"/snapshot", "--format", "yaml", "--table", "orders")
	require.NoError(t, err)
	assert.Contains(t, out, "table: orders")
	assert.Contains(t, out, "total_compliant: 1")

	failing := httptest.NewServer(http.NotFoundHandler())
	defer failing.Close()
	_, _, err = execute(t, "check", "--snapshot-url", failing.URL)
	assert.Error(t, err)
}

// TestGetenv tests environment defaults
func TestGetenv(t *testing.T) {
	t.Setenv("PLANCHECK_TEST_VALUE", "set")
	assert.Equal(t, "set", getenv("PLANCHECK_TEST_VALUE", "def"))
	assert.Equal(t, "def", getenv("PLANCHECK_TEST_UNSET", "def"))
}
