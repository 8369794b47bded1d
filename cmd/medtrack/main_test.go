package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PIPELINE_CONFIG", filepath.Join(dir, "missing.yaml"))
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("STORE_DSN", filepath.Join(dir, "medtrack.db"))
	t.Setenv("RAW_PATH", filepath.Join(dir, "raw"))
	t.Setenv("PROCESSED_PATH", filepath.Join(dir, "processed"))
	t.Setenv("ARCHIVE_PATH", filepath.Join(dir, "archive"))
	t.Setenv("REPORTS_PATH", filepath.Join(dir, "reports"))
	t.Setenv("QUALITY_REPORTS_PATH", filepath.Join(dir, "reports", "quality"))
	t.Setenv("LOGS_PATH", filepath.Join(dir, "logs"))
	t.Setenv("DRUGS_SOURCE", filepath.Join(dir, "raw", "drugs_sample.csv"))
	t.Setenv("SALES_SOURCE", filepath.Join(dir, "raw", "sales_sample.csv"))
	t.Setenv("PATIENTS_SOURCE", filepath.Join(dir, "raw", "patients_sample.csv"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("SNOWFLAKE_ACCOUNT", "")
	return dir
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(dir, "none.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestGenerateLoadAndAudit(t *testing.T) {
	dir := setupEnv(t)

	out, err := run(t, dir, "generate", "--entity", "drugs", "--records", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Generated 10 sample drugs records")
	assert.FileExists(t, filepath.Join(dir, "raw", "drugs_sample.csv"))

	out, err = run(t, dir, "etl", "--entity", "drugs")
	require.NoError(t, err)
	assert.Contains(t, out, "Done")

	_, err = run(t, dir, "generate", "--entity", "sales", "--records", "20")
	require.NoError(t, err)

	out, err = run(t, dir, "etl")
	require.NoError(t, err)
	assert.Contains(t, out, "Skipped")

	out, err = run(t, dir, "quality", "--fix")
	require.NoError(t, err)
	assert.Contains(t, out, "Grade")
	assert.Contains(t, out, "Overall")
	assert.Contains(t, out, "Applied fixes")

	out, err = run(t, dir, "backup")
	require.NoError(t, err)
	assert.Contains(t, out, "Backup written to")

	entries, err := os.ReadDir(filepath.Join(dir, "reports", "quality"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestEtlErrors(t *testing.T) {
	dir := setupEnv(t)

	_, err := run(t, dir, "etl", "--entity", "invoices")
	assert.ErrorContains(t, err, "unknown entity type")

	_, err = run(t, dir, "etl", "--source", "x.csv")
	assert.ErrorContains(t, err, "--source requires --entity")

	// drugs source does not exist
	_, err = run(t, dir, "etl", "--entity", "drugs")
	assert.Error(t, err)
}

func TestGenerateRequiresEntity(t *testing.T) {
	dir := setupEnv(t)
	_, err := run(t, dir, "generate")
	assert.Error(t, err)
}
