package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certenrich/internal/enrichment/models"
	"certenrich/internal/lookup/lookuptest"
	"certenrich/internal/platform/config"
	"certenrich/pkg/testutil"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStreamMode(t *testing.T) {
	srv := lookuptest.NewServer(t, map[string]string{
		"aa": lookuptest.CertificateJSON("1"),
	})
	t.Setenv(config.EnvAPIURL, srv.URL)
	t.Setenv(config.EnvLogLevel, "error")

	input := testutil.NDJSON(t,
		map[string]any{"fingerprint": "aa"},
		map[string]any{"fingerprint": "bb"},
	)

	for _, args := range [][]string{nil, {"stream"}} {
		t.Run(strings.Join(append([]string{"certenrich"}, args...), " "), func(t *testing.T) {
			out, err := run(t, input, args...)
			require.NoError(t, err)

			lines := testutil.DecodeNDJSON(t, strings.NewReader(out))
			require.Len(t, lines, 2)
			assert.Equal(t, models.True, lines[0][models.FieldIsKnown])
			assert.Equal(t, lookuptest.KeyInfo, lines[0][models.FieldKeyInfo])
			assert.Equal(t, models.False, lines[1][models.FieldIsKnown])
		})
	}
}

func TestStreamModeWithConfigFile(t *testing.T) {
	srv := lookuptest.NewServer(t, map[string]string{
		"aa": lookuptest.CertificateJSON("1"),
	})
	t.Setenv(config.EnvAPIURL, "")
	t.Setenv(config.EnvLogLevel, "")

	path := filepath.Join(t.TempDir(), "certenrich.yaml")
	body := "api:\n  url: " + srv.URL + "\nenrichment:\n  fingerprint_field: entity.sha256\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	out, err := run(t, `{"entity":{"sha256":"aa"}}`, "--config", path, "stream")
	require.NoError(t, err)
	lines := testutil.DecodeNDJSON(t, strings.NewReader(out))
	require.Len(t, lines, 1)
	assert.Equal(t, models.True, lines[0][models.FieldIsKnown])
}

func TestStreamModeRejectsBadInput(t *testing.T) {
	srv := lookuptest.NewServer(t, nil)
	t.Setenv(config.EnvAPIURL, srv.URL)
	t.Setenv(config.EnvLogLevel, "error")

	out, err := run(t, `{"host":"example.com"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fingerprint")
	assert.Empty(t, out)
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv(config.EnvAPIURL, "not a url")

	_, err := run(t, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestKafkaModeRequiresBrokers(t *testing.T) {
	t.Setenv(config.EnvAPIURL, "")
	t.Setenv(config.EnvKafkaBrokers, "")

	_, err := run(t, "", "kafka")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka.brokers is required")
}
