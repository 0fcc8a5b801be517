package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, url string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "log_level: error\nlog_format: text\noptimizer:\n  url: " + url + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func allParams() map[string]string {
	return map[string]string{
		"blast_furnace_temp": "1200", "hot_blast_pressure": "3.5", "oxygen_enrichment": "2.1",
		"humidity": "1.0", "coke_rate": "400", "pulverized_coal": "120",
		"slag_rate": "300", "sinter_rate": "800",
	}
}

func TestRun_PrintsPairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer cli-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prediction": [1195.2, 3.4], "message": "ok", "variables": [[1]], "solutions": [[2]]}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := run(context.Background(), &out, options{
		configPath: writeConfig(t, srv.URL),
		token:      "cli-token",
		values:     allParams(),
	})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Blast Furnace Temp")
	assert.Contains(t, text, "1195.20")
	assert.Contains(t, text, "unavailable")
	assert.Contains(t, text, "Non-dominated solutions: 1")
}

func TestRun_FailureIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "Invalid input"}`))
	}))
	defer srv.Close()

	err := run(context.Background(), &bytes.Buffer{}, options{
		configPath: writeConfig(t, srv.URL),
		token:      "cli-token",
		values:     allParams(),
	})
	require.Error(t, err)
	assert.Equal(t, "Invalid input", err.Error())
}

func TestRun_UnknownParam(t *testing.T) {
	values := allParams()
	values["tuyere_count"] = "12"

	err := run(context.Background(), &bytes.Buffer{}, options{
		configPath: writeConfig(t, "http://127.0.0.1:1"),
		token:      "cli-token",
		values:     values,
	})
	assert.Error(t, err)
}
