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

	"github.com/onit-labs/xmtp-bot/internal/api"
	"github.com/onit-labs/xmtp-bot/internal/version"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { jsonOutput = false })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--json")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	var info version.Info
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, out)
	}
	if info.Version != version.Version {
		t.Errorf("Version = %q, want %q", info.Version, version.Version)
	}
}

func TestMarketsCommand(t *testing.T) {
	var gotTags string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTags = r.URL.Query().Get("tags")
		var resp api.MarketsResponse
		resp.Success = true
		resp.Data.Markets = []api.Market{{MarketAddress: "0xabc", Question: "Will it snow?"}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "agent.yaml")
	cfg := "onit:\n  api_url: " + server.URL + "\n  site_url: https://onit.fun\n"
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "markets", "--config", path, "Weather")
	if err != nil {
		t.Fatalf("markets error = %v", err)
	}
	if gotTags != "weather" {
		t.Errorf("tags query = %q, want weather", gotTags)
	}
	if !strings.Contains(out, "0xabc  Will it snow?") {
		t.Errorf("output missing market line:\n%s", out)
	}
	if !strings.Contains(out, "More at https://onit.fun/weather") {
		t.Errorf("output missing site link:\n%s", out)
	}
}

func TestRunCommand_MissingConfig(t *testing.T) {
	if _, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("run expected error for missing config")
	}
}

func TestDBCommand_NoDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(path, []byte("instance:\n  id: test\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, "db", "migrate", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "no database configured") {
		t.Fatalf("db migrate error = %v, want no database configured", err)
	}
}
