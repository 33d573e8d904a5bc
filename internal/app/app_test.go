package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ubglab/ruleharvest/internal/fault"
	"github.com/ubglab/ruleharvest/internal/fetch"
)

func TestRun_WritesArtifacts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/demo/game-rules.php", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
			<h3>Components</h3>
			<ul><li>6 dice</li></ul>
			<img src="/img/parts-400x300.jpg" alt="components">
		</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out := t.TempDir()
	a := New(Config{
		Title:            "Demo",
		OutDir:           out,
		DataDir:          t.TempDir(),
		RulesBaseURL:     srv.URL,
		MinGap:           time.Millisecond,
		DeterministicIDs: true,
		ProofSheet:       true,
		FetchPolicy:      fetch.PermitAll,
	})
	m, sb, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.Game.Slug != "demo" || len(sb.Scenes) < 2 {
		t.Fatalf("run outputs: %+v / %d scenes", m.Game, len(sb.Scenes))
	}
	for _, name := range []string{"manifest.json", "storyboard.json", "proofsheet.pdf"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Fatalf("artifact %s: %v", name, err)
		}
	}
	data, err := os.ReadFile(filepath.Join(out, "storyboard.json"))
	if err != nil {
		t.Fatalf("read storyboard: %v", err)
	}
	if !strings.Contains(string(data), `"storyboardContractVersion"`) {
		t.Fatalf("storyboard artifact missing contract version")
	}
}

func TestRun_EmptyConfigFailsFast(t *testing.T) {
	a := New(Config{DataDir: t.TempDir(), OutDir: t.TempDir(), DisableWeb: true})
	if _, _, err := a.Run(context.Background()); !fault.IsKind(err, fault.IngestBadInput) {
		t.Fatalf("want INGEST_BAD_INPUT, got %v", err)
	}
}

func TestApplyConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
title: Catan
out: artifacts
rules:
  base: https://rules.example.org
  alsoOverview: true
  maxImages: 5
politeness:
  minGap: 2s
  ceiling: 90s
bggClient:
  qps: 1.5
video:
  width: 1280
  height: 720
language: de
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := Config{Title: "From Flags", MinGap: 5 * time.Second}
	if err := ApplyConfigFile(&cfg, path); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Title != "From Flags" {
		t.Fatalf("explicit flag must win over the file: %q", cfg.Title)
	}
	if cfg.MinGap != 5*time.Second {
		t.Fatalf("explicit duration flag must win: %v", cfg.MinGap)
	}
	if cfg.RulesBaseURL != "https://rules.example.org" || !cfg.AlsoOverview || cfg.MaxImages != 5 {
		t.Fatalf("rules section: %+v", cfg)
	}
	if cfg.Ceiling != 90*time.Second {
		t.Fatalf("politeness section: %+v", cfg)
	}
	if cfg.BGGQPS != 1.5 || cfg.Width != 1280 || cfg.Height != 720 || cfg.Language != "de" {
		t.Fatalf("remaining sections: %+v", cfg)
	}
}

func TestApplyConfigFile_MissingPathIgnored(t *testing.T) {
	cfg := Config{}
	if err := ApplyConfigFile(&cfg, ""); err != nil {
		t.Fatalf("empty path must be a no-op: %v", err)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n" +
		"RULEHARVEST_TEST_KEY=hello\n" +
		"QUOTED='world'\n" +
		"EXPANDED=${RULEHARVEST_TEST_KEY}-there\n" +
		"LITERAL='$RULEHARVEST_TEST_KEY'\n" +
		"malformed line\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Cleanup(func() {
		for _, k := range []string{"RULEHARVEST_TEST_KEY", "QUOTED", "EXPANDED", "LITERAL"} {
			os.Unsetenv(k)
		}
	})
	if err := LoadEnvFiles(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("RULEHARVEST_TEST_KEY"); got != "hello" {
		t.Fatalf("env value = %q", got)
	}
	if got := os.Getenv("QUOTED"); got != "world" {
		t.Fatalf("quoted value = %q", got)
	}
	if got := os.Getenv("EXPANDED"); got != "hello-there" {
		t.Fatalf("expanded value = %q", got)
	}
	if got := os.Getenv("LITERAL"); got != "$RULEHARVEST_TEST_KEY" {
		t.Fatalf("single-quoted value must stay literal: %q", got)
	}
}
