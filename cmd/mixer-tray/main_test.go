package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/petems/mixer-tray/internal/config"
)

// runCmd executes the root command against a temporary config file.
func runCmd(t *testing.T, path string, args ...string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", path}, args...))
	t.Cleanup(func() {
		configPath = ""
		orderReset = false
		listHidden = false
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestHideAndUnhide(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	out := runCmd(t, path, "hide", "Chat", "Game", "Chat")
	if out != "Chat\nGame\n" {
		t.Errorf("hide output = %q", out)
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.HiddenApps != "Chat,Game" {
		t.Errorf("hidden_apps = %q, want %q", cfg.HiddenApps, "Chat,Game")
	}

	out = runCmd(t, path, "unhide", "Chat", "Missing")
	if out != "Game\n" {
		t.Errorf("unhide output = %q", out)
	}

	out = runCmd(t, path, "unhide", "Game")
	if !strings.Contains(out, "No hidden applications") {
		t.Errorf("unhide all output = %q", out)
	}
}

func TestOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, _ := config.LoadFrom(path)
	cfg.SetOrder([]string{"Player", "Browser"})
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if out := runCmd(t, path, "order"); out != "Player\nBrowser\n" {
		t.Errorf("order output = %q", out)
	}

	runCmd(t, path, "order", "--reset")
	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.AppOrder != "" {
		t.Errorf("app_order after reset = %q", cfg.AppOrder)
	}
}

func TestVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	out := runCmd(t, path, "version")
	if !strings.HasPrefix(out, "mixer-tray dev") {
		t.Errorf("version output = %q", out)
	}
}
