package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("HOLD", "15")
	if got := Duration("HOLD", time.Minute, time.Hour); got != 15*time.Minute {
		t.Fatalf("expected 15m, got %s", got)
	}
	t.Setenv("HOLD", "90s")
	if got := Duration("HOLD", time.Minute, time.Hour); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
	t.Setenv("HOLD", "soon")
	if got := Duration("HOLD", time.Minute, time.Hour); got != time.Hour {
		t.Fatalf("expected fallback, got %s", got)
	}
}

func TestIntAndBool(t *testing.T) {
	t.Setenv("DAYS", "-3")
	if got := Int("DAYS", 28); got != 28 {
		t.Fatalf("expected fallback 28, got %d", got)
	}
	t.Setenv("FLAG", "on")
	if !Bool("FLAG", false) {
		t.Fatal("expected true")
	}
	t.Setenv("FLAG", "maybe")
	if Bool("FLAG", false) {
		t.Fatal("expected fallback false")
	}
}

func TestList(t *testing.T) {
	t.Setenv("ORIGINS", " http://a.test, ,http://b.test ")
	got := List("ORIGINS")
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Fatalf("unexpected list: %#v", got)
	}
}

func TestLoadDotEnvKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("TB_FROM_FILE=file\nTB_PRESET=file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TB_PRESET", "env")
	t.Cleanup(func() { _ = os.Unsetenv("TB_FROM_FILE") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if os.Getenv("TB_FROM_FILE") != "file" {
		t.Fatal("expected value loaded from file")
	}
	if os.Getenv("TB_PRESET") != "env" {
		t.Fatal("existing variable must not be overridden")
	}
}

func TestFloat(t *testing.T) {
	t.Setenv("RATIO", "0.25")
	if got := Float("RATIO", 1); got != 0.25 {
		t.Fatalf("expected 0.25, got %v", got)
	}
	t.Setenv("RATIO", "half")
	if got := Float("RATIO", 1); got != 1 {
		t.Fatalf("expected fallback, got %v", got)
	}
}
