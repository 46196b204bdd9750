package cli

import (
	"os"
	"path/filepath"
	"testing"

	"ucontrol/internal/config"
)

func TestNewSettings(t *testing.T) {
	s, err := NewSettings(&config.Config{DefaultCutoffDay: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.Current(); got.CutoffDay != 10 || !got.IsActive {
		t.Fatalf("settings = %+v", got)
	}
	if _, err := NewSettings(&config.Config{DefaultCutoffDay: 0}); err == nil {
		t.Fatal("expected error for cutoff day 0")
	}
}

func TestSetupLoggerFallsBackToInfo(t *testing.T) {
	logger := SetupLogger("verbose", "json")
	if logger == nil || logger.Component() != "app" {
		t.Fatalf("unexpected logger: %+v", logger)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("UCONTROL_TEST_VALUE=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("UCONTROL_TEST_VALUE", "")
	os.Unsetenv("UCONTROL_TEST_VALUE")

	LoadEnvFile()
	if got := os.Getenv("UCONTROL_TEST_VALUE"); got != "from-dotenv" {
		t.Fatalf("UCONTROL_TEST_VALUE = %q", got)
	}
}
