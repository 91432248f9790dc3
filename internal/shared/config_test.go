package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./stationsync.db" {
			t.Errorf("expected database path ./stationsync.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Downloads.DownloadOverMobile {
			t.Error("expected download_over_mobile to default to false")
		}

		if config.Downloads.ProbeWorkers != 4 {
			t.Errorf("expected 4 probe workers, got %d", config.Downloads.ProbeWorkers)
		}

		if config.RadioBrowser.API != "all.api.radio-browser.info" {
			t.Errorf("unexpected radio browser api %s", config.RadioBrowser.API)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Storage.Root != DefaultConfig().Storage.Root {
			t.Errorf("created config storage root doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig TOML", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		testConfig := `[storage]
root = "/data/stations"

[database]
path = "/data/prefs.db"

[downloads]
download_over_mobile = true
probe_timeout_seconds = 3
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Storage.Root != "/data/stations" {
			t.Errorf("expected storage root /data/stations, got %s", config.Storage.Root)
		}
		if !config.Downloads.DownloadOverMobile {
			t.Error("expected download_over_mobile to be true")
		}
		if got := config.Downloads.ProbeTimeout().Seconds(); got != 3 {
			t.Errorf("expected 3s probe timeout, got %v", got)
		}
		if config.Server.Port != 3000 {
			t.Errorf("missing keys should keep defaults, got port %d", config.Server.Port)
		}
		if config.CollectionDir() != filepath.Join("/data/stations", "collection") {
			t.Errorf("unexpected collection dir %s", config.CollectionDir())
		}
	})

	t.Run("LoadConfig YAML", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")

		testConfig := `storage:
  root: /srv/radio
server:
  host: 0.0.0.0
  port: 8081
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Storage.Root != "/srv/radio" {
			t.Errorf("expected storage root /srv/radio, got %s", config.Storage.Root)
		}
		if config.Server.Addr() != "0.0.0.0:8081" {
			t.Errorf("expected addr 0.0.0.0:8081, got %s", config.Server.Addr())
		}
	})

	t.Run("LoadConfig Invalid", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[storage]\nroot = \"\"\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		_, err := LoadConfig(configPath)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("LoadConfig Missing File", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
