package startup

import (
	"path/filepath"
	"testing"
	"time"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
	if info.OS == "" || info.Arch == "" {
		t.Errorf("Expected OS and Arch to be set, got %q/%q", info.OS, info.Arch)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("GALLERY_TEST_STR", "custom")
	t.Setenv("GALLERY_TEST_BOOL", "false")
	t.Setenv("GALLERY_TEST_BAD_BOOL", "maybe")
	t.Setenv("GALLERY_TEST_INT", "42")
	t.Setenv("GALLERY_TEST_BAD_INT", "forty")
	t.Setenv("GALLERY_TEST_DUR", "250ms")
	t.Setenv("GALLERY_TEST_NEG_DUR", "-1s")

	if got := getEnv("GALLERY_TEST_STR", "d"); got != "custom" {
		t.Errorf("getEnv = %q, want custom", got)
	}
	if got := getEnv("GALLERY_TEST_UNSET", "d"); got != "d" {
		t.Errorf("getEnv unset = %q, want d", got)
	}
	if got := getEnvBool("GALLERY_TEST_BOOL", true); got {
		t.Error("getEnvBool = true, want false")
	}
	if got := getEnvBool("GALLERY_TEST_BAD_BOOL", true); !got {
		t.Error("getEnvBool with invalid value should fall back to default")
	}
	if got := getEnvInt("GALLERY_TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt = %d, want 42", got)
	}
	if got := getEnvInt("GALLERY_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt invalid = %d, want 7", got)
	}
	if got := getEnvDuration("GALLERY_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Errorf("getEnvDuration = %v, want 250ms", got)
	}
	if got := getEnvDuration("GALLERY_TEST_NEG_DUR", time.Second); got != time.Second {
		t.Errorf("getEnvDuration negative = %v, want 1s", got)
	}
}

func TestLoadConfigSQLite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("DATABASE_DIR", dir)
	t.Setenv("QUEUE_CAPACITY", "8")
	t.Setenv("SEND_MAX_ATTEMPTS", "5")
	t.Setenv("SEND_MIN_BACKOFF", "10ms")
	t.Setenv("SEND_MAX_BACKOFF", "1ms")
	t.Setenv("MAX_MESSAGE_BYTES", "4096")
	t.Setenv("MAX_ARCHIVE_ENTRY_BYTES", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.DatabasePath != filepath.Join(dir, "gallery.db") {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.QueueCapacity != 8 || cfg.SendMaxAttempts != 5 {
		t.Errorf("QueueCapacity/SendMaxAttempts = %d/%d", cfg.QueueCapacity, cfg.SendMaxAttempts)
	}
	if cfg.MaxArchiveEntryBytes != 4096 {
		t.Errorf("MaxArchiveEntryBytes = %d, want MAX_MESSAGE_BYTES (4096)", cfg.MaxArchiveEntryBytes)
	}
	if cfg.SendMaxBackoff != cfg.SendMinBackoff {
		t.Errorf("SendMaxBackoff = %v, want clamped to %v", cfg.SendMaxBackoff, cfg.SendMinBackoff)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"DATABASE_DRIVER": "postgres", "DATABASE_URL": ""}},
		{"unknown driver", map[string]string{"DATABASE_DRIVER": "mysql"}},
		{"unknown resize backend", map[string]string{"RESIZE_BACKEND": "magick"}},
		{"zero queue", map[string]string{"QUEUE_CAPACITY": "0"}},
		{"zero attempts", map[string]string{"SEND_MAX_ATTEMPTS": "0"}},
		{"zero archive entry limit", map[string]string{"MAX_ARCHIVE_ENTRY_BYTES": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_DIR", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Error("LoadConfig() expected error")
			}
		})
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "(unset)"},
		{"postgres://user:secret@db:5432/gallery", "postgres://user:****@db:5432/gallery"},
		{"postgres://db:5432/gallery", "postgres://db:5432/gallery"},
		{"host=db user=x", "host=db user=x"},
	}
	for _, tt := range tests {
		if got := redactURL(tt.in); got != tt.want {
			t.Errorf("redactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
