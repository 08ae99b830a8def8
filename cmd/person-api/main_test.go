package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zeferini/eventsourcing/config"
)

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{"memory", config.Config{EventStore: config.StoreMemory}, false},
		{"sqlite", config.Config{EventStore: config.StoreSQLite, SQLitePath: filepath.Join(dir, "events.db")}, false},
		{"disk", config.Config{EventStore: config.StoreDisk, DiskDir: filepath.Join(dir, "events")}, false},
		{"unknown", config.Config{EventStore: "mongo"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openStore(t.Context(), tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if err := store.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := newLogger(&buf, config.Config{LogLevel: "warn", LogFormat: "text"})
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info must be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "level=WARN msg=shown") {
		t.Fatalf("expected text output, got %s", out)
	}

	buf.Reset()
	newLogger(&buf, config.Config{LogLevel: "info", LogFormat: "json"}).Info("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected json output, got %s", buf.String())
	}
}
