package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mtzanidakis/storecrew/internal/config"
	"github.com/mtzanidakis/storecrew/internal/store"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.in); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBackupRestoreCommands(t *testing.T) {
	dbPath := setupEnv(t)

	db, err := store.New(config.StoreConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := db.SaveRun(&store.Run{ID: "run-1", Pipeline: "shopify_marketing", Mode: "run", Status: "succeeded"}); err != nil {
		t.Fatalf("save run: %v", err)
	}
	db.Close()

	archive := filepath.Join(t.TempDir(), "backup.tar.zst")
	out, err := execute(t, "backup", "-f", archive)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if !strings.HasPrefix(out, "Backup complete:") {
		t.Errorf("backup output = %q", out)
	}

	if _, err := execute(t, "restore", "-f", archive); err == nil {
		t.Fatal("restore over the live database should need --overwrite")
	}

	if err := os.Remove(dbPath); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "restore", "-f", archive); err != nil {
		t.Fatalf("restore: %v", err)
	}

	out, err = execute(t, "runs", "list")
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	if !strings.Contains(out, "run-1") {
		t.Errorf("restored database is missing run-1:\n%s", out)
	}
}

func TestBackupRequiresFile(t *testing.T) {
	setupEnv(t)
	if _, err := execute(t, "backup"); err == nil {
		t.Fatal("backup without -f should fail")
	}
}
