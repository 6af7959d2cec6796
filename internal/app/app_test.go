package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureDataDir(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantDir string
	}{
		{
			name:    "nested directory created",
			path:    filepath.Join(root, "data", "db", "bot.db"),
			wantDir: filepath.Join(root, "data", "db"),
		},
		{
			name: "memory database",
			path: ":memory:",
		},
		{
			name: "current directory",
			path: "bot.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := EnsureDataDir(tt.path); err != nil {
				t.Fatalf("ensure data dir: %v", err)
			}
			if tt.wantDir == "" {
				return
			}
			info, err := os.Stat(tt.wantDir)
			if err != nil {
				t.Fatalf("stat: %v", err)
			}
			if !info.IsDir() {
				t.Errorf("%s is not a directory", tt.wantDir)
			}
		})
	}
}
