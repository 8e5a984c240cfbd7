package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store modes.
const (
	ModeLocal  = "local"
	ModeGlobal = "global"
)

// ResolveRoot resolves the session store root for the given mode.
// An explicit override wins over mode-based resolution.
//
// local:  <git-dir>/raido/sessions for the repository enclosing workdir.
// global: $XDG_DATA_HOME/raido/sessions, falling back to
// ~/.local/share/raido/sessions when the variable is unset.
func ResolveRoot(mode, override, workdir string) (string, error) {
	if override != "" {
		return filepath.Abs(override)
	}
	switch mode {
	case ModeLocal:
		gitDir, err := findGitDir(workdir)
		if err != nil {
			return "", err
		}
		return filepath.Join(gitDir, "raido", "sessions"), nil
	case ModeGlobal:
		dataDir := os.Getenv("XDG_DATA_HOME")
		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("storage: resolve home: %w", err)
			}
			dataDir = filepath.Join(home, ".local", "share")
		}
		return filepath.Join(dataDir, "raido", "sessions"), nil
	default:
		return "", fmt.Errorf("storage: unknown store mode %q", mode)
	}
}

// findGitDir walks up from dir looking for a .git directory.
func findGitDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("storage: resolve workdir: %w", err)
	}
	for {
		candidate := filepath.Join(abs, ".git")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("storage: no git repository found above %s", dir)
		}
		abs = parent
	}
}
