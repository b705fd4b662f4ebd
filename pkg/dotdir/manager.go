// Package dotdir manages the .switchboard/ and ~/.switchboard directories
// that hold config.toml, .env and the default SQLite call log.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the name of the switchboard directory.
const DirName = ".switchboard"

type Manager struct {
	getwd   func() (string, error)
	homeDir func() (string, error)
}

func NewManager() *Manager {
	return &Manager{getwd: os.Getwd, homeDir: os.UserHomeDir}
}

// Local returns the ./.switchboard path under the working directory, whether
// or not it exists.
func (m *Manager) Local() (string, error) {
	cwd, err := m.getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return filepath.Join(cwd, DirName), nil
}

// Target returns the absolute path of the directory to use, creating it when
// missing. The first of these wins:
//  1. overrideDir
//  2. ./.switchboard, if it is a directory
//  3. ~/.switchboard
func (m *Manager) Target(overrideDir string) (string, error) {
	dir, err := m.resolve(overrideDir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating switchboard directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

func (m *Manager) resolve(overrideDir string) (string, error) {
	if overrideDir != "" {
		return overrideDir, nil
	}

	if local, err := m.Local(); err == nil {
		if info, err := os.Stat(local); err == nil && info.IsDir() {
			return local, nil
		}
	}

	home, err := m.homeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}
