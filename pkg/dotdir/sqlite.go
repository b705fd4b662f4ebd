package dotdir

import "path/filepath"

// SQLiteFile is the call log database created inside the resolved directory
// when no explicit path is configured.
const SQLiteFile = "switchboard.sqlite"

// SQLitePath returns explicit when set, otherwise SQLiteFile inside the
// directory Target resolves for overrideDir.
func (m *Manager) SQLitePath(overrideDir, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SQLiteFile), nil
}
