package profiles

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kadirbelkuyu/SQLBM/internal/config"
	"gopkg.in/yaml.v3"
)

const defaultFile = "connection_history.yaml"

type historyFile struct {
	Profiles []config.ConnectionProfile `yaml:"profiles"`
}

// Manager persists connection profiles keyed by display name in a single
// YAML history file. Every mutation rewrites the whole file.
type Manager struct {
	path string
	mu   sync.Mutex
}

// NewManager constructs a profile manager backed by the provided file.
func NewManager(path string) *Manager {
	if strings.TrimSpace(path) == "" {
		path = defaultFile
	}
	return &Manager{path: path}
}

// Path returns the history file location.
func (m *Manager) Path() string {
	return m.path
}

// List returns all saved profiles ordered by display name.
func (m *Manager) List() ([]config.ConnectionProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history, err := m.read()
	if err != nil {
		return nil, err
	}
	return history, nil
}

// Load returns the profile saved under name.
func (m *Manager) Load(name string) (config.ConnectionProfile, error) {
	if strings.TrimSpace(name) == "" {
		return config.ConnectionProfile{}, fmt.Errorf("profile name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	history, err := m.read()
	if err != nil {
		return config.ConnectionProfile{}, err
	}
	for _, profile := range history {
		if profile.DisplayName == name {
			return profile, nil
		}
	}
	return config.ConnectionProfile{}, fmt.Errorf("profile not found: %s", name)
}

// Save inserts or replaces the profile with the same display name.
func (m *Manager) Save(profile config.ConnectionProfile) error {
	name := strings.TrimSpace(profile.DisplayName)
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	profile.DisplayName = name

	m.mu.Lock()
	defer m.mu.Unlock()

	history, err := m.read()
	if err != nil {
		return err
	}

	replaced := false
	for i := range history {
		if history[i].DisplayName == name {
			history[i] = profile
			replaced = true
			break
		}
	}
	if !replaced {
		history = append(history, profile)
	}

	return m.write(history)
}

// Delete removes the profile saved under name.
func (m *Manager) Delete(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	history, err := m.read()
	if err != nil {
		return err
	}

	kept := history[:0]
	found := false
	for _, profile := range history {
		if profile.DisplayName == name {
			found = true
			continue
		}
		kept = append(kept, profile)
	}
	if !found {
		return fmt.Errorf("profile not found: %s", name)
	}

	return m.write(kept)
}

func (m *Manager) read() ([]config.ConnectionProfile, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read connection history: %w", err)
	}

	var history historyFile
	if err := yaml.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to parse connection history: %w", err)
	}

	sort.SliceStable(history.Profiles, func(i, j int) bool {
		return strings.ToLower(history.Profiles[i].DisplayName) < strings.ToLower(history.Profiles[j].DisplayName)
	})
	return history.Profiles, nil
}

// write replaces the history file via a temp file in the same directory so
// a crash never leaves a truncated history behind.
func (m *Manager) write(profiles []config.ConnectionProfile) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(historyFile{Profiles: profiles})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".history-*.yaml")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, m.path)
}
