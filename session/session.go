// Package session tracks parley workspaces in an index file under the user
// cache directory.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fwojciec/parley"
	"github.com/fwojciec/parley/history"
)

// Record is one tracked workspace.
type Record struct {
	ID        string    `json:"id"`
	Directory string    `json:"directory"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Manager reads and writes the sessions index. Mutating calls persist
// immediately.
type Manager struct {
	path    string
	logger  *zap.Logger
	records []Record
}

// Option configures a Manager.
type Option func(*Manager)

// WithPath overrides the index file location. Defaults to
// parley/sessions.json under the user cache directory.
func WithPath(path string) Option {
	return func(m *Manager) {
		m.path = path
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Open loads the sessions index. A missing index is empty.
func Open(opts ...Option) (*Manager, error) {
	m := &Manager{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	if m.path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("locate cache directory: %w", err)
		}
		m.path = filepath.Join(dir, "parley", "sessions.json")
	}

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sessions index: %w", err)
	}
	if err := json.Unmarshal(data, &m.records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", m.path, err)
	}
	return m, nil
}

// Touch records activity in dir, creating a session record on first use,
// and persists the index.
func (m *Manager) Touch(dir string) (Record, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Record{}, fmt.Errorf("resolve %s: %w", dir, err)
	}
	now := time.Now().UTC()

	for i := range m.records {
		if m.records[i].Directory == abs {
			m.records[i].UpdatedAt = now
			if err := m.save(); err != nil {
				return Record{}, err
			}
			return m.records[i], nil
		}
	}

	rec := Record{
		ID:        uuid.NewString(),
		Directory: abs,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.records = append(m.records, rec)
	m.logger.Debug("new session", zap.String("id", rec.ID), zap.String("directory", abs))
	if err := m.save(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns all records, most recently used first.
func (m *Manager) List() []Record {
	out := make([]Record, len(m.records))
	copy(out, m.records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Delete forgets the session for dir and removes its message log. Deleting
// an untracked directory is a USER fault.
func (m *Manager) Delete(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	for i, rec := range m.records {
		if rec.Directory == abs {
			m.records = append(m.records[:i], m.records[i+1:]...)
			removeMessageLog(rec.Directory)
			return m.save()
		}
	}
	return parley.Errorf(parley.FaultUser, "no session found for %s", abs)
}

// Clear forgets every session and removes their message logs.
func (m *Manager) Clear() error {
	for _, rec := range m.records {
		removeMessageLog(rec.Directory)
	}
	m.records = nil
	return m.save()
}

// removeMessageLog best-effort deletes a workspace's message log. The
// workspace may be gone already.
func removeMessageLog(dir string) {
	_ = os.Remove(filepath.Join(dir, history.FileName))
}

func (m *Manager) save() error {
	records := m.records
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
