// Package history persists the conversation message log as a JSON file in
// the working directory.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fwojciec/parley"
)

// FileName is the message log file parley reads and writes in the working
// directory.
const FileName = ".parley-messages.json"

// Interface compliance check.
var _ parley.History = (*Log)(nil)

// Log is a message history backed by a JSON file. Messages accumulate in
// memory; Save writes them out. A disabled Log never touches the disk, so
// the conversation still works without leaving a file behind.
type Log struct {
	path     string
	disabled bool
	logger   *zap.Logger
	msgs     []parley.Message
}

// Option configures a Log.
type Option func(*Log)

// WithDisabled turns off loading and saving. Add and Messages still work in
// memory.
func WithDisabled(disabled bool) Option {
	return func(l *Log) {
		l.disabled = disabled
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// Open loads the message log for dir. A missing file is an empty log.
func Open(dir string, opts ...Option) (*Log, error) {
	l := &Log{
		path:   filepath.Join(dir, FileName),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.disabled {
		return l, nil
	}

	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read message log: %w", err)
	}
	msgs, err := UnmarshalMessages(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", l.path, err)
	}
	l.msgs = msgs
	l.logger.Debug("loaded message log",
		zap.String("path", l.path),
		zap.Int("messages", len(msgs)))
	return l, nil
}

// Add appends msg to the in-memory log.
func (l *Log) Add(msg parley.Message) {
	l.msgs = append(l.msgs, msg)
	l.logger.Debug("message added",
		zap.String("role", string(msg.Role)),
		zap.Int("blocks", len(msg.Content)))
}

// Messages returns a copy of the accumulated messages in order.
func (l *Log) Messages() []parley.Message {
	msgs := make([]parley.Message, len(l.msgs))
	copy(msgs, l.msgs)
	return msgs
}

// Save writes the log to disk, creating parent directories as needed. The
// write goes through a temp file and rename so a crash never leaves a
// half-written log. Save is a no-op for a disabled Log.
func (l *Log) Save() error {
	if l.disabled {
		return nil
	}
	data, err := MarshalMessages(l.msgs)
	if err != nil {
		return fmt.Errorf("marshal message log: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	l.logger.Debug("saved message log",
		zap.String("path", l.path),
		zap.Int("messages", len(l.msgs)))
	return nil
}

// Path returns the file the log reads and writes.
func (l *Log) Path() string {
	return l.path
}
