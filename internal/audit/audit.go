// Package audit provides append-only structured logging for credential
// operations.
//
// Every read, write, removal, purge and rotation is recorded to an audit log
// (by default ~/.keystash/audit.log) as newline-delimited JSON. Secrets are
// never written to the log.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Action describes what happened.
type Action string

const (
	ActionRead   Action = "credential_read"
	ActionAdd    Action = "credential_add"
	ActionWrite  Action = "credential_write"
	ActionDelete Action = "credential_delete"
	ActionPurge  Action = "credential_purge"
	ActionRotate Action = "credential_rotate"
)

// Entry is a single audit log record.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Action    Action    `json:"action"`
	Kind      string    `json:"kind,omitempty"`
	Account   string    `json:"account,omitempty"`
	Realm     string    `json:"realm,omitempty"`
	Owner     string    `json:"owner,omitempty"`
	Found     *bool     `json:"found,omitempty"`   // reads only
	Actor     string    `json:"actor,omitempty"`   // "cli", "library"
	Trigger   string    `json:"trigger,omitempty"` // "manual", "hook"
	Command   string    `json:"command,omitempty"` // rotation command if applicable
	Error     string    `json:"error,omitempty"`
	Code      int32     `json:"code,omitempty"`
}

// Logger writes audit entries to an append-only file.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewLogger creates or opens an audit log file for appending.
func NewLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &Logger{file: f, path: path}, nil
}

// Path returns the file the logger appends to.
func (l *Logger) Path() string {
	return l.path
}

// Log writes an audit entry.
func (l *Logger) Log(entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// Close closes the audit log file.
func (l *Logger) Close() error {
	return l.file.Close()
}

// Decode reads entries from r until EOF. Lines that are not valid entries
// are skipped.
func Decode(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return entries, fmt.Errorf("reading audit log: %w", err)
	}
	return entries, nil
}

// ReadAll returns every entry in the log at path.
func ReadAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
