package ledgersaga

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// AuditTrail dumps records that need a human as JSON files on disk. The
// engine writes here when a revert runs to completion without reaching
// CANCELED; nothing in the engine ever reads the dumps back.
type AuditTrail struct {
	basePath string
	mu       sync.Mutex // Protects file operations
}

// NewAuditTrail creates an audit trail rooted at the given directory.
func NewAuditTrail(basePath string) (*AuditTrail, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	return &AuditTrail{basePath: basePath}, nil
}

// Dump writes the record to its audit file.
func (a *AuditTrail) Dump(rec *Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := os.WriteFile(a.filename(rec.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write audit file: %w", err)
	}

	return nil
}

// Load reads a dumped record back, for operator tooling.
func (a *AuditTrail) Load(id uuid.UUID) (*Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := os.ReadFile(a.filename(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read audit file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return &rec, nil
}

// filename returns the full path for a record's audit file.
func (a *AuditTrail) filename(id uuid.UUID) string {
	return filepath.Join(a.basePath, id.String()+".json")
}
