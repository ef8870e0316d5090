package keychain

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// SecretMetadata tracks when a credential was written and by whom.
type SecretMetadata struct {
	Kind        string    `json:"kind"`
	Account     string    `json:"account"`
	Realm       string    `json:"realm"`
	Owner       string    `json:"owner,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
	LastRotated time.Time `json:"last_rotated,omitempty"`
}

// MetadataKey is the metadata file key for a credential.
func MetadataKey(kind Kind, account, realm string) string {
	return encodeRingKey(kind, realm, account)
}

// MetadataStore persists credential metadata to a JSON file. It never holds
// secrets.
type MetadataStore struct {
	mu       sync.RWMutex
	path     string
	metadata map[string]*SecretMetadata
}

// NewMetadataStore loads or creates a metadata file.
func NewMetadataStore(path string) (*MetadataStore, error) {
	ms := &MetadataStore{
		path:     path,
		metadata: make(map[string]*SecretMetadata),
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if jsonErr := json.Unmarshal(data, &ms.metadata); jsonErr != nil {
			slog.Warn("corrupt metadata file, starting fresh", "path", path, "error", jsonErr)
			ms.metadata = make(map[string]*SecretMetadata)
		}
	}

	return ms, nil
}

// Get returns a copy of the metadata for a key, or nil if not tracked.
func (ms *MetadataStore) Get(key string) *SecretMetadata {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	m, ok := ms.metadata[key]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

// Set records metadata for a key and persists to disk.
func (ms *MetadataStore) Set(key string, meta *SecretMetadata) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.metadata[key] = meta
	return ms.save()
}

// Delete removes metadata for a key.
func (ms *MetadataStore) Delete(key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.metadata[key]; !ok {
		return nil
	}
	delete(ms.metadata, key)
	return ms.save()
}

// DeleteOwned removes metadata for every credential of kind tagged owner and
// returns how many entries were dropped.
func (ms *MetadataStore) DeleteOwned(kind Kind, owner Owner) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	n := 0
	for k, m := range ms.metadata {
		if m.Kind == kind.String() && m.Owner == owner.String() {
			delete(ms.metadata, k)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, ms.save()
}

// All returns copies of all metadata entries.
func (ms *MetadataStore) All() map[string]*SecretMetadata {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	result := make(map[string]*SecretMetadata, len(ms.metadata))
	for k, v := range ms.metadata {
		cp := *v
		result[k] = &cp
	}
	return result
}

func (ms *MetadataStore) save() error {
	data, err := json.MarshalIndent(ms.metadata, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := ms.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, ms.path)
}
