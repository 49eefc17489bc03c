package txstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Record is the terminal outcome of a mint transaction as reported to clients.
type Record struct {
	Hash        string    `json:"hash"`
	Trader      string    `json:"trader,omitempty"`
	Status      string    `json:"status"`
	TokenID     string    `json:"tokenId,omitempty"`
	BlockNumber uint64    `json:"blockNumber,omitempty"`
	ExplorerURL string    `json:"explorerUrl,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Store remembers terminal transaction outcomes keyed by hash. Get returns nil, nil
// for unknown or expired hashes.
type Store interface {
	Get(ctx context.Context, hash string) (*Record, error)
	Save(ctx context.Context, record Record) error
}

// Key normalizes a transaction hash so lookups ignore hex case.
func Key(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}

// MemoryStore is mostly for testing.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Record
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Record),
		now:  time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, hash string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[Key(hash)]
	if !ok || m.now().After(rec.ExpiresAt) {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Save(_ context.Context, record Record) error {
	if Key(record.Hash) == "" {
		return errors.New("record hash is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[Key(record.Hash)] = record
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// FileStore persists records to a JSON file. Suitable for a single local instance.
type FileStore struct {
	path string
	mu   sync.Mutex
	data map[string]Record
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path: path,
		data: make(map[string]Record),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &f.data)
}

func (f *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Get(_ context.Context, hash string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := Key(hash)
	record, ok := f.data[key]
	if !ok {
		return nil, nil
	}
	if time.Now().After(record.ExpiresAt) {
		delete(f.data, key)
		_ = f.persist()
		return nil, nil
	}
	return &record, nil
}

func (f *FileStore) Save(_ context.Context, record Record) error {
	if Key(record.Hash) == "" {
		return errors.New("record hash is empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[Key(record.Hash)] = record
	return f.persist()
}
