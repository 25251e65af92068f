package journal

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status of a claim attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusDropped marks a write that settled after its account disconnected.
	StatusDropped Status = "dropped"
)

// Entry records one claim write and its outcome.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	Account    string    `json:"account"`
	Quantity   uint64    `json:"quantity"`
	Status     Status    `json:"status"`
	ErrorKind  string    `json:"errorKind,omitempty"`
	TxHash     string    `json:"txHash,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Store persists claim attempts. Save upserts by ID; List returns newest first.
type Store interface {
	Save(ctx context.Context, entry Entry) error
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)
	List(ctx context.Context, account string) ([]Entry, error)
}

var ErrMissingID = errors.New("journal entry has no id")

// MemoryStore is mostly for testing.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[uuid.UUID]Entry),
	}
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.data[id]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *MemoryStore) Save(_ context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		return ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[entry.ID] = entry
	return nil
}

func (m *MemoryStore) List(_ context.Context, account string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterByAccount(m.data, account), nil
}

// FileStore persists entries to a JSON file. Suitable for local dev.
type FileStore struct {
	path string
	mu   sync.Mutex
	data map[uuid.UUID]Entry
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path: path,
		data: make(map[uuid.UUID]Entry),
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
	return os.WriteFile(f.path, blob, 0o600)
}

func (f *FileStore) Get(_ context.Context, id uuid.UUID) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.data[id]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (f *FileStore) Save(_ context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		return ErrMissingID
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[entry.ID] = entry
	return f.persist()
}

func (f *FileStore) List(_ context.Context, account string) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filterByAccount(f.data, account), nil
}

// filterByAccount returns entries for account (all when empty), newest first.
func filterByAccount(data map[uuid.UUID]Entry, account string) []Entry {
	out := make([]Entry, 0, len(data))
	for _, entry := range data {
		if account == "" || strings.EqualFold(entry.Account, account) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}
