package ledger

import (
	"context"
	"sort"
	"sync"
)

// Store persists records keyed by gateway payment id. Several processes may
// share one store, so Put is a compare-and-set on Version.
type Store interface {
	Get(ctx context.Context, id string) (*Record, error)
	// Put writes record only if the stored version still equals record.Version
	// (zero for an insert), returning ErrConflict otherwise. On success
	// record.Version is advanced.
	Put(ctx context.Context, record *Record) error
	ScanByField(ctx context.Context, field Field, value string) ([]*Record, error)
	Ping(ctx context.Context) error
}

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryStore) Put(ctx context.Context, record *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stored int64
	if current, ok := m.records[record.GatewayPaymentID]; ok {
		stored = current.Version
	}
	if stored != record.Version {
		return ErrConflict
	}
	record.Version++
	m.records[record.GatewayPaymentID] = record.Clone()
	return nil
}

// ScanByField walks every record; fine for a single product checkout.
func (m *MemoryStore) ScanByField(ctx context.Context, field Field, value string) ([]*Record, error) {
	if !field.Valid() {
		return nil, ErrInvalidField
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, r := range m.records {
		if r.FieldValue(field) == value {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
