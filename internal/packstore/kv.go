package packstore

// KeyValueStore backs the unbounded final tier, keyed by sector index. A
// missing key is an empty sector.
type KeyValueStore interface {
	TryGet(sector uint32) ([]byte, bool, error)
	Set(sector uint32, value []byte) error
	Close() error
}

// MemoryKeyValueStore keeps the final tier on the heap. Used for tests and
// throwaway deployments.
type MemoryKeyValueStore struct {
	sectors map[uint32][]byte
}

func NewMemoryKeyValueStore() *MemoryKeyValueStore {
	return &MemoryKeyValueStore{sectors: make(map[uint32][]byte)}
}

func (m *MemoryKeyValueStore) TryGet(sector uint32) ([]byte, bool, error) {
	v, ok := m.sectors[sector]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryKeyValueStore) Set(sector uint32, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	m.sectors[sector] = v
	return nil
}

func (m *MemoryKeyValueStore) Close() error {
	return nil
}
