// Package state provides the key-value persistence layer the engine runs
// its domain logic against: RLP-encoded values under keccak256-hashed keys,
// plus a height-indexed snapshot helper for historical reads.
package state

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"hydro/storage"
)

// Manager is the engine's storage façade. Every method holds an internal
// mutex for its duration, so single calls are serialized; a sequence of
// calls is not atomic as a whole.
type Manager struct {
	mu sync.Mutex
	db storage.Database
}

// NewManager constructs a Manager over the supplied backend.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	hash := crypto.Keccak256(key)
	return hash[:]
}

// KVPut RLP-encodes value and stores it under the keccak256 hash of key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet decodes the value stored under key into out. ok is false when the key
// is absent; err is non-nil only for genuine storage or decode failures.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.db.Get(kvKey(key))
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode: %w", err)
	}
	return true, nil
}

// KVHas reports whether key is present without decoding its value.
func (m *Manager) KVHas(key []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Has(kvKey(key))
}

// KVDelete removes the stored entry, if any, under key.
func (m *Manager) KVDelete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Delete(kvKey(key))
}

// stringList is the RLP wire shape behind KVAppend/KVGetList: a flat list of
// already-RLP-encoded elements, stored as one blob under the list key.
type stringList struct {
	Items [][]byte
}

// KVAppend appends value's RLP encoding to the list stored under key.
func (m *Manager) KVAppend(key []byte, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	encodedVal, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode append: %w", err)
	}
	var list stringList
	raw, err := m.db.Get(kvKey(key))
	if err != nil && err != storage.ErrNotFound {
		return err
	}
	if err == nil {
		if decErr := rlp.DecodeBytes(raw, &list); decErr != nil {
			return fmt.Errorf("state: decode list: %w", decErr)
		}
	}
	list.Items = append(list.Items, encodedVal)
	encodedList, err := rlp.EncodeToBytes(list)
	if err != nil {
		return fmt.Errorf("state: encode list: %w", err)
	}
	return m.db.Put(kvKey(key), encodedList)
}

// KVGetList invokes decodeOne for each raw RLP element of the list stored
// under key, in append order; an absent key yields no calls.
func (m *Manager) KVGetList(key []byte, decodeOne func(raw []byte) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.db.Get(kvKey(key))
	if err == storage.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	var list stringList
	if err := rlp.DecodeBytes(raw, &list); err != nil {
		return fmt.Errorf("state: decode list: %w", err)
	}
	for _, item := range list.Items {
		if err := decodeOne(item); err != nil {
			return err
		}
	}
	return nil
}

// heightIndex is the sorted list of heights at which a logical key has a
// snapshot, persisted alongside the snapshot values themselves.
type heightIndex struct {
	Heights []uint64
}

func snapshotIndexKey(logicalKey []byte) []byte {
	return append([]byte("snap-idx/"), logicalKey...)
}

func snapshotValueKey(logicalKey []byte, height uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	out := append([]byte("snap-val/"), logicalKey...)
	return append(out, buf...)
}

// SnapshotPut records value as the state of logicalKey as of height. Heights
// must be supplied non-decreasing per logical key; the engine enforces this
// by only ever snapshotting at the current block height.
func (m *Manager) SnapshotPut(logicalKey []byte, height uint64, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode snapshot: %w", err)
	}
	if err := m.db.Put(kvKey(snapshotValueKey(logicalKey, height)), encoded); err != nil {
		return err
	}

	var idx heightIndex
	raw, err := m.db.Get(kvKey(snapshotIndexKey(logicalKey)))
	if err != nil && err != storage.ErrNotFound {
		return err
	}
	if err == nil {
		if decErr := rlp.DecodeBytes(raw, &idx); decErr != nil {
			return fmt.Errorf("state: decode snapshot index: %w", decErr)
		}
	}
	if n := len(idx.Heights); n == 0 || idx.Heights[n-1] != height {
		idx.Heights = append(idx.Heights, height)
	}
	encodedIdx, err := rlp.EncodeToBytes(idx)
	if err != nil {
		return fmt.Errorf("state: encode snapshot index: %w", err)
	}
	return m.db.Put(kvKey(snapshotIndexKey(logicalKey)), encodedIdx)
}

// SnapshotGet decodes the snapshot of logicalKey in effect at height (the
// greatest recorded height <= height) into out. ok is false when no snapshot
// at or before height exists.
func (m *Manager) SnapshotGet(logicalKey []byte, height uint64, out interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.db.Get(kvKey(snapshotIndexKey(logicalKey)))
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var idx heightIndex
	if err := rlp.DecodeBytes(raw, &idx); err != nil {
		return false, fmt.Errorf("state: decode snapshot index: %w", err)
	}
	// Heights are appended in non-decreasing order; sort.Search finds the
	// first index whose height exceeds the target, so we step back one.
	i := sort.Search(len(idx.Heights), func(i int) bool { return idx.Heights[i] > height })
	if i == 0 {
		return false, nil
	}
	found := idx.Heights[i-1]
	valRaw, err := m.db.Get(kvKey(snapshotValueKey(logicalKey, found)))
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(valRaw, out); err != nil {
		return false, fmt.Errorf("state: decode snapshot: %w", err)
	}
	return true, nil
}
