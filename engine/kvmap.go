package engine

import (
	"sync"

	"txnkv/compression"
)

// entry is what the KV Map actually stores: the (possibly compressed)
// bytes plus the tag needed to reverse the transform on read.
type entry struct {
	data []byte
	tag  string
}

// KVMap is the thread-safe mapping from key to current committed value.
// It is the only authoritative state in the engine; every read and write
// is linearizable with respect to other reads and writes, and it imposes
// no ordering across distinct keys.
type KVMap struct {
	mu    sync.Mutex
	items map[string]entry
	codec *compression.Codec
}

// NewKVMap creates an empty map. codec may be nil, in which case values
// are stored exactly as given.
func NewKVMap(codec *compression.Codec) *KVMap {
	return &KVMap{
		items: make(map[string]entry),
		codec: codec,
	}
}

// Read returns a copy of the committed value for key, or (nil, false) if
// the key is absent.
func (m *KVMap) Read(key string) ([]byte, bool) {
	m.mu.Lock()
	e, ok := m.items[key]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	if m.codec == nil || e.tag == "none" {
		out := make([]byte, len(e.data))
		copy(out, e.data)
		return out, true
	}
	out, err := m.codec.Decode(e.data, e.tag)
	if err != nil {
		// The only way a stored entry fails to decode is if it was written
		// under a different algorithm set than the one now configured; treat
		// it as a storage-level bug rather than silently losing data.
		panic("kvmap: corrupt entry for key " + key + ": " + err.Error())
	}
	return out, true
}

// Write inserts or replaces the value for key. It never fails within
// bounded capacity.
func (m *KVMap) Write(key string, value []byte) {
	var e entry
	if m.codec != nil {
		stored, tag, err := m.codec.Encode(value)
		if err != nil {
			// Compression failure degrades to storing the value uncompressed
			// rather than losing the write.
			e = entry{data: append([]byte(nil), value...), tag: "none"}
		} else {
			e = entry{data: stored, tag: tag}
		}
	} else {
		e = entry{data: append([]byte(nil), value...), tag: "none"}
	}

	m.mu.Lock()
	m.items[key] = e
	m.mu.Unlock()
}
