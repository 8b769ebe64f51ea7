// Package engine implements an in-memory key-value map guarded by strict
// two-phase locking at key-slot granularity, with online deadlock
// detection and a youngest-victim policy.
package engine

import (
	"time"

	"txnkv/compression"
)

const (
	DefaultNSlots           = 128
	DefaultMaxTxns          = 32
	DefaultMaxWrites        = 64
	DefaultKeyLen           = 64
	DefaultWaitPollInterval = 200 * time.Millisecond
)

// Config carries the compile-time-or-startup tunables of the engine.
type Config struct {
	NSlots           int
	MaxTxns          int
	MaxWrites        int
	KeyLen           int
	WaitPollInterval time.Duration
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		NSlots:           DefaultNSlots,
		MaxTxns:          DefaultMaxTxns,
		MaxWrites:        DefaultMaxWrites,
		KeyLen:           DefaultKeyLen,
		WaitPollInterval: DefaultWaitPollInterval,
	}
}

// Engine bundles every component of the transactional core behind a
// single value, rather than package-level globals — the server layer
// instantiates exactly one Engine and shares it by reference.
type Engine struct {
	cfg      Config
	kv       *KVMap
	locks    *LockTable
	graph    *WaitForGraph
	detector *Detector
	txns     *TxnManager
}

// New builds an Engine. codec may be nil to store values uncompressed.
func New(cfg Config, codec *compression.Codec) *Engine {
	if cfg.NSlots <= 0 {
		cfg.NSlots = DefaultNSlots
	}
	if cfg.MaxTxns <= 0 {
		cfg.MaxTxns = DefaultMaxTxns
	}
	if cfg.MaxWrites <= 0 {
		cfg.MaxWrites = DefaultMaxWrites
	}
	if cfg.KeyLen <= 0 {
		cfg.KeyLen = DefaultKeyLen
	}
	if cfg.WaitPollInterval <= 0 {
		cfg.WaitPollInterval = DefaultWaitPollInterval
	}

	txns := NewTxnManager(cfg.MaxTxns)
	e := &Engine{
		cfg:   cfg,
		kv:    NewKVMap(codec),
		locks: NewLockTable(cfg.NSlots),
		graph: NewWaitForGraph(),
		txns:  txns,
	}
	e.detector = NewDetector(YoungestTransaction, txns.lookup)
	return e
}

// Begin starts a new transaction, returning *Error{Kind: KindOverload} if
// the slot table is exhausted.
func (e *Engine) Begin() (*Transaction, error) {
	return e.txns.Begin()
}

func (e *Engine) validateKey(key string) error {
	if len(key) == 0 || len(key) > e.cfg.KeyLen {
		return newError(KindInvalid, "key length %d outside bounds (1..%d)", len(key), e.cfg.KeyLen)
	}
	return nil
}

// Get consults the write-set first for read-your-writes, then acquires
// the key's slot lock and reads the committed value.
func (e *Engine) Get(txn *Transaction, key string) ([]byte, error) {
	if txn.isAborted() {
		return nil, newError(KindAborted, "transaction %d is aborted", txn.id)
	}
	if err := e.validateKey(key); err != nil {
		return nil, err
	}

	if v, ok := txn.lookupWrite(key); ok {
		return v, nil
	}

	if e.locks.acquire(txn, key, e.graph, e.detector, e.cfg.WaitPollInterval) == abortedWaiting {
		return nil, newError(KindAborted, "transaction %d aborted while waiting for %q", txn.id, key)
	}

	v, ok := e.kv.Read(key)
	if !ok {
		return nil, newError(KindNotFound, "key %q not found", key)
	}
	return v, nil
}

// Put acquires the key's slot lock and buffers the write; it does not
// touch the KV Map until commit.
func (e *Engine) Put(txn *Transaction, key string, value []byte) error {
	if txn.isAborted() {
		return newError(KindAborted, "transaction %d is aborted", txn.id)
	}
	if err := e.validateKey(key); err != nil {
		return err
	}

	if e.locks.acquire(txn, key, e.graph, e.detector, e.cfg.WaitPollInterval) == abortedWaiting {
		return newError(KindAborted, "transaction %d aborted while waiting for %q", txn.id, key)
	}

	txn.mu.Lock()
	txn.writeSet = append(txn.writeSet, writeEntry{key: key, value: append([]byte(nil), value...)})
	full := len(txn.writeSet) > e.cfg.MaxWrites
	txn.mu.Unlock()

	if full {
		txn.markAborted()
		return newError(KindWritesetFull, "transaction %d write-set exceeds %d entries", txn.id, e.cfg.MaxWrites)
	}
	return nil
}

// releaseAll drops every lock txn holds and clears incoming wait-edges to
// it, broadcasting each slot so waiters re-check their own state.
func (e *Engine) releaseAll(txn *Transaction) {
	txn.mu.Lock()
	held := txn.heldLocks
	txn.heldLocks = nil
	txn.mu.Unlock()

	for _, lock := range held {
		lock.release(txn.id)
	}
	e.graph.ClearIncoming(txn.id)
}

// Commit flushes the buffered write-set to the KV Map, then releases
// every held lock. Flushing strictly before release
// is what makes commit atomic with respect to other transactions — any
// conflicting reader/writer is still blocked on the same slot locks and
// cannot observe a partial write-set.
func (e *Engine) Commit(txn *Transaction) error {
	defer e.txns.free(txn)

	if txn.isAborted() {
		e.releaseAll(txn)
		return newError(KindAborted, "transaction %d was aborted before commit", txn.id)
	}

	txn.mu.Lock()
	writes := txn.writeSet
	txn.mu.Unlock()

	for _, w := range writes {
		e.kv.Write(w.key, w.value)
	}

	e.graph.ClearOutgoing(txn.id)
	e.releaseAll(txn)
	return nil
}

// Abort is idempotent: it discards the write-set without flushing and
// releases every held lock.
func (e *Engine) Abort(txn *Transaction) {
	txn.markAborted()
	e.graph.ClearOutgoing(txn.id)
	e.releaseAll(txn)
	e.txns.free(txn)
}
