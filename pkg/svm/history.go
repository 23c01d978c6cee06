package svm

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	bolt "go.etcd.io/bbolt"
)

// TransactionMetadata describes an executed transaction.
type TransactionMetadata struct {
	Signature            solana.Signature
	Slot                 uint64
	Fee                  uint64
	ComputeUnitsConsumed uint64
	Logs                 []string

	// Err is the failure description, empty on success.
	Err string
}

// Succeeded reports whether the transaction executed without error.
func (m *TransactionMetadata) Succeeded() bool {
	return m.Err == ""
}

// MarshalWithEncoder writes the metadata in Borsh layout.
func (m TransactionMetadata) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteBytes(m.Signature[:], false); err != nil {
		return err
	}
	for _, v := range []uint64{m.Slot, m.Fee, m.ComputeUnitsConsumed} {
		if err := enc.WriteUint64(v, bin.LE); err != nil {
			return err
		}
	}
	if err := enc.WriteUint32(uint32(len(m.Logs)), bin.LE); err != nil {
		return err
	}
	for _, line := range m.Logs {
		if err := enc.WriteString(line); err != nil {
			return err
		}
	}
	return enc.WriteString(m.Err)
}

// UnmarshalWithDecoder reads the layout written by MarshalWithEncoder.
func (m *TransactionMetadata) UnmarshalWithDecoder(dec *bin.Decoder) error {
	sig, err := dec.ReadNBytes(len(m.Signature))
	if err != nil {
		return err
	}
	copy(m.Signature[:], sig)
	for _, dst := range []*uint64{&m.Slot, &m.Fee, &m.ComputeUnitsConsumed} {
		if *dst, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
	}
	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	if int(n) > dec.Remaining() {
		return fmt.Errorf("log count %d exceeds remaining bytes", n)
	}
	m.Logs = make([]string, n)
	for i := range m.Logs {
		if m.Logs[i], err = dec.ReadString(); err != nil {
			return err
		}
	}
	m.Err, err = dec.ReadString()
	return err
}

// History records executed transactions by their first signature.
type History interface {
	// Record stores the metadata of an executed transaction.
	Record(meta *TransactionMetadata) error

	// Get returns a recorded transaction or ErrTransactionNotFound.
	Get(sig solana.Signature) (*TransactionMetadata, error)

	// Contains reports whether a signature was recorded.
	Contains(sig solana.Signature) (bool, error)

	// Close releases the store.
	Close() error
}

// MemoryHistory is an in-memory History.
type MemoryHistory struct {
	mu  sync.RWMutex
	txs map[solana.Signature]*TransactionMetadata
}

// NewMemoryHistory creates an empty in-memory history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{txs: make(map[solana.Signature]*TransactionMetadata)}
}

// Record stores the metadata.
func (h *MemoryHistory) Record(meta *TransactionMetadata) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := *meta
	cp.Logs = append([]string(nil), meta.Logs...)
	h.txs[meta.Signature] = &cp
	return nil
}

// Get returns a recorded transaction.
func (h *MemoryHistory) Get(sig solana.Signature) (*TransactionMetadata, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	meta, ok := h.txs[sig]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *meta
	cp.Logs = append([]string(nil), meta.Logs...)
	return &cp, nil
}

// Contains reports whether sig was recorded.
func (h *MemoryHistory) Contains(sig solana.Signature) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.txs[sig]
	return ok, nil
}

// Close is a no-op.
func (h *MemoryHistory) Close() error { return nil }

// bucketTxBySignature holds Borsh encoded metadata keyed by signature.
var bucketTxBySignature = []byte("tx_by_sig")

// BoltHistory persists transaction history in a bbolt file.
type BoltHistory struct {
	db *bolt.DB
}

// OpenBoltHistory creates or opens a history database at path.
func OpenBoltHistory(path string) (*BoltHistory, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTxBySignature)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", bucketTxBySignature, err)
	}
	return &BoltHistory{db: db}, nil
}

// Record stores the metadata.
func (h *BoltHistory) Record(meta *TransactionMetadata) error {
	var buf bytes.Buffer
	if err := meta.MarshalWithEncoder(bin.NewBorshEncoder(&buf)); err != nil {
		return fmt.Errorf("encode transaction %s: %w", meta.Signature, err)
	}
	return h.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTxBySignature).Put(meta.Signature[:], buf.Bytes())
	})
}

// Get returns a recorded transaction.
func (h *BoltHistory) Get(sig solana.Signature) (*TransactionMetadata, error) {
	var meta TransactionMetadata
	err := h.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTxBySignature).Get(sig[:])
		if data == nil {
			return ErrTransactionNotFound
		}
		return meta.UnmarshalWithDecoder(bin.NewBorshDecoder(data))
	})
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("decode transaction %s: %w", sig, err)
	}
	return &meta, nil
}

// Contains reports whether sig was recorded.
func (h *BoltHistory) Contains(sig solana.Signature) (bool, error) {
	var found bool
	err := h.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketTxBySignature).Get(sig[:]) != nil
		return nil
	})
	return found, err
}

// Close closes the database.
func (h *BoltHistory) Close() error {
	return h.db.Close()
}

var (
	_ History = (*MemoryHistory)(nil)
	_ History = (*BoltHistory)(nil)
)
