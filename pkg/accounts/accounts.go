// Package accounts implements the ledger state behind the simulated runtime.
//
// The ledger stores only the current state of every account, keyed by
// address. Two backends implement DB:
//   - MemoryDB, a map-backed store used by default in tests
//   - BadgerDB, a Badger-backed store that can run on disk or in memory
//
// State fingerprints (ComputeAccountsHash) and snapshots (WriteSnapshot /
// ReadSnapshot) work over any DB through IterateAccounts, which always
// visits accounts in ascending address order.
package accounts

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	// ErrAccountNotFound is returned when an account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrCorrupted is returned when data corruption is detected.
	ErrCorrupted = errors.New("data corrupted")

	// ErrClosed is returned when operating on a closed database.
	ErrClosed = errors.New("database closed")

	// ErrInvalidData is returned when account data is malformed.
	ErrInvalidData = errors.New("invalid account data")
)

// MaxAccountDataSize is the largest data buffer an account may hold.
const MaxAccountDataSize = 10 * 1024 * 1024

// Account represents a single account in the state.
type Account struct {
	// Lamports is the account balance in lamports (1 SOL = 1e9 lamports).
	Lamports uint64

	// Data is the account data.
	Data []byte

	// Owner is the program that owns this account.
	// Only the owner program can modify the account data or debit it.
	Owner solana.PublicKey

	// Executable indicates if this is a program account.
	Executable bool

	// RentEpoch is the epoch at which rent was last collected.
	RentEpoch uint64
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	dataCopy := make([]byte, len(a.Data))
	copy(dataCopy, a.Data)
	return &Account{
		Lamports:   a.Lamports,
		Data:       dataCopy,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	}
}

// IsZero returns true if the account has no lamports and no data.
// Zero accounts are deleted from storage.
func (a *Account) IsZero() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// Equal reports whether two accounts hold identical state.
func (a *Account) Equal(o *Account) bool {
	if a == nil || o == nil {
		return a == o
	}
	return a.Lamports == o.Lamports &&
		a.Owner == o.Owner &&
		a.Executable == o.Executable &&
		a.RentEpoch == o.RentEpoch &&
		bytes.Equal(a.Data, o.Data)
}

// Size returns the total serialized size of the account.
func (a *Account) Size() int {
	// 8 (lamports) + 8 (data_len) + data + 32 (owner) + 1 (executable) + 8 (rent_epoch)
	return 8 + 8 + len(a.Data) + 32 + 1 + 8
}

// MarshalWithEncoder writes the storage layout:
// lamports (8) + data_len (8) + data + owner (32) + executable (1) + rent_epoch (8)
func (a Account) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(a.Lamports, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint64(uint64(len(a.Data)), bin.LE); err != nil {
		return err
	}
	if err := enc.WriteBytes(a.Data, false); err != nil {
		return err
	}
	if err := enc.WriteBytes(a.Owner[:], false); err != nil {
		return err
	}
	if err := enc.WriteBool(a.Executable); err != nil {
		return err
	}
	return enc.WriteUint64(a.RentEpoch, bin.LE)
}

// UnmarshalWithDecoder reads the layout written by MarshalWithEncoder.
func (a *Account) UnmarshalWithDecoder(dec *bin.Decoder) error {
	var err error
	if a.Lamports, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	dataLen, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	if dataLen > MaxAccountDataSize || dataLen+41 > uint64(dec.Remaining()) {
		return ErrInvalidData
	}
	data, err := dec.ReadNBytes(int(dataLen))
	if err != nil {
		return err
	}
	a.Data = append([]byte(nil), data...)
	owner, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	a.Owner = solana.PublicKeyFromBytes(owner)
	flag, err := dec.ReadUint8()
	if err != nil {
		return err
	}
	a.Executable = flag != 0
	a.RentEpoch, err = dec.ReadUint64(bin.LE)
	return err
}

// Serialize encodes the account to bytes for storage.
func (a *Account) Serialize() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, a.Size()))
	// Writes to a bytes.Buffer cannot fail.
	_ = a.MarshalWithEncoder(bin.NewBinEncoder(buf))
	return buf.Bytes()
}

// DeserializeAccount decodes an account from bytes.
func DeserializeAccount(data []byte) (*Account, error) {
	if len(data) < 57 { // Minimum: 8 + 8 + 0 + 32 + 1 + 8
		return nil, ErrInvalidData
	}
	acc := new(Account)
	if err := acc.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		if errors.Is(err, ErrInvalidData) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return acc, nil
}

// Entry pairs an address with its account.
type Entry struct {
	Pubkey  solana.PublicKey
	Account *Account
}

// DB is the accounts database interface.
// Implementations must be safe for concurrent read access.
type DB interface {
	// GetAccount retrieves an account by public key.
	// Returns ErrAccountNotFound if the account doesn't exist.
	GetAccount(pubkey solana.PublicKey) (*Account, error)

	// SetAccount stores an account.
	// If the account is zero (no lamports and no data), it will be deleted.
	SetAccount(pubkey solana.PublicKey, account *Account) error

	// SetAccounts stores a set of accounts atomically.
	SetAccounts(entries []Entry) error

	// DeleteAccount removes an account.
	// Returns nil if the account doesn't exist.
	DeleteAccount(pubkey solana.PublicKey) error

	// HasAccount checks if an account exists.
	HasAccount(pubkey solana.PublicKey) (bool, error)

	// IterateAccounts visits every account in ascending address order.
	// Returning an error from fn stops iteration.
	IterateAccounts(fn func(pubkey solana.PublicKey, account *Account) error) error

	// Reset removes every account.
	Reset() error

	// GetSlot returns the current slot.
	GetSlot() uint64

	// SetSlot updates the current slot.
	SetSlot(slot uint64) error

	// AccountsCount returns the total number of accounts.
	AccountsCount() (uint64, error)

	// Close closes the database.
	Close() error
}

// MemoryDB is an in-memory implementation of DB.
type MemoryDB struct {
	accounts map[solana.PublicKey]*Account
	slot     uint64
	closed   bool
}

// NewMemoryDB creates a new in-memory accounts database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts: make(map[solana.PublicKey]*Account),
	}
}

// GetAccount retrieves an account.
func (m *MemoryDB) GetAccount(pubkey solana.PublicKey) (*Account, error) {
	if m.closed {
		return nil, ErrClosed
	}
	acc, ok := m.accounts[pubkey]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

// SetAccount stores an account.
func (m *MemoryDB) SetAccount(pubkey solana.PublicKey, account *Account) error {
	if m.closed {
		return ErrClosed
	}
	if account.IsZero() {
		delete(m.accounts, pubkey)
		return nil
	}
	m.accounts[pubkey] = account.Clone()
	return nil
}

// SetAccounts stores every entry.
func (m *MemoryDB) SetAccounts(entries []Entry) error {
	if m.closed {
		return ErrClosed
	}
	for _, e := range entries {
		if err := m.SetAccount(e.Pubkey, e.Account); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAccount removes an account.
func (m *MemoryDB) DeleteAccount(pubkey solana.PublicKey) error {
	if m.closed {
		return ErrClosed
	}
	delete(m.accounts, pubkey)
	return nil
}

// HasAccount checks if an account exists.
func (m *MemoryDB) HasAccount(pubkey solana.PublicKey) (bool, error) {
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.accounts[pubkey]
	return ok, nil
}

// IterateAccounts visits accounts sorted by address.
func (m *MemoryDB) IterateAccounts(fn func(pubkey solana.PublicKey, account *Account) error) error {
	if m.closed {
		return ErrClosed
	}
	keys := make([]solana.PublicKey, 0, len(m.accounts))
	for k := range m.accounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
	for _, k := range keys {
		if err := fn(k, m.accounts[k].Clone()); err != nil {
			return err
		}
	}
	return nil
}

// Reset removes every account.
func (m *MemoryDB) Reset() error {
	if m.closed {
		return ErrClosed
	}
	m.accounts = make(map[solana.PublicKey]*Account)
	return nil
}

// GetSlot returns the current slot.
func (m *MemoryDB) GetSlot() uint64 {
	return m.slot
}

// SetSlot updates the current slot.
func (m *MemoryDB) SetSlot(slot uint64) error {
	if m.closed {
		return ErrClosed
	}
	m.slot = slot
	return nil
}

// AccountsCount returns the number of accounts.
func (m *MemoryDB) AccountsCount() (uint64, error) {
	if m.closed {
		return 0, ErrClosed
	}
	return uint64(len(m.accounts)), nil
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	m.closed = true
	m.accounts = nil
	return nil
}

var _ DB = (*MemoryDB)(nil)
