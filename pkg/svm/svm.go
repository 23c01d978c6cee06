// Package svm implements an in-process Solana virtual machine for tests.
//
// The SVM owns a ledger (accounts.DB), a recent-blockhash queue and a
// transaction history, and executes signed transactions against registered
// programs. Programs are Go values implementing invoke.Program; the native
// System Program is always registered.
//
// Transaction processing follows the validator pipeline:
//   - sanitize the message
//   - check the blockhash is recent and the signatures verify
//   - reject signatures that were already processed
//   - charge the fee from the payer
//   - run every instruction against one compute meter
//   - commit all writable accounts on success, only the fee on failure
package svm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"github.com/fortiblox/anchorsvm/internal/types"
	"github.com/fortiblox/anchorsvm/pkg/accounts"
	"github.com/fortiblox/anchorsvm/pkg/svm/invoke"
	"github.com/fortiblox/anchorsvm/pkg/svm/programs/system"
)

// MaxRecentBlockhashes is how many blockhashes stay valid for new transactions.
const MaxRecentBlockhashes = 150

// sysvarOwner owns the sysvar accounts.
var sysvarOwner = solana.MustPublicKeyFromBase58("Sysvar1111111111111111111111111111111111111")

// SVM is an in-process Solana virtual machine.
type SVM struct {
	cfg     Config
	logger  zerolog.Logger
	db      accounts.DB
	history History

	programs    map[solana.PublicKey]invoke.Program
	blockhashes []solana.Hash // oldest first

	closers []io.Closer
}

// Option configures an SVM.
type Option func(*SVM)

// WithLogger sets the runtime logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *SVM) {
		s.logger = logger
	}
}

// WithAccountsDB supplies the ledger instead of building one from Config.
// The caller keeps ownership of db.
func WithAccountsDB(db accounts.DB) Option {
	return func(s *SVM) {
		s.db = db
	}
}

// WithHistory supplies the transaction history store. The caller keeps
// ownership of h.
func WithHistory(h History) Option {
	return func(s *SVM) {
		s.history = h
	}
}

// New creates an SVM with the system program, the compute budget program
// and the rent and clock sysvars installed.
func New(cfg Config, opts ...Option) (*SVM, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &SVM{
		cfg:      cfg,
		logger:   zerolog.Nop(),
		programs: make(map[solana.PublicKey]invoke.Program),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.LogLevel != "" {
		level, _ := zerolog.ParseLevel(cfg.LogLevel)
		s.logger = s.logger.Level(level)
	}
	s.logger = s.logger.With().Str("component", "svm").Logger()

	if s.db == nil {
		db, err := openAccountsDB(cfg.Storage)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.closers = append(s.closers, db)
	}
	if s.history == nil {
		if cfg.History.Path == "" {
			s.history = NewMemoryHistory()
		} else {
			h, err := OpenBoltHistory(cfg.History.Path)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.history = h
			s.closers = append(s.closers, h)
		}
	}

	s.blockhashes = []solana.Hash{genesisBlockhash()}

	if err := s.installBuiltin(types.SystemProgramAddr, system.NewProcessor()); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.installBuiltin(types.ComputeBudgetProgramAddr, invoke.ProgramFunc(processComputeBudget)); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.writeSysvars(); err != nil {
		s.Close()
		return nil, err
	}

	s.logger.Debug().
		Str("storage", cfg.Storage.Backend).
		Bool("sig_verify", cfg.SigVerify).
		Msg("svm initialized")
	return s, nil
}

func openAccountsDB(cfg StorageConfig) (accounts.DB, error) {
	switch cfg.Backend {
	case StorageBadger:
		db, err := accounts.NewBadgerDB(accounts.DefaultBadgerDBConfig(cfg.Path))
		if err != nil {
			return nil, fmt.Errorf("open accounts db: %w", err)
		}
		return db, nil
	default:
		return accounts.NewMemoryDB(), nil
	}
}

func genesisBlockhash() solana.Hash {
	return blake3.Sum256([]byte("anchorsvm genesis"))
}

// processComputeBudget runs compute budget instructions; their effect is
// applied before execution starts.
func processComputeBudget(invoke.Context, []byte) error { return nil }

func (s *SVM) installBuiltin(id solana.PublicKey, p invoke.Program) error {
	s.programs[id] = p
	return s.db.SetAccount(id, &accounts.Account{
		Lamports:   1,
		Data:       []byte(id.String()),
		Owner:      types.NativeLoaderAddr,
		Executable: true,
	})
}

// AddProgram registers p under id and creates its executable account.
// Registering an existing id replaces the program.
func (s *SVM) AddProgram(id solana.PublicKey, p invoke.Program) error {
	if types.IsBuiltinProgram(id) {
		return fmt.Errorf("%w: %s is a builtin", ErrUnsupportedProgramID, id)
	}
	s.programs[id] = p
	err := s.db.SetAccount(id, &accounts.Account{
		Lamports:   max(1, s.MinimumBalanceForRentExemption(0)),
		Owner:      types.BPFLoaderUpgradeableAddr,
		Executable: true,
	})
	if err != nil {
		return err
	}
	s.logger.Debug().Stringer("program", id).Msg("program registered")
	return nil
}

// GetAccount returns the account at address or accounts.ErrAccountNotFound.
func (s *SVM) GetAccount(address solana.PublicKey) (*accounts.Account, error) {
	return s.db.GetAccount(address)
}

// SetAccount overwrites the account at address.
func (s *SVM) SetAccount(address solana.PublicKey, account *accounts.Account) error {
	return s.db.SetAccount(address, account)
}

// GetBalance returns the lamports held at address, zero if it doesn't exist.
func (s *SVM) GetBalance(address solana.PublicKey) uint64 {
	acc, err := s.db.GetAccount(address)
	if err != nil {
		return 0
	}
	return acc.Lamports
}

// Airdrop credits lamports to address, creating a system account if needed.
func (s *SVM) Airdrop(address solana.PublicKey, lamports uint64) error {
	acc, err := s.db.GetAccount(address)
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound):
		acc = &accounts.Account{Owner: types.SystemProgramAddr}
	case err != nil:
		return err
	}
	if acc.Lamports > math.MaxUint64-lamports {
		return invoke.ErrArithmeticOverflow
	}
	acc.Lamports += lamports
	if err := s.db.SetAccount(address, acc); err != nil {
		return err
	}
	s.logger.Debug().Stringer("address", address).Uint64("lamports", lamports).Msg("airdrop")
	return nil
}

// MinimumBalanceForRentExemption returns the rent-exempt minimum for an
// account holding dataLen bytes.
func (s *SVM) MinimumBalanceForRentExemption(dataLen uint64) uint64 {
	const accountStorageOverhead = 128
	return (accountStorageOverhead + dataLen) * s.cfg.LamportsPerByteYear * s.cfg.ExemptionThreshold
}

// LatestBlockhash returns the newest blockhash.
func (s *SVM) LatestBlockhash() solana.Hash {
	return s.blockhashes[len(s.blockhashes)-1]
}

// ExpireBlockhash appends a new blockhash derived from the latest one, so
// identical transactions signed afterwards get fresh signatures.
func (s *SVM) ExpireBlockhash() {
	prev := s.LatestBlockhash()
	var slot [8]byte
	binary.LittleEndian.PutUint64(slot[:], s.db.GetSlot())
	h := blake3.New()
	h.Write(prev[:])
	h.Write(slot[:])
	var next solana.Hash
	copy(next[:], h.Sum(nil))

	s.blockhashes = append(s.blockhashes, next)
	if len(s.blockhashes) > MaxRecentBlockhashes {
		s.blockhashes = s.blockhashes[len(s.blockhashes)-MaxRecentBlockhashes:]
	}
}

func (s *SVM) isRecentBlockhash(h solana.Hash) bool {
	for _, b := range s.blockhashes {
		if b == h {
			return true
		}
	}
	return false
}

// Slot returns the current slot.
func (s *SVM) Slot() uint64 {
	return s.db.GetSlot()
}

// WarpToSlot moves the clock to slot.
func (s *SVM) WarpToSlot(slot uint64) error {
	if err := s.db.SetSlot(slot); err != nil {
		return err
	}
	return s.writeSysvars()
}

// FindProgramAddress derives the canonical PDA for seeds under programID.
func (s *SVM) FindProgramAddress(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return FindProgramAddress(seeds, programID)
}

func (s *SVM) CreateProgramAddress(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, error) {
	return CreateProgramAddress(seeds, programID)
}

// GetTransaction returns the metadata of an executed transaction.
func (s *SVM) GetTransaction(sig solana.Signature) (*TransactionMetadata, error) {
	return s.history.Get(sig)
}

// StateHash fingerprints the ledger.
func (s *SVM) StateHash() (solana.Hash, error) {
	return accounts.ComputeAccountsHash(s.db)
}

// Snapshot writes the ledger to w.
func (s *SVM) Snapshot(w io.Writer) error {
	header, err := accounts.WriteSnapshot(w, s.db)
	if err != nil {
		return err
	}
	s.logger.Debug().
		Uint64("slot", header.Slot).
		Uint64("accounts", header.AccountsCount).
		Stringer("hash", header.AccountsHash).
		Msg("snapshot written")
	return nil
}

// Restore replaces the ledger with a snapshot read from r.
func (s *SVM) Restore(r io.Reader) error {
	header, err := accounts.ReadSnapshot(r, s.db)
	if err != nil {
		return err
	}
	s.logger.Debug().
		Uint64("slot", header.Slot).
		Uint64("accounts", header.AccountsCount).
		Msg("snapshot restored")
	return nil
}

// Close releases the stores the SVM opened itself.
func (s *SVM) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// writeSysvars stores the rent and clock sysvars.
func (s *SVM) writeSysvars() error {
	// Rent: lamports_per_byte_year u64, exemption_threshold f64, burn_percent u8
	rent := make([]byte, 17)
	binary.LittleEndian.PutUint64(rent[0:], s.cfg.LamportsPerByteYear)
	binary.LittleEndian.PutUint64(rent[8:], math.Float64bits(float64(s.cfg.ExemptionThreshold)))
	rent[16] = 50

	// Clock: slot, epoch_start_timestamp, epoch, leader_schedule_epoch, unix_timestamp
	clock := make([]byte, 40)
	binary.LittleEndian.PutUint64(clock[0:], s.db.GetSlot())

	return s.db.SetAccounts([]accounts.Entry{
		{Pubkey: types.SysvarRentAddr, Account: s.sysvarAccount(rent)},
		{Pubkey: types.SysvarClockAddr, Account: s.sysvarAccount(clock)},
	})
}

func (s *SVM) sysvarAccount(data []byte) *accounts.Account {
	return &accounts.Account{
		Lamports: max(1, s.MinimumBalanceForRentExemption(uint64(len(data)))),
		Data:     data,
		Owner:    sysvarOwner,
	}
}
