package anchor

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/fortiblox/anchorsvm/pkg/accounts"
	"github.com/fortiblox/anchorsvm/pkg/svm"
)

// Environment is the simulated ledger a Context drives. *svm.SVM
// implements it.
type Environment interface {
	// SendTransaction executes tx atomically.
	SendTransaction(tx *solana.Transaction) (*svm.TransactionMetadata, error)

	GetAccount(address solana.PublicKey) (*accounts.Account, error)
	SetAccount(address solana.PublicKey, account *accounts.Account) error
	Airdrop(address solana.PublicKey, lamports uint64) error
	GetBalance(address solana.PublicKey) uint64
	MinimumBalanceForRentExemption(dataLen uint64) uint64

	// LatestBlockhash returns the blockhash new transactions must use.
	LatestBlockhash() solana.Hash

	// FindProgramAddress derives the canonical program address and bump.
	FindProgramAddress(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, uint8, error)
}

var _ Environment = (*svm.SVM)(nil)

// ComputeUnitsExtractor reads the compute units a transaction consumed from
// its logs. It reports false when the logs carry no figure.
type ComputeUnitsExtractor func(logs []string) (uint64, bool)

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger used for submissions.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Context) {
		c.logger = logger
	}
}

// WithComputeUnitsExtractor replaces ExtractComputeUnits for results
// produced by the context.
func WithComputeUnitsExtractor(fn ComputeUnitsExtractor) Option {
	return func(c *Context) {
		c.extractCU = fn
	}
}

// Context ties an environment to the Anchor program under test. It is not
// safe for concurrent use.
type Context struct {
	env       Environment
	programID solana.PublicKey
	logger    zerolog.Logger
	extractCU ComputeUnitsExtractor
}

// NewContext creates a context for programID on env.
func NewContext(env Environment, programID solana.PublicKey, opts ...Option) *Context {
	c := &Context{
		env:       env,
		programID: programID,
		logger:    zerolog.Nop(),
		extractCU: ExtractComputeUnits,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().
		Str("component", "anchor").
		Stringer("program", programID).
		Logger()
	return c
}

// ProgramID returns the program under test.
func (c *Context) ProgramID() solana.PublicKey { return c.programID }

// SVM returns the underlying environment.
func (c *Context) SVM() Environment { return c.env }

// InstructionBuilder starts an instruction for the program under test.
func (c *Context) InstructionBuilder(name string) *InstructionBuilder {
	return NewInstructionBuilder(c.programID, name)
}

// BuildInstruction builds an instruction for the program under test from
// an ordered account list.
func (c *Context) BuildInstruction(name string, metas []*solana.AccountMeta, args bin.BinaryMarshaler) (*Instruction, error) {
	return BuildAnchorInstruction(c.programID, name, metas, args)
}

// FindPDA derives a program address of the program under test.
func (c *Context) FindPDA(seeds ...[]byte) (solana.PublicKey, uint8, error) {
	return c.env.FindProgramAddress(seeds, c.programID)
}

// FindPDAFor derives a program address of programID.
func (c *Context) FindPDAFor(programID solana.PublicKey, seeds ...[]byte) (solana.PublicKey, uint8, error) {
	return c.env.FindProgramAddress(seeds, programID)
}

func (c *Context) Airdrop(address solana.PublicKey, lamports uint64) error {
	return c.env.Airdrop(address, lamports)
}

func (c *Context) GetBalance(address solana.PublicKey) uint64 {
	return c.env.GetBalance(address)
}

func (c *Context) GetAccount(address solana.PublicKey) (*accounts.Account, error) {
	return c.env.GetAccount(address)
}

func (c *Context) SetAccount(address solana.PublicKey, account *accounts.Account) error {
	return c.env.SetAccount(address, account)
}

func (c *Context) LatestBlockhash() solana.Hash {
	return c.env.LatestBlockhash()
}

func (c *Context) MinimumBalanceForRentExemption(dataLen uint64) uint64 {
	return c.env.MinimumBalanceForRentExemption(dataLen)
}
