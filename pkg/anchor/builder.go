package anchor

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/anchorsvm/internal/types"
)

// Well-known account names used by the builder helpers.
const (
	AccountSystemProgram          = "system_program"
	AccountTokenProgram           = "token_program"
	AccountAssociatedTokenProgram = "associated_token_program"
	AccountRent                   = "rent"
)

// Instruction is a built Anchor instruction. It is immutable and implements
// solana.Instruction.
type Instruction struct {
	programID solana.PublicKey
	name      string
	accounts  []solana.AccountMeta
	data      []byte
}

// ProgramID returns the target program.
func (ix *Instruction) ProgramID() solana.PublicKey { return ix.programID }

// Name returns the instruction name the selector was derived from.
func (ix *Instruction) Name() string { return ix.name }

// Accounts returns copies of the account metas in program order.
func (ix *Instruction) Accounts() []*solana.AccountMeta {
	out := make([]*solana.AccountMeta, len(ix.accounts))
	for i := range ix.accounts {
		meta := ix.accounts[i]
		out[i] = &meta
	}
	return out
}

// Data returns a copy of the selector followed by the encoded arguments.
func (ix *Instruction) Data() ([]byte, error) {
	return append([]byte(nil), ix.data...), nil
}

var _ solana.Instruction = (*Instruction)(nil)

type namedAccount struct {
	name string
	meta solana.AccountMeta
}

// InstructionBuilder assembles an Anchor instruction from named accounts
// and typed arguments. Accounts keep insertion order, which is the order
// the program expects. Methods chain; the first error is kept and returned
// by Build.
type InstructionBuilder struct {
	programID solana.PublicKey
	name      string

	accounts []namedAccount
	index    map[string]int
	shadowed []string
	strict   bool

	data  []byte
	err   error
	built bool
}

// NewInstructionBuilder starts an instruction named name for programID.
func NewInstructionBuilder(programID solana.PublicKey, name string) *InstructionBuilder {
	return &InstructionBuilder{
		programID: programID,
		name:      name,
		index:     make(map[string]int),
	}
}

// Strict makes a repeated account name an error instead of shadowing the
// earlier entry.
func (b *InstructionBuilder) Strict() *InstructionBuilder {
	b.strict = true
	return b
}

// Account appends a read-only, non-signer account.
func (b *InstructionBuilder) Account(name string, address solana.PublicKey) *InstructionBuilder {
	return b.add(name, address, false, false)
}

// AccountMut appends a writable, non-signer account.
func (b *InstructionBuilder) AccountMut(name string, address solana.PublicKey) *InstructionBuilder {
	return b.add(name, address, true, false)
}

// Signer appends a writable signer.
func (b *InstructionBuilder) Signer(name string, address solana.PublicKey) *InstructionBuilder {
	return b.add(name, address, true, true)
}

// SignerReadonly appends a read-only signer.
func (b *InstructionBuilder) SignerReadonly(name string, address solana.PublicKey) *InstructionBuilder {
	return b.add(name, address, false, true)
}

// SystemProgram appends the system program as "system_program".
func (b *InstructionBuilder) SystemProgram() *InstructionBuilder {
	return b.Account(AccountSystemProgram, types.SystemProgramAddr)
}

// TokenProgram appends the SPL Token program as "token_program".
func (b *InstructionBuilder) TokenProgram() *InstructionBuilder {
	return b.Account(AccountTokenProgram, types.TokenProgramAddr)
}

// AssociatedTokenProgram appends the associated token account program as
// "associated_token_program".
func (b *InstructionBuilder) AssociatedTokenProgram() *InstructionBuilder {
	return b.Account(AccountAssociatedTokenProgram, types.AssociatedTokenProgramAddr)
}

// RentSysvar appends the rent sysvar as "rent".
func (b *InstructionBuilder) RentSysvar() *InstructionBuilder {
	return b.Account(AccountRent, types.SysvarRentAddr)
}

func (b *InstructionBuilder) add(name string, address solana.PublicKey, writable, signer bool) *InstructionBuilder {
	if _, dup := b.index[name]; dup {
		if b.strict {
			b.fail(fmt.Errorf("%w %q", ErrDuplicateAccount, name))
			return b
		}
		b.shadowed = append(b.shadowed, name)
	}
	b.index[name] = len(b.accounts)
	b.accounts = append(b.accounts, namedAccount{
		name: name,
		meta: solana.AccountMeta{PublicKey: address, IsWritable: writable, IsSigner: signer},
	})
	return b
}

// Args sets the instruction data to the selector followed by the encoded
// v. A later call replaces the data.
func (b *InstructionBuilder) Args(v bin.BinaryMarshaler) *InstructionBuilder {
	encoded, err := EncodeArgs(v)
	if err != nil {
		b.fail(fmt.Errorf("encode %s args: %w", b.name, err))
		return b
	}
	disc := InstructionDiscriminator(b.name)
	b.data = append(disc[:], encoded...)
	return b
}

func (b *InstructionBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build returns the instruction. It fails when Args was never called or
// the builder was already built.
func (b *InstructionBuilder) Build() (*Instruction, error) {
	switch {
	case b.built:
		return nil, buildError(ErrAlreadyBuilt)
	case b.err != nil:
		return nil, buildError(b.err)
	case len(b.data) == 0:
		return nil, buildError(ErrNoInstructionData)
	}
	b.built = true
	return &Instruction{
		programID: b.programID,
		name:      b.name,
		accounts:  b.Accounts(),
		data:      append([]byte(nil), b.data...),
	}, nil
}

// Name returns the instruction name.
func (b *InstructionBuilder) Name() string { return b.name }

// GetAccount returns the most recent account added under name.
func (b *InstructionBuilder) GetAccount(name string) (solana.AccountMeta, bool) {
	i, ok := b.index[name]
	if !ok {
		return solana.AccountMeta{}, false
	}
	return b.accounts[i].meta, true
}

// Accounts returns the account metas in insertion order.
func (b *InstructionBuilder) Accounts() []solana.AccountMeta {
	out := make([]solana.AccountMeta, len(b.accounts))
	for i, a := range b.accounts {
		out[i] = a.meta
	}
	return out
}

// ShadowedNames lists names that were added more than once, in the order
// the repeats happened.
func (b *InstructionBuilder) ShadowedNames() []string {
	return append([]string(nil), b.shadowed...)
}

// Execute builds the instruction and submits it in its own transaction.
// The first signer pays the fee.
func (b *InstructionBuilder) Execute(ctx *Context, signers ...solana.PrivateKey) (*TransactionResult, error) {
	ix, err := b.Build()
	if err != nil {
		return nil, err
	}
	return ctx.send([]solana.Instruction{ix}, signers, b.name)
}

// BuildAnchorInstruction builds an instruction from an ordered account
// list in one call.
func BuildAnchorInstruction(programID solana.PublicKey, name string, metas []*solana.AccountMeta, args bin.BinaryMarshaler) (*Instruction, error) {
	b := NewInstructionBuilder(programID, name)
	for i, m := range metas {
		b.add(fmt.Sprintf("account_%d", i), m.PublicKey, m.IsWritable, m.IsSigner)
	}
	return b.Args(args).Build()
}
