// Package system implements the native System Program.
//
// The System Program creates accounts, transfers lamports, assigns account
// ownership and allocates account space. Instruction data uses the bincode
// layout: a u32 little-endian discriminant followed by the fields.
package system

import (
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/anchorsvm/internal/types"
	"github.com/fortiblox/anchorsvm/pkg/svm/invoke"
)

// ProgramID is the System Program address.
var ProgramID = types.SystemProgramAddr

// Instruction discriminants.
const (
	InstructionCreateAccount uint32 = iota
	InstructionAssign
	InstructionTransfer
	InstructionCreateAccountWithSeed
	InstructionAdvanceNonceAccount
	InstructionWithdrawNonceAccount
	InstructionInitializeNonceAccount
	InstructionAuthorizeNonceAccount
	InstructionAllocate
	InstructionAllocateWithSeed
	InstructionAssignWithSeed
	InstructionTransferWithSeed
)

// System program errors, reported as custom program errors.
const (
	ErrAccountAlreadyInUse        = invoke.CustomError(0)
	ErrResultWithNegativeLamports = invoke.CustomError(1)
	ErrInvalidProgramID           = invoke.CustomError(2)
	ErrInvalidAccountDataLength   = invoke.CustomError(3)
	ErrMaxSeedLengthExceeded      = invoke.CustomError(4)
	ErrAddressWithSeedMismatch    = invoke.CustomError(5)
)

// MaxPermittedDataLength is the largest space an account may be allocated.
const MaxPermittedDataLength = 10 * 1024 * 1024

// MaxSeedLen bounds seeds of seed-derived addresses.
const MaxSeedLen = 32

// Processor executes System Program instructions.
type Processor struct{}

// NewProcessor creates a new System Program processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process executes a System Program instruction.
func (p *Processor) Process(ctx invoke.Context, data []byte) error {
	dec := bin.NewBinDecoder(data)
	instruction, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return invoke.ErrInvalidInstructionData
	}

	switch instruction {
	case InstructionCreateAccount:
		return p.processCreateAccount(ctx, dec)
	case InstructionAssign:
		return p.processAssign(ctx, dec)
	case InstructionTransfer:
		return p.processTransfer(ctx, dec)
	case InstructionCreateAccountWithSeed:
		return p.processCreateAccountWithSeed(ctx, dec)
	case InstructionAllocate:
		return p.processAllocate(ctx, dec)
	default:
		return invoke.ErrInvalidInstructionData
	}
}

// processCreateAccount creates a new account.
// Accounts: [0] funding account (signer, writable), [1] new account (signer, writable).
func (p *Processor) processCreateAccount(ctx invoke.Context, dec *bin.Decoder) error {
	lamports, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return invoke.ErrInvalidInstructionData
	}
	space, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return invoke.ErrInvalidInstructionData
	}
	owner, err := readPubkey(dec)
	if err != nil {
		return err
	}

	funder, newAccount, err := twoAccounts(ctx)
	if err != nil {
		return err
	}
	return p.createAccount(ctx, funder, newAccount, newAccount.Key, lamports, space, owner)
}

// processCreateAccountWithSeed creates an account at an address derived
// from base + seed + owner.
// Accounts: [0] funding account, [1] created account, [2] base (optional).
func (p *Processor) processCreateAccountWithSeed(ctx invoke.Context, dec *bin.Decoder) error {
	base, err := readPubkey(dec)
	if err != nil {
		return err
	}
	seed, err := readSeed(dec)
	if err != nil {
		return err
	}
	lamports, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return invoke.ErrInvalidInstructionData
	}
	space, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return invoke.ErrInvalidInstructionData
	}
	owner, err := readPubkey(dec)
	if err != nil {
		return err
	}

	funder, newAccount, err := twoAccounts(ctx)
	if err != nil {
		return err
	}
	expected := CreateWithSeedAddress(base, seed, owner)
	if expected != newAccount.Key {
		ctx.Log(fmt.Sprintf("Create: address %s does not match derived address %s", newAccount.Key, expected))
		return ErrAddressWithSeedMismatch
	}

	// The base account signs instead of the derived address.
	baseSigned := false
	for i := 0; i < ctx.NumAccounts(); i++ {
		acct, _ := ctx.GetAccount(i)
		if acct.Key == base && acct.IsSigner {
			baseSigned = true
		}
	}
	if !baseSigned {
		ctx.Log(fmt.Sprintf("Create: base %s must sign", base))
		return invoke.ErrMissingRequiredSignature
	}
	return p.createAccount(ctx, funder, newAccount, base, lamports, space, owner)
}

func (p *Processor) createAccount(ctx invoke.Context, funder, newAccount *invoke.AccountInfo, signer solana.PublicKey, lamports, space uint64, owner solana.PublicKey) error {
	if !funder.IsSigner {
		ctx.Log(fmt.Sprintf("Transfer: `from` account %s must sign", funder.Key))
		return invoke.ErrMissingRequiredSignature
	}
	if signer == newAccount.Key && !newAccount.IsSigner {
		ctx.Log(fmt.Sprintf("Create: `to` account %s must sign", newAccount.Key))
		return invoke.ErrMissingRequiredSignature
	}

	// The target must be unused: system owned, empty and unfunded.
	if newAccount.Owner != ProgramID || len(newAccount.Data) > 0 || newAccount.Lamports > 0 {
		ctx.Log(fmt.Sprintf("Create Account: account Address { address: %s, base: None } already in use", newAccount.Key))
		return ErrAccountAlreadyInUse
	}
	if space > MaxPermittedDataLength {
		return ErrInvalidAccountDataLength
	}
	if lamports < ctx.GetRentMinimum(space) {
		return invoke.ErrAccountNotRentExempt
	}
	if funder.Lamports < lamports {
		ctx.Log(fmt.Sprintf("Transfer: insufficient lamports %d, need %d", funder.Lamports, lamports))
		return ErrResultWithNegativeLamports
	}

	newAccount.Data = make([]byte, space)
	newAccount.Owner = owner
	funder.Lamports -= lamports
	newAccount.Lamports += lamports
	return nil
}

// processAssign changes the owner of an account.
// Accounts: [0] assigned account (signer, writable).
func (p *Processor) processAssign(ctx invoke.Context, dec *bin.Decoder) error {
	owner, err := readPubkey(dec)
	if err != nil {
		return err
	}
	account, err := ctx.GetAccount(0)
	if err != nil {
		return invoke.ErrNotEnoughAccountKeys
	}
	if account.Owner == owner {
		return nil
	}
	if !account.IsSigner {
		ctx.Log(fmt.Sprintf("Assign: account %s must sign", account.Key))
		return invoke.ErrMissingRequiredSignature
	}
	if account.Owner != ProgramID {
		return invoke.ErrInvalidAccountOwner
	}
	account.Owner = owner
	return nil
}

// processTransfer transfers lamports between accounts.
// Accounts: [0] from (signer, writable), [1] to (writable).
func (p *Processor) processTransfer(ctx invoke.Context, dec *bin.Decoder) error {
	lamports, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return invoke.ErrInvalidInstructionData
	}

	from, to, err := twoAccounts(ctx)
	if err != nil {
		return err
	}
	if !from.IsSigner {
		ctx.Log(fmt.Sprintf("Transfer: `from` account %s must sign", from.Key))
		return invoke.ErrMissingRequiredSignature
	}
	if len(from.Data) > 0 {
		ctx.Log("Transfer: `from` must not carry data")
		return invoke.ErrInvalidArgument
	}
	if from.Lamports < lamports {
		ctx.Log(fmt.Sprintf("Transfer: insufficient lamports %d, need %d", from.Lamports, lamports))
		return ErrResultWithNegativeLamports
	}
	if to.Lamports > ^uint64(0)-lamports {
		return invoke.ErrArithmeticOverflow
	}

	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}

// processAllocate allocates space in an account.
// Accounts: [0] allocated account (signer, writable).
func (p *Processor) processAllocate(ctx invoke.Context, dec *bin.Decoder) error {
	space, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return invoke.ErrInvalidInstructionData
	}
	account, err := ctx.GetAccount(0)
	if err != nil {
		return invoke.ErrNotEnoughAccountKeys
	}
	if !account.IsSigner {
		ctx.Log(fmt.Sprintf("Allocate: 'to' account %s must sign", account.Key))
		return invoke.ErrMissingRequiredSignature
	}
	if len(account.Data) > 0 || account.Owner != ProgramID {
		ctx.Log(fmt.Sprintf("Allocate: account %s already in use", account.Key))
		return ErrAccountAlreadyInUse
	}
	if space > MaxPermittedDataLength {
		return ErrInvalidAccountDataLength
	}
	account.Data = make([]byte, space)
	return nil
}

func twoAccounts(ctx invoke.Context) (*invoke.AccountInfo, *invoke.AccountInfo, error) {
	first, err := ctx.GetAccount(0)
	if err != nil {
		return nil, nil, invoke.ErrNotEnoughAccountKeys
	}
	second, err := ctx.GetAccount(1)
	if err != nil {
		return nil, nil, invoke.ErrNotEnoughAccountKeys
	}
	if !first.IsWritable || !second.IsWritable {
		return nil, nil, invoke.ErrInvalidArgument
	}
	return first, second, nil
}

func readPubkey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, invoke.ErrInvalidInstructionData
	}
	return solana.PublicKeyFromBytes(raw), nil
}

// readSeed reads a bincode string: u64 length followed by UTF-8 bytes.
func readSeed(dec *bin.Decoder) (string, error) {
	n, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return "", invoke.ErrInvalidInstructionData
	}
	if n > MaxSeedLen {
		return "", ErrMaxSeedLengthExceeded
	}
	raw, err := dec.ReadNBytes(int(n))
	if err != nil {
		return "", invoke.ErrInvalidInstructionData
	}
	return string(raw), nil
}

// CreateWithSeedAddress derives an address from base + seed + owner:
// SHA256(base || seed || owner)
func CreateWithSeedAddress(base solana.PublicKey, seed string, owner solana.PublicKey) solana.PublicKey {
	h := sha256.New()
	h.Write(base[:])
	h.Write([]byte(seed))
	h.Write(owner[:])
	return solana.PublicKeyFromBytes(h.Sum(nil))
}
