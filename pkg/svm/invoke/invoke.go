// Package invoke defines the contract between the runtime and the programs
// it executes.
//
// A program receives a Context for one invocation. Accounts are exposed in
// the order the instruction lists them; programs mutate the returned
// AccountInfo values in place and the runtime verifies the changes when the
// invocation returns.
package invoke

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// AccountInfo holds account state during one program invocation.
type AccountInfo struct {
	Key        solana.PublicKey
	Owner      solana.PublicKey
	Lamports   uint64
	Data       []byte
	Executable bool
	RentEpoch  uint64
	IsSigner   bool
	IsWritable bool
}

// Context provides the runtime services available to an executing program.
type Context interface {
	// ProgramID returns the address of the executing program.
	ProgramID() solana.PublicKey

	// NumAccounts returns the number of accounts passed to the instruction.
	NumAccounts() int

	// GetAccount returns the account at the given instruction index.
	GetAccount(index int) (*AccountInfo, error)

	// GetRentMinimum returns the rent-exempt minimum for given data size.
	GetRentMinimum(dataLen uint64) uint64

	// ConsumeCU charges compute units against the transaction budget.
	ConsumeCU(units uint64) error

	// Log records a "Program log:" message.
	Log(msg string)

	// LogData records a "Program data:" line with base64 encoded fields.
	LogData(data ...[]byte)

	// Invoke performs a cross-program invocation. Each entry of signerSeeds
	// is the seed list of a program derived address owned by the calling
	// program; those addresses are treated as signers by the callee.
	Invoke(ix solana.Instruction, signerSeeds ...[][]byte) error
}

// Program executes instructions addressed to it.
type Program interface {
	Process(ctx Context, data []byte) error
}

// ProgramFunc adapts a function to the Program interface.
type ProgramFunc func(ctx Context, data []byte) error

// Process calls f(ctx, data).
func (f ProgramFunc) Process(ctx Context, data []byte) error {
	return f(ctx, data)
}

// CustomError is a program-defined error code.
type CustomError uint32

func (e CustomError) Error() string {
	return fmt.Sprintf("custom program error: 0x%x", uint32(e))
}
