package anchor

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrorKind classifies a TransactionError.
type ErrorKind int

const (
	// KindBuild marks caller mistakes detected before submission.
	KindBuild ErrorKind = iota + 1

	// KindExecutionFailed marks transactions the environment rejected or
	// reverted.
	KindExecutionFailed
)

// Sentinels matched with errors.Is against a *TransactionError.
var (
	ErrBuild           = errors.New("transaction build error")
	ErrExecutionFailed = errors.New("transaction execution failed")
)

// Build error causes.
var (
	ErrNoInstructionData = errors.New("no instruction data provided, call Args before Build")
	ErrNoSigners         = errors.New("no signers provided")
	ErrAlreadyBuilt      = errors.New("instruction already built")
	ErrDuplicateAccount  = errors.New("duplicate account name")
)

// TransactionError is returned by every submission path.
type TransactionError struct {
	Kind ErrorKind
	Err  error

	// Logs holds the program logs of a transaction that reached execution.
	Logs []string
}

func buildError(err error) *TransactionError {
	return &TransactionError{Kind: KindBuild, Err: err}
}

func (e *TransactionError) Error() string {
	switch e.Kind {
	case KindBuild:
		return "Transaction build error: " + e.Err.Error()
	case KindExecutionFailed:
		return "Transaction execution failed: " + e.Err.Error()
	default:
		return e.Err.Error()
	}
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *TransactionError) Unwrap() []error {
	switch e.Kind {
	case KindBuild:
		return []error{ErrBuild, e.Err}
	case KindExecutionFailed:
		return []error{ErrExecutionFailed, e.Err}
	default:
		return []error{e.Err}
	}
}

// Account decoding errors.
var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrDiscriminatorMismatch = errors.New("account discriminator mismatch")
	ErrDeserializationFailed = errors.New("account deserialization failed")
)

// AccountError reports a failure to read typed account state.
type AccountError struct {
	// Address is zero when decoding raw bytes.
	Address solana.PublicKey
	Err     error
}

func (e *AccountError) Error() string {
	if e.Address.IsZero() {
		return e.Err.Error()
	}
	return fmt.Sprintf("account %s: %v", e.Address, e.Err)
}

func (e *AccountError) Unwrap() error { return e.Err }
