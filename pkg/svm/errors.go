package svm

import (
	"errors"
	"fmt"
)

// Transaction-level errors. Messages match the runtime's wording so test
// assertions written against a real validator keep working.
var (
	ErrAccountNotFound         = errors.New("Attempt to debit an account but found no record of a prior credit.")
	ErrInsufficientFundsForFee = errors.New("Insufficient funds for fee")
	ErrInvalidAccountForFee    = errors.New("This account may not be used to pay transaction fees")
	ErrAlreadyProcessed        = errors.New("This transaction has already been processed")
	ErrBlockhashNotFound       = errors.New("Blockhash not found")
	ErrSignatureFailure        = errors.New("Transaction did not pass signature verification")
	ErrSanitizeFailure         = errors.New("Transaction failed to sanitize accounts offsets correctly")
	ErrProgramAccountNotFound  = errors.New("Attempt to load a program that does not exist")
	ErrTransactionNotFound     = errors.New("transaction not found")
)

// Instruction errors raised by the runtime itself while verifying a
// program's account changes.
var (
	ErrReadonlyLamportChange       = errors.New("instruction changed the balance of a read-only account")
	ErrReadonlyDataModified        = errors.New("instruction modified data of a read-only account")
	ErrExternalAccountLamportSpend = errors.New("instruction spent from the balance of an account it does not own")
	ErrExternalAccountDataModified = errors.New("instruction modified data of an account it does not own")
	ErrModifiedProgramID           = errors.New("instruction illegally modified the program id of an account")
	ErrExecutableModified          = errors.New("instruction changed executable bit of an account")
	ErrUnbalancedInstruction       = errors.New("sum of account balances before and after instruction do not match")
	ErrCallDepth                   = errors.New("Cross-program invocation call depth too deep")
	ErrPrivilegeEscalation         = errors.New("Cross-program invocation with unauthorized signer or writable account")
	ErrMissingAccount              = errors.New("An account required by the instruction is missing")
	ErrUnsupportedProgramID        = errors.New("Unsupported program id")
	ErrReentrancyNotAllowed        = errors.New("Cross-program invocation reentrancy not allowed for this instruction")
)

// InstructionError reports which instruction of a transaction failed.
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("Error processing Instruction %d: %v", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error { return e.Err }

// FailedTransactionError is returned for transactions that were executed
// and failed. The fee was charged and Meta holds the execution logs.
type FailedTransactionError struct {
	Meta *TransactionMetadata
	Err  error
}

func (e *FailedTransactionError) Error() string {
	return e.Err.Error()
}

func (e *FailedTransactionError) Unwrap() error { return e.Err }
