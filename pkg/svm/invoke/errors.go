package invoke

import "errors"

// Instruction errors a program may return.
var (
	ErrInvalidInstructionData   = errors.New("invalid instruction data")
	ErrInvalidArgument          = errors.New("invalid program argument")
	ErrInvalidAccountData       = errors.New("invalid account data for instruction")
	ErrNotEnoughAccountKeys     = errors.New("insufficient account keys for instruction")
	ErrMissingRequiredSignature = errors.New("missing required signature for instruction")
	ErrInsufficientFunds        = errors.New("insufficient funds for instruction")
	ErrIncorrectProgramID       = errors.New("incorrect program id for instruction")
	ErrInvalidAccountOwner      = errors.New("Invalid account owner")
	ErrAccountNotRentExempt     = errors.New("An account does not have enough lamports to be rent-exempt")
	ErrAccountDataTooSmall      = errors.New("account data too small for instruction")
	ErrArithmeticOverflow       = errors.New("Program arithmetic overflowed")
	ErrInvalidSeeds             = errors.New("Provided seeds do not result in a valid address")
)
