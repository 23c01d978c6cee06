package svm

import (
	"errors"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/anchorsvm/internal/types"
	"github.com/fortiblox/anchorsvm/pkg/svm/invoke"
)

// Compute unit cost constants.
const (
	CUDefault = uint64(200_000)   // Default CU limit per instruction
	CUMax     = uint64(1_400_000) // Max CU limit per transaction

	CUInvokeBase           = uint64(1_000) // Charged to the caller of a CPI
	CUProgramBase          = uint64(1_000) // Charged on entry to a registered program
	CUSystemProgramDefault = uint64(150)   // System program base
	CUComputeBudgetDefault = uint64(150)   // Compute budget base
)

// CPIDepthMax is the deepest invoke stack height, counting the top level.
const CPIDepthMax = 5

// ErrComputeExceeded is returned when compute units are exhausted.
var ErrComputeExceeded = errors.New("Computational budget exceeded")

// ComputeMeter tracks compute unit consumption for one transaction.
type ComputeMeter struct {
	remaining uint64
	consumed  uint64
	limit     uint64
}

// NewComputeMeter creates a new compute meter with the specified limit.
func NewComputeMeter(limit uint64) *ComputeMeter {
	if limit > CUMax {
		limit = CUMax
	}
	return &ComputeMeter{remaining: limit, limit: limit}
}

// Consume charges cost units. When fewer remain, the meter is drained and
// ErrComputeExceeded is returned.
func (cm *ComputeMeter) Consume(cost uint64) error {
	if cm.remaining < cost {
		cm.consumed += cm.remaining
		cm.remaining = 0
		return ErrComputeExceeded
	}
	cm.remaining -= cost
	cm.consumed += cost
	return nil
}

// Remaining returns the remaining compute units.
func (cm *ComputeMeter) Remaining() uint64 { return cm.remaining }

// Consumed returns the total consumed compute units.
func (cm *ComputeMeter) Consumed() uint64 { return cm.consumed }

// Limit returns the compute unit limit.
func (cm *ComputeMeter) Limit() uint64 { return cm.limit }

// Compute budget instruction discriminants.
const (
	computeBudgetRequestHeapFrame               = 1
	computeBudgetSetComputeUnitLimit            = 2
	computeBudgetSetComputeUnitPrice            = 3
	computeBudgetSetLoadedAccountsDataSizeLimit = 4
)

// ComputeBudgetLimits contains the parsed compute budget for a transaction.
type ComputeBudgetLimits struct {
	// ComputeUnitLimit is the maximum compute units for the transaction.
	ComputeUnitLimit uint64

	// ComputeUnitPrice is the price in micro-lamports per compute unit.
	ComputeUnitPrice uint64
}

// PrioritizationFee returns ceil(price * limit / 1_000_000) lamports.
func (l ComputeBudgetLimits) PrioritizationFee() uint64 {
	const microLamportsPerLamport = 1_000_000
	fee := l.ComputeUnitPrice * l.ComputeUnitLimit
	return (fee + microLamportsPerLamport - 1) / microLamportsPerLamport
}

// parseComputeBudget scans a message for compute budget instructions.
// Without an explicit limit, the limit is defaultLimit when non-zero,
// otherwise CUDefault per instruction that is not a compute budget
// instruction, capped at CUMax. A malformed compute budget instruction
// yields an InstructionError at its index.
func parseComputeBudget(msg *solana.Message, defaultLimit uint64) (ComputeBudgetLimits, error) {
	var (
		limits   ComputeBudgetLimits
		hasLimit bool
		counted  uint64
	)
	for i, ix := range msg.Instructions {
		if int(ix.ProgramIDIndex) >= len(msg.AccountKeys) {
			return limits, ErrSanitizeFailure
		}
		if msg.AccountKeys[ix.ProgramIDIndex] != types.ComputeBudgetProgramAddr {
			counted++
			continue
		}
		dec := bin.NewBinDecoder(ix.Data)
		tag, err := dec.ReadUint8()
		if err != nil {
			return limits, &InstructionError{Index: i, Err: invoke.ErrInvalidInstructionData}
		}
		switch tag {
		case computeBudgetSetComputeUnitLimit:
			units, err := dec.ReadUint32(bin.LE)
			if err != nil || hasLimit {
				return limits, &InstructionError{Index: i, Err: invoke.ErrInvalidInstructionData}
			}
			limits.ComputeUnitLimit = uint64(units)
			hasLimit = true
		case computeBudgetSetComputeUnitPrice:
			price, err := dec.ReadUint64(bin.LE)
			if err != nil {
				return limits, &InstructionError{Index: i, Err: invoke.ErrInvalidInstructionData}
			}
			limits.ComputeUnitPrice = price
		case computeBudgetRequestHeapFrame, computeBudgetSetLoadedAccountsDataSizeLimit:
			if _, err := dec.ReadUint32(bin.LE); err != nil {
				return limits, &InstructionError{Index: i, Err: invoke.ErrInvalidInstructionData}
			}
		default:
			return limits, &InstructionError{Index: i, Err: invoke.ErrInvalidInstructionData}
		}
	}

	if !hasLimit {
		if defaultLimit > 0 {
			limits.ComputeUnitLimit = defaultLimit
		} else {
			limits.ComputeUnitLimit = CUDefault * counted
		}
	}
	if limits.ComputeUnitLimit > CUMax {
		limits.ComputeUnitLimit = CUMax
	}
	return limits, nil
}
