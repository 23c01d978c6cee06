// Package types provides well-known program and sysvar addresses shared by
// the harness and the simulated runtime.
package types

import (
	"github.com/gagliardetto/solana-go"
)

// Native program addresses.
var (
	// SystemProgramAddr is the System Program address.
	SystemProgramAddr = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	// ComputeBudgetProgramAddr is the Compute Budget Program address.
	ComputeBudgetProgramAddr = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

	// NativeLoaderAddr owns every builtin program account.
	NativeLoaderAddr = solana.MustPublicKeyFromBase58("NativeLoader1111111111111111111111111111111")

	// BPFLoaderUpgradeableAddr owns user programs registered with the runtime.
	BPFLoaderUpgradeableAddr = solana.MustPublicKeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")
)

// SPL program addresses referenced by Anchor account conventions.
var (
	// TokenProgramAddr is the SPL Token Program address.
	TokenProgramAddr = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// AssociatedTokenProgramAddr is the SPL Associated Token Account Program address.
	AssociatedTokenProgramAddr = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// Sysvar addresses.
var (
	// SysvarClockAddr is the Clock sysvar address.
	SysvarClockAddr = solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111")

	// SysvarRentAddr is the Rent sysvar address.
	SysvarRentAddr = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")

	// SysvarInstructionsAddr is the Instructions sysvar address.
	SysvarInstructionsAddr = solana.MustPublicKeyFromBase58("Sysvar1nstructions1111111111111111111111111")
)

// IsBuiltinProgram reports whether p is executed natively by the runtime.
// Builtins do not report compute consumption in their logs.
func IsBuiltinProgram(p solana.PublicKey) bool {
	switch p {
	case SystemProgramAddr,
		ComputeBudgetProgramAddr,
		NativeLoaderAddr,
		BPFLoaderUpgradeableAddr:
		return true
	default:
		return false
	}
}

// IsSysvar returns true if the pubkey is a sysvar.
func IsSysvar(p solana.PublicKey) bool {
	switch p {
	case SysvarClockAddr,
		SysvarRentAddr,
		SysvarInstructionsAddr:
		return true
	default:
		return false
	}
}
