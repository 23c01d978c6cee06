package svm

import (
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// PDA constants.
const (
	MaxSeeds   = 16
	MaxSeedLen = 32
)

// pdaMarker is appended to every program address hash input.
var pdaMarker = []byte("ProgramDerivedAddress")

// PDA errors.
var (
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrMaxSeedsExceeded      = errors.New("max seeds exceeded")
	ErrInvalidSeeds          = errors.New("invalid seeds, address must fall off the curve")
	ErrNoViableBump          = errors.New("unable to find a viable program address bump seed")
)

// CreateProgramAddress derives a program address from seeds and a program ID:
// SHA256(seeds... || programID || "ProgramDerivedAddress").
// Returns ErrInvalidSeeds if the digest is a valid ed25519 point.
func CreateProgramAddress(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return solana.PublicKey{}, ErrMaxSeedsExceeded
	}
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return solana.PublicKey{}, ErrMaxSeedLengthExceeded
		}
	}

	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write(pdaMarker)
	hash := h.Sum(nil)

	if isOnCurve(hash) {
		return solana.PublicKey{}, ErrInvalidSeeds
	}
	return solana.PublicKeyFromBytes(hash), nil
}

// FindProgramAddress finds a valid PDA by iterating bump seeds from 255 to 0.
func FindProgramAddress(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	if len(seeds) > MaxSeeds-1 {
		return solana.PublicKey{}, 0, ErrMaxSeedsExceeded
	}
	seedsWithBump := make([][]byte, len(seeds)+1)
	copy(seedsWithBump, seeds)

	for bump := 255; bump >= 0; bump-- {
		seedsWithBump[len(seeds)] = []byte{uint8(bump)}
		pda, err := CreateProgramAddress(seedsWithBump, programID)
		if err == nil {
			return pda, uint8(bump), nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return solana.PublicKey{}, 0, err
		}
	}
	return solana.PublicKey{}, 0, ErrNoViableBump
}

var (
	// fieldPrime is p = 2^255 - 19.
	fieldPrime = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(19))

	// curveD is d = -121665/121666 (mod p).
	curveD = func() *big.Int {
		d := new(big.Int).Mul(big.NewInt(-121665), new(big.Int).ModInverse(big.NewInt(121666), fieldPrime))
		return d.Mod(d, fieldPrime)
	}()

	// legendreExp is (p-1)/2.
	legendreExp = new(big.Int).Rsh(new(big.Int).Sub(fieldPrime, big.NewInt(1)), 1)
)

// isOnCurve reports whether the 32 bytes decompress to a point on the
// twisted Edwards curve -x^2 + y^2 = 1 + d*x^2*y^2.
//
// The encoding stores y little-endian with the sign of x in the top bit, so
// the point exists iff x^2 = (y^2 - 1) / (d*y^2 + 1) is a square mod p.
func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}

	yBytes := make([]byte, 32)
	for i := 0; i < 32; i++ {
		yBytes[31-i] = point[i]
	}
	yBytes[0] &= 0x7F
	y := new(big.Int).SetBytes(yBytes)
	y.Mod(y, fieldPrime)

	y2 := new(big.Int).Mul(y, y)
	y2.Mod(y2, fieldPrime)

	num := new(big.Int).Sub(y2, big.NewInt(1))
	num.Mod(num, fieldPrime)

	den := new(big.Int).Mul(curveD, y2)
	den.Add(den, big.NewInt(1))
	den.Mod(den, fieldPrime)

	denInv := new(big.Int).ModInverse(den, fieldPrime)
	if denInv == nil {
		return false
	}
	x2 := new(big.Int).Mul(num, denInv)
	x2.Mod(x2, fieldPrime)

	if x2.Sign() == 0 {
		return true
	}
	return new(big.Int).Exp(x2, legendreExp, fieldPrime).Cmp(big.NewInt(1)) == 0
}
