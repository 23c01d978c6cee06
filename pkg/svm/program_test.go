package svm

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	solsystem "github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/anchorsvm/internal/types"
	"github.com/fortiblox/anchorsvm/pkg/svm/invoke"
)

// Vault program operations.
const (
	opInitVault byte = iota
	opInitVaultUnsigned
	opWriteForeignData
	opBurnCompute
	opCreditReadonly
	opMintLamports
	opEmitEvent
)

var vaultData = []byte{1, 2, 3, 4, 5, 6, 7, 8}

func vaultProgram(ctx invoke.Context, data []byte) error {
	if len(data) == 0 {
		return invoke.ErrInvalidInstructionData
	}
	switch data[0] {
	case opInitVault, opInitVaultUnsigned:
		payer, err := ctx.GetAccount(0)
		if err != nil {
			return err
		}
		vault, err := ctx.GetAccount(1)
		if err != nil {
			return err
		}
		seeds := [][]byte{[]byte("vault"), payer.Key[:]}
		addr, bump, err := FindProgramAddress(seeds, ctx.ProgramID())
		if err != nil {
			return err
		}
		if addr != vault.Key {
			return invoke.ErrInvalidSeeds
		}
		create := solsystem.NewCreateAccountInstruction(
			ctx.GetRentMinimum(uint64(len(vaultData))), uint64(len(vaultData)),
			ctx.ProgramID(), payer.Key, vault.Key,
		).Build()
		var signerSeeds [][][]byte
		if data[0] == opInitVault {
			signerSeeds = append(signerSeeds, append(seeds, []byte{bump}))
		}
		if err := ctx.Invoke(create, signerSeeds...); err != nil {
			return err
		}
		copy(vault.Data, vaultData)
		ctx.Log("vault ready")
		return nil

	case opWriteForeignData:
		acc, err := ctx.GetAccount(0)
		if err != nil {
			return err
		}
		acc.Data = append(acc.Data, 1)
		return nil

	case opBurnCompute:
		return ctx.ConsumeCU(10_000)

	case opCreditReadonly, opMintLamports:
		acc, err := ctx.GetAccount(0)
		if err != nil {
			return err
		}
		acc.Lamports++
		return nil

	case opEmitEvent:
		ctx.LogData([]byte("event"), []byte{0xff})
		return nil
	}
	return invoke.ErrInvalidInstructionData
}

func newVaultSVM(t *testing.T) (*SVM, solana.PublicKey) {
	t.Helper()
	s := newTestSVM(t)
	programID := solana.NewWallet().PublicKey()
	require.NoError(t, s.AddProgram(programID, invoke.ProgramFunc(vaultProgram)))
	return s, programID
}

func vaultAddress(t *testing.T, payer, programID solana.PublicKey) solana.PublicKey {
	t.Helper()
	addr, _, err := FindProgramAddress([][]byte{[]byte("vault"), payer[:]}, programID)
	require.NoError(t, err)
	return addr
}

func initVaultIx(op byte, programID, payer, vault solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(types.SystemProgramAddr, false, false),
	}, []byte{op})
}

func TestInvokeWithProgramSigner(t *testing.T) {
	s, programID := newVaultSVM(t)
	payer := fundedKey(t, s, sol)
	vault := vaultAddress(t, payer.PublicKey(), programID)

	meta, err := s.SendTransaction(buildTx(t, s, []solana.PrivateKey{payer},
		initVaultIx(opInitVault, programID, payer.PublicKey(), vault)))
	require.NoError(t, err)

	rent := s.MinimumBalanceForRentExemption(uint64(len(vaultData)))
	acc, err := s.GetAccount(vault)
	require.NoError(t, err)
	assert.Equal(t, programID, acc.Owner)
	assert.Equal(t, vaultData, acc.Data)
	assert.Equal(t, rent, acc.Lamports)
	assert.Equal(t, sol-5000-rent, s.GetBalance(payer.PublicKey()))

	assert.Equal(t, []string{
		fmt.Sprintf("Program %s invoke [1]", programID),
		"Program 11111111111111111111111111111111 invoke [2]",
		"Program 11111111111111111111111111111111 success",
		"Program log: vault ready",
		fmt.Sprintf("Program %s consumed 2150 of 200000 compute units", programID),
		fmt.Sprintf("Program %s success", programID),
	}, meta.Logs)
	assert.Equal(t, uint64(2150), meta.ComputeUnitsConsumed)

	// The vault exists now, a second init must fail inside the system program.
	s.ExpireBlockhash()
	_, err = s.SendTransaction(buildTx(t, s, []solana.PrivateKey{payer},
		initVaultIx(opInitVault, programID, payer.PublicKey(), vault)))
	var failed *FailedTransactionError
	require.ErrorAs(t, err, &failed)
	assert.Contains(t, failed.Meta.Logs[2], "already in use")
}

func TestInvokeRejectsForgedSigner(t *testing.T) {
	s, programID := newVaultSVM(t)
	payer := fundedKey(t, s, sol)
	vault := vaultAddress(t, payer.PublicKey(), programID)

	_, err := s.SendTransaction(buildTx(t, s, []solana.PrivateKey{payer},
		initVaultIx(opInitVaultUnsigned, programID, payer.PublicKey(), vault)))
	assert.ErrorIs(t, err, ErrPrivilegeEscalation)

	var failed *FailedTransactionError
	require.ErrorAs(t, err, &failed)
	assert.Contains(t, failed.Meta.Logs, vault.String()+"'s signer privilege escalated")
	assert.Zero(t, s.GetBalance(vault))
}

func TestAccountModificationRules(t *testing.T) {
	s, programID := newVaultSVM(t)
	payer := fundedKey(t, s, sol)
	other := fundedKey(t, s, sol)

	tests := []struct {
		name     string
		op       byte
		writable bool
		want     error
	}{
		{"foreign data", opWriteForeignData, true, ErrExternalAccountDataModified},
		{"readonly lamports", opCreditReadonly, false, ErrReadonlyLamportChange},
		{"unbalanced", opMintLamports, true, ErrUnbalancedInstruction},
		{"unknown op", 0xee, true, invoke.ErrInvalidInstructionData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix := solana.NewInstruction(programID, solana.AccountMetaSlice{
				solana.NewAccountMeta(other.PublicKey(), tt.writable, false),
			}, []byte{tt.op})
			before := s.GetBalance(payer.PublicKey())

			_, err := s.SendTransaction(buildTx(t, s, []solana.PrivateKey{payer}, ix))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, uint64(sol), s.GetBalance(other.PublicKey()))
			assert.Equal(t, before-5000, s.GetBalance(payer.PublicKey()))
		})
	}
}

func TestComputeBudgetLimit(t *testing.T) {
	s, programID := newVaultSVM(t)
	payer := fundedKey(t, s, sol)

	limit := make([]byte, 5)
	limit[0] = 2
	binary.LittleEndian.PutUint32(limit[1:], 5000)
	budget := solana.NewInstruction(types.ComputeBudgetProgramAddr, nil, limit)
	burn := solana.NewInstruction(programID, nil, []byte{opBurnCompute})

	_, err := s.SendTransaction(buildTx(t, s, []solana.PrivateKey{payer}, budget, burn))
	assert.ErrorIs(t, err, ErrComputeExceeded)
	var ixErr *InstructionError
	require.ErrorAs(t, err, &ixErr)
	assert.Equal(t, 1, ixErr.Index)

	// Without the limit the same instruction fits the default budget.
	meta, err := s.SendTransaction(buildTx(t, s, []solana.PrivateKey{payer}, burn))
	require.NoError(t, err)
	assert.Equal(t, uint64(11_000), meta.ComputeUnitsConsumed)
}

func TestProgramData(t *testing.T) {
	s, programID := newVaultSVM(t)
	payer := fundedKey(t, s, sol)

	meta, err := s.SendTransaction(buildTx(t, s, []solana.PrivateKey{payer},
		solana.NewInstruction(programID, nil, []byte{opEmitEvent})))
	require.NoError(t, err)
	assert.Contains(t, meta.Logs, "Program data: ZXZlbnQ= /w==")
}
