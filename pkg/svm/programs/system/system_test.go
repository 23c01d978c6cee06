package system

import (
	"bytes"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	solsystem "github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/anchorsvm/pkg/svm/invoke"
)

type fakeContext struct {
	accounts []*invoke.AccountInfo
	logs     []string
}

func (c *fakeContext) ProgramID() solana.PublicKey { return ProgramID }
func (c *fakeContext) NumAccounts() int            { return len(c.accounts) }

func (c *fakeContext) GetAccount(i int) (*invoke.AccountInfo, error) {
	if i >= len(c.accounts) {
		return nil, invoke.ErrNotEnoughAccountKeys
	}
	return c.accounts[i], nil
}

func (c *fakeContext) GetRentMinimum(dataLen uint64) uint64 { return (128 + dataLen) * 6960 }
func (c *fakeContext) ConsumeCU(uint64) error               { return nil }
func (c *fakeContext) Log(msg string)                       { c.logs = append(c.logs, msg) }
func (c *fakeContext) LogData(...[]byte)                    {}

func (c *fakeContext) Invoke(solana.Instruction, ...[][]byte) error {
	return invoke.ErrIncorrectProgramID
}

func wallet(lamports uint64, signer bool) *invoke.AccountInfo {
	return &invoke.AccountInfo{
		Key:        solana.NewWallet().PublicKey(),
		Owner:      ProgramID,
		Lamports:   lamports,
		IsSigner:   signer,
		IsWritable: true,
	}
}

func instructionData(t *testing.T, ix solana.Instruction) []byte {
	t.Helper()
	data, err := ix.Data()
	require.NoError(t, err)
	return data
}

func TestTransfer(t *testing.T) {
	from, to := wallet(1000, true), wallet(0, false)
	ctx := &fakeContext{accounts: []*invoke.AccountInfo{from, to}}

	data := instructionData(t, solsystem.NewTransferInstruction(400, from.Key, to.Key).Build())
	require.NoError(t, NewProcessor().Process(ctx, data))
	assert.Equal(t, uint64(600), from.Lamports)
	assert.Equal(t, uint64(400), to.Lamports)

	err := NewProcessor().Process(ctx, instructionData(t, solsystem.NewTransferInstruction(601, from.Key, to.Key).Build()))
	assert.ErrorIs(t, err, ErrResultWithNegativeLamports)
	assert.Equal(t, []string{"Transfer: insufficient lamports 600, need 601"}, ctx.logs)

	from.IsSigner = false
	err = NewProcessor().Process(ctx, data)
	assert.ErrorIs(t, err, invoke.ErrMissingRequiredSignature)
}

func TestCreateAccount(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	rent := (128 + uint64(16)) * 6960

	tests := []struct {
		name     string
		lamports uint64
		prepare  func(funder, created *invoke.AccountInfo)
		want     error
	}{
		{"ok", rent, nil, nil},
		{"below rent", rent - 1, nil, invoke.ErrAccountNotRentExempt},
		{"in use", rent, func(_, created *invoke.AccountInfo) { created.Lamports = 1 }, ErrAccountAlreadyInUse},
		{"unsigned", rent, func(_, created *invoke.AccountInfo) { created.IsSigner = false }, invoke.ErrMissingRequiredSignature},
		{"readonly", rent, func(funder, _ *invoke.AccountInfo) { funder.IsWritable = false }, invoke.ErrInvalidArgument},
		{"poor funder", rent, func(funder, _ *invoke.AccountInfo) { funder.Lamports = 10 }, ErrResultWithNegativeLamports},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			funder, created := wallet(10*rent, true), wallet(0, true)
			if tt.prepare != nil {
				tt.prepare(funder, created)
			}
			ctx := &fakeContext{accounts: []*invoke.AccountInfo{funder, created}}
			data := instructionData(t, solsystem.NewCreateAccountInstruction(tt.lamports, 16, owner, funder.Key, created.Key).Build())

			err := NewProcessor().Process(ctx, data)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, owner, created.Owner)
			assert.Len(t, created.Data, 16)
			assert.Equal(t, rent, created.Lamports)
			assert.Equal(t, 9*rent, funder.Lamports)
		})
	}
}

func TestAssignAndAllocate(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	account := wallet(0, true)
	ctx := &fakeContext{accounts: []*invoke.AccountInfo{account}}

	require.NoError(t, NewProcessor().Process(ctx, instructionData(t, solsystem.NewAllocateInstruction(64, account.Key).Build())))
	assert.Len(t, account.Data, 64)

	err := NewProcessor().Process(ctx, instructionData(t, solsystem.NewAllocateInstruction(64, account.Key).Build()))
	assert.ErrorIs(t, err, ErrAccountAlreadyInUse)

	require.NoError(t, NewProcessor().Process(ctx, instructionData(t, solsystem.NewAssignInstruction(owner, account.Key).Build())))
	assert.Equal(t, owner, account.Owner)

	// Assigning to the current owner is a no-op even without a signature.
	account.IsSigner = false
	assert.NoError(t, NewProcessor().Process(ctx, instructionData(t, solsystem.NewAssignInstruction(owner, account.Key).Build())))
}

func TestCreateAccountWithSeed(t *testing.T) {
	funder := wallet(1_000_000_000, true)
	owner := solana.NewWallet().PublicKey()
	const seed = "escrow-1"

	want, err := solana.CreateWithSeed(funder.Key, seed, owner)
	require.NoError(t, err)
	assert.Equal(t, want, CreateWithSeedAddress(funder.Key, seed, owner))

	created := wallet(0, false)
	created.Key = want
	ctx := &fakeContext{accounts: []*invoke.AccountInfo{funder, created}}

	var buf bytes.Buffer
	enc := bin.NewBinEncoder(&buf)
	require.NoError(t, enc.WriteUint32(InstructionCreateAccountWithSeed, bin.LE))
	require.NoError(t, enc.WriteBytes(funder.Key[:], false))
	require.NoError(t, enc.WriteUint64(uint64(len(seed)), bin.LE))
	require.NoError(t, enc.WriteBytes([]byte(seed), false))
	require.NoError(t, enc.WriteUint64(ctx.GetRentMinimum(0), bin.LE))
	require.NoError(t, enc.WriteUint64(0, bin.LE))
	require.NoError(t, enc.WriteBytes(owner[:], false))

	require.NoError(t, NewProcessor().Process(ctx, buf.Bytes()))
	assert.Equal(t, owner, created.Owner)

	created.Key = solana.NewWallet().PublicKey()
	err = NewProcessor().Process(ctx, buf.Bytes())
	assert.ErrorIs(t, err, ErrAddressWithSeedMismatch)
}

func TestInvalidInstruction(t *testing.T) {
	ctx := &fakeContext{}
	assert.ErrorIs(t, NewProcessor().Process(ctx, []byte{1, 2}), invoke.ErrInvalidInstructionData)
	assert.ErrorIs(t, NewProcessor().Process(ctx, []byte{99, 0, 0, 0}), invoke.ErrInvalidInstructionData)
	assert.ErrorIs(t, NewProcessor().Process(ctx, []byte{2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0}), invoke.ErrNotEnoughAccountKeys)
}
