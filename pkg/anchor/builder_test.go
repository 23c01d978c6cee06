package anchor

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/anchorsvm/internal/types"
)

func TestBuildMakeInstruction(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	maker := solana.NewWallet().PublicKey()
	escrow := solana.NewWallet().PublicKey()
	mintA := solana.NewWallet().PublicKey()

	ix, err := NewInstructionBuilder(programID, "make").
		Signer("maker", maker).
		AccountMut("escrow", escrow).
		Account("mint_a", mintA).
		Args(TupleArgs(U64(42), U64(500_000_000), U64(1_000_000_000))).
		Build()
	require.NoError(t, err)

	assert.Equal(t, programID, ix.ProgramID())
	assert.Equal(t, "make", ix.Name())

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 32)
	disc := InstructionDiscriminator("make")
	assert.Equal(t, disc[:], data[:8])
	assert.Equal(t, []byte{42, 0, 0, 0, 0, 0, 0, 0}, data[8:16])

	assert.Equal(t, []*solana.AccountMeta{
		{PublicKey: maker, IsSigner: true, IsWritable: true},
		{PublicKey: escrow, IsWritable: true},
		{PublicKey: mintA},
	}, ix.Accounts())
}

func TestBuilderKeepsInsertionOrder(t *testing.T) {
	b := NewInstructionBuilder(solana.NewWallet().PublicKey(), "take")
	keys := make([]solana.PublicKey, 6)
	for i := range keys {
		keys[i] = solana.NewWallet().PublicKey()
	}
	b.Account("a", keys[0]).
		SignerReadonly("b", keys[1]).
		AccountMut("c", keys[2]).
		Signer("d", keys[3]).
		Account("e", keys[4]).
		AccountMut("f", keys[5])

	metas := b.Accounts()
	require.Len(t, metas, len(keys))
	for i, m := range metas {
		assert.Equal(t, keys[i], m.PublicKey, "position %d", i)
	}

	meta, ok := b.GetAccount("b")
	require.True(t, ok)
	assert.Equal(t, solana.AccountMeta{PublicKey: keys[1], IsSigner: true}, meta)

	_, ok = b.GetAccount("missing")
	assert.False(t, ok)

	metas[0].IsWritable = true
	a, _ := b.GetAccount("a")
	assert.False(t, a.IsWritable, "Accounts returns copies")
}

func TestBuilderHelpers(t *testing.T) {
	b := NewInstructionBuilder(solana.NewWallet().PublicKey(), "init").
		SystemProgram().
		TokenProgram().
		AssociatedTokenProgram().
		RentSysvar()

	for name, want := range map[string]solana.PublicKey{
		"system_program":           types.SystemProgramAddr,
		"token_program":            types.TokenProgramAddr,
		"associated_token_program": types.AssociatedTokenProgramAddr,
		"rent":                     types.SysvarRentAddr,
	} {
		got, ok := b.GetAccount(name)
		require.True(t, ok, name)
		assert.Equal(t, solana.AccountMeta{PublicKey: want}, got, name)
	}
	assert.Equal(t, solana.SystemProgramID, types.SystemProgramAddr)
	assert.Equal(t, solana.TokenProgramID, types.TokenProgramAddr)
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, types.AssociatedTokenProgramAddr)
	assert.Equal(t, solana.SysVarRentPubkey, types.SysvarRentAddr)
}

func TestBuilderDuplicateNames(t *testing.T) {
	first := solana.NewWallet().PublicKey()
	second := solana.NewWallet().PublicKey()

	b := NewInstructionBuilder(solana.NewWallet().PublicKey(), "make").
		Account("vault", first).
		AccountMut("vault", second)

	got, ok := b.GetAccount("vault")
	require.True(t, ok)
	assert.Equal(t, second, got.PublicKey, "newest entry wins")
	assert.Len(t, b.Accounts(), 2)
	assert.Equal(t, []string{"vault"}, b.ShadowedNames())

	_, err := NewInstructionBuilder(solana.NewWallet().PublicKey(), "make").
		Strict().
		Account("vault", first).
		AccountMut("vault", second).
		Args(NoArgs()).
		Build()
	assert.ErrorIs(t, err, ErrBuild)
	assert.ErrorIs(t, err, ErrDuplicateAccount)
}

func TestBuildRequiresArgs(t *testing.T) {
	b := NewInstructionBuilder(solana.NewWallet().PublicKey(), "make").
		Signer("maker", solana.NewWallet().PublicKey())

	_, err := b.Build()
	assert.ErrorIs(t, err, ErrBuild)
	assert.ErrorIs(t, err, ErrNoInstructionData)
	assert.EqualError(t, err, "Transaction build error: no instruction data provided, call Args before Build")

	// A zero-argument instruction still carries its selector.
	ix, err := b.Args(NoArgs()).Build()
	require.NoError(t, err)
	data, _ := ix.Data()
	disc := InstructionDiscriminator("make")
	assert.Equal(t, disc[:], data)

	_, err = b.Build()
	assert.ErrorIs(t, err, ErrAlreadyBuilt)
}

func TestArgsLastWriteWins(t *testing.T) {
	b := NewInstructionBuilder(solana.NewWallet().PublicKey(), "deposit").
		Args(U64(1)).
		Args(U8(2))

	ix, err := b.Build()
	require.NoError(t, err)
	data, _ := ix.Data()
	require.Len(t, data, 9)
	assert.Equal(t, byte(2), data[8])
}

func TestArgsErrorIsSticky(t *testing.T) {
	b := NewInstructionBuilder(solana.NewWallet().PublicKey(), "deposit").
		Args(TupleArgs(failingArg{})).
		Args(U64(1))

	_, err := b.Build()
	assert.ErrorIs(t, err, ErrBuild)
	assert.ErrorIs(t, err, errFailingArg)
}

func TestInstructionIsImmutable(t *testing.T) {
	ix, err := NewInstructionBuilder(solana.NewWallet().PublicKey(), "make").
		AccountMut("escrow", solana.NewWallet().PublicKey()).
		Args(U8(1)).
		Build()
	require.NoError(t, err)

	ix.Accounts()[0].IsWritable = false
	data, _ := ix.Data()
	data[0] ^= 0xff

	assert.True(t, ix.Accounts()[0].IsWritable)
	again, _ := ix.Data()
	disc := InstructionDiscriminator("make")
	assert.Equal(t, disc[:], again[:8])
}

func TestBuildAnchorInstruction(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	metas := []*solana.AccountMeta{
		solana.NewAccountMeta(solana.NewWallet().PublicKey(), true, true),
		solana.NewAccountMeta(solana.NewWallet().PublicKey(), false, false),
	}
	ix, err := BuildAnchorInstruction(programID, "initialize", metas, NoArgs())
	require.NoError(t, err)
	assert.Equal(t, metas, ix.Accounts())

	data, _ := ix.Data()
	assert.Equal(t, []byte{175, 175, 109, 31, 13, 152, 155, 237}, data)
}
