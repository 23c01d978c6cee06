package anchor_test

import (
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	solsystem "github.com/gagliardetto/solana-go/programs/system"

	"github.com/fortiblox/anchorsvm/pkg/anchor"
	"github.com/fortiblox/anchorsvm/pkg/svm"
	"github.com/fortiblox/anchorsvm/pkg/svm/invoke"
)

// Anchor error codes used by the escrow program.
const (
	errFallbackNotFound = invoke.CustomError(101)
	errConstraintHasOne = invoke.CustomError(2001)
	errConstraintSeeds  = invoke.CustomError(2006)
)

// Escrow is the account the escrow program creates in "make".
type Escrow struct {
	Seed    uint64
	Maker   solana.PublicKey
	MintA   solana.PublicKey
	MintB   solana.PublicKey
	Receive uint64
	Bump    uint8
}

const escrowSpace = anchor.DiscriminatorLength + 8 + 32*3 + 8 + 1

func (Escrow) Discriminator() anchor.Discriminator {
	return anchor.AccountDiscriminator("Escrow")
}

func (e Escrow) MarshalWithEncoder(enc *bin.Encoder) error {
	return anchor.TupleArgs(
		anchor.U64(e.Seed),
		anchor.Pubkey(e.Maker),
		anchor.Pubkey(e.MintA),
		anchor.Pubkey(e.MintB),
		anchor.U64(e.Receive),
		anchor.U8(e.Bump),
	).MarshalWithEncoder(enc)
}

func (e *Escrow) UnmarshalWithDecoder(dec *bin.Decoder) error {
	for _, field := range []bin.BinaryUnmarshaler{
		(*anchor.U64)(&e.Seed),
		(*anchor.Pubkey)(&e.Maker),
		(*anchor.Pubkey)(&e.MintA),
		(*anchor.Pubkey)(&e.MintB),
		(*anchor.U64)(&e.Receive),
		(*anchor.U8)(&e.Bump),
	} {
		if err := field.UnmarshalWithDecoder(dec); err != nil {
			return err
		}
	}
	return nil
}

// MakeEvent is emitted by "make".
type MakeEvent struct {
	Escrow  solana.PublicKey
	Deposit uint64
}

func (e MakeEvent) MarshalWithEncoder(enc *bin.Encoder) error {
	return anchor.TupleArgs(anchor.Pubkey(e.Escrow), anchor.U64(e.Deposit)).MarshalWithEncoder(enc)
}

func (e *MakeEvent) UnmarshalWithDecoder(dec *bin.Decoder) error {
	if err := (*anchor.Pubkey)(&e.Escrow).UnmarshalWithDecoder(dec); err != nil {
		return err
	}
	return (*anchor.U64)(&e.Deposit).UnmarshalWithDecoder(dec)
}

func escrowSeeds(maker solana.PublicKey, seed uint64) [][]byte {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], seed)
	return [][]byte{[]byte("escrow"), maker[:], le[:]}
}

// escrowProgram is a native stand-in for an Anchor escrow program.
//
// make(seed, deposit, receive): maker, escrow, mint_a, mint_b, system_program
// refund(): maker, escrow
func escrowProgram(ctx invoke.Context, data []byte) error {
	if len(data) < anchor.DiscriminatorLength {
		return errFallbackNotFound
	}
	var disc anchor.Discriminator
	copy(disc[:], data)
	switch disc {
	case anchor.InstructionDiscriminator("make"):
		ctx.Log("Instruction: Make")
		return escrowMake(ctx, data[anchor.DiscriminatorLength:])
	case anchor.InstructionDiscriminator("refund"):
		ctx.Log("Instruction: Refund")
		return escrowRefund(ctx)
	}
	return errFallbackNotFound
}

func escrowMake(ctx invoke.Context, data []byte) error {
	var seed, deposit, receive anchor.U64
	if err := anchor.DecodeTuple(data, &seed, &deposit, &receive); err != nil {
		return invoke.ErrInvalidInstructionData
	}
	infos := make([]*invoke.AccountInfo, 5)
	for i := range infos {
		info, err := ctx.GetAccount(i)
		if err != nil {
			return err
		}
		infos[i] = info
	}
	maker, escrow, mintA, mintB := infos[0], infos[1], infos[2], infos[3]

	seeds := escrowSeeds(maker.Key, uint64(seed))
	addr, bump, err := svm.FindProgramAddress(seeds, ctx.ProgramID())
	if err != nil {
		return err
	}
	if addr != escrow.Key {
		ctx.Log("Error: seeds constraint violated")
		return errConstraintSeeds
	}

	create := solsystem.NewCreateAccountInstruction(
		ctx.GetRentMinimum(escrowSpace), escrowSpace, ctx.ProgramID(), maker.Key, escrow.Key,
	).Build()
	if err := ctx.Invoke(create, append(seeds, []byte{bump})); err != nil {
		return err
	}
	if err := ctx.Invoke(solsystem.NewTransferInstruction(uint64(deposit), maker.Key, escrow.Key).Build()); err != nil {
		return err
	}

	state, err := anchor.EncodeAccount(Escrow{
		Seed:    uint64(seed),
		Maker:   maker.Key,
		MintA:   mintA.Key,
		MintB:   mintB.Key,
		Receive: uint64(receive),
		Bump:    bump,
	})
	if err != nil {
		return err
	}
	copy(escrow.Data, state)

	event, err := anchor.EncodeArgs(MakeEvent{Escrow: escrow.Key, Deposit: uint64(deposit)})
	if err != nil {
		return err
	}
	disc := anchor.EventDiscriminator("MakeEvent")
	ctx.LogData(append(disc[:], event...))
	return nil
}

func escrowRefund(ctx invoke.Context) error {
	maker, err := ctx.GetAccount(0)
	if err != nil {
		return err
	}
	escrowInfo, err := ctx.GetAccount(1)
	if err != nil {
		return err
	}
	if !maker.IsSigner {
		return invoke.ErrMissingRequiredSignature
	}
	if escrowInfo.Owner != ctx.ProgramID() {
		return invoke.ErrInvalidAccountOwner
	}
	var state Escrow
	if err := anchor.DecodeAccount(escrowInfo.Data, &state); err != nil {
		return invoke.ErrInvalidAccountData
	}
	if state.Maker != maker.Key {
		ctx.Log("Error: has one constraint violated")
		return errConstraintHasOne
	}

	maker.Lamports += escrowInfo.Lamports
	escrowInfo.Lamports = 0
	escrowInfo.Data = nil
	escrowInfo.Owner = solana.SystemProgramID
	return nil
}
