// Package anchor drives Anchor programs inside an in-process SVM.
//
// A Context pairs an Environment with the program under test. Instructions
// are assembled with an InstructionBuilder, which derives the 8-byte
// selector from the instruction name, Borsh-encodes the arguments and keeps
// accounts in the order they were added:
//
//	ctx := anchor.NewContext(env, programID)
//	res, err := ctx.InstructionBuilder("make").
//		Signer("maker", maker.PublicKey()).
//		AccountMut("escrow", escrow).
//		SystemProgram().
//		Args(anchor.TupleArgs(anchor.U64(42), anchor.U64(500_000_000))).
//		Execute(ctx, maker)
//
// Every submission signs a new transaction against the environment's
// latest blockhash, with the first signer as fee payer. Successful
// transactions yield a *TransactionResult for log and compute unit
// inspection; everything else yields a *TransactionError. Program-owned
// accounts are read back with GetAnchorAccount, which checks the account
// discriminator before decoding.
package anchor
