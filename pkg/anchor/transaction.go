package anchor

import (
	"errors"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/anchorsvm/pkg/svm"
)

// SendInstruction submits ix in its own transaction. The first signer pays
// the fee.
func (c *Context) SendInstruction(ix solana.Instruction, signers ...solana.PrivateKey) (*TransactionResult, error) {
	return c.send([]solana.Instruction{ix}, signers, "")
}

// SendInstructions submits ixs in one atomic transaction. The first signer
// pays the fee.
func (c *Context) SendInstructions(ixs []solana.Instruction, signers ...solana.PrivateKey) (*TransactionResult, error) {
	return c.send(ixs, signers, "")
}

// Execute builds the named instruction and submits it.
func (c *Context) Execute(name string, metas []*solana.AccountMeta, args bin.BinaryMarshaler, signers ...solana.PrivateKey) (*TransactionResult, error) {
	ix, err := c.BuildInstruction(name, metas, args)
	if err != nil {
		return nil, err
	}
	return c.send([]solana.Instruction{ix}, signers, name)
}

// send signs ixs with a fresh blockhash and submits them once. Nothing
// touches the environment before the signer check passes.
func (c *Context) send(ixs []solana.Instruction, signers []solana.PrivateKey, name string) (*TransactionResult, error) {
	if len(signers) == 0 {
		return nil, buildError(ErrNoSigners)
	}
	payer := signers[0].PublicKey()

	tx, err := solana.NewTransaction(ixs, c.env.LatestBlockhash(), solana.TransactionPayer(payer))
	if err != nil {
		return nil, buildError(err)
	}
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(key) {
				return &signers[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, buildError(err)
	}

	logger := c.logger.With().Stringer("signature", tx.Signatures[0]).Logger()
	if name != "" {
		logger = logger.With().Str("instruction", name).Logger()
	}

	meta, err := c.env.SendTransaction(tx)
	if err != nil {
		txErr := &TransactionError{Kind: KindExecutionFailed, Err: err}
		var failed *svm.FailedTransactionError
		if errors.As(err, &failed) {
			txErr.Logs = failed.Meta.Logs
		}
		logger.Debug().Err(err).Int("logs", len(txErr.Logs)).Msg("transaction failed")
		return nil, txErr
	}

	res := &TransactionResult{meta: meta, name: name, extract: c.extractCU}
	logger.Debug().Uint64("compute_units", res.ComputeUnits()).Msg("transaction succeeded")
	return res, nil
}
