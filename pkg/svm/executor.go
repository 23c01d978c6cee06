package svm

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/anchorsvm/internal/types"
	"github.com/fortiblox/anchorsvm/pkg/accounts"
)

// SendTransaction executes tx and commits its effects.
//
// Transactions rejected before execution (sanitize, blockhash, signature,
// duplicate and fee checks) return a plain error and leave the ledger
// untouched. Transactions that fail during execution charge the fee, are
// recorded in the history and return a *FailedTransactionError.
func (s *SVM) SendTransaction(tx *solana.Transaction) (*TransactionMetadata, error) {
	return s.processTransaction(tx, true)
}

// SimulateTransaction executes tx without committing or recording it.
func (s *SVM) SimulateTransaction(tx *solana.Transaction) (*TransactionMetadata, error) {
	return s.processTransaction(tx, false)
}

func (s *SVM) processTransaction(tx *solana.Transaction, commit bool) (*TransactionMetadata, error) {
	if err := sanitize(tx); err != nil {
		return nil, err
	}
	msg := &tx.Message
	sig := tx.Signatures[0]
	logger := s.logger.With().Stringer("signature", sig).Logger()

	if s.cfg.BlockhashCheck && !s.isRecentBlockhash(msg.RecentBlockhash) {
		return nil, ErrBlockhashNotFound
	}
	if s.cfg.SigVerify {
		if err := tx.VerifySignatures(); err != nil {
			logger.Debug().Err(err).Msg("signature verification failed")
			return nil, ErrSignatureFailure
		}
	}
	if commit {
		seen, err := s.history.Contains(sig)
		if err != nil {
			return nil, fmt.Errorf("check history: %w", err)
		}
		if seen {
			return nil, ErrAlreadyProcessed
		}
	}
	for _, ix := range msg.Instructions {
		if _, ok := s.programs[msg.AccountKeys[ix.ProgramIDIndex]]; !ok {
			return nil, ErrProgramAccountNotFound
		}
	}

	budget, err := parseComputeBudget(msg, s.cfg.ComputeUnitLimit)
	if err != nil {
		return nil, err
	}
	fee := s.cfg.LamportsPerSignature*uint64(msg.Header.NumRequiredSignatures) + budget.PrioritizationFee()

	tc, err := s.loadTransaction(msg)
	if err != nil {
		return nil, err
	}
	payerKey := msg.AccountKeys[0]
	payer := tc.accounts[payerKey]
	if err := validateFeePayer(payer, fee); err != nil {
		return nil, err
	}
	payer.Lamports -= fee
	feeOnly := payer.Clone()

	tc.meter = NewComputeMeter(budget.ComputeUnitLimit)

	var execErr error
	for i, ix := range msg.Instructions {
		metas := make([]*solana.AccountMeta, len(ix.Accounts))
		for j, idx := range ix.Accounts {
			metas[j] = &solana.AccountMeta{
				PublicKey:  msg.AccountKeys[idx],
				IsSigner:   tc.signer[idx],
				IsWritable: tc.writable[idx],
			}
		}
		if err := tc.process(msg.AccountKeys[ix.ProgramIDIndex], metas, ix.Data); err != nil {
			execErr = &InstructionError{Index: i, Err: err}
			break
		}
	}

	meta := &TransactionMetadata{
		Signature:            sig,
		Slot:                 s.db.GetSlot(),
		Fee:                  fee,
		ComputeUnitsConsumed: tc.meter.Consumed(),
		Logs:                 tc.logs,
	}
	if execErr != nil {
		meta.Err = execErr.Error()
	}

	if commit {
		var entries []accounts.Entry
		if execErr == nil {
			for i, key := range msg.AccountKeys {
				if tc.writable[i] {
					entries = append(entries, accounts.Entry{Pubkey: key, Account: tc.accounts[key]})
				}
			}
		} else {
			entries = []accounts.Entry{{Pubkey: payerKey, Account: feeOnly}}
		}
		if err := s.db.SetAccounts(entries); err != nil {
			return nil, fmt.Errorf("commit accounts: %w", err)
		}
		if err := s.history.Record(meta); err != nil {
			return nil, fmt.Errorf("record transaction: %w", err)
		}
	}

	event := logger.Debug().
		Bool("committed", commit).
		Uint64("fee", fee).
		Uint64("compute_units", meta.ComputeUnitsConsumed)
	if execErr != nil {
		event.Err(execErr).Msg("transaction failed")
		return nil, &FailedTransactionError{Meta: meta, Err: execErr}
	}
	event.Msg("transaction executed")
	return meta, nil
}

// sanitize checks the message layout against its header.
func sanitize(tx *solana.Transaction) error {
	msg := &tx.Message
	header := msg.Header
	numKeys := len(msg.AccountKeys)
	numSigners := int(header.NumRequiredSignatures)

	switch {
	case numKeys == 0,
		numSigners == 0,
		numSigners > numKeys,
		int(header.NumReadonlySignedAccounts) >= numSigners,
		int(header.NumReadonlyUnsignedAccounts) > numKeys-numSigners,
		len(tx.Signatures) != numSigners:
		return ErrSanitizeFailure
	}

	seen := make(map[solana.PublicKey]struct{}, numKeys)
	for _, key := range msg.AccountKeys {
		if _, dup := seen[key]; dup {
			return ErrSanitizeFailure
		}
		seen[key] = struct{}{}
	}
	for _, ix := range msg.Instructions {
		if ix.ProgramIDIndex == 0 || int(ix.ProgramIDIndex) >= numKeys {
			return ErrSanitizeFailure
		}
		for _, idx := range ix.Accounts {
			if int(idx) >= numKeys {
				return ErrSanitizeFailure
			}
		}
	}
	return nil
}

func validateFeePayer(payer *accounts.Account, fee uint64) error {
	switch {
	case payer.Lamports == 0 && len(payer.Data) == 0:
		return ErrAccountNotFound
	case payer.Owner != types.SystemProgramAddr:
		return ErrInvalidAccountForFee
	case payer.Lamports < fee:
		return ErrInsufficientFundsForFee
	}
	return nil
}

// loadTransaction loads every account referenced by msg. Missing accounts
// load as empty system-owned accounts.
func (s *SVM) loadTransaction(msg *solana.Message) (*transactionContext, error) {
	n := len(msg.AccountKeys)
	tc := &transactionContext{
		svm:      s,
		accounts: make(map[solana.PublicKey]*accounts.Account, n),
		signer:   make([]bool, n),
		writable: make([]bool, n),
	}

	header := msg.Header
	numSigners := int(header.NumRequiredSignatures)
	for i, key := range msg.AccountKeys {
		acc, err := s.db.GetAccount(key)
		switch {
		case errors.Is(err, accounts.ErrAccountNotFound):
			acc = &accounts.Account{Owner: types.SystemProgramAddr}
		case err != nil:
			return nil, fmt.Errorf("load account %s: %w", key, err)
		}
		tc.accounts[key] = acc
		tc.signer[i] = i < numSigners
		tc.writable[i] = isAccountWritable(i, numSigners,
			int(header.NumReadonlySignedAccounts), int(header.NumReadonlyUnsignedAccounts), n) &&
			!isReservedAccount(key, acc)
	}
	return tc, nil
}

// isAccountWritable determines if an account is writable based on its
// position in the message.
func isAccountWritable(index, numSigners, numReadonlySigned, numReadonlyUnsigned, total int) bool {
	if index < numSigners {
		// Signer accounts: first (numSigners - numReadonlySigned) are writable
		return index < numSigners-numReadonlySigned
	}
	// Non-signer accounts: first (total - numSigners - numReadonlyUnsigned) are writable
	return index-numSigners < total-numSigners-numReadonlyUnsigned
}

// isReservedAccount reports accounts that are always demoted to read-only.
func isReservedAccount(key solana.PublicKey, acc *accounts.Account) bool {
	return types.IsSysvar(key) || types.IsBuiltinProgram(key) || acc.Executable
}
