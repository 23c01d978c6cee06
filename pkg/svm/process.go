package svm

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math/bits"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/anchorsvm/internal/types"
	"github.com/fortiblox/anchorsvm/pkg/accounts"
	"github.com/fortiblox/anchorsvm/pkg/svm/invoke"
)

// transactionContext holds the working state of one transaction.
type transactionContext struct {
	svm *SVM

	// accounts holds the working copy of every loaded account.
	accounts map[solana.PublicKey]*accounts.Account
	signer   []bool
	writable []bool

	meter *ComputeMeter
	logs  []string

	// stack holds the program ids of the active invocations.
	stack []solana.PublicKey
}

func (tc *transactionContext) log(format string, args ...interface{}) {
	tc.logs = append(tc.logs, fmt.Sprintf(format, args...))
}

// process runs one instruction, top level or nested, and applies its
// account changes to the working state when the runtime rules hold.
func (tc *transactionContext) process(programID solana.PublicKey, metas []*solana.AccountMeta, data []byte) error {
	depth := len(tc.stack) + 1
	if depth > CPIDepthMax {
		return ErrCallDepth
	}
	for i, id := range tc.stack {
		if id == programID && i != len(tc.stack)-1 {
			return ErrReentrancyNotAllowed
		}
	}
	program, ok := tc.svm.programs[programID]
	if !ok {
		return ErrUnsupportedProgramID
	}

	tc.log("Program %s invoke [%d]", programID, depth)
	startRemaining := tc.meter.Remaining()

	f, err := newFrame(tc, programID, metas)
	if err == nil {
		tc.stack = append(tc.stack, programID)
		err = tc.meter.Consume(baseCost(programID))
		if err == nil {
			err = runProgram(program, f, data)
		}
		if err == nil {
			err = f.commit()
		}
		tc.stack = tc.stack[:len(tc.stack)-1]
	}

	if !types.IsBuiltinProgram(programID) {
		tc.log("Program %s consumed %d of %d compute units",
			programID, startRemaining-tc.meter.Remaining(), startRemaining)
	}
	if err != nil {
		tc.log("Program %s failed: %v", programID, err)
		return err
	}
	tc.log("Program %s success", programID)
	return nil
}

func baseCost(programID solana.PublicKey) uint64 {
	switch programID {
	case types.SystemProgramAddr:
		return CUSystemProgramDefault
	case types.ComputeBudgetProgramAddr:
		return CUComputeBudgetDefault
	default:
		return CUProgramBase
	}
}

func runProgram(p invoke.Program, ctx invoke.Context, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("program panicked: %v", r)
		}
	}()
	return p.Process(ctx, data)
}

// frame is the invoke.Context of one program invocation. Accounts are
// copies of the working state; duplicated metas share one copy.
type frame struct {
	tc        *transactionContext
	programID solana.PublicKey
	infos     []*invoke.AccountInfo
	unique    []*invoke.AccountInfo
}

func newFrame(tc *transactionContext, programID solana.PublicKey, metas []*solana.AccountMeta) (*frame, error) {
	f := &frame{tc: tc, programID: programID}
	byKey := make(map[solana.PublicKey]*invoke.AccountInfo, len(metas))
	for _, m := range metas {
		info, ok := byKey[m.PublicKey]
		if !ok {
			acc, loaded := tc.accounts[m.PublicKey]
			if !loaded {
				return nil, ErrMissingAccount
			}
			info = &invoke.AccountInfo{
				Key:        m.PublicKey,
				Owner:      acc.Owner,
				Lamports:   acc.Lamports,
				Data:       append([]byte(nil), acc.Data...),
				Executable: acc.Executable,
				RentEpoch:  acc.RentEpoch,
			}
			byKey[m.PublicKey] = info
			f.unique = append(f.unique, info)
		}
		info.IsSigner = info.IsSigner || m.IsSigner
		info.IsWritable = info.IsWritable || m.IsWritable
		f.infos = append(f.infos, info)
	}
	return f, nil
}

// commit verifies the frame's changes against the working state and
// applies them.
func (f *frame) commit() error {
	var preHi, preLo, postHi, postLo, carry uint64
	for _, info := range f.unique {
		pre := f.tc.accounts[info.Key]
		if err := verifyAccount(f.programID, pre, info); err != nil {
			return err
		}
		preLo, carry = bits.Add64(preLo, pre.Lamports, 0)
		preHi += carry
		postLo, carry = bits.Add64(postLo, info.Lamports, 0)
		postHi += carry
	}
	if preHi != postHi || preLo != postLo {
		return ErrUnbalancedInstruction
	}
	for _, info := range f.unique {
		acc := f.tc.accounts[info.Key]
		acc.Lamports = info.Lamports
		acc.Owner = info.Owner
		acc.Data = append([]byte(nil), info.Data...)
	}
	return nil
}

// refresh reloads the frame's copies after a nested invocation.
func (f *frame) refresh() {
	for _, info := range f.unique {
		acc := f.tc.accounts[info.Key]
		info.Lamports = acc.Lamports
		info.Owner = acc.Owner
		info.Data = append([]byte(nil), acc.Data...)
	}
}

// verifyAccount enforces the runtime's account modification rules for
// the program that just ran.
func verifyAccount(programID solana.PublicKey, pre *accounts.Account, post *invoke.AccountInfo) error {
	if pre.Executable != post.Executable {
		return ErrExecutableModified
	}
	if pre.Owner != post.Owner && (!post.IsWritable || pre.Owner != programID) {
		return ErrModifiedProgramID
	}
	if pre.Lamports != post.Lamports {
		if !post.IsWritable {
			return ErrReadonlyLamportChange
		}
		if post.Lamports < pre.Lamports && pre.Owner != programID {
			return ErrExternalAccountLamportSpend
		}
	}
	if !bytes.Equal(pre.Data, post.Data) {
		if !post.IsWritable {
			return ErrReadonlyDataModified
		}
		if pre.Owner != programID {
			return ErrExternalAccountDataModified
		}
	}
	return nil
}

func (f *frame) ProgramID() solana.PublicKey { return f.programID }

func (f *frame) NumAccounts() int { return len(f.infos) }

func (f *frame) GetAccount(index int) (*invoke.AccountInfo, error) {
	if index < 0 || index >= len(f.infos) {
		return nil, invoke.ErrNotEnoughAccountKeys
	}
	return f.infos[index], nil
}

func (f *frame) GetRentMinimum(dataLen uint64) uint64 {
	return f.tc.svm.MinimumBalanceForRentExemption(dataLen)
}

func (f *frame) ConsumeCU(units uint64) error {
	return f.tc.meter.Consume(units)
}

func (f *frame) Log(msg string) {
	f.tc.log("Program log: %s", msg)
}

func (f *frame) LogData(data ...[]byte) {
	fields := make([]string, len(data))
	for i, d := range data {
		fields[i] = base64.StdEncoding.EncodeToString(d)
	}
	f.tc.log("Program data: %s", strings.Join(fields, " "))
}

func (f *frame) lookup(key solana.PublicKey) *invoke.AccountInfo {
	for _, info := range f.unique {
		if info.Key == key {
			return info
		}
	}
	return nil
}

// Invoke runs ix as a cross-program invocation. The callee may only use
// accounts passed to the caller, with at most the caller's privileges,
// except that PDAs of the caller derived from signerSeeds may sign.
func (f *frame) Invoke(ix solana.Instruction, signerSeeds ...[][]byte) error {
	if err := f.tc.meter.Consume(CUInvokeBase); err != nil {
		return err
	}
	data, err := ix.Data()
	if err != nil {
		return fmt.Errorf("%w: %v", invoke.ErrInvalidInstructionData, err)
	}

	pdaSigners := make(map[solana.PublicKey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := CreateProgramAddress(seeds, f.programID)
		if err != nil {
			return invoke.ErrInvalidSeeds
		}
		pdaSigners[addr] = true
	}

	calleeID := ix.ProgramID()
	if f.lookup(calleeID) == nil {
		f.tc.log("Unknown program %s", calleeID)
		return ErrMissingAccount
	}

	metas := make([]*solana.AccountMeta, 0, len(ix.Accounts()))
	for _, m := range ix.Accounts() {
		caller := f.lookup(m.PublicKey)
		if caller == nil {
			f.tc.log("Instruction references an unknown account %s", m.PublicKey)
			return ErrMissingAccount
		}
		if m.IsWritable && !caller.IsWritable {
			f.tc.log("%s's writable privilege escalated", m.PublicKey)
			return ErrPrivilegeEscalation
		}
		if m.IsSigner && !caller.IsSigner && !pdaSigners[m.PublicKey] {
			f.tc.log("%s's signer privilege escalated", m.PublicKey)
			return ErrPrivilegeEscalation
		}
		metas = append(metas, &solana.AccountMeta{
			PublicKey:  m.PublicKey,
			IsSigner:   m.IsSigner,
			IsWritable: m.IsWritable,
		})
	}

	// The callee observes the caller's changes so far.
	if err := f.commit(); err != nil {
		return err
	}
	err = f.tc.process(calleeID, metas, data)
	f.refresh()
	return err
}

var _ invoke.Context = (*frame)(nil)
