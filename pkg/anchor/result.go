package anchor

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/anchorsvm/pkg/svm"
)

// ErrEventNotFound is returned by DecodeEvent when no event carries the
// requested discriminator.
var ErrEventNotFound = errors.New("event not found in logs")

const programDataPrefix = "Program data: "

// TransactionResult is the outcome of a successful submission. Failures
// are returned as a *TransactionError instead.
type TransactionResult struct {
	meta    *svm.TransactionMetadata
	name    string
	extract ComputeUnitsExtractor
}

// Logs returns the program logs in order.
func (r *TransactionResult) Logs() []string {
	return r.meta.Logs
}

// FindLogs returns the log lines containing pattern.
func (r *TransactionResult) FindLogs(pattern string) []string {
	var out []string
	for _, line := range r.meta.Logs {
		if strings.Contains(line, pattern) {
			out = append(out, line)
		}
	}
	return out
}

// HasLog reports whether any log line contains pattern.
func (r *TransactionResult) HasLog(pattern string) bool {
	for _, line := range r.meta.Logs {
		if strings.Contains(line, pattern) {
			return true
		}
	}
	return false
}

// ComputeUnits returns the compute units reported in the logs, or 0.
func (r *TransactionResult) ComputeUnits() uint64 {
	extract := r.extract
	if extract == nil {
		extract = ExtractComputeUnits
	}
	if units, ok := extract(r.meta.Logs); ok {
		return units
	}
	return 0
}

// ExtractComputeUnits returns the figure of the first log line shaped like
// "Program <id> consumed <n> of <m> compute units". With nested
// invocations that is the innermost program to finish first, not the
// transaction total.
func ExtractComputeUnits(logs []string) (uint64, bool) {
	for _, line := range logs {
		if !strings.Contains(line, "consumed") || !strings.Contains(line, "compute units") {
			continue
		}
		_, rest, _ := strings.Cut(line, "consumed")
		number, _, _ := strings.Cut(rest, "of")
		if units, err := strconv.ParseUint(strings.TrimSpace(number), 10, 64); err == nil {
			return units, true
		}
	}
	return 0, false
}

// AssertSuccess returns r. A result only exists for a successful
// transaction.
func (r *TransactionResult) AssertSuccess() *TransactionResult {
	return r
}

// InstructionName returns the name of the instruction that was built and
// executed, if the result came from a named call.
func (r *TransactionResult) InstructionName() (string, bool) {
	return r.name, r.name != ""
}

// Signature returns the transaction signature.
func (r *TransactionResult) Signature() solana.Signature {
	return r.meta.Signature
}

// Meta returns the raw execution metadata.
func (r *TransactionResult) Meta() *svm.TransactionMetadata {
	return r.meta
}

// PrintLogs writes the logs to w, one indented line each.
func (r *TransactionResult) PrintLogs(w io.Writer) error {
	header := "Transaction logs:"
	if r.name != "" {
		header = fmt.Sprintf("Transaction logs for '%s':", r.name)
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	for _, line := range r.meta.Logs {
		if _, err := fmt.Fprintf(w, "  %s\n", line); err != nil {
			return err
		}
	}
	return nil
}

func (r *TransactionResult) String() string {
	name := "<none>"
	if r.name != "" {
		name = strconv.Quote(r.name)
	}
	return fmt.Sprintf("TransactionResult{instruction: %s, logs: %d, compute_units: %d}",
		name, len(r.meta.Logs), r.ComputeUnits())
}

// Events returns the decoded payloads of every "Program data:" log line.
// A line with several fields yields one payload per field.
func (r *TransactionResult) Events() ([][]byte, error) {
	var events [][]byte
	for _, line := range r.meta.Logs {
		fields, ok := strings.CutPrefix(line, programDataPrefix)
		if !ok {
			continue
		}
		for _, field := range strings.Fields(fields) {
			payload, err := base64.StdEncoding.DecodeString(field)
			if err != nil {
				return nil, fmt.Errorf("decode program data %q: %w", field, err)
			}
			events = append(events, payload)
		}
	}
	return events, nil
}

// DecodeEvent decodes the first event tagged with the discriminator of
// name into dst.
func (r *TransactionResult) DecodeEvent(name string, dst bin.BinaryUnmarshaler) error {
	events, err := r.Events()
	if err != nil {
		return err
	}
	disc := EventDiscriminator(name)
	for _, payload := range events {
		if len(payload) < DiscriminatorLength || !bytes.Equal(payload[:DiscriminatorLength], disc[:]) {
			continue
		}
		if err := dst.UnmarshalWithDecoder(bin.NewBorshDecoder(payload[DiscriminatorLength:])); err != nil {
			return fmt.Errorf("decode event %s: %w", name, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrEventNotFound, name)
}
