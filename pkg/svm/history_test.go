package svm

import (
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func histories(t *testing.T) map[string]func() History {
	return map[string]func() History{
		"memory": func() History { return NewMemoryHistory() },
		"bolt": func() History {
			h, err := OpenBoltHistory(filepath.Join(t.TempDir(), "history.db"))
			require.NoError(t, err)
			return h
		},
	}
}

func TestHistory(t *testing.T) {
	for name, open := range histories(t) {
		t.Run(name, func(t *testing.T) {
			h := open()
			defer h.Close()

			meta := &TransactionMetadata{
				Signature:            solana.Signature{1, 2, 3},
				Slot:                 9,
				Fee:                  5000,
				ComputeUnitsConsumed: 2150,
				Logs:                 []string{"Program log: one", "Program log: two"},
				Err:                  "Error processing Instruction 0: custom program error: 0x1",
			}
			require.NoError(t, h.Record(meta))

			seen, err := h.Contains(meta.Signature)
			require.NoError(t, err)
			assert.True(t, seen)

			got, err := h.Get(meta.Signature)
			require.NoError(t, err)
			assert.Equal(t, meta, got)
			assert.False(t, got.Succeeded())

			_, err = h.Get(solana.Signature{9})
			assert.ErrorIs(t, err, ErrTransactionNotFound)
			seen, err = h.Contains(solana.Signature{9})
			require.NoError(t, err)
			assert.False(t, seen)
		})
	}
}

func TestBoltHistoryReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	h, err := OpenBoltHistory(path)
	require.NoError(t, err)
	require.NoError(t, h.Record(&TransactionMetadata{Signature: solana.Signature{7}, Logs: []string{}}))
	require.NoError(t, h.Close())

	h, err = OpenBoltHistory(path)
	require.NoError(t, err)
	defer h.Close()
	got, err := h.Get(solana.Signature{7})
	require.NoError(t, err)
	assert.True(t, got.Succeeded())
}
