package accounts

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"
	"github.com/klauspost/compress/zstd"
)

// Snapshot stream format version.
const snapshotVersion uint32 = 1

// snapshotMagic prefixes every snapshot stream.
var snapshotMagic = []byte{'A', 'S', 'V', 'M'}

// maxAccountSerializedSize bounds a single snapshot record.
const maxAccountSerializedSize = MaxAccountDataSize + 100

// SnapshotHeader contains metadata about a snapshot.
type SnapshotHeader struct {
	// Version is the snapshot format version.
	Version uint32

	// Slot is the slot at which the snapshot was taken.
	Slot uint64

	// AccountsCount is the number of accounts in the snapshot.
	AccountsCount uint64

	// AccountsHash is ComputeAccountsHash of the captured ledger.
	AccountsHash solana.Hash
}

// WriteSnapshot streams the full ledger to w.
//
// Stream format:
//   - Magic (4 bytes): "ASVM"
//   - Version (4), Slot (8), AccountsCount (8), all little-endian
//   - AccountsHash (32 bytes)
//   - zstd frame holding, for each account in address order:
//     Pubkey (32) + AccountSize (4, little-endian) + serialized account
func WriteSnapshot(w io.Writer, db DB) (*SnapshotHeader, error) {
	count, err := db.AccountsCount()
	if err != nil {
		return nil, err
	}
	hash, err := ComputeAccountsHash(db)
	if err != nil {
		return nil, fmt.Errorf("compute accounts hash: %w", err)
	}
	header := &SnapshotHeader{
		Version:       snapshotVersion,
		Slot:          db.GetSlot(),
		AccountsCount: count,
		AccountsHash:  hash,
	}
	if _, err := w.Write(encodeHeader(header)); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("init zstd writer: %w", err)
	}
	bw := bufio.NewWriter(zw)

	var written uint64
	err = db.IterateAccounts(func(pubkey solana.PublicKey, account *Account) error {
		data := account.Serialize()
		var size [4]byte
		binary.LittleEndian.PutUint32(size[:], uint32(len(data)))
		if _, err := bw.Write(pubkey[:]); err != nil {
			return err
		}
		if _, err := bw.Write(size[:]); err != nil {
			return err
		}
		if _, err := bw.Write(data); err != nil {
			return err
		}
		written++
		return nil
	})
	if err != nil {
		zw.Close()
		return nil, fmt.Errorf("write accounts: %w", err)
	}
	if written != count {
		zw.Close()
		return nil, fmt.Errorf("%w: counted %d accounts, wrote %d", ErrCorrupted, count, written)
	}
	if err := bw.Flush(); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zstd writer: %w", err)
	}
	return header, nil
}

// ReadSnapshot replaces the contents of db with the snapshot read from r.
// The restored ledger is verified against the header's accounts hash.
func ReadSnapshot(r io.Reader, db DB) (*SnapshotHeader, error) {
	buf := make([]byte, 4+4+8+8+32)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header, err := decodeHeader(buf)
	if err != nil {
		return nil, err
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("init zstd reader: %w", err)
	}
	defer zr.Close()

	entries := make([]Entry, 0, header.AccountsCount)
	for i := uint64(0); i < header.AccountsCount; i++ {
		var pubkey solana.PublicKey
		if _, err := io.ReadFull(zr, pubkey[:]); err != nil {
			return nil, fmt.Errorf("read pubkey: %w", err)
		}
		var sizeBuf [4]byte
		if _, err := io.ReadFull(zr, sizeBuf[:]); err != nil {
			return nil, fmt.Errorf("read size: %w", err)
		}
		size := binary.LittleEndian.Uint32(sizeBuf[:])
		if size > maxAccountSerializedSize {
			return nil, fmt.Errorf("account size %d exceeds maximum %d", size, maxAccountSerializedSize)
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(zr, data); err != nil {
			return nil, fmt.Errorf("read account data: %w", err)
		}
		account, err := DeserializeAccount(data)
		if err != nil {
			return nil, fmt.Errorf("deserialize account %s: %w", pubkey, err)
		}
		entries = append(entries, Entry{Pubkey: pubkey, Account: account})
	}

	if err := db.Reset(); err != nil {
		return nil, err
	}
	if err := db.SetAccounts(entries); err != nil {
		return nil, err
	}
	if err := db.SetSlot(header.Slot); err != nil {
		return nil, err
	}

	hash, err := ComputeAccountsHash(db)
	if err != nil {
		return nil, err
	}
	if hash != header.AccountsHash {
		return nil, fmt.Errorf("%w: accounts hash %s, snapshot says %s", ErrCorrupted, hash, header.AccountsHash)
	}
	return header, nil
}

func encodeHeader(h *SnapshotHeader) []byte {
	buf := make([]byte, 4+4+8+8+32)
	copy(buf, snapshotMagic)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	binary.LittleEndian.PutUint64(buf[8:], h.Slot)
	binary.LittleEndian.PutUint64(buf[16:], h.AccountsCount)
	copy(buf[24:], h.AccountsHash[:])
	return buf
}

func decodeHeader(buf []byte) (*SnapshotHeader, error) {
	if !bytes.Equal(buf[:4], snapshotMagic) {
		return nil, fmt.Errorf("invalid snapshot magic: %q", buf[:4])
	}
	h := &SnapshotHeader{
		Version:       binary.LittleEndian.Uint32(buf[4:]),
		Slot:          binary.LittleEndian.Uint64(buf[8:]),
		AccountsCount: binary.LittleEndian.Uint64(buf[16:]),
	}
	if h.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version: %d", h.Version)
	}
	copy(h.AccountsHash[:], buf[24:56])
	return h, nil
}
