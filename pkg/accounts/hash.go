package accounts

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"github.com/zeebo/blake3"
)

// ComputeAccountHash hashes a single account:
// BLAKE3(lamports || rent_epoch || data || executable || owner || pubkey)
func ComputeAccountHash(pubkey solana.PublicKey, account *Account) solana.Hash {
	h := blake3.New()

	var word [8]byte
	binary.LittleEndian.PutUint64(word[:], account.Lamports)
	h.Write(word[:])
	binary.LittleEndian.PutUint64(word[:], account.RentEpoch)
	h.Write(word[:])
	h.Write(account.Data)
	if account.Executable {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write(account.Owner[:])
	h.Write(pubkey[:])

	var out solana.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ComputeAccountsHash fingerprints the whole ledger: the Merkle root of
// every account hash in ascending address order. An empty ledger hashes
// to the zero hash.
func ComputeAccountsHash(db DB) (solana.Hash, error) {
	var hashes []solana.Hash
	err := db.IterateAccounts(func(pubkey solana.PublicKey, account *Account) error {
		hashes = append(hashes, ComputeAccountHash(pubkey, account))
		return nil
	})
	if err != nil {
		return solana.Hash{}, err
	}
	return ComputeMerkleRoot(hashes), nil
}

// ComputeMerkleRoot computes the root of a binary Merkle tree.
//
// Tree structure:
//   - Leaf: BLAKE3(0x00 || hash)
//   - Node: BLAKE3(0x01 || left || right)
//   - If odd number of nodes, last node is paired with zero hash
func ComputeMerkleRoot(hashes []solana.Hash) solana.Hash {
	if len(hashes) == 0 {
		return solana.Hash{}
	}

	level := make([]solana.Hash, len(hashes))
	for i, h := range hashes {
		level[i] = computeLeafHash(h)
	}

	for len(level) > 1 {
		next := make([]solana.Hash, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			var right solana.Hash
			if i+1 < len(level) {
				right = level[i+1]
			}
			next[i/2] = computeNodeHash(level[i], right)
		}
		level = next
	}
	return level[0]
}

func computeLeafHash(data solana.Hash) solana.Hash {
	buf := make([]byte, 1+32)
	copy(buf[1:], data[:])
	return blake3.Sum256(buf)
}

func computeNodeHash(left, right solana.Hash) solana.Hash {
	buf := make([]byte, 1+32+32)
	buf[0] = 0x01
	copy(buf[1:], left[:])
	copy(buf[33:], right[:])
	return blake3.Sum256(buf)
}
