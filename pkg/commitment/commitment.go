package commitment

import (
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// commitTag namespaces the tagged hash so commitments cannot collide with
// other protocol hashes computed over the same data.
var commitTag = []byte("rgbd/commitment/v1")

var (
	// ErrMalformedCommitment is returned when a commitment string is not a
	// valid hex-encoded 32-byte hash.
	ErrMalformedCommitment = errors.New("malformed commitment")
)

// Commit binds a consignment to the outputs of its anchoring transaction.
// The result is a hex-encoded tagged hash over the consignment id, the asset
// change terminal and the serialized transaction outputs, in order. The same
// inputs always produce the same commitment, which is what lets the receiving
// party re-derive and verify it independently.
func Commit(consigID, terminal string, txOuts [][]byte) string {
	msgs := make([][]byte, 0, len(txOuts)+2)
	msgs = append(msgs, []byte(consigID), []byte(terminal))
	msgs = append(msgs, txOuts...)

	hash := chainhash.TaggedHash(commitTag, msgs...)
	return hex.EncodeToString(hash[:])
}

// Verify re-derives the commitment for the given consignment and anchoring
// outputs and compares it with the provided one. A malformed commitment
// string is an error, a well-formed but non-matching one just reports false.
func Verify(commit, consigID, terminal string, txOuts [][]byte) (bool, error) {
	raw, err := hex.DecodeString(commit)
	if err != nil || len(raw) != chainhash.HashSize {
		return false, ErrMalformedCommitment
	}
	return Commit(consigID, terminal, txOuts) == commit, nil
}
