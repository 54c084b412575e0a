package ports

import "context"

// Signer is the key-management service producing partial signatures for a
// psbt. It receives the base64 packet and the descriptors of the keys to
// sign with, and returns the packet enriched with the partial signatures.
// Key custody stays entirely behind this interface.
type Signer interface {
	// SignPsbt signs every input spendable by the given descriptors. It
	// fails if any descriptor cannot produce a valid signature for the
	// input it matches.
	SignPsbt(ctx context.Context, psbtBase64 string, descriptors []string) (string, error)
}
