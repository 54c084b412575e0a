package application

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
)

// deriveAddress returns the p2wpkh address and output script at the given
// non-hardened chain/index position under the watcher xpub.
func deriveAddress(
	xpub string, chain, index uint32, net *chaincfg.Params,
) (string, []byte, error) {
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return "", nil, domain.ErrInvalidXpub
	}
	chainKey, err := key.Derive(chain)
	if err != nil {
		return "", nil, fmt.Errorf("deriving chain %d: %w", chain, err)
	}
	childKey, err := chainKey.Derive(index)
	if err != nil {
		return "", nil, fmt.Errorf("deriving index %d: %w", index, err)
	}
	pubKey, err := childKey.ECPubKey()
	if err != nil {
		return "", nil, fmt.Errorf("extracting pubkey: %w", err)
	}

	keyHash := btcutil.Hash160(pubKey.SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(keyHash, net)
	if err != nil {
		return "", nil, fmt.Errorf("encoding address: %w", err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return "", nil, fmt.Errorf("encoding output script: %w", err)
	}
	return addr.EncodeAddress(), script, nil
}

// terminalPath renders a chain/index pair in its "/chain/index" terminal
// form.
func terminalPath(chain, index uint32) string {
	return fmt.Sprintf("/%d/%d", chain, index)
}

// parseTerminal converts a "/chain/index" terminal into its chain and index
// components.
func parseTerminal(terminal string) (uint32, uint32, error) {
	parts := strings.Split(strings.TrimPrefix(terminal, "/"), "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed terminal %q", terminal)
	}
	chain, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed terminal chain %q", parts[0])
	}
	index, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed terminal index %q", parts[1])
	}
	return uint32(chain), uint32(index), nil
}

// validateXpub checks that the given key is a valid extended public key for
// the configured network.
func validateXpub(xpub string, net *chaincfg.Params) error {
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return domain.ErrInvalidXpub
	}
	if key.IsPrivate() {
		return domain.ErrInvalidXpub
	}
	if !key.IsForNet(net) {
		return domain.ErrInvalidXpub
	}
	return nil
}
