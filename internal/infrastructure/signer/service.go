package signer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"

	"github.com/bitmasklabs/rgbd/internal/core/ports"
	"github.com/bitmasklabs/rgbd/pkg/psbtutil"
)

var (
	// ErrMalformedDescriptor is returned when a descriptor is not of the
	// wpkh(<wif>) form.
	ErrMalformedDescriptor = errors.New("malformed descriptor")
	// ErrNoMatchingInput is returned when a descriptor does not control any
	// input of the packet it was asked to sign.
	ErrNoMatchingInput = errors.New("descriptor matches no psbt input")
)

type service struct {
	net *chaincfg.Params
}

// NewService returns a signer producing partial signatures for segwit v0
// keyhash inputs. Descriptors take the wpkh(<wif>) form; key material never
// leaves this package.
func NewService(net *chaincfg.Params) ports.Signer {
	return &service{net: net}
}

func (s *service) SignPsbt(
	ctx context.Context, psbtBase64 string, descriptors []string,
) (string, error) {
	packet, err := psbtutil.Decode(psbtBase64)
	if err != nil {
		return "", err
	}

	prevOuts := make(map[wire.OutPoint]*wire.TxOut)
	for i, in := range packet.Inputs {
		if in.WitnessUtxo == nil {
			return "", fmt.Errorf("input %d misses its witness utxo", i)
		}
		prevOuts[packet.UnsignedTx.TxIn[i].PreviousOutPoint] = in.WitnessUtxo
	}
	sigHashes := txscript.NewTxSigHashes(
		packet.UnsignedTx, txscript.NewMultiPrevOutFetcher(prevOuts),
	)

	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return "", fmt.Errorf("creating psbt updater: %w", err)
	}

	for _, descriptor := range descriptors {
		key, err := s.parseDescriptor(descriptor)
		if err != nil {
			return "", err
		}
		if err := s.signMatchingInputs(packet, updater, sigHashes, key); err != nil {
			return "", err
		}
	}

	return psbtutil.Encode(packet)
}

// signMatchingInputs signs every input whose witness utxo pays to the key.
func (s *service) signMatchingInputs(
	packet *psbt.Packet, updater *psbt.Updater,
	sigHashes *txscript.TxSigHashes, key *btcec.PrivateKey,
) error {
	pubKey := key.PubKey().SerializeCompressed()
	pkScript, scriptCode, err := s.scriptsForKey(pubKey)
	if err != nil {
		return err
	}

	matched := 0
	for i, in := range packet.Inputs {
		if !bytes.Equal(in.WitnessUtxo.PkScript, pkScript) {
			continue
		}
		matched++

		sighashType := in.SighashType
		if sighashType == 0 {
			sighashType = txscript.SigHashAll
		}
		sig, err := txscript.RawTxInWitnessSignature(
			packet.UnsignedTx, sigHashes, i, in.WitnessUtxo.Value,
			scriptCode, sighashType, key,
		)
		if err != nil {
			return fmt.Errorf("signing input %d: %w", i, err)
		}
		if _, err := updater.Sign(i, sig, pubKey, nil, nil); err != nil {
			return fmt.Errorf("attaching signature to input %d: %w", i, err)
		}
	}

	if matched <= 0 {
		return ErrNoMatchingInput
	}
	log.WithField("inputs", matched).Debug("psbt inputs signed")
	return nil
}

// scriptsForKey returns the p2wpkh output script of the key and the p2pkh
// script code its BIP143 signature hash is computed over.
func (s *service) scriptsForKey(pubKey []byte) ([]byte, []byte, error) {
	keyHash := btcutil.Hash160(pubKey)

	witnessAddr, err := btcutil.NewAddressWitnessPubKeyHash(keyHash, s.net)
	if err != nil {
		return nil, nil, fmt.Errorf("deriving witness address: %w", err)
	}
	pkScript, err := txscript.PayToAddrScript(witnessAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("deriving witness script: %w", err)
	}

	legacyAddr, err := btcutil.NewAddressPubKeyHash(keyHash, s.net)
	if err != nil {
		return nil, nil, fmt.Errorf("deriving legacy address: %w", err)
	}
	scriptCode, err := txscript.PayToAddrScript(legacyAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("deriving script code: %w", err)
	}
	return pkScript, scriptCode, nil
}

func (s *service) parseDescriptor(descriptor string) (*btcec.PrivateKey, error) {
	raw := descriptor
	if inner, ok := strings.CutPrefix(descriptor, "wpkh("); ok {
		inner, ok = strings.CutSuffix(inner, ")")
		if !ok {
			return nil, ErrMalformedDescriptor
		}
		raw = inner
	}
	wif, err := btcutil.DecodeWIF(raw)
	if err != nil {
		return nil, ErrMalformedDescriptor
	}
	if !wif.IsForNet(s.net) {
		return nil, fmt.Errorf("%w: key encoded for another network", ErrMalformedDescriptor)
	}
	return wif.PrivKey, nil
}
