// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keyring

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcprovider/wallet"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrInputNotOwned is returned when a caller explicitly asks to sign
	// an input that does not spend from the key.
	ErrInputNotOwned = errors.New("input does not belong to the keyring")

	// ErrMissingUtxo is returned when an input of a packet to be signed
	// carries no previous output information.
	ErrMissingUtxo = errors.New("psbt input is missing utxo information")
)

// SignPsbtFinalizing signs every input that spends from the key and then
// finalizes the whole packet. Inputs owned by others must already be final,
// otherwise finalization fails.
func (k *SingleKey) SignPsbtFinalizing(_ context.Context,
	packet *psbt.Packet) error {

	if err := k.signInputs(packet, k.ownedInputs(packet)); err != nil {
		return err
	}

	if err := psbt.MaybeFinalizeAll(packet); err != nil {
		return fmt.Errorf("unable to finalize psbt: %w", err)
	}

	return nil
}

// SignPsbtPartial adds signatures without finalizing. With no explicit input
// list every owned input is signed. An explicit list must only name owned
// inputs.
func (k *SingleKey) SignPsbtPartial(_ context.Context, packet *psbt.Packet,
	inputs fn.Option[[]wallet.ToSignInput]) error {

	toSign := inputs.UnwrapOr(k.ownedInputs(packet))
	for _, in := range toSign {
		if int(in.Index) >= len(packet.Inputs) {
			return fmt.Errorf("%w: %d", wallet.ErrInvalidInputIndex,
				in.Index)
		}

		if !k.ownsInput(packet, int(in.Index)) {
			return fmt.Errorf("%w: %d", ErrInputNotOwned, in.Index)
		}
	}

	return k.signInputs(packet, toSign)
}

// ownedInputs returns the inputs of the packet that spend from the key, to be
// signed with SigHashAll.
func (k *SingleKey) ownedInputs(packet *psbt.Packet) []wallet.ToSignInput {
	var owned []wallet.ToSignInput
	for idx := range packet.Inputs {
		if k.ownsInput(packet, idx) {
			owned = append(owned, wallet.ToSignInput{
				Index: uint32(idx),
			})
		}
	}

	return owned
}

// ownsInput reports whether the input at idx spends an output of the key.
func (k *SingleKey) ownsInput(packet *psbt.Packet, idx int) bool {
	in := packet.Inputs[idx]
	if in.WitnessUtxo != nil {
		return k.ownsScript(in.WitnessUtxo.PkScript)
	}

	if in.NonWitnessUtxo != nil {
		prevIndex := packet.UnsignedTx.TxIn[idx].PreviousOutPoint.Index
		if int(prevIndex) >= len(in.NonWitnessUtxo.TxOut) {
			return false
		}

		return k.ownsScript(in.NonWitnessUtxo.TxOut[prevIndex].PkScript)
	}

	return false
}

// signInputs adds a P2WPKH signature to every listed input. Inputs that are
// final or already carry a signature of the key are skipped.
func (k *SingleKey) signInputs(packet *psbt.Packet,
	toSign []wallet.ToSignInput) error {

	if len(toSign) == 0 {
		return nil
	}

	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return fmt.Errorf("unable to create psbt updater: %w", err)
	}

	tx := packet.UnsignedTx
	fetcher := wallet.PsbtPrevOutputFetcher(packet)

	// The sighash midstate needs the previous output of every input, not
	// only of the ones we sign.
	for idx, txIn := range tx.TxIn {
		if fetcher.FetchPrevOutput(txIn.PreviousOutPoint) == nil {
			return fmt.Errorf("%w: input %d", ErrMissingUtxo, idx)
		}
	}

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	pubKey := k.pubKey.SerializeCompressed()

	for _, in := range toSign {
		idx := int(in.Index)
		pInput := packet.Inputs[idx]

		if len(pInput.FinalScriptWitness) > 0 ||
			len(pInput.FinalScriptSig) > 0 {

			continue
		}

		if hasPartialSig(pInput, pubKey) {
			log.Debugf("Input %d already signed, skipping", idx)
			continue
		}

		prevOut := fetcher.FetchPrevOutput(
			tx.TxIn[idx].PreviousOutPoint,
		)

		hashType := in.SighashType()
		sig, err := txscript.RawTxInWitnessSignature(
			tx, sigHashes, idx, prevOut.Value, prevOut.PkScript,
			hashType, k.privKey,
		)
		if err != nil {
			return fmt.Errorf("unable to sign input %d: %w", idx,
				err)
		}

		// The finalizer checks the signature's sighash flag against
		// the input's, which defaults to SigHashAll.
		if hashType != txscript.SigHashAll {
			err := updater.AddInSighashType(hashType, idx)
			if err != nil {
				return err
			}
		}

		_, err = updater.Sign(idx, sig, pubKey, nil, nil)
		if err != nil {
			return fmt.Errorf("unable to add signature to input "+
				"%d: %w", idx, err)
		}
	}

	log.Debugf("Signed %d inputs of psbt %v", len(toSign), tx.TxHash())

	return nil
}

// hasPartialSig reports whether the input carries a signature by pubKey.
func hasPartialSig(in psbt.PInput, pubKey []byte) bool {
	for _, sig := range in.PartialSigs {
		if bytes.Equal(sig.PubKey, pubKey) {
			return true
		}
	}

	return false
}
