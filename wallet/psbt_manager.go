// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcprovider/pkg/txfee"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidInputIndex is returned when a caller asks to sign an
	// input that does not exist in the PSBT.
	ErrInvalidInputIndex = errors.New("input index out of range")
)

// PsbtSignItem is a single entry of a batch signing request.
type PsbtSignItem struct {
	// Psbt is the hex or base64 encoded packet.
	Psbt string

	// Inputs optionally restricts signing to a subset of the inputs.
	Inputs fn.Option[[]ToSignInput]
}

// PsbtManager sequences the PSBT co-signing protocol. The cryptographic work
// is delegated to the keyring; the manager owns decoding, the order of the
// steps, and the guarantees about what is returned.
//
// The two signing flavours map to the two ways a site uses a PSBT:
//
//  1. SignAndFinalize: the wallet holds every key. The packet is signed,
//     finalized and extracted into a broadcastable transaction in one go.
//
//  2. SignPartial / SignPartialBatch: the wallet is one of several signers.
//     Signatures are added to the requested inputs, the packet stays open and
//     is handed back to the site to be finalized elsewhere.
type PsbtManager interface {
	// SignAndFinalize signs and finalizes the PSBT and returns the hex
	// encoded final transaction.
	SignAndFinalize(ctx context.Context, encoded string) (string, error)

	// SignPartial adds signatures to the PSBT without finalizing it and
	// returns the re-encoded packet.
	SignPartial(ctx context.Context, encoded string,
		inputs fn.Option[[]ToSignInput]) (string, error)

	// SignPartialBatch applies SignPartial to every item. The results are
	// positionally aligned with the items.
	SignPartialBatch(ctx context.Context, items []PsbtSignItem) ([]string,
		error)

	// PreviewFee returns the exact fee the PSBT would pay once fully
	// signed at the given fee rate.
	PreviewFee(ctx context.Context, encoded string,
		feeRate txfee.SatPerByte) (btcutil.Amount, error)
}

// A compile time check to ensure that Wallet implements the interface.
var _ PsbtManager = (*Wallet)(nil)

// SignAndFinalize decodes the PSBT, has the keyring sign and finalize every
// input and returns the extracted transaction as hex.
func (w *Wallet) SignAndFinalize(ctx context.Context,
	encoded string) (string, error) {

	packet, err := DecodePsbt(encoded)
	if err != nil {
		return "", err
	}

	tx, err := w.finalize(ctx, packet)
	if err != nil {
		return "", err
	}

	var b bytes.Buffer
	if err := tx.Serialize(&b); err != nil {
		return "", fmt.Errorf("unable to serialize tx: %w", err)
	}

	log.Debugf("Finalized tx %v", tx.TxHash())
	log.Tracef("Finalized tx: %v", newLogClosure(func() string {
		return spew.Sdump(tx)
	}))

	return hex.EncodeToString(b.Bytes()), nil
}

// SignPartial decodes the PSBT, has the keyring sign the requested inputs
// and returns the packet, still open, re-encoded as base64.
func (w *Wallet) SignPartial(ctx context.Context, encoded string,
	inputs fn.Option[[]ToSignInput]) (string, error) {

	packet, err := DecodePsbt(encoded)
	if err != nil {
		return "", err
	}

	// Reject out of range indexes before any key is touched.
	var idxErr error
	inputs.WhenSome(func(toSign []ToSignInput) {
		idxErr = validateInputIndexes(packet, toSign)
	})
	if idxErr != nil {
		return "", idxErr
	}

	// Keyring errors are surfaced verbatim.
	err = w.cfg.Keyring.SignPsbtPartial(ctx, packet, inputs)
	if err != nil {
		return "", err
	}

	log.Debugf("Partially signed psbt %v, unsigned inputs left: %v",
		packet.UnsignedTx.TxHash(), UnsignedInputs(packet))

	return EncodePsbt(packet)
}

// SignPartialBatch signs every item concurrently. Items own independent
// packets, so they share no state. The batch is all-or-nothing: the first
// failing item cancels the others and its error is returned without any
// result.
func (w *Wallet) SignPartialBatch(ctx context.Context,
	items []PsbtSignItem) ([]string, error) {

	results := make([]string, len(items))

	g, gCtx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			signed, err := w.SignPartial(
				gCtx, item.Psbt, item.Inputs,
			)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}

			// Each goroutine writes only its own slot.
			results[i] = signed

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// PreviewFee signs and finalizes a private copy of the PSBT to learn its real
// size and returns the fee it pays at feeRate, with the witness discount
// applied to every finalized witness. The signed packet is discarded.
func (w *Wallet) PreviewFee(ctx context.Context, encoded string,
	feeRate txfee.SatPerByte) (btcutil.Amount, error) {

	packet, err := DecodePsbt(encoded)
	if err != nil {
		return 0, err
	}

	tx, err := w.finalize(ctx, packet)
	if err != nil {
		return 0, err
	}

	rawSize := tx.SerializeSize()
	witness := witnessSize(packet)
	fee := txfee.WitnessDiscountedFee(rawSize, witness, feeRate)

	log.Debugf("Fee preview for %v: raw size %d, witness %d, rate %v, "+
		"fee %v", tx.TxHash(), rawSize, witness, feeRate, fee)

	return fee, nil
}

// finalize has the keyring sign and finalize the packet and extracts the
// final transaction.
func (w *Wallet) finalize(ctx context.Context,
	packet *psbt.Packet) (*wire.MsgTx, error) {

	err := w.cfg.Keyring.SignPsbtFinalizing(ctx, packet)
	if err != nil {
		return nil, err
	}

	return ExtractFinalTx(packet)
}

// validateInputIndexes makes sure every requested input exists.
func validateInputIndexes(packet *psbt.Packet, toSign []ToSignInput) error {
	numInputs := len(packet.UnsignedTx.TxIn)
	for _, in := range toSign {
		if int(in.Index) >= numInputs {
			return fmt.Errorf("%w: index %d, psbt has %d inputs",
				ErrInvalidInputIndex, in.Index, numInputs)
		}
	}

	return nil
}
