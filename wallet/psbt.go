// Copyright (c) 2020 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrInvalidPsbtEncoding is returned when a PSBT string is neither
	// valid hex nor valid base64.
	ErrInvalidPsbtEncoding = errors.New("invalid psbt encoding")

	// ErrPsbtNotFinalized is returned when a transaction is requested
	// from a PSBT that still has open inputs.
	ErrPsbtNotFinalized = errors.New("psbt is not finalized")

	// psbtMagic is the serialized prefix of every PSBT, "psbt" followed by
	// the 0xff separator.
	psbtMagic = []byte{0x70, 0x73, 0x62, 0x74, 0xff}
)

// DecodePsbt parses a PSBT from either of its two textual encodings, hex or
// base64. Hex is tried first since every hex string that carries the PSBT
// magic is unambiguous, while many hex strings are also valid base64.
func DecodePsbt(encoded string) (*psbt.Packet, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidPsbtEncoding)
	}

	raw, err := hex.DecodeString(encoded)
	if err == nil && bytes.HasPrefix(raw, psbtMagic) {
		packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPsbtEncoding,
				err)
		}

		return packet, nil
	}

	packet, err := psbt.NewFromRawBytes(strings.NewReader(encoded), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPsbtEncoding, err)
	}

	return packet, nil
}

// EncodePsbt serializes the packet to base64, the encoding sites exchange.
func EncodePsbt(packet *psbt.Packet) (string, error) {
	encoded, err := packet.B64Encode()
	if err != nil {
		return "", fmt.Errorf("unable to encode psbt: %w", err)
	}

	return encoded, nil
}

// EncodePsbtHex serializes the packet to hex.
func EncodePsbtHex(packet *psbt.Packet) (string, error) {
	var b bytes.Buffer
	if err := packet.Serialize(&b); err != nil {
		return "", fmt.Errorf("unable to serialize psbt: %w", err)
	}

	return hex.EncodeToString(b.Bytes()), nil
}

// ExtractFinalTx returns the network-ready transaction of a finalized packet.
// Packets with open inputs are rejected.
func ExtractFinalTx(packet *psbt.Packet) (*wire.MsgTx, error) {
	if !packet.IsComplete() {
		return nil, fmt.Errorf("%w: unsigned inputs %v",
			ErrPsbtNotFinalized, UnsignedInputs(packet))
	}

	tx, err := psbt.Extract(packet)
	if err != nil {
		return nil, fmt.Errorf("unable to extract tx: %w", err)
	}

	return tx, nil
}

// UnsignedInputs returns the indexes of the inputs that carry neither a
// signature nor a final script.
func UnsignedInputs(packet *psbt.Packet) []uint32 {
	var unsigned []uint32
	for i, in := range packet.Inputs {
		signed := len(in.PartialSigs) > 0 ||
			len(in.TaprootKeySpendSig) > 0 ||
			len(in.TaprootScriptSpendSig) > 0 ||
			len(in.FinalScriptSig) > 0 ||
			len(in.FinalScriptWitness) > 0

		if !signed {
			unsigned = append(unsigned, uint32(i))
		}
	}

	return unsigned
}

// witnessSize returns the total size of the finalized witnesses of all
// inputs.
func witnessSize(packet *psbt.Packet) int {
	var size int
	for _, in := range packet.Inputs {
		size += len(in.FinalScriptWitness)
	}

	return size
}

// PsbtPrevOutputFetcher returns a txscript.PrevOutFetcher built from the UTXO
// information in a PSBT packet.
func PsbtPrevOutputFetcher(packet *psbt.Packet) *txscript.MultiPrevOutFetcher {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for idx, txIn := range packet.UnsignedTx.TxIn {
		in := packet.Inputs[idx]

		// Skip any input that has no UTXO.
		if in.WitnessUtxo == nil && in.NonWitnessUtxo == nil {
			continue
		}

		if in.NonWitnessUtxo != nil {
			// PSBTs come from untrusted sites, so the previous
			// output index is not guaranteed to exist.
			prevIndex := txIn.PreviousOutPoint.Index
			if int(prevIndex) >= len(in.NonWitnessUtxo.TxOut) {
				continue
			}

			fetcher.AddPrevOut(
				txIn.PreviousOutPoint,
				in.NonWitnessUtxo.TxOut[prevIndex],
			)

			continue
		}

		fetcher.AddPrevOut(txIn.PreviousOutPoint, in.WitnessUtxo)
	}

	return fetcher
}
