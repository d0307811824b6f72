// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txfee provides the fee arithmetic used before and after a
// transaction is constructed: a pre-construction size estimate based on input
// and output counts, and an exact fee for a finalized transaction that applies
// the witness discount.
package txfee

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
)

const (
	// kilo is a generic multiplier for kilo units.
	kilo = 1000

	// witnessDiscountNumerator is the share of every witness byte that is
	// NOT counted towards the size of a transaction. One witness byte
	// weighs a single weight unit while a base byte weighs four, so three
	// quarters of it are discounted.
	witnessDiscountNumerator = blockchain.WitnessScaleFactor - 1

	// txVersionSize is the serialized size of a transaction version.
	txVersionSize = 4

	// txLockTimeSize is the serialized size of a transaction lock time.
	txLockTimeSize = 4

	// p2pkhInputSize is the size of a P2PKH input with a 72-byte
	// signature and a compressed public key: 32 prevout hash, 4 index,
	// 1 script length, 107 script and 4 sequence. It is the per-input
	// figure of the size model, used next to txsizes.P2PKHOutputSize.
	p2pkhInputSize = 148
)

// SatPerByte is a fee rate expressed in whole satoshis per byte. Sites always
// hand in integer fee rates, so this is the unit every public call of the
// provider is expressed in.
type SatPerByte btcutil.Amount

// FeePerKVByte converts the fee rate to sat/kvb, the unit the txauthor and
// txrules packages expect.
func (s SatPerByte) FeePerKVByte() btcutil.Amount {
	return btcutil.Amount(s) * kilo
}

// FeeForSize returns the fee for a transaction of the given size in bytes.
func (s SatPerByte) FeeForSize(size int) btcutil.Amount {
	if size <= 0 {
		return 0
	}

	return btcutil.Amount(s) * btcutil.Amount(size)
}

// String returns a human-readable string of the fee rate.
func (s SatPerByte) String() string {
	return fmt.Sprintf("%d sat/b", int64(s))
}

// EstimateSize returns the serialized size of a transaction spending
// inputCount P2PKH inputs into outputCount P2PKH outputs. This is the standard
// per-input/per-output byte model and is deliberately pessimistic for witness
// inputs, as it is only used to predict a fee before the real transaction
// exists.
func EstimateSize(inputCount, outputCount int) int {
	inputCount = max(inputCount, 0)
	outputCount = max(outputCount, 0)

	return txVersionSize +
		wire.VarIntSerializeSize(uint64(inputCount)) +
		wire.VarIntSerializeSize(uint64(outputCount)) +
		inputCount*p2pkhInputSize +
		outputCount*txsizes.P2PKHOutputSize +
		txLockTimeSize
}

// EstimateFee predicts the fee of a transaction with the given number of
// inputs and outputs at the given fee rate. The result is never a substitute
// for WitnessDiscountedFee once a finalized transaction is available.
func EstimateFee(inputCount, outputCount int,
	feeRate SatPerByte) btcutil.Amount {

	return feeRate.FeeForSize(EstimateSize(inputCount, outputCount))
}

// WitnessDiscountedFee returns the exact fee of a finalized transaction whose
// full serialization (witness included) is rawSize bytes long and which
// carries witnessBytes bytes of finalized witness data across its inputs.
//
// The fee is ceil((rawSize - 0.75 * witnessBytes) * feeRate). The division by
// the witness scale factor is done last so that no precision is lost.
func WitnessDiscountedFee(rawSize, witnessBytes int,
	feeRate SatPerByte) btcutil.Amount {

	// Express the discounted size in quarter bytes (weight units) to keep
	// all arithmetic integral.
	quarterBytes := int64(rawSize)*blockchain.WitnessScaleFactor -
		int64(witnessBytes)*witnessDiscountNumerator
	if quarterBytes <= 0 {
		return 0
	}

	scaled := quarterBytes * int64(feeRate)

	// Ceiling division by the scale factor.
	fee := (scaled + blockchain.WitnessScaleFactor - 1) /
		blockchain.WitnessScaleFactor

	return btcutil.Amount(fee)
}
