// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcprovider/pkg/txfee"
)

const (
	// MaxUtxoCount is the largest number of utxos a single spend may be
	// built from. Larger sets must be consolidated first.
	MaxUtxoCount = 500

	// refineThreshold is the number of utxos above which the first probe
	// is considered too inaccurate and a second, refined query is issued.
	refineThreshold = 5

	// probeInputCount and spendOutputCount describe the transaction shape
	// assumed for the first probe: two inputs, a receiver output and a
	// change output.
	probeInputCount  = 2
	spendOutputCount = 2
)

var (
	// ErrInsufficientFunds is returned when the chain API cannot provide
	// utxos that cover the requested amount and the fee.
	ErrInsufficientFunds = errors.New("not enough utxos")

	// ErrTooManyUtxos is returned when covering the requested amount
	// would take more than MaxUtxoCount utxos.
	ErrTooManyUtxos = errors.New("consolidate utxos")
)

// UtxoSelector picks the utxos that fund a spend.
type UtxoSelector interface {
	// SelectUtxos returns the utxos of address that fund a payment of
	// target at the given fee rate.
	SelectUtxos(ctx context.Context, address string, target btcutil.Amount,
		feeRate txfee.SatPerByte, receiverPaysFee bool) ([]Utxo, error)
}

// A compile time check to ensure that Wallet implements the interface.
var _ UtxoSelector = (*Wallet)(nil)

// SelectUtxos queries the chain API for utxos funding a payment of target.
//
// The first query is a probe that assumes a 2-in/2-out transaction. If the
// probe reveals that more than a handful of inputs are needed and the sender
// pays the fee, the query is repeated with a fee estimate based on the real
// input count, since a large input set materially changes the size of the
// transaction. The returned set keeps the chain API's ordering.
func (w *Wallet) SelectUtxos(ctx context.Context, address string,
	target btcutil.Amount, feeRate txfee.SatPerByte,
	receiverPaysFee bool) ([]Utxo, error) {

	// The first probe uses a conservative 2-in/2-out fee estimate unless
	// the receiver covers the fee.
	initialTarget := target
	if !receiverPaysFee {
		initialTarget += txfee.EstimateFee(
			probeInputCount, spendOutputCount, feeRate,
		)
	}

	utxos, err := w.queryUtxos(ctx, address, initialTarget)
	if err != nil {
		return nil, err
	}

	// With more than a handful of inputs the probe estimate is off by
	// several inputs worth of fee, so we query again with the actual
	// candidate count.
	if len(utxos) > refineThreshold && !receiverPaysFee {
		refinedTarget := target + txfee.EstimateFee(
			len(utxos), spendOutputCount, feeRate,
		)

		log.Debugf("Refining utxo query for %s: %d candidates, "+
			"target %v -> %v", address, len(utxos), initialTarget,
			refinedTarget)

		utxos, err = w.queryUtxos(ctx, address, refinedTarget)
		if err != nil {
			return nil, err
		}
	}

	if len(utxos) == 0 {
		return nil, fmt.Errorf("%w: address %s, target %v",
			ErrInsufficientFunds, address, target)
	}

	// Make sure the set really covers the amount plus the fee of a
	// transaction spending exactly this set.
	required := target
	if !receiverPaysFee {
		required += txfee.EstimateFee(
			len(utxos), spendOutputCount, feeRate,
		)
	}

	total := sumUtxos(utxos)
	if total < required {
		return nil, fmt.Errorf("%w: have %v, need %v",
			ErrInsufficientFunds, total, required)
	}

	log.Debugf("Selected %d utxos worth %v for %s", len(utxos), total,
		address)

	return utxos, nil
}

// queryUtxos fetches utxos covering minTotal and rejects oversized sets
// before anything else is done with them.
func (w *Wallet) queryUtxos(ctx context.Context, address string,
	minTotal btcutil.Amount) ([]Utxo, error) {

	// Chain API errors are surfaced verbatim.
	utxos, err := w.cfg.Chain.GetSpendableUtxos(ctx, address, minTotal)
	if err != nil {
		return nil, err
	}

	if len(utxos) > MaxUtxoCount {
		return nil, fmt.Errorf("%w: %d utxos needed, max is %d",
			ErrTooManyUtxos, len(utxos), MaxUtxoCount)
	}

	return utxos, nil
}

// sumUtxos returns the total value of the given utxos.
func sumUtxos(utxos []Utxo) btcutil.Amount {
	var total btcutil.Amount
	for _, utxo := range utxos {
		total += utxo.Value
	}

	return total
}
