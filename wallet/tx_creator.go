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

var (
	// ErrInvalidTxRequest is returned when a TxRequest is malformed.
	ErrInvalidTxRequest = errors.New("invalid tx request")
)

// TxRequest is a site's request to pay an amount to a receiver.
type TxRequest struct {
	// ReceiverAddress is the address that receives Amount.
	ReceiverAddress string

	// Amount is the value sent to the receiver, in satoshis.
	Amount btcutil.Amount

	// FeeRate is the fee rate in sat/b.
	FeeRate txfee.SatPerByte

	// ReceiverPaysFee indicates that the fee is deducted from Amount
	// instead of being paid on top of it.
	ReceiverPaysFee bool
}

// validate checks the request for values that can never produce a valid
// transaction.
func (r *TxRequest) validate() error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: nil request", ErrInvalidTxRequest)

	case r.ReceiverAddress == "":
		return fmt.Errorf("%w: missing receiver", ErrInvalidTxRequest)

	case r.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive, got %v",
			ErrInvalidTxRequest, r.Amount)

	case r.FeeRate < 1:
		return fmt.Errorf("%w: fee rate must be at least 1 sat/b, "+
			"got %v", ErrInvalidTxRequest, r.FeeRate)
	}

	return nil
}

// TxCreator turns a payment request into a finalized transaction.
type TxCreator interface {
	// CreateTransaction funds, builds, signs and finalizes a payment from
	// address and returns the hex encoded transaction.
	CreateTransaction(ctx context.Context, address string,
		req *TxRequest) (string, error)
}

// A compile time check to ensure that Wallet implements the interface.
var _ TxCreator = (*Wallet)(nil)

// CreateTransaction runs the full spend pipeline for the account at address:
//  1. Selection: SelectUtxos funds the request.
//  2. Assembly: the keyring builds an unsigned PSBT from the selected utxos.
//  3. Identity check: the current account must still be address, so nothing
//     is signed on behalf of an account the user switched away from.
//  4. Signing: SignAndFinalize produces the final transaction.
//
// Any failure aborts the pipeline. Either the complete transaction is
// returned or nothing is.
func (w *Wallet) CreateTransaction(ctx context.Context, address string,
	req *TxRequest) (string, error) {

	if err := req.validate(); err != nil {
		return "", err
	}

	utxos, err := w.SelectUtxos(
		ctx, address, req.Amount, req.FeeRate, req.ReceiverPaysFee,
	)
	if err != nil {
		return "", err
	}

	unsigned, err := w.cfg.Keyring.AssembleSpendTransaction(
		ctx, &SpendRequest{
			FromAddress:     address,
			Utxos:           utxos,
			ReceiverAddress: req.ReceiverAddress,
			Amount:          req.Amount,
			FeeRate:         req.FeeRate,
			ReceiverPaysFee: req.ReceiverPaysFee,
			Network:         w.cfg.ChainParams,
		},
	)
	if err != nil {
		return "", err
	}

	if err := w.ensureAccount(address); err != nil {
		return "", err
	}

	txHex, err := w.SignAndFinalize(ctx, unsigned)
	if err != nil {
		return "", err
	}

	log.Infof("Created tx paying %v to %s from %d utxos at %v",
		req.Amount, req.ReceiverAddress, len(utxos), req.FeeRate)

	return txHex, nil
}
