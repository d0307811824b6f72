// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keyring

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcprovider/wallet"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/davecgh/go-spew/spew"
)

var (
	// ErrNoUtxos is returned when a spend request carries no utxos.
	ErrNoUtxos = errors.New("no utxos to spend")

	// ErrDustOutput is returned when the receiver output would be dust
	// once the fee is deducted from it.
	ErrDustOutput = errors.New("receiver output is dust")
)

// AssembleSpendTransaction builds an unsigned PSBT spending every utxo of the
// request and returns it hex encoded. Every input carries its witness utxo so
// the packet can be signed without further lookups.
//
// When the sender pays, the fee is added on top of the amount and change is
// returned to the key's address. When the receiver pays, the fee is deducted
// from the receiver output and the whole difference between inputs and amount
// is returned as change.
func (k *SingleKey) AssembleSpendTransaction(_ context.Context,
	req *wallet.SpendRequest) (string, error) {

	if err := k.ownsAddress(req.FromAddress); err != nil {
		return "", err
	}

	if len(req.Utxos) == 0 {
		return "", ErrNoUtxos
	}

	params := req.Network
	if params == nil {
		params = k.params
	}

	receiver, err := btcutil.DecodeAddress(req.ReceiverAddress, params)
	if err != nil {
		return "", fmt.Errorf("invalid receiver address: %w", err)
	}

	receiverScript, err := txscript.PayToAddrScript(receiver)
	if err != nil {
		return "", fmt.Errorf("unable to create receiver script: %w",
			err)
	}

	var tx *wire.MsgTx
	if req.ReceiverPaysFee {
		tx, err = k.receiverPaysTx(req, receiverScript)
	} else {
		tx, err = k.senderPaysTx(req, receiverScript)
	}
	if err != nil {
		return "", err
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return "", fmt.Errorf("unable to create psbt: %w", err)
	}

	if err := k.addWitnessUtxos(packet, req.Utxos); err != nil {
		return "", err
	}

	log.Debugf("Assembled spend of %v to %s from %d utxos",
		req.Amount, req.ReceiverAddress, len(req.Utxos))
	log.Tracef("Assembled tx: %v", newLogClosure(func() string {
		return spew.Sdump(tx)
	}))

	return wallet.EncodePsbtHex(packet)
}

// senderPaysTx lets txauthor fund the receiver output plus fee from the given
// utxos and add change back to the key.
func (k *SingleKey) senderPaysTx(req *wallet.SpendRequest,
	receiverScript []byte) (*wire.MsgTx, error) {

	outputs := []*wire.TxOut{
		wire.NewTxOut(int64(req.Amount), receiverScript),
	}

	changeSource := &txauthor.ChangeSource{
		ScriptSize: txsizes.P2WPKHPkScriptSize,
		NewScript: func() ([]byte, error) {
			return k.pkScript, nil
		},
	}

	authored, err := txauthor.NewUnsignedTransaction(
		outputs, req.FeeRate.FeePerKVByte(),
		k.constantInputSource(req.Utxos), changeSource,
	)
	if err != nil {
		return nil, err
	}

	// Randomize the position of the change output, if one was created.
	if authored.ChangeIndex >= 0 {
		authored.RandomizeChangePosition()
	}

	return authored.Tx, nil
}

// receiverPaysTx spends every utxo, deducts the fee from the receiver output
// and returns the rest as change when it is not dust.
func (k *SingleKey) receiverPaysTx(req *wallet.SpendRequest,
	receiverScript []byte) (*wire.MsgTx, error) {

	tx := wire.NewMsgTx(wire.TxVersion)

	var total btcutil.Amount
	for _, utxo := range req.Utxos {
		outPoint := utxo.OutPoint()
		tx.AddTxIn(wire.NewTxIn(&outPoint, nil, nil))
		total += utxo.Value
	}

	if total < req.Amount {
		return nil, fmt.Errorf("%w: have %v, need %v",
			wallet.ErrInsufficientFunds, total, req.Amount)
	}

	receiverOut := wire.NewTxOut(int64(req.Amount), receiverScript)
	outputs := []*wire.TxOut{receiverOut}

	change := total - req.Amount
	withChange := change > 0 && !txrules.IsDustOutput(
		wire.NewTxOut(int64(change), k.pkScript),
		txrules.DefaultRelayFeePerKb,
	)

	changeScriptSize := 0
	if withChange {
		changeScriptSize = txsizes.P2WPKHPkScriptSize
	}

	vsize := txsizes.EstimateVirtualSize(
		0, 0, len(req.Utxos), 0, outputs, changeScriptSize,
	)
	fee := req.FeeRate.FeeForSize(vsize)

	receiverValue := req.Amount - fee
	if receiverValue <= 0 || txrules.IsDustOutput(
		wire.NewTxOut(int64(receiverValue), receiverScript),
		txrules.DefaultRelayFeePerKb,
	) {

		return nil, fmt.Errorf("%w: %v after a fee of %v",
			ErrDustOutput, receiverValue, fee)
	}

	receiverOut.Value = int64(receiverValue)
	tx.AddTxOut(receiverOut)

	if withChange {
		tx.AddTxOut(wire.NewTxOut(int64(change), k.pkScript))
	}

	return tx, nil
}

// constantInputSource creates an input source that always returns every
// given utxo. The utxos were already picked by the selector, so txauthor only
// decides on the fee and the change.
func (k *SingleKey) constantInputSource(
	utxos []wallet.Utxo) txauthor.InputSource {

	currentTotal := btcutil.Amount(0)
	currentInputs := make([]*wire.TxIn, 0, len(utxos))
	currentScripts := make([][]byte, 0, len(utxos))
	currentInputValues := make([]btcutil.Amount, 0, len(utxos))

	for _, utxo := range utxos {
		outPoint := utxo.OutPoint()
		currentInputs = append(
			currentInputs, wire.NewTxIn(&outPoint, nil, nil),
		)
		currentTotal += utxo.Value
		currentScripts = append(currentScripts, k.pkScript)
		currentInputValues = append(currentInputValues, utxo.Value)
	}

	return func(target btcutil.Amount) (btcutil.Amount, []*wire.TxIn,
		[]btcutil.Amount, [][]byte, error) {

		return currentTotal, currentInputs, currentInputValues,
			currentScripts, nil
	}
}

// addWitnessUtxos attaches the previous output of every input. Inputs are
// matched to utxos by outpoint, not by position.
func (k *SingleKey) addWitnessUtxos(packet *psbt.Packet,
	utxos []wallet.Utxo) error {

	values := make(map[wire.OutPoint]btcutil.Amount, len(utxos))
	for _, utxo := range utxos {
		values[utxo.OutPoint()] = utxo.Value
	}

	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return fmt.Errorf("unable to create psbt updater: %w", err)
	}

	for idx, txIn := range packet.UnsignedTx.TxIn {
		value, ok := values[txIn.PreviousOutPoint]
		if !ok {
			return fmt.Errorf("no utxo for input %d (%v)", idx,
				txIn.PreviousOutPoint)
		}

		err := updater.AddInWitnessUtxo(
			wire.NewTxOut(int64(value), k.pkScript), idx,
		)
		if err != nil {
			return fmt.Errorf("unable to add witness utxo to "+
				"input %d: %w", idx, err)
		}
	}

	return nil
}
