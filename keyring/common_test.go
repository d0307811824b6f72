// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keyring

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcprovider/pkg/txfee"
	"github.com/btcsuite/btcprovider/wallet"
	"github.com/stretchr/testify/require"
)

var (
	// chainParams are the chain parameters used throughout the keyring
	// tests.
	chainParams = chaincfg.RegressionNetParams
)

// newTestKeyring returns a keyring for a private key derived from seed.
func newTestKeyring(t *testing.T, seed byte) *SingleKey {
	t.Helper()

	privKey, _ := btcec.PrivKeyFromBytes(
		chainhash.DoubleHashB([]byte{seed}),
	)

	k, err := New(privKey, &chainParams)
	require.NoError(t, err)

	return k
}

// testUtxos returns utxos of the given values with distinct outpoints.
func testUtxos(values ...btcutil.Amount) []wallet.Utxo {
	utxos := make([]wallet.Utxo, len(values))
	for i, value := range values {
		utxos[i] = wallet.Utxo{
			TxID:      chainhash.Hash{0xbb, byte(i)},
			Vout:      uint32(i),
			Value:     value,
			Spendable: true,
		}
	}

	return utxos
}

// assemble builds an unsigned packet spending utxos of k to receiver.
func assemble(t *testing.T, k *SingleKey, receiver string,
	amount btcutil.Amount, rate uint64, receiverPays bool,
	utxos []wallet.Utxo) *psbt.Packet {

	t.Helper()

	encoded, err := k.AssembleSpendTransaction(
		t.Context(), &wallet.SpendRequest{
			FromAddress:     k.Address(),
			Utxos:           utxos,
			ReceiverAddress: receiver,
			Amount:          amount,
			FeeRate:         txfee.SatPerByte(rate),
			ReceiverPaysFee: receiverPays,
			Network:         &chainParams,
		},
	)
	require.NoError(t, err)

	packet, err := wallet.DecodePsbt(encoded)
	require.NoError(t, err)

	return packet
}

// addForeignInput appends an input spending an output of other to the
// packet.
func addForeignInput(t *testing.T, packet *psbt.Packet, other *SingleKey,
	value int64) int {

	t.Helper()

	packet.UnsignedTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{
		Hash:  chainhash.Hash{0xcc},
		Index: 7,
	}, nil, nil))
	packet.Inputs = append(packet.Inputs, psbt.PInput{
		WitnessUtxo: wire.NewTxOut(value, other.PkScript()),
	})

	return len(packet.Inputs) - 1
}

// verifyInputs runs the script engine on every input of tx.
func verifyInputs(t *testing.T, tx *wire.MsgTx,
	fetcher txscript.PrevOutputFetcher) {

	t.Helper()

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for idx, txIn := range tx.TxIn {
		prevOut := fetcher.FetchPrevOutput(txIn.PreviousOutPoint)
		require.NotNil(t, prevOut)

		vm, err := txscript.NewEngine(
			prevOut.PkScript, tx, idx,
			txscript.StandardVerifyFlags, nil, sigHashes,
			prevOut.Value, fetcher,
		)
		require.NoError(t, err)
		require.NoError(t, vm.Execute(), "input %d", idx)
	}
}
