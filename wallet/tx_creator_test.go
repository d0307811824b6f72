// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testReceiver = "bcrt1qreceiver"

// TestCreateTransaction checks the complete spend pipeline.
func TestCreateTransaction(t *testing.T) {
	t.Parallel()

	// Arrange: One utxo funds the payment, the keyring assembles and
	// finalizes the packet and the account does not change.
	w, deps := createTestWalletWithMocks(t)
	utxos := makeUtxos(1, 200_000)
	unsigned := newTestPacket(t, 1, 0)

	deps.chain.On("GetSpendableUtxos", mock.Anything, testAddress,
		btcutil.Amount(100_374)).
		Return(utxos, nil).Once()

	expectedReq := &SpendRequest{
		FromAddress:     testAddress,
		Utxos:           utxos,
		ReceiverAddress: testReceiver,
		Amount:          100_000,
		FeeRate:         1,
		Network:         &chainParams,
	}
	deps.keyring.On("AssembleSpendTransaction", mock.Anything,
		expectedReq).
		Return(encodeTestPacket(t, unsigned), nil).Once()

	deps.accounts.On("CurrentAccount").
		Return(&Account{Address: testAddress}).Once()

	deps.keyring.On("SignPsbtFinalizing", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			finalizeTestPacket(t, args.Get(1).(*psbt.Packet))
		}).
		Return(nil).Once()

	// Act: Create the transaction.
	txHex, err := w.CreateTransaction(t.Context(), testAddress, &TxRequest{
		ReceiverAddress: testReceiver,
		Amount:          100_000,
		FeeRate:         1,
	})

	// Assert: The finalized transaction is returned.
	require.NoError(t, err)
	require.NotEmpty(t, txHex)
}

// TestCreateTransactionInvalidRequest checks that malformed requests are
// rejected before anything else happens.
func TestCreateTransactionInvalidRequest(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		req  *TxRequest
	}{
		{name: "nil request", req: nil},
		{
			name: "no receiver",
			req:  &TxRequest{Amount: 1_000, FeeRate: 1},
		},
		{
			name: "zero amount",
			req: &TxRequest{
				ReceiverAddress: testReceiver, FeeRate: 1,
			},
		},
		{
			name: "zero fee rate",
			req: &TxRequest{
				ReceiverAddress: testReceiver, Amount: 1_000,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Arrange: A wallet with no expectations.
			w, _ := createTestWalletWithMocks(t)

			// Act: Create the transaction.
			_, err := w.CreateTransaction(
				t.Context(), testAddress, tc.req,
			)

			// Assert: The request is refused.
			require.ErrorIs(t, err, ErrInvalidTxRequest)
		})
	}
}

// TestCreateTransactionAborts checks that a failure at any step aborts the
// pipeline and nothing later runs.
func TestCreateTransactionAborts(t *testing.T) {
	t.Parallel()

	req := &TxRequest{
		ReceiverAddress: testReceiver,
		Amount:          100_000,
		FeeRate:         1,
		ReceiverPaysFee: true,
	}

	t.Run("selection fails", func(t *testing.T) {
		t.Parallel()

		// Arrange: The chain has nothing to spend.
		w, deps := createTestWalletWithMocks(t)
		deps.chain.On("GetSpendableUtxos", mock.Anything, testAddress,
			btcutil.Amount(100_000)).
			Return([]Utxo{}, nil).Once()

		// Act: Create the transaction.
		_, err := w.CreateTransaction(t.Context(), testAddress, req)

		// Assert: Nothing is assembled.
		require.ErrorIs(t, err, ErrInsufficientFunds)
		deps.keyring.AssertNotCalled(
			t, "AssembleSpendTransaction", mock.Anything,
			mock.Anything,
		)
	})

	t.Run("assembly fails", func(t *testing.T) {
		t.Parallel()

		// Arrange: The keyring cannot assemble the spend.
		w, deps := createTestWalletWithMocks(t)
		deps.chain.On("GetSpendableUtxos", mock.Anything, testAddress,
			btcutil.Amount(100_000)).
			Return(makeUtxos(1, 100_000), nil).Once()
		deps.keyring.On("AssembleSpendTransaction", mock.Anything,
			mock.Anything).
			Return("", errKeyringMock).Once()

		// Act: Create the transaction.
		_, err := w.CreateTransaction(t.Context(), testAddress, req)

		// Assert: The keyring error surfaces as is.
		require.Equal(t, errKeyringMock, err)
	})

	t.Run("account switched before signing", func(t *testing.T) {
		t.Parallel()

		// Arrange: The user switches accounts while the transaction
		// is being assembled.
		w, deps := createTestWalletWithMocks(t)
		deps.chain.On("GetSpendableUtxos", mock.Anything, testAddress,
			btcutil.Amount(100_000)).
			Return(makeUtxos(1, 100_000), nil).Once()
		deps.keyring.On("AssembleSpendTransaction", mock.Anything,
			mock.Anything).
			Return(encodeTestPacket(t, newTestPacket(t, 1, 0)), nil).
			Once()
		deps.accounts.On("CurrentAccount").
			Return(&Account{Address: "bcrt1qother"}).Once()

		// Act: Create the transaction.
		_, err := w.CreateTransaction(t.Context(), testAddress, req)

		// Assert: Nothing is signed.
		require.ErrorIs(t, err, ErrAccountChanged)
		deps.keyring.AssertNotCalled(
			t, "SignPsbtFinalizing", mock.Anything, mock.Anything,
		)
	})
}
