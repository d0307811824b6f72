// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	errChainMock   = errors.New("chain error")
	errKeyringMock = errors.New("keyring error")
)

var (
	// chainParams are the chain parameters used throughout the wallet
	// tests.
	chainParams = chaincfg.RegressionNetParams

	// testAddress is the address of the account selected in the tests.
	testAddress = "bcrt1qtestaccount"
)

var (
	_ AccountSource = (*mockAccounts)(nil)
	_ ChainAPI      = (*mockChainAPI)(nil)
	_ Keyring       = (*mockKeyring)(nil)
)

// mockAccounts is a mock implementation of the AccountSource interface.
type mockAccounts struct {
	mock.Mock
}

func (m *mockAccounts) CurrentAccount() *Account {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}

	return args.Get(0).(*Account)
}

func (m *mockAccounts) CurrentWallet() *WalletInfo {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}

	return args.Get(0).(*WalletInfo)
}

// mockChainAPI is a mock implementation of the ChainAPI interface.
type mockChainAPI struct {
	mock.Mock
}

func (m *mockChainAPI) GetAccountStats(ctx context.Context,
	address string) (*AccountStats, error) {

	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*AccountStats), args.Error(1)
}

func (m *mockChainAPI) GetSpendableUtxos(ctx context.Context, address string,
	minTotal btcutil.Amount) ([]Utxo, error) {

	args := m.Called(ctx, address, minTotal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]Utxo), args.Error(1)
}

// mockKeyring is a mock implementation of the Keyring interface.
type mockKeyring struct {
	mock.Mock
}

func (m *mockKeyring) SignMessage(ctx context.Context, address,
	message string) (string, error) {

	args := m.Called(ctx, address, message)
	return args.String(0), args.Error(1)
}

func (m *mockKeyring) ExportPublicKey(ctx context.Context,
	address string) (string, error) {

	args := m.Called(ctx, address)
	return args.String(0), args.Error(1)
}

func (m *mockKeyring) AssembleSpendTransaction(ctx context.Context,
	req *SpendRequest) (string, error) {

	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockKeyring) SignPsbtFinalizing(ctx context.Context,
	packet *psbt.Packet) error {

	args := m.Called(ctx, packet)
	return args.Error(0)
}

func (m *mockKeyring) SignPsbtPartial(ctx context.Context, packet *psbt.Packet,
	inputs fn.Option[[]ToSignInput]) error {

	args := m.Called(ctx, packet, inputs)
	return args.Error(0)
}

// mockWalletDeps holds the mocked dependencies for the Wallet.
type mockWalletDeps struct {
	accounts *mockAccounts
	chain    *mockChainAPI
	keyring  *mockKeyring
}

// createTestWalletWithMocks creates a Wallet instance with mocked
// dependencies. It returns the wallet and the struct holding the mocks for
// assertion.
func createTestWalletWithMocks(t *testing.T) (*Wallet, *mockWalletDeps) {
	t.Helper()

	deps := &mockWalletDeps{
		accounts: &mockAccounts{},
		chain:    &mockChainAPI{},
		keyring:  &mockKeyring{},
	}

	w, err := New(Config{
		Accounts:    deps.accounts,
		Chain:       deps.chain,
		Keyring:     deps.keyring,
		ChainParams: &chainParams,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		deps.accounts.AssertExpectations(t)
		deps.chain.AssertExpectations(t)
		deps.keyring.AssertExpectations(t)
	})

	return w, deps
}

// makeUtxos returns n spendable utxos of the given value with distinct
// outpoints.
func makeUtxos(n int, value btcutil.Amount) []Utxo {
	utxos := make([]Utxo, n)
	for i := range utxos {
		utxos[i] = Utxo{
			TxID:      chainhash.Hash{byte(i), byte(i >> 8)},
			Vout:      uint32(i),
			Value:     value,
			Spendable: true,
		}
	}

	return utxos
}

// newTestPacket returns an unsigned packet with numInputs inputs and a single
// output. The lock time makes otherwise identical packets distinguishable.
func newTestPacket(t *testing.T, numInputs int, lockTime uint32) *psbt.Packet {
	t.Helper()

	tx := wire.NewMsgTx(2)
	tx.LockTime = lockTime
	for i := range numInputs {
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: wire.OutPoint{
				Hash:  chainhash.Hash{0xaa, byte(i)},
				Index: uint32(i),
			},
		})
	}
	tx.AddTxOut(wire.NewTxOut(10_000, []byte{
		0x00, 0x14, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12,
		0x13, 0x14,
	}))

	packet, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)

	return packet
}

// encodeTestPacket returns the base64 encoding of the packet.
func encodeTestPacket(t *testing.T, packet *psbt.Packet) string {
	t.Helper()

	encoded, err := packet.B64Encode()
	require.NoError(t, err)

	return encoded
}

// finalizeTestPacket stands in for a keyring finalizing the packet: every
// input gets a final witness made of a dummy 72 byte signature and a dummy 33
// byte public key, 108 bytes once serialized.
func finalizeTestPacket(t *testing.T, packet *psbt.Packet) {
	t.Helper()

	witness := wire.TxWitness{make([]byte, 72), make([]byte, 33)}

	var b bytes.Buffer
	require.NoError(t, psbt.WriteTxWitness(&b, witness))

	for i := range packet.Inputs {
		packet.Inputs[i].FinalScriptWitness = b.Bytes()
	}
}
