// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcprovider/pkg/txfee"
	"github.com/btcsuite/btcprovider/wallet"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	errPermissionMock = errors.New("permission error")
	errChainMock      = errors.New("chain error")
	errKeyringMock    = errors.New("keyring error")
)

const (
	// testOrigin is the site making the requests in the tests.
	testOrigin = "https://app.example"

	// testAddress is the address of the selected account.
	testAddress = "bcrt1qselectedaccount"
)

var (
	testAccount = &wallet.Account{
		Address:   testAddress,
		PublicKey: "02aa",
		Name:      "main",
		Balance:   50_000,
	}

	testWallet = &wallet.WalletInfo{ID: 1, Name: "default"}
)

var (
	_ wallet.AccountSource     = (*mockAccounts)(nil)
	_ wallet.PermissionChecker = (*mockPermissions)(nil)
	_ wallet.ChainAPI          = (*mockChainAPI)(nil)
	_ wallet.Keyring           = (*mockKeyring)(nil)
	_ TxBuilder                = (*mockBuilder)(nil)
)

// mockAccounts is a mock implementation of the AccountSource interface.
type mockAccounts struct {
	mock.Mock
}

func (m *mockAccounts) CurrentAccount() *wallet.Account {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}

	return args.Get(0).(*wallet.Account)
}

func (m *mockAccounts) CurrentWallet() *wallet.WalletInfo {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}

	return args.Get(0).(*wallet.WalletInfo)
}

// mockPermissions is a mock implementation of the PermissionChecker
// interface.
type mockPermissions struct {
	mock.Mock
}

func (m *mockPermissions) IsOriginConnected(ctx context.Context,
	origin string) (bool, error) {

	args := m.Called(ctx, origin)
	return args.Bool(0), args.Error(1)
}

// mockChainAPI is a mock implementation of the ChainAPI interface.
type mockChainAPI struct {
	mock.Mock
}

func (m *mockChainAPI) GetAccountStats(ctx context.Context,
	address string) (*wallet.AccountStats, error) {

	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*wallet.AccountStats), args.Error(1)
}

func (m *mockChainAPI) GetSpendableUtxos(ctx context.Context, address string,
	minTotal btcutil.Amount) ([]wallet.Utxo, error) {

	args := m.Called(ctx, address, minTotal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]wallet.Utxo), args.Error(1)
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
	req *wallet.SpendRequest) (string, error) {

	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockKeyring) SignPsbtFinalizing(ctx context.Context,
	packet *psbt.Packet) error {

	args := m.Called(ctx, packet)
	return args.Error(0)
}

func (m *mockKeyring) SignPsbtPartial(ctx context.Context, packet *psbt.Packet,
	inputs fn.Option[[]wallet.ToSignInput]) error {

	args := m.Called(ctx, packet, inputs)
	return args.Error(0)
}

// mockBuilder is a mock implementation of the TxBuilder interface.
type mockBuilder struct {
	mock.Mock
}

func (m *mockBuilder) CreateTransaction(ctx context.Context, address string,
	req *wallet.TxRequest) (string, error) {

	args := m.Called(ctx, address, req)
	return args.String(0), args.Error(1)
}

func (m *mockBuilder) SignAndFinalize(ctx context.Context,
	encoded string) (string, error) {

	args := m.Called(ctx, encoded)
	return args.String(0), args.Error(1)
}

func (m *mockBuilder) SignPartial(ctx context.Context, encoded string,
	inputs fn.Option[[]wallet.ToSignInput]) (string, error) {

	args := m.Called(ctx, encoded, inputs)
	return args.String(0), args.Error(1)
}

func (m *mockBuilder) SignPartialBatch(ctx context.Context,
	items []wallet.PsbtSignItem) ([]string, error) {

	args := m.Called(ctx, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *mockBuilder) PreviewFee(ctx context.Context, encoded string,
	feeRate txfee.SatPerByte) (btcutil.Amount, error) {

	args := m.Called(ctx, encoded, feeRate)
	return args.Get(0).(btcutil.Amount), args.Error(1)
}

// mockGateDeps holds the mocked dependencies of the Gate.
type mockGateDeps struct {
	accounts    *mockAccounts
	permissions *mockPermissions
	chain       *mockChainAPI
	keyring     *mockKeyring
	builder     *mockBuilder
}

// createTestGateWithMocks creates a Gate with mocked dependencies and no rate
// limit. The given function may adjust the config before the gate is built.
func createTestGateWithMocks(t *testing.T,
	modify ...func(*Config)) (*Gate, *mockGateDeps) {

	t.Helper()

	deps := &mockGateDeps{
		accounts:    &mockAccounts{},
		permissions: &mockPermissions{},
		chain:       &mockChainAPI{},
		keyring:     &mockKeyring{},
		builder:     &mockBuilder{},
	}

	cfg := Config{
		Accounts:    deps.accounts,
		Permissions: deps.permissions,
		Chain:       deps.chain,
		Keyring:     deps.keyring,
		Builder:     deps.builder,
	}
	for _, m := range modify {
		m(&cfg)
	}

	g, err := NewGate(cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		deps.accounts.AssertExpectations(t)
		deps.permissions.AssertExpectations(t)
		deps.chain.AssertExpectations(t)
		deps.keyring.AssertExpectations(t)
		deps.builder.AssertExpectations(t)
	})

	return g, deps
}

// selectAccount makes testAccount the selected account for the whole test.
func (d *mockGateDeps) selectAccount() {
	d.accounts.On("CurrentAccount").Return(testAccount).Maybe()
	d.accounts.On("CurrentWallet").Return(testWallet).Maybe()
}

// connectOrigin selects testAccount and connects testOrigin.
func (d *mockGateDeps) connectOrigin() {
	d.selectAccount()
	d.permissions.On(
		"IsOriginConnected", mock.Anything, testOrigin,
	).Return(true, nil).Maybe()
}

// assertNoSideEffect checks that neither the keyring nor the builder was
// used.
func (d *mockGateDeps) assertNoSideEffect(t *testing.T) {
	t.Helper()

	d.keyring.AssertNotCalled(t, "SignMessage", mock.Anything,
		mock.Anything, mock.Anything)
	d.keyring.AssertNotCalled(t, "ExportPublicKey", mock.Anything,
		mock.Anything)
	d.builder.AssertNotCalled(t, "CreateTransaction", mock.Anything,
		mock.Anything, mock.Anything)
	d.builder.AssertNotCalled(t, "SignPartial", mock.Anything,
		mock.Anything, mock.Anything)
	d.builder.AssertNotCalled(t, "SignPartialBatch", mock.Anything,
		mock.Anything)
	d.builder.AssertNotCalled(t, "PreviewFee", mock.Anything,
		mock.Anything, mock.Anything)
}

// newRequest returns a request from testOrigin with the JSON encoded params.
func newRequest(t *testing.T, method OperationID,
	params ...any) *Request {

	t.Helper()

	req := &Request{Origin: testOrigin, Method: method}
	for _, p := range params {
		raw, err := json.Marshal(p)
		require.NoError(t, err)

		req.Params = append(req.Params, raw)
	}

	return req
}

// approved attaches an approval of the given kind to req.
func approved(req *Request, kind ApprovalKind, payload string) *Request {
	result := ApprovalResult{Kind: kind}
	if payload != "" {
		result.Payload = json.RawMessage(payload)
	}
	req.Approval = fn.Some(result)

	return req
}
