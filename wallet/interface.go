// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcprovider/pkg/txfee"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Account is the read-only view of the account currently selected in the
// wallet. It is owned by the storage layer.
type Account struct {
	// Address is the receiving address of the account.
	Address string

	// PublicKey is the hex encoded public key of the account.
	PublicKey string

	// Name is the display name of the account.
	Name string

	// Balance is the last known balance, refreshed outside of this
	// package.
	Balance btcutil.Amount
}

// WalletInfo identifies the wallet currently selected in the storage layer.
type WalletInfo struct {
	// ID is the storage identifier of the wallet.
	ID int

	// Name is the display name of the wallet.
	Name string
}

// AccountStats is the account summary returned by the chain API.
type AccountStats struct {
	// Balance is the confirmed balance of the address.
	Balance btcutil.Amount

	// TxCount is the number of transactions touching the address.
	TxCount uint64
}

// Utxo is a spendable output as reported by the chain API. Utxos are fetched
// per request and never cached.
type Utxo struct {
	TxID      chainhash.Hash
	Vout      uint32
	Value     btcutil.Amount
	Spendable bool
}

// OutPoint returns the outpoint the utxo refers to.
func (u Utxo) OutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: u.TxID, Index: u.Vout}
}

// ToSignInput restricts partial signing to a single input of a PSBT.
type ToSignInput struct {
	// Index is the position of the input in the unsigned transaction.
	Index uint32

	// SighashTypes optionally lists the sighash types the caller accepts.
	// The first entry is used. SigHashAll is used when it is empty.
	SighashTypes []txscript.SigHashType
}

// SighashType returns the sighash type to sign the input with.
func (t ToSignInput) SighashType() txscript.SigHashType {
	if len(t.SighashTypes) == 0 {
		return txscript.SigHashAll
	}

	return t.SighashTypes[0]
}

// SpendRequest carries everything the keyring needs to assemble a spend
// transaction from already selected utxos.
type SpendRequest struct {
	// FromAddress is the address the utxos belong to. Change is returned
	// to it.
	FromAddress string

	// Utxos are the outputs picked by the selector.
	Utxos []Utxo

	ReceiverAddress string
	Amount          btcutil.Amount
	FeeRate         txfee.SatPerByte
	ReceiverPaysFee bool

	// Network is the chain the transaction is built for.
	Network *chaincfg.Params
}

// AccountSource gives read access to the process-wide "current" wallet and
// account. Both can become nil or change at any time.
type AccountSource interface {
	// CurrentAccount returns the selected account, or nil if none is
	// selected.
	CurrentAccount() *Account

	// CurrentWallet returns the selected wallet, or nil if none is
	// selected.
	CurrentWallet() *WalletInfo
}

// PermissionChecker reports whether a site has been connected by the user.
type PermissionChecker interface {
	// IsOriginConnected returns true if the given origin is connected.
	IsOriginConnected(ctx context.Context, origin string) (bool, error)
}

// ChainAPI is the network facing collaborator used to query balances and
// spendable outputs.
type ChainAPI interface {
	// GetAccountStats returns the stats of the given address. A nil
	// result with a nil error means the backend had no answer.
	GetAccountStats(ctx context.Context, address string) (*AccountStats,
		error)

	// GetSpendableUtxos returns spendable outputs of the address whose
	// total value covers minTotal. A nil or empty result means the
	// address cannot cover it.
	GetSpendableUtxos(ctx context.Context, address string,
		minTotal btcutil.Amount) ([]Utxo, error)
}

// Keyring owns the private key material. All cryptographic work is delegated
// to it; the sequencing of the signing protocol lives in this package.
type Keyring interface {
	// SignMessage signs a text message with the key of address.
	SignMessage(ctx context.Context, address, message string) (string,
		error)

	// ExportPublicKey returns the hex encoded public key of address.
	ExportPublicKey(ctx context.Context, address string) (string, error)

	// AssembleSpendTransaction builds an unsigned PSBT spending the
	// request's utxos and returns it in one of the textual PSBT
	// encodings.
	AssembleSpendTransaction(ctx context.Context,
		req *SpendRequest) (string, error)

	// SignPsbtFinalizing signs every input the keyring controls and
	// finalizes the packet.
	SignPsbtFinalizing(ctx context.Context, packet *psbt.Packet) error

	// SignPsbtPartial adds signatures for the given inputs, or for every
	// input the keyring controls when inputs is None, without finalizing.
	SignPsbtPartial(ctx context.Context, packet *psbt.Packet,
		inputs fn.Option[[]ToSignInput]) error
}
