// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet implements the transaction building side of the provider:
// UTXO selection against an evolving fee estimate, the PSBT co-signing
// protocol and the orchestration that turns a payment request into a
// finalized transaction.
//
// The package owns no key material and no persistent state. Keys, chain data
// and the selected account are reached through the collaborator interfaces
// declared in interface.go.
package wallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

var (
	// ErrMissingCollaborator is returned by New when a required
	// collaborator is not set in the config.
	ErrMissingCollaborator = errors.New("missing collaborator")

	// ErrAccountChanged is returned when the current account becomes
	// undefined or is switched while a request is being served.
	ErrAccountChanged = errors.New("current account changed")
)

// Config holds the collaborators the wallet delegates to.
type Config struct {
	// Accounts gives access to the currently selected account.
	Accounts AccountSource

	// Chain is used to query spendable outputs.
	Chain ChainAPI

	// Keyring performs all signing.
	Keyring Keyring

	// ChainParams are the parameters of the chain transactions are
	// built for.
	ChainParams *chaincfg.Params
}

// Wallet is the stateless transaction builder and PSBT co-signer. It is safe
// for concurrent use as long as its collaborators are.
type Wallet struct {
	cfg Config
}

// New creates a new Wallet from the given config.
func New(cfg Config) (*Wallet, error) {
	switch {
	case cfg.Accounts == nil:
		return nil, fmt.Errorf("%w: account source", ErrMissingCollaborator)

	case cfg.Chain == nil:
		return nil, fmt.Errorf("%w: chain api", ErrMissingCollaborator)

	case cfg.Keyring == nil:
		return nil, fmt.Errorf("%w: keyring", ErrMissingCollaborator)
	}

	if cfg.ChainParams == nil {
		cfg.ChainParams = &chaincfg.MainNetParams
	}

	return &Wallet{cfg: cfg}, nil
}

// ChainParams returns the parameters of the chain the wallet builds
// transactions for.
func (w *Wallet) ChainParams() *chaincfg.Params {
	return w.cfg.ChainParams
}

// ensureAccount fails with ErrAccountChanged unless the currently selected
// account still has the given address.
func (w *Wallet) ensureAccount(address string) error {
	account := w.cfg.Accounts.CurrentAccount()
	if account == nil {
		return fmt.Errorf("%w: no account selected", ErrAccountChanged)
	}

	if account.Address != address {
		return fmt.Errorf("%w: expected %s, got %s", ErrAccountChanged,
			address, account.Address)
	}

	return nil
}
