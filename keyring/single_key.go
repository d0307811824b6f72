// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keyring provides SingleKey, an in-memory keyring holding one
// secp256k1 key and its P2WPKH address. It implements the wallet.Keyring
// contract and is what the command line tools sign with.
package keyring

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcprovider/wallet"
)

// messageMagic is the prefix of every Bitcoin signed message.
const messageMagic = "Bitcoin Signed Message:\n"

var (
	// ErrUnknownAddress is returned when an operation names an address
	// the keyring has no key for.
	ErrUnknownAddress = errors.New("unknown address")

	// ErrWrongNetwork is returned when a WIF was encoded for a different
	// network than the one the keyring is created for.
	ErrWrongNetwork = errors.New("key is for a different network")

	// ErrInvalidSignature is returned when a message signature cannot be
	// decoded or recovered.
	ErrInvalidSignature = errors.New("invalid message signature")
)

// A compile time check to ensure that SingleKey implements the interface.
var _ wallet.Keyring = (*SingleKey)(nil)

// SingleKey is a keyring for exactly one key. It spends from and signs for the
// P2WPKH address of that key only. SingleKey is immutable after creation and
// safe for concurrent use.
type SingleKey struct {
	privKey  *btcec.PrivateKey
	pubKey   *btcec.PublicKey
	addr     *btcutil.AddressWitnessPubKeyHash
	pkScript []byte
	params   *chaincfg.Params
}

// New creates a keyring for the given private key on the given network.
func New(privKey *btcec.PrivateKey, params *chaincfg.Params) (*SingleKey,
	error) {

	pubKey := privKey.PubKey()
	pkHash := btcutil.Hash160(pubKey.SerializeCompressed())

	addr, err := btcutil.NewAddressWitnessPubKeyHash(pkHash, params)
	if err != nil {
		return nil, fmt.Errorf("unable to derive address: %w", err)
	}

	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("unable to create pkScript: %w", err)
	}

	return &SingleKey{
		privKey:  privKey,
		pubKey:   pubKey,
		addr:     addr,
		pkScript: pkScript,
		params:   params,
	}, nil
}

// FromWIF decodes a WIF encoded private key and creates a keyring for it.
func FromWIF(encoded string, params *chaincfg.Params) (*SingleKey, error) {
	wif, err := btcutil.DecodeWIF(encoded)
	if err != nil {
		return nil, fmt.Errorf("unable to decode wif: %w", err)
	}

	if !wif.IsForNet(params) {
		return nil, fmt.Errorf("%w: expected %s", ErrWrongNetwork,
			params.Name)
	}

	return New(wif.PrivKey, params)
}

// Address returns the encoded P2WPKH address of the key.
func (k *SingleKey) Address() string {
	return k.addr.EncodeAddress()
}

// PkScript returns the output script paying to the key.
func (k *SingleKey) PkScript() []byte {
	return k.pkScript
}

// Account returns the account view of the key under the given display name.
func (k *SingleKey) Account(name string) *wallet.Account {
	return &wallet.Account{
		Address:   k.Address(),
		PublicKey: hex.EncodeToString(k.pubKey.SerializeCompressed()),
		Name:      name,
	}
}

// ownsAddress fails with ErrUnknownAddress unless address is the address of
// the key.
func (k *SingleKey) ownsAddress(address string) error {
	if address != k.Address() {
		return fmt.Errorf("%w: %s", ErrUnknownAddress, address)
	}

	return nil
}

// ownsScript reports whether pkScript pays to the key.
func (k *SingleKey) ownsScript(pkScript []byte) bool {
	return bytes.Equal(pkScript, k.pkScript)
}

// ExportPublicKey returns the hex encoded compressed public key of address.
func (k *SingleKey) ExportPublicKey(_ context.Context,
	address string) (string, error) {

	if err := k.ownsAddress(address); err != nil {
		return "", err
	}

	return hex.EncodeToString(k.pubKey.SerializeCompressed()), nil
}

// SignMessage signs message in the Bitcoin signed message format and returns
// the base64 encoded compact signature.
func (k *SingleKey) SignMessage(_ context.Context, address,
	message string) (string, error) {

	if err := k.ownsAddress(address); err != nil {
		return "", err
	}

	hash, err := messageHash(message)
	if err != nil {
		return "", err
	}

	sig := ecdsa.SignCompact(k.privKey, hash, true)

	log.Debugf("Signed %d byte message for %s", len(message), address)

	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyMessage reports whether signature is a valid signature of message by
// the key.
func (k *SingleKey) VerifyMessage(message, signature string) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	hash, err := messageHash(message)
	if err != nil {
		return false, err
	}

	pubKey, _, err := ecdsa.RecoverCompact(sig, hash)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	return pubKey.IsEqual(k.pubKey), nil
}

// messageHash returns the double SHA-256 of the magic prefixed message.
func messageHash(message string) ([]byte, error) {
	var b bytes.Buffer
	if err := wire.WriteVarString(&b, 0, messageMagic); err != nil {
		return nil, err
	}
	if err := wire.WriteVarString(&b, 0, message); err != nil {
		return nil, err
	}

	return chainhash.DoubleHashB(b.Bytes()), nil
}
