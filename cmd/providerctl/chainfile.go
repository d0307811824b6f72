// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcprovider/wallet"
)

// fileUtxo is an output as listed in the utxo file.
type fileUtxo struct {
	TxID      string `json:"txid"`
	Vout      uint32 `json:"vout"`
	Value     int64  `json:"value"`
	Spendable *bool  `json:"spendable,omitempty"`
}

// fileChain answers chain queries from a static list of outputs of a single
// address. It lets providerctl build transactions without a chain backend.
type fileChain struct {
	address string
	utxos   []wallet.Utxo
}

// A compile time check to ensure that fileChain implements the interface.
var _ wallet.ChainAPI = (*fileChain)(nil)

// loadFileChain reads the outputs of address from path. An empty path
// yields a chain without outputs.
func loadFileChain(path, address string) (*fileChain, error) {
	chain := &fileChain{address: address}
	if path == "" {
		return chain, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []fileUtxo
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}

	for i, e := range entries {
		txid, err := chainhash.NewHashFromStr(e.TxID)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		if e.Value <= 0 {
			return nil, fmt.Errorf("entry %d: invalid value %d", i,
				e.Value)
		}

		spendable := true
		if e.Spendable != nil {
			spendable = *e.Spendable
		}

		chain.utxos = append(chain.utxos, wallet.Utxo{
			TxID:      *txid,
			Vout:      e.Vout,
			Value:     btcutil.Amount(e.Value),
			Spendable: spendable,
		})
	}

	log.Debugf("Loaded %d outputs from %s", len(chain.utxos), path)

	return chain, nil
}

// GetAccountStats returns the total value of the listed outputs.
func (c *fileChain) GetAccountStats(_ context.Context,
	address string) (*wallet.AccountStats, error) {

	if address != c.address {
		return nil, nil
	}

	stats := &wallet.AccountStats{}
	txids := make(map[chainhash.Hash]struct{})
	for _, u := range c.utxos {
		stats.Balance += u.Value
		txids[u.TxID] = struct{}{}
	}
	stats.TxCount = uint64(len(txids))

	return stats, nil
}

// GetSpendableUtxos picks spendable outputs, largest first, until minTotal is
// covered. It returns nil if all of them together fall short.
func (c *fileChain) GetSpendableUtxos(_ context.Context, address string,
	minTotal btcutil.Amount) ([]wallet.Utxo, error) {

	if address != c.address {
		return nil, nil
	}

	candidates := make([]wallet.Utxo, 0, len(c.utxos))
	for _, u := range c.utxos {
		if u.Spendable {
			candidates = append(candidates, u)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Value > candidates[j].Value
	})

	var total btcutil.Amount
	for i, u := range candidates {
		total += u.Value
		if total >= minTotal {
			return candidates[:i+1], nil
		}
	}

	return nil, nil
}
