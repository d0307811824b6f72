// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcprovider/pkg/txfee"
	"github.com/btcsuite/btcprovider/wallet"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// createTxParams is the payment request of createTx.
type createTxParams struct {
	Address          string           `json:"address"`
	Amount           btcutil.Amount   `json:"amount"`
	FeeRate          txfee.SatPerByte `json:"feeRate"`
	ReceiverToPayFee bool             `json:"receiverToPayFee"`
}

// toSignInputParam selects one input to sign.
type toSignInputParam struct {
	Index        uint32   `json:"index"`
	SighashTypes []uint32 `json:"sighashTypes,omitempty"`
}

// signPsbtOptions are the options of signPsbt and of every multiPsbtSign
// item.
type signPsbtOptions struct {
	ToSignInputs []toSignInputParam `json:"toSignInputs,omitempty"`
}

// inputs converts the options to the wallet's input selection. A missing or
// empty list selects every input the keyring controls.
func (o *signPsbtOptions) inputs() fn.Option[[]wallet.ToSignInput] {
	if o == nil || len(o.ToSignInputs) == 0 {
		return fn.None[[]wallet.ToSignInput]()
	}

	toSign := make([]wallet.ToSignInput, 0, len(o.ToSignInputs))
	for _, in := range o.ToSignInputs {
		input := wallet.ToSignInput{Index: in.Index}
		for _, t := range in.SighashTypes {
			input.SighashTypes = append(
				input.SighashTypes, txscript.SigHashType(t),
			)
		}
		toSign = append(toSign, input)
	}

	return fn.Some(toSign)
}

// multiPsbtItem is one entry of a multiPsbtSign request.
type multiPsbtItem struct {
	PsbtBase64 string           `json:"psbtBase64"`
	Options    *signPsbtOptions `json:"options,omitempty"`
}

// InscribeTransferResult is the result of inscribeTransfer.
type InscribeTransferResult struct {
	MintedAmount json.RawMessage `json:"mintedAmount"`
}

// connect returns the address of the selected account, or an empty string
// if none is selected.
func (g *Gate) connect(_ context.Context, s *Session, _ *Request) (any,
	error) {

	if s.Wallet == nil || s.Account == nil {
		return "", nil
	}

	return s.Account.Address, nil
}

func (g *Gate) getVersion(context.Context, *Session, *Request) (any, error) {
	return Version(), nil
}

// isConnected reports whether the calling origin is connected.
func (g *Gate) isConnected(ctx context.Context, s *Session, _ *Request) (any,
	error) {

	return g.cfg.Permissions.IsOriginConnected(ctx, s.Origin)
}

// getBalance returns the confirmed balance of the account in satoshi.
func (g *Gate) getBalance(ctx context.Context, s *Session, _ *Request) (any,
	error) {

	stats, err := g.cfg.Chain.GetAccountStats(ctx, s.Account.Address)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		return nil, fmt.Errorf("%w: no stats for %s",
			ErrChainDisconnected, s.Account.Address)
	}

	return stats.Balance, nil
}

func (g *Gate) getAccountName(_ context.Context, s *Session,
	_ *Request) (any, error) {

	return s.Account.Name, nil
}

func (g *Gate) getAccount(_ context.Context, s *Session, _ *Request) (any,
	error) {

	return s.Account.Address, nil
}

// getPublicKey returns the hex encoded public key of the account.
func (g *Gate) getPublicKey(ctx context.Context, s *Session,
	_ *Request) (any, error) {

	if err := g.ensureAccount(s); err != nil {
		return nil, err
	}

	return g.cfg.Keyring.ExportPublicKey(ctx, s.Account.Address)
}

// calculateFee returns the exact fee of a PSBT once signed. Params are
// [psbtBase64, feeRate].
func (g *Gate) calculateFee(ctx context.Context, s *Session,
	req *Request) (any, error) {

	var (
		encoded string
		feeRate txfee.SatPerByte
	)
	if err := req.param(0, &encoded); err != nil {
		return nil, err
	}
	if err := req.param(1, &feeRate); err != nil {
		return nil, err
	}

	if err := g.ensureAccount(s); err != nil {
		return nil, err
	}

	return g.cfg.Builder.PreviewFee(ctx, encoded, feeRate)
}

// signMessage signs a text with the account key. Params are [text].
func (g *Gate) signMessage(ctx context.Context, s *Session,
	req *Request) (any, error) {

	var text string
	if err := req.param(0, &text); err != nil {
		return nil, err
	}

	if err := g.ensureAccount(s); err != nil {
		return nil, err
	}

	return g.cfg.Keyring.SignMessage(ctx, s.Account.Address, text)
}

// createTx funds, signs and finalizes a payment from the account and returns
// the transaction hex. Params are [{address, amount, feeRate,
// receiverToPayFee}].
func (g *Gate) createTx(ctx context.Context, s *Session, req *Request) (any,
	error) {

	var params createTxParams
	if err := req.param(0, &params); err != nil {
		return nil, err
	}

	if err := g.ensureAccount(s); err != nil {
		return nil, err
	}

	txHex, err := g.cfg.Builder.CreateTransaction(
		ctx, s.Account.Address, &wallet.TxRequest{
			ReceiverAddress: params.Address,
			Amount:          params.Amount,
			FeeRate:         params.FeeRate,
			ReceiverPaysFee: params.ReceiverToPayFee,
		},
	)
	if err != nil {
		return nil, mapAccountChanged(err)
	}

	return txHex, nil
}

// signPsbt adds the account's signatures to a PSBT without finalizing it.
// Params are [psbtBase64, {toSignInputs}?].
func (g *Gate) signPsbt(ctx context.Context, s *Session, req *Request) (any,
	error) {

	var (
		encoded string
		options *signPsbtOptions
	)
	if err := req.param(0, &encoded); err != nil {
		return nil, err
	}
	if err := req.optionalParam(1, &options); err != nil {
		return nil, err
	}

	if err := g.ensureAccount(s); err != nil {
		return nil, err
	}

	return g.cfg.Builder.SignPartial(ctx, encoded, options.inputs())
}

// multiPsbtSign signs several PSBTs at once. Params are
// [[{psbtBase64, options}...]]. The results keep the order of the items.
func (g *Gate) multiPsbtSign(ctx context.Context, s *Session,
	req *Request) (any, error) {

	var items []multiPsbtItem
	if err := req.param(0, &items); err != nil {
		return nil, err
	}

	if err := g.ensureAccount(s); err != nil {
		return nil, err
	}

	signItems := make([]wallet.PsbtSignItem, 0, len(items))
	for _, item := range items {
		signItems = append(signItems, wallet.PsbtSignItem{
			Psbt:   item.PsbtBase64,
			Inputs: item.Options.inputs(),
		})
	}

	return g.cfg.Builder.SignPartialBatch(ctx, signItems)
}

// inscribeTransfer echoes the minted amount reported by the approval flow.
func (g *Gate) inscribeTransfer(_ context.Context, _ *Session,
	req *Request) (any, error) {

	var result InscribeTransferResult
	var decodeErr error
	req.Approval.WhenSome(func(a ApprovalResult) {
		if len(a.Payload) == 0 {
			return
		}

		decodeErr = json.Unmarshal(a.Payload, &result)
	})
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: approval payload: %v",
			ErrInvalidParams, decodeErr)
	}

	return &result, nil
}
