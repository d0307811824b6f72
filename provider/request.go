// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package provider

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcprovider/wallet"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Request is a single call made by a site. It must not be modified once
// dispatched.
type Request struct {
	// Origin identifies the calling site.
	Origin string `json:"origin"`

	// Method is the operation to invoke.
	Method OperationID `json:"method"`

	// Params are the positional arguments of the operation.
	Params []json.RawMessage `json:"params,omitempty"`

	// Approval is the result of the user approval flow. It is only set
	// when the call is retried after the user confirmed it.
	Approval fn.Option[ApprovalResult] `json:"-"`
}

// ApprovalResult is the outcome of a user approval flow, handed back to the
// gate on the retried call.
type ApprovalResult struct {
	// Kind is the approval flow the user went through.
	Kind ApprovalKind `json:"kind"`

	// Payload is the opaque data produced by the flow.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is the snapshot of the caller identity taken by the gate when a
// request is dispatched.
type Session struct {
	// Origin is the calling site.
	Origin string

	// Account is the account selected when the request was dispatched.
	// It may be nil for Safe tier operations.
	Account *wallet.Account

	// Wallet is the wallet selected when the request was dispatched.
	Wallet *wallet.WalletInfo
}

// param decodes the positional parameter at idx into v.
func (r *Request) param(idx int, v any) error {
	if idx >= len(r.Params) {
		return fmt.Errorf("%w: missing parameter %d", ErrInvalidParams,
			idx)
	}

	if err := json.Unmarshal(r.Params[idx], v); err != nil {
		return fmt.Errorf("%w: parameter %d: %v", ErrInvalidParams, idx,
			err)
	}

	return nil
}

// optionalParam decodes the positional parameter at idx into v if it is
// present and not null.
func (r *Request) optionalParam(idx int, v any) error {
	if idx >= len(r.Params) || string(r.Params[idx]) == "null" {
		return nil
	}

	return r.param(idx, v)
}
