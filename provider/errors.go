// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package provider

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcprovider/wallet"
)

var (
	// ErrUnknownOperation is returned when a request names an operation
	// that is not registered.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrAccountDisconnected is returned when an operation needs a
	// selected account and a connected site but one of them is missing,
	// or when the account changed while the request was served.
	ErrAccountDisconnected = errors.New("account disconnected")

	// ErrApprovalRequired is returned when an Approval tier operation is
	// called without a matching approval result. The caller must run the
	// approval flow and retry with its result attached.
	ErrApprovalRequired = errors.New("user approval required")

	// ErrInvalidParams is returned when the parameters of a request
	// cannot be decoded.
	ErrInvalidParams = errors.New("invalid params")

	// ErrRateLimited is returned when an origin sends requests faster
	// than allowed.
	ErrRateLimited = errors.New("rate limited")

	// ErrChainDisconnected is returned when the chain API had no answer
	// for a query.
	ErrChainDisconnected = errors.New("chain disconnected")
)

// Error codes reported to sites, following the EIP-1193 provider and
// JSON-RPC conventions.
const (
	CodeUserRejected        = 4001
	CodeUnauthorized        = 4100
	CodeDisconnected        = 4900
	CodeChainDisconnected   = 4901
	CodeMethodNotFound      = -32601
	CodeInvalidParams       = -32602
	CodeLimitExceeded       = -32005
	CodeInternal            = -32603
	CodeResourceUnavailable = -32002
)

// ProviderError is the classified form of an error as reported to sites.
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// Classify maps err to the code reported to sites. The message is always the
// full error text. Classify returns nil for a nil error.
func Classify(err error) *ProviderError {
	if err == nil {
		return nil
	}

	var code int
	switch {
	case errors.Is(err, ErrUnknownOperation):
		code = CodeMethodNotFound

	case errors.Is(err, ErrAccountDisconnected),
		errors.Is(err, wallet.ErrAccountChanged):

		code = CodeUnauthorized

	case errors.Is(err, ErrApprovalRequired):
		code = CodeUserRejected

	case errors.Is(err, ErrInvalidParams),
		errors.Is(err, wallet.ErrInvalidTxRequest),
		errors.Is(err, wallet.ErrInvalidPsbtEncoding),
		errors.Is(err, wallet.ErrInvalidInputIndex):

		code = CodeInvalidParams

	case errors.Is(err, ErrRateLimited):
		code = CodeLimitExceeded

	case errors.Is(err, ErrChainDisconnected):
		code = CodeChainDisconnected

	case errors.Is(err, wallet.ErrInsufficientFunds),
		errors.Is(err, wallet.ErrTooManyUtxos):

		code = CodeResourceUnavailable

	default:
		code = CodeInternal
	}

	return &ProviderError{Code: code, Message: err.Error()}
}
