// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package provider implements the site facing side of the wallet: a static
// registry assigning every operation a trust tier, and a gate that enforces
// the tier of a request before handing it to the operation's handler.
//
// The gate checks, in order:
//
//  1. The operation is registered.
//  2. The origin is within its request rate.
//  3. For Connected and Approval tier operations, an account is selected
//     and the origin was connected by the user.
//  4. For Approval tier operations, the request carries the result of a
//     matching user approval.
//
// A request failing a check never reaches its handler. Approval is a two call
// protocol: the first call fails with ErrApprovalRequired, the UI runs the
// approval flow, and the call is retried with the approval result attached.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcprovider/wallet"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// TxBuilder is the transaction building side of the wallet used by the
// fund and key touching handlers.
type TxBuilder interface {
	wallet.TxCreator
	wallet.PsbtManager
}

// Config holds the collaborators and settings of a Gate.
type Config struct {
	// Accounts gives access to the currently selected wallet and account.
	Accounts wallet.AccountSource

	// Permissions reports which origins the user connected.
	Permissions wallet.PermissionChecker

	// Chain is used to query account balances.
	Chain wallet.ChainAPI

	// Keyring signs messages and exports public keys.
	Keyring wallet.Keyring

	// Builder creates and signs transactions.
	Builder TxBuilder

	// RateLimit is the number of requests per second allowed per origin.
	// Zero disables rate limiting.
	RateLimit rate.Limit

	// RateBurst is the number of requests an origin may make at once.
	RateBurst int

	// Registerer, if set, receives the dispatch metrics.
	Registerer prometheus.Registerer
}

// handlerFunc serves an authorized request.
type handlerFunc func(ctx context.Context, s *Session,
	req *Request) (any, error)

// Gate authorizes requests and dispatches them to their handlers. It holds
// no per-request state and is safe for concurrent use.
type Gate struct {
	cfg Config

	handlers map[OperationID]handlerFunc
	limiter  *originLimiter
	metrics  *dispatchMetrics
}

// NewGate creates a gate from the given config.
func NewGate(cfg Config) (*Gate, error) {
	switch {
	case cfg.Accounts == nil:
		return nil, fmt.Errorf("%w: account source",
			wallet.ErrMissingCollaborator)

	case cfg.Permissions == nil:
		return nil, fmt.Errorf("%w: permission checker",
			wallet.ErrMissingCollaborator)

	case cfg.Chain == nil:
		return nil, fmt.Errorf("%w: chain api",
			wallet.ErrMissingCollaborator)

	case cfg.Keyring == nil:
		return nil, fmt.Errorf("%w: keyring",
			wallet.ErrMissingCollaborator)

	case cfg.Builder == nil:
		return nil, fmt.Errorf("%w: tx builder",
			wallet.ErrMissingCollaborator)
	}

	metrics, err := newDispatchMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("unable to register metrics: %w", err)
	}

	g := &Gate{
		cfg:     cfg,
		limiter: newOriginLimiter(cfg.RateLimit, cfg.RateBurst, 0),
		metrics: metrics,
	}

	g.handlers = map[OperationID]handlerFunc{
		OpConnect:          g.connect,
		OpGetVersion:       g.getVersion,
		OpIsConnected:      g.isConnected,
		OpGetBalance:       g.getBalance,
		OpGetAccountName:   g.getAccountName,
		OpGetAccount:       g.getAccount,
		OpGetPublicKey:     g.getPublicKey,
		OpCalculateFee:     g.calculateFee,
		OpSignMessage:      g.signMessage,
		OpCreateTx:         g.createTx,
		OpSignPsbt:         g.signPsbt,
		OpMultiPsbtSign:    g.multiPsbtSign,
		OpInscribeTransfer: g.inscribeTransfer,
	}

	for _, id := range Operations() {
		if _, ok := g.handlers[id]; !ok {
			return nil, fmt.Errorf("no handler for operation %v", id)
		}
	}

	return g, nil
}

// Dispatch authorizes the request and invokes its handler. The handler's
// result and error are returned unchanged.
func (g *Gate) Dispatch(ctx context.Context, req *Request) (any, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidParams)
	}

	start := time.Now()
	result, err := g.dispatch(ctx, req)
	g.metrics.observe(req.Method, err, time.Since(start))

	if err != nil {
		log.Debugf("Request %v from %s failed: %v", req.Method,
			req.Origin, err)

		return nil, err
	}

	log.Tracef("Request %v from %s served in %v", req.Method, req.Origin,
		time.Since(start))

	return result, nil
}

// dispatch runs the checks of the operation's tier and then its handler.
func (g *Gate) dispatch(ctx context.Context, req *Request) (any, error) {
	desc, ok := LookupOperation(req.Method)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, req.Method)
	}

	if !g.limiter.allow(req.Origin, time.Now()) {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, req.Origin)
	}

	session, err := g.authorize(ctx, desc, req)
	if err != nil {
		return nil, err
	}

	return g.handlers[desc.ID](ctx, session, req)
}

// authorize snapshots the caller identity and enforces the tier of desc.
func (g *Gate) authorize(ctx context.Context, desc OperationDescriptor,
	req *Request) (*Session, error) {

	session := &Session{
		Origin:  req.Origin,
		Account: g.cfg.Accounts.CurrentAccount(),
		Wallet:  g.cfg.Accounts.CurrentWallet(),
	}

	if desc.Tier == TierSafe {
		return session, nil
	}

	if session.Wallet == nil || session.Account == nil ||
		session.Account.Address == "" {

		return nil, fmt.Errorf("%w: no account selected",
			ErrAccountDisconnected)
	}

	connected, err := g.cfg.Permissions.IsOriginConnected(ctx, req.Origin)
	if err != nil {
		return nil, fmt.Errorf("unable to check connection of %s: %w",
			req.Origin, err)
	}
	if !connected {
		return nil, fmt.Errorf("%w: origin %s is not connected",
			ErrAccountDisconnected, req.Origin)
	}

	if desc.RequiresApproval() {
		if err := checkApproval(desc, req.Approval); err != nil {
			return nil, err
		}
	}

	return session, nil
}

// checkApproval fails with ErrApprovalRequired unless approval is present and
// of a kind accepted by desc.
func checkApproval(desc OperationDescriptor,
	approval fn.Option[ApprovalResult]) error {

	var accepted bool
	approval.WhenSome(func(a ApprovalResult) {
		accepted = desc.ApprovalKinds.Contains(a.Kind)
	})

	if !accepted {
		return fmt.Errorf("%w: %v needs one of %v", ErrApprovalRequired,
			desc.ID, desc.ApprovalKinds.ToSlice())
	}

	return nil
}

// ensureAccount fails with ErrAccountDisconnected unless the account
// selected when the request was dispatched is still the current one.
func (g *Gate) ensureAccount(s *Session) error {
	current := g.cfg.Accounts.CurrentAccount()
	if current == nil || s.Account == nil ||
		current.Address != s.Account.Address {

		return fmt.Errorf("%w: account changed while serving request",
			ErrAccountDisconnected)
	}

	return nil
}

// mapAccountChanged reports a wallet side account switch as a disconnected
// account.
func mapAccountChanged(err error) error {
	if errors.Is(err, wallet.ErrAccountChanged) {
		return fmt.Errorf("%w: %w", ErrAccountDisconnected, err)
	}

	return err
}
