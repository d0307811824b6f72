// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package provider

import (
	"github.com/lightningnetwork/lnd/fn/v2"
)

// OperationID names an operation a site can invoke.
type OperationID string

const (
	OpConnect          OperationID = "connect"
	OpGetVersion       OperationID = "getVersion"
	OpIsConnected      OperationID = "isConnected"
	OpGetBalance       OperationID = "getBalance"
	OpGetAccountName   OperationID = "getAccountName"
	OpGetAccount       OperationID = "getAccount"
	OpGetPublicKey     OperationID = "getPublicKey"
	OpCalculateFee     OperationID = "calculateFee"
	OpSignMessage      OperationID = "signMessage"
	OpCreateTx         OperationID = "createTx"
	OpSignPsbt         OperationID = "signPsbt"
	OpMultiPsbtSign    OperationID = "multiPsbtSign"
	OpInscribeTransfer OperationID = "inscribeTransfer"
)

// TrustTier is the authorization level an operation requires. Tiers are
// ordered, a higher tier implies every check of the lower ones.
type TrustTier uint8

const (
	// TierSafe operations need neither an account nor a connection.
	TierSafe TrustTier = iota

	// TierConnected operations need a selected account and a site the
	// user connected.
	TierConnected

	// TierApproval operations additionally need an explicit user
	// approval of a specific kind.
	TierApproval
)

// String returns a human readable name of the tier.
func (t TrustTier) String() string {
	switch t {
	case TierSafe:
		return "safe"

	case TierConnected:
		return "connected"

	case TierApproval:
		return "approval"

	default:
		return "unknown"
	}
}

// ApprovalKind identifies the user confirmation flow an operation needs.
type ApprovalKind string

const (
	ApprovalSignText         ApprovalKind = "SignText"
	ApprovalCreateTx         ApprovalKind = "CreateTx"
	ApprovalSignPsbt         ApprovalKind = "signPsbt"
	ApprovalMultiPsbtSign    ApprovalKind = "multiPsbtSign"
	ApprovalInscribeTransfer ApprovalKind = "inscribeTransfer"
)

// OperationDescriptor describes the authorization requirements of an
// operation.
type OperationDescriptor struct {
	// ID is the operation the descriptor belongs to.
	ID OperationID

	// Tier is the trust tier the caller must satisfy.
	Tier TrustTier

	// ApprovalKinds lists the approvals accepted for the operation. It is
	// only set for TierApproval operations.
	ApprovalKinds fn.Set[ApprovalKind]
}

// RequiresApproval reports whether the operation needs a user approval.
func (d OperationDescriptor) RequiresApproval() bool {
	return d.Tier == TierApproval
}

// registry maps every operation to its descriptor. It is built once and never
// mutated.
var registry = map[OperationID]OperationDescriptor{
	OpConnect:      {ID: OpConnect, Tier: TierSafe},
	OpGetVersion:   {ID: OpGetVersion, Tier: TierSafe},
	OpIsConnected:  {ID: OpIsConnected, Tier: TierSafe},
	OpGetBalance:   {ID: OpGetBalance, Tier: TierConnected},
	OpGetAccount:   {ID: OpGetAccount, Tier: TierConnected},
	OpGetPublicKey: {ID: OpGetPublicKey, Tier: TierConnected},
	OpCalculateFee: {ID: OpCalculateFee, Tier: TierConnected},
	OpGetAccountName: {
		ID:   OpGetAccountName,
		Tier: TierConnected,
	},
	OpSignMessage: {
		ID:            OpSignMessage,
		Tier:          TierApproval,
		ApprovalKinds: fn.NewSet(ApprovalSignText),
	},
	OpCreateTx: {
		ID:            OpCreateTx,
		Tier:          TierApproval,
		ApprovalKinds: fn.NewSet(ApprovalCreateTx),
	},
	OpSignPsbt: {
		ID:            OpSignPsbt,
		Tier:          TierApproval,
		ApprovalKinds: fn.NewSet(ApprovalSignPsbt),
	},
	OpMultiPsbtSign: {
		ID:            OpMultiPsbtSign,
		Tier:          TierApproval,
		ApprovalKinds: fn.NewSet(ApprovalMultiPsbtSign),
	},
	OpInscribeTransfer: {
		ID:            OpInscribeTransfer,
		Tier:          TierApproval,
		ApprovalKinds: fn.NewSet(ApprovalInscribeTransfer),
	},
}

// LookupOperation returns the descriptor of id.
func LookupOperation(id OperationID) (OperationDescriptor, bool) {
	desc, ok := registry[id]
	return desc, ok
}

// Operations returns the ids of every registered operation.
func Operations() []OperationID {
	ids := make([]OperationID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}

	return ids
}
