package applier

import (
	"errors"
	"fmt"

	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/state"
)

// Status is the terminal classification of one transaction.
type Status uint8

// Classification statuses.
const (
	// StatusApplied: the full diff (fee debit plus all payload effects) is
	// committed atomically.
	StatusApplied Status = iota + 1

	// StatusFailed: the sender authorized the transaction but its effects
	// were discarded; only the fee debit is committed and the failure is
	// recorded on-chain.
	StatusFailed

	// StatusInvalid: the transaction is excluded from the block entirely,
	// with no state change at all, not even a fee debit.
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusFailed:
		return "failed"
	case StatusInvalid:
		return "invalid"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Outcome is the result of classifying one transaction.
type Outcome struct {
	Status Status

	// Diff is the full diff for Applied, the fee-only diff for Failed,
	// and nil for Invalid.
	Diff *state.Diff

	// Reason explains Failed and Invalid outcomes; nil for Applied.
	Reason error
}

// Invalid reasons (transaction-fatal, never charged).
var (
	// ErrAuthorizationFailed: an account verifier evaluated to false or
	// errored, or a counterparty signature check failed.
	ErrAuthorizationFailed = errors.New("account authorization failed")

	// ErrMalformedPayload: the payload fails structural validation.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrCannotPayFee: the sender's balance cannot cover the fee debit, so
	// not even a fee-only diff could be committed.
	ErrCannotPayFee = errors.New("sender cannot cover the fee")
)

// Failed reasons (fee-bearing, effects discarded).
var (
	// ErrAssetScriptDenied: an asset's governing script denied a movement.
	ErrAssetScriptDenied = errors.New("asset script denied")

	// ErrInsufficientFunds: a balance cannot cover a requested movement
	// after the fee debit.
	ErrInsufficientFunds = errors.New("insufficient funds for action")

	// ErrScriptError: the invoked contract body threw or errored.
	ErrScriptError = errors.New("script execution error")

	// ErrNotIssuer: a supply or sponsorship action on an asset the acting
	// account did not issue.
	ErrNotIssuer = errors.New("acting account is not the asset issuer")

	// ErrNoSuchContract: the invocation target has no dApp script.
	ErrNoSuchContract = errors.New("invocation target is not a contract")

	// ErrAssetNotScripted: a script replacement on an asset that was issued
	// without a governing script.
	ErrAssetNotScripted = errors.New("asset was issued without a script")

	// ErrTooManyActions: a contract emitted more actions than allowed.
	ErrTooManyActions = errors.New("too many contract actions")
)

// applied, failed and invalid build the three terminal outcomes.

func applied(diff *state.Diff) Outcome {
	return Outcome{Status: StatusApplied, Diff: diff}
}

func failed(feeDiff *state.Diff, reason error) Outcome {
	return Outcome{Status: StatusFailed, Diff: feeDiff, Reason: reason}
}

func invalid(reason error) Outcome {
	return Outcome{Status: StatusInvalid, Reason: reason}
}

// denied wraps an asset id into an ErrAssetScriptDenied reason.
func denied(asset types.AssetID) error {
	return fmt.Errorf("asset %s: %w", asset.String(), ErrAssetScriptDenied)
}
