package protocol

import (
	"errors"
	"fmt"

	"github.com/arcadia-exchange/mpc/pkg/zk"
)

var (
	// ErrSessionAborted is returned by Advance once a session has reached
	// its terminal abort state. Aborts are permanent; callers start a
	// fresh session instead of retrying.
	ErrSessionAborted = errors.New("protocol: session aborted")

	// ErrSessionConsumed is returned by Advance after a session has
	// produced its result. Sessions are single-use.
	ErrSessionConsumed = errors.New("protocol: session already finished")

	// ErrOutOfOrderMessage is returned when an incoming message does not
	// belong to the round the session is waiting on.
	ErrOutOfOrderMessage = errors.New("protocol: out-of-order message")

	// ErrMalformedMessage is returned when an incoming message cannot be
	// decoded or fails basic validation.
	ErrMalformedMessage = errors.New("protocol: malformed message")

	// ErrSignatureInvalid is returned when the self-check of a freshly
	// combined signature fails; the signature is withheld.
	ErrSignatureInvalid = errors.New("protocol: produced signature failed verification")

	// ErrPeerMismatch is returned when the two parties derive different
	// joint public keys.
	ErrPeerMismatch = errors.New("protocol: joint public key mismatch")
)

// ProofError reports which proof rejected during a round, so the caller
// can tell peer misbehavior apart from local failures.
type ProofError struct {
	Proof zk.Kind
	Err   error
}

func (e *ProofError) Error() string {
	return fmt.Sprintf("protocol: verification of %s failed: %v", e.Proof, e.Err)
}

func (e *ProofError) Unwrap() error { return e.Err }

// AbortCode classifies why a session aborted.
type AbortCode string

const (
	// AbortProofFailed means the counterparty sent a proof that did not
	// verify; the peer is misbehaving or the channel is corrupted.
	AbortProofFailed AbortCode = "proof_verification_failed"

	// AbortMalformed means an incoming message could not be interpreted.
	AbortMalformed AbortCode = "malformed_message"

	// AbortMismatch means the parties disagreed on a jointly derived
	// value.
	AbortMismatch AbortCode = "peer_mismatch"

	// AbortSignatureInvalid means the combined signature failed the
	// final self-check.
	AbortSignatureInvalid AbortCode = "signature_verification_failed"

	// AbortInternal means a local operation failed (entropy exhaustion,
	// bounded retries spent).
	AbortInternal AbortCode = "internal_error"
)

// AbortReason is the terminal diagnosis of an aborted session.
type AbortReason struct {
	Code   AbortCode
	Proof  zk.Kind // set when Code is AbortProofFailed
	Detail string
}

func (r *AbortReason) String() string {
	if r.Proof != "" {
		return fmt.Sprintf("%s(%s): %s", r.Code, r.Proof, r.Detail)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Detail)
}

// abortReasonFor converts an error into its abort classification.
func abortReasonFor(err error) *AbortReason {
	var pe *ProofError
	switch {
	case errors.As(err, &pe):
		return &AbortReason{Code: AbortProofFailed, Proof: pe.Proof, Detail: pe.Err.Error()}
	case errors.Is(err, ErrMalformedMessage), errors.Is(err, ErrOutOfOrderMessage):
		return &AbortReason{Code: AbortMalformed, Detail: err.Error()}
	case errors.Is(err, ErrPeerMismatch):
		return &AbortReason{Code: AbortMismatch, Detail: err.Error()}
	case errors.Is(err, ErrSignatureInvalid):
		return &AbortReason{Code: AbortSignatureInvalid, Detail: err.Error()}
	default:
		return &AbortReason{Code: AbortInternal, Detail: err.Error()}
	}
}
