// Package zk implements the non-interactive zero-knowledge proofs the
// two-party protocol exchanges: Paillier modulus correctness, plaintext
// knowledge, range boundedness, discrete-log knowledge, and consistency
// between a Paillier ciphertext and the curve commitments to the same
// value. All proofs are Fiat-Shamir transformed over a SHAKE256
// transcript; verification is a pure function of statement and transcript.
package zk

import (
	"errors"
	"sync"

	"github.com/samber/lo"
)

// Kind names a proof system, used in abort reasons so a failed session
// can report exactly which verification rejected.
type Kind string

const (
	KindMod         Kind = "paillier_modulus_proof"
	KindDLog        Kind = "dlog_proof"
	KindEnc         Kind = "plaintext_knowledge_proof"
	KindRange       Kind = "range_proof"
	KindConsistency Kind = "consistency_proof"
)

// Parameters shared by the proof systems. WitnessBits bounds every secret
// committed or encrypted by the protocol; the challenge and slack widths
// set soundness error and statistical hiding respectively.
const (
	WitnessBits   = 248
	ChallengeBits = 128
	SlackBits     = 64
	RangeRounds   = 128
)

var (
	// ErrVerificationFailed is the rejection result shared by every
	// verifier in this package.
	ErrVerificationFailed = errors.New("zk: proof verification failed")

	// ErrMalformedProof is returned when a transcript cannot even be
	// interpreted against its statement.
	ErrMalformedProof = errors.New("zk: malformed proof")
)

// VerifyAll runs independent verifications concurrently and returns the
// first rejection, if any. The checks are pure functions, so evaluation
// order is irrelevant.
func VerifyAll(checks ...func() error) error {
	errs := make([]error, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = check()
		}()
	}
	wg.Wait()

	if err, found := lo.Find(errs, func(e error) bool { return e != nil }); found {
		return err
	}
	return nil
}
