package protocol

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arcadia-exchange/mpc/pkg/arith"
	"github.com/arcadia-exchange/mpc/pkg/curve"
	"github.com/arcadia-exchange/mpc/pkg/encoding"
	"github.com/arcadia-exchange/mpc/pkg/zk"
)

// SignState names the phases of the signing state machine.
type SignState string

const (
	SignStart            SignState = "Start"
	SignNonceCommit      SignState = "NonceCommit"
	SignNonceReveal      SignState = "NonceReveal"
	SignPartialSignature SignState = "PartialSignature"
	SignCombine          SignState = "Combine"
	SignDone             SignState = "Done"
	SignAborted          SignState = "Aborted"
)

// SigningStatus is the outcome of one Advance call.
type SigningStatus struct {
	State     SignState
	Signature *Signature   // set when State is Done
	Abort     *AbortReason // set when State is Aborted
}

const (
	commitTagSign = "sign/nonce-commit"
	dlogTagNonce1 = "sign/client-nonce"
	dlogTagNonce2 = "sign/server-nonce"
)

// SigningSession signs a single 32-byte digest under a key share. One
// session produces at most one signature; nonces are wiped when the
// session reaches a terminal state.
type SigningSession struct {
	mu     sync.Mutex
	cfg    Config
	share  *KeyShare
	digest []byte
	id     string
	state  SignState
	logger zerolog.Logger
	guard  replayGuard

	// client-side state
	k1       *curve.Scalar
	k1Int    *big.Int
	encNonce *big.Int
	encRand  *big.Int
	nonceCom *curve.ComPoint
	blind    *curve.ComScalar
	pokRaw   []byte
	decommit []byte
	r1       *curve.Point
	r2       *curve.Point

	// server-side state
	k2         *curve.Scalar
	peerCommit []byte
	peerEnc    *big.Int
	peerCom    *curve.ComPoint

	sig   *Signature
	abort *AbortReason
}

// NewSigningSession starts signing digest under share. The digest must
// be exactly 32 bytes; hashing the message is the caller's job. The
// client role creates the session ID; the server adopts it from the
// first message.
func NewSigningSession(cfg Config, share *KeyShare, digest []byte) (*SigningSession, error) {
	if share == nil || share.Share == nil || share.Public == nil {
		return nil, fmt.Errorf("%w: incomplete key share", ErrMalformedMessage)
	}
	switch share.Role {
	case RoleClient:
		if share.PaillierSK == nil {
			return nil, fmt.Errorf("%w: client share missing decryption key", ErrMalformedMessage)
		}
	case RoleServer:
		if share.PeerPaillierPK == nil || share.CKey == nil {
			return nil, fmt.Errorf("%w: server share missing encrypted peer share", ErrMalformedMessage)
		}
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrMalformedMessage, share.Role)
	}
	if len(digest) != sha256.Size {
		return nil, fmt.Errorf("%w: digest must be %d bytes", ErrMalformedMessage, sha256.Size)
	}
	cfg = cfg.normalize()
	s := &SigningSession{
		cfg:    cfg,
		share:  share,
		digest: append([]byte(nil), digest...),
		state:  SignStart,
	}
	if share.Role == RoleClient {
		s.id = uuid.NewString()
	}
	s.logger = roundLogger(cfg.Logger, "sign", s.id, share.Role)
	return s, nil
}

// SessionID returns the session identifier; empty on a server session
// that has not yet received the opening message.
func (s *SigningSession) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Advance feeds an incoming message (nil for the client's opening move)
// and returns the outgoing message, if any, plus the session status.
// Redelivering the last processed message returns the cached reply;
// anything else unexpected aborts the session permanently.
func (s *SigningSession) Advance(incoming []byte) ([]byte, SigningStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case SignAborted:
		return nil, s.status(), ErrSessionAborted
	case SignDone:
		return nil, s.status(), ErrSessionConsumed
	}
	if len(incoming) > 0 {
		if out, ok := s.guard.cachedReply(incoming); ok {
			s.logger.Debug().Msg("replayed message, returning cached reply")
			return out, s.status(), nil
		}
	}

	out, err := s.step(incoming)
	if err != nil {
		s.fail(err)
		return nil, s.status(), err
	}
	if len(incoming) > 0 {
		s.guard.record(incoming, out)
	}
	if s.state == SignDone {
		s.wipeNonces()
	}
	return out, s.status(), nil
}

func (s *SigningSession) step(incoming []byte) ([]byte, error) {
	switch {
	case s.share.Role == RoleClient && s.state == SignStart:
		if incoming != nil {
			return nil, fmt.Errorf("%w: client opens with no incoming message", ErrOutOfOrderMessage)
		}
		return s.clientNonceCommit()
	case s.share.Role == RoleClient && s.state == SignNonceCommit:
		return s.clientNonceReveal(incoming)
	case s.share.Role == RoleClient && s.state == SignPartialSignature:
		return s.clientCombine(incoming)
	case s.share.Role == RoleServer && s.state == SignStart:
		return s.serverNonceAck(incoming)
	case s.share.Role == RoleServer && s.state == SignNonceReveal:
		return s.serverPartial(incoming)
	case s.share.Role == RoleServer && s.state == SignCombine:
		return s.serverAcceptResult(incoming)
	default:
		return nil, fmt.Errorf("%w: no transition from %s", ErrOutOfOrderMessage, s.state)
	}
}

// clientNonceCommit samples the client nonce and sends a hash commitment
// to the nonce point alongside the encrypted nonce with its proofs.
func (s *SigningSession) clientNonceCommit() ([]byte, error) {
	var err error
	s.k1, s.k1Int, err = sampleShareScalar()
	if err != nil {
		return nil, err
	}
	s.r1 = curve.BaseMulSecret(s.k1)

	pk := s.share.PaillierSK.PublicKey()
	s.encNonce, s.encRand, err = pk.EncryptAndNonce(s.k1Int)
	if err != nil {
		return nil, err
	}
	encProof, err := zk.ProveEnc(s.id, pk, s.encNonce, s.k1Int, s.encRand)
	if err != nil {
		return nil, err
	}
	s.nonceCom, s.blind, err = zk.PedersenCommit(s.k1Int)
	if err != nil {
		return nil, err
	}
	rangeProof, err := zk.ProveRange(s.id, s.nonceCom, s.k1Int, s.blind)
	if err != nil {
		return nil, err
	}

	pok, err := zk.ProveDLog(s.id, dlogTagNonce1, s.k1, s.r1)
	if err != nil {
		return nil, err
	}
	s.pokRaw, err = encoding.Marshal(pok)
	if err != nil {
		return nil, err
	}
	r1Bytes, err := s.r1.Encode()
	if err != nil {
		return nil, err
	}
	com, decommit, err := zk.Commit(commitTagSign, r1Bytes, s.pokRaw)
	if err != nil {
		return nil, err
	}
	s.decommit = decommit

	s.state = SignNonceCommit
	s.logger.Info().Str("state", string(s.state)).Msg("sent nonce commitment")
	return encodeMessage(s.id, MsgSignNonceCommit, 1, signNonceCommitBody{
		Commitment:      com,
		EncNonce:        s.encNonce.Bytes(),
		EncProof:        encProof,
		NonceCommitment: s.nonceCom.Bytes(),
		RangeProof:      rangeProof,
	})
}

// serverNonceAck verifies the encrypted nonce proofs, samples the server
// nonce, and replies with its nonce point and proof of knowledge.
func (s *SigningSession) serverNonceAck(incoming []byte) ([]byte, error) {
	m, err := expectMessage(incoming, "", MsgSignNonceCommit)
	if err != nil {
		return nil, err
	}
	if m.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrMalformedMessage)
	}
	s.id = m.SessionID
	s.logger = roundLogger(s.cfg.Logger, "sign", s.id, s.share.Role)

	var body signNonceCommitBody
	if err := decodeBody(m, &body); err != nil {
		return nil, err
	}
	if len(body.Commitment) != zk.CommitmentSize {
		return nil, fmt.Errorf("%w: bad commitment size", ErrMalformedMessage)
	}
	encNonce := new(big.Int).SetBytes(body.EncNonce)
	pk := s.share.PeerPaillierPK
	if err := pk.ValidateCiphertext(encNonce); err != nil {
		return nil, fmt.Errorf("%w: encrypted nonce: %v", ErrMalformedMessage, err)
	}
	nonceCom, err := curve.DecodeComPoint(body.NonceCommitment)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce commitment: %v", ErrMalformedMessage, err)
	}

	err = zk.VerifyAll(
		func() error {
			if err := body.EncProof.Verify(s.id, pk, encNonce); err != nil {
				return &ProofError{Proof: zk.KindEnc, Err: err}
			}
			return nil
		},
		func() error {
			if err := body.RangeProof.Verify(s.id, nonceCom); err != nil {
				return &ProofError{Proof: zk.KindRange, Err: err}
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	s.peerCommit = body.Commitment
	s.peerEnc = encNonce
	s.peerCom = nonceCom

	s.k2, _, err = sampleShareScalar()
	if err != nil {
		return nil, err
	}
	r2 := curve.BaseMulSecret(s.k2)
	pok, err := zk.ProveDLog(s.id, dlogTagNonce2, s.k2, r2)
	if err != nil {
		return nil, err
	}
	r2Bytes, err := r2.Encode()
	if err != nil {
		return nil, err
	}

	s.state = SignNonceReveal
	s.logger.Info().Str("state", string(s.state)).Msg("nonce proofs verified, sent server nonce")
	return encodeMessage(s.id, MsgSignNonceAck, 2, signNonceAckBody{Nonce: r2Bytes, PoK: pok})
}

// clientNonceReveal verifies the server nonce and opens the client's
// commitment, binding the revealed point to the encrypted nonce.
func (s *SigningSession) clientNonceReveal(incoming []byte) ([]byte, error) {
	m, err := expectMessage(incoming, s.id, MsgSignNonceAck)
	if err != nil {
		return nil, err
	}
	var body signNonceAckBody
	if err := decodeBody(m, &body); err != nil {
		return nil, err
	}
	r2, err := curve.DecodePoint(body.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: server nonce: %v", ErrMalformedMessage, err)
	}
	if err := body.PoK.Verify(s.id, dlogTagNonce2, r2); err != nil {
		return nil, &ProofError{Proof: zk.KindDLog, Err: err}
	}
	s.r2 = r2

	consistency, err := zk.ProveConsistency(s.id, zk.ConsistencyStatement{
		PK:         s.share.PaillierSK.PublicKey(),
		Ciphertext: s.encNonce,
		Point:      s.r1,
		Commitment: s.nonceCom,
	}, s.k1Int, s.encRand, s.blind)
	if err != nil {
		return nil, err
	}

	r1Bytes, err := s.r1.Encode()
	if err != nil {
		return nil, err
	}
	var pok zk.DLogProof
	if err := encoding.Unmarshal(s.pokRaw, &pok); err != nil {
		return nil, err
	}

	s.state = SignPartialSignature
	s.logger.Info().Str("state", string(s.state)).Msg("revealed nonce point")
	return encodeMessage(s.id, MsgSignNonceReveal, 3, signNonceRevealBody{
		Nonce:            r1Bytes,
		PoK:              &pok,
		Decommit:         s.decommit,
		ConsistencyProof: consistency,
	})
}

// serverPartial verifies the opened nonce, then evaluates the encrypted
// partial signature homomorphically over the client's encrypted share.
func (s *SigningSession) serverPartial(incoming []byte) ([]byte, error) {
	m, err := expectMessage(incoming, s.id, MsgSignNonceReveal)
	if err != nil {
		return nil, err
	}
	var body signNonceRevealBody
	if err := decodeBody(m, &body); err != nil {
		return nil, err
	}
	r1, err := curve.DecodePoint(body.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: client nonce: %v", ErrMalformedMessage, err)
	}
	pokRaw, err := encoding.Marshal(body.PoK)
	if err != nil {
		return nil, err
	}
	if !zk.VerifyCommit(s.peerCommit, body.Decommit, commitTagSign, body.Nonce, pokRaw) {
		return nil, fmt.Errorf("%w: nonce commitment opening rejected", ErrMalformedMessage)
	}

	err = zk.VerifyAll(
		func() error {
			if err := body.PoK.Verify(s.id, dlogTagNonce1, r1); err != nil {
				return &ProofError{Proof: zk.KindDLog, Err: err}
			}
			return nil
		},
		func() error {
			st := zk.ConsistencyStatement{
				PK:         s.share.PeerPaillierPK,
				Ciphertext: s.peerEnc,
				Point:      r1,
				Commitment: s.peerCom,
			}
			if err := body.ConsistencyProof.Verify(s.id, st); err != nil {
				return &ProofError{Proof: zk.KindConsistency, Err: err}
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	q := curve.Order()
	rx, err := r1.MulSecret(s.k2).X()
	if err != nil {
		return nil, fmt.Errorf("joint nonce degenerate: %w", err)
	}
	r := new(big.Int).Mod(rx, q)
	if r.Sign() == 0 {
		return nil, fmt.Errorf("joint nonce reduces to zero")
	}

	k2inv, err := s.k2.Invert()
	if err != nil {
		return nil, err
	}
	defer k2inv.Zeroize()
	mInt := new(big.Int).Mod(new(big.Int).SetBytes(s.digest), q)

	// c3 = Enc(rho*q + k2^-1 * m) + ckey * (k2^-1 * r * x2), all mod q
	// inside the plaintext ring. rho*q masks everything above the
	// signature residue.
	a := new(big.Int).Mul(k2inv.Big(), mInt)
	a.Mod(a, q)
	v := new(big.Int).Mul(k2inv.Big(), r)
	v.Mod(v, q)
	v.Mul(v, s.share.Share.Big())
	v.Mod(v, q)

	rho, err := arith.Rand(new(big.Int).Mul(q, q))
	if err != nil {
		return nil, err
	}
	mask := new(big.Int).Mul(rho, q)
	mask.Add(mask, a)

	pk := s.share.PeerPaillierPK
	cMask, err := pk.Encrypt(mask)
	if err != nil {
		return nil, err
	}
	// v carries x2 and k2^-1, so the homomorphic scaling must not leak
	// it through the exponent.
	cShare, err := pk.MulScalarSecret(s.share.CKey, v)
	if err != nil {
		return nil, err
	}
	partial, err := pk.Add(cMask, cShare)
	if err != nil {
		return nil, err
	}
	arith.Zero(a)
	arith.Zero(v)
	arith.Zero(rho)
	arith.Zero(mask)

	s.state = SignCombine
	s.logger.Info().Str("state", string(s.state)).Msg("sent encrypted partial signature")
	return encodeMessage(s.id, MsgSignPartial, 4, signPartialBody{Partial: partial.Bytes()})
}

// clientCombine decrypts the partial signature, finishes the signature,
// and releases it only after it verifies against the joint public key.
func (s *SigningSession) clientCombine(incoming []byte) ([]byte, error) {
	m, err := expectMessage(incoming, s.id, MsgSignPartial)
	if err != nil {
		return nil, err
	}
	var body signPartialBody
	if err := decodeBody(m, &body); err != nil {
		return nil, err
	}
	partial := new(big.Int).SetBytes(body.Partial)

	plain, err := s.share.PaillierSK.Decrypt(partial)
	if err != nil {
		return nil, fmt.Errorf("%w: partial signature: %v", ErrMalformedMessage, err)
	}

	q := curve.Order()
	rx, err := s.r2.MulSecret(s.k1).X()
	if err != nil {
		return nil, fmt.Errorf("joint nonce degenerate: %w", err)
	}
	r := new(big.Int).Mod(rx, q)

	k1inv, err := s.k1.Invert()
	if err != nil {
		return nil, err
	}
	defer k1inv.Zeroize()
	sv := new(big.Int).Mul(k1inv.Big(), plain)
	sv.Mod(sv, q)
	arith.Zero(plain)

	// Canonicalize to the low-s form expected by verifiers.
	if sv.Cmp(new(big.Int).Rsh(q, 1)) > 0 {
		sv.Sub(q, sv)
	}

	sig := &Signature{R: r, S: sv}
	if !sig.Verify(s.share.Public.JointPublic, s.digest) {
		return nil, ErrSignatureInvalid
	}

	out, err := encodeMessage(s.id, MsgSignResult, 5, signResultBody{Signature: sig.Encode()})
	if err != nil {
		return nil, err
	}
	s.sig = sig
	s.state = SignDone
	s.logger.Info().Str("state", string(s.state)).Msg("signature verified and released")
	return out, nil
}

// serverAcceptResult checks the combined signature before accepting it
// as the session result.
func (s *SigningSession) serverAcceptResult(incoming []byte) ([]byte, error) {
	m, err := expectMessage(incoming, s.id, MsgSignResult)
	if err != nil {
		return nil, err
	}
	var body signResultBody
	if err := decodeBody(m, &body); err != nil {
		return nil, err
	}
	sig, err := DecodeSignature(body.Signature)
	if err != nil {
		return nil, err
	}
	if !sig.Verify(s.share.Public.JointPublic, s.digest) {
		return nil, ErrSignatureInvalid
	}

	s.sig = sig
	s.state = SignDone
	s.logger.Info().Str("state", string(s.state)).Msg("signature accepted")
	return nil, nil
}

// fail moves the session to its terminal abort state. No partial
// signature material survives an abort.
func (s *SigningSession) fail(err error) {
	s.abort = abortReasonFor(err)
	s.state = SignAborted
	s.logger.Error().Str("reason", s.abort.String()).Msg("signing aborted")
	s.wipeNonces()
	s.sig = nil
}

func (s *SigningSession) wipeNonces() {
	if s.k1 != nil {
		s.k1.Zeroize()
	}
	arith.Zero(s.k1Int)
	arith.Zero(s.encRand)
	if s.k2 != nil {
		s.k2.Zeroize()
	}
}

func (s *SigningSession) status() SigningStatus {
	st := SigningStatus{State: s.state}
	switch s.state {
	case SignDone:
		st.Signature = s.sig
	case SignAborted:
		st.Abort = s.abort
	}
	return st
}
