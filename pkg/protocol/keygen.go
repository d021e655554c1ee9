package protocol

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arcadia-exchange/mpc/pkg/arith"
	"github.com/arcadia-exchange/mpc/pkg/curve"
	"github.com/arcadia-exchange/mpc/pkg/encoding"
	"github.com/arcadia-exchange/mpc/pkg/paillier"
	"github.com/arcadia-exchange/mpc/pkg/zk"
)

// KeygenState names the phases of the key-generation state machine.
type KeygenState string

const (
	KeygenStart                KeygenState = "Start"
	KeygenCommitShares         KeygenState = "CommitShares"
	KeygenVerifyCommitments    KeygenState = "VerifyCommitments"
	KeygenExchangePaillierKeys KeygenState = "ExchangePaillierKeys"
	KeygenFinalized            KeygenState = "Finalized"
	KeygenAborted              KeygenState = "Aborted"

	// KeygenVerifyPaillierProofs names the proof-checking phase. Proofs
	// are verified inside the transition that receives them, so a
	// session is never observed parked in this state.
	KeygenVerifyPaillierProofs KeygenState = "VerifyPaillierProofs"
)

// KeygenStatus is the outcome of one Advance call.
type KeygenStatus struct {
	State  KeygenState
	Result *KeygenResult // set when State is Finalized
	Abort  *AbortReason  // set when State is Aborted
}

// KeygenResult is the terminal output: the shared public package and this
// party's private share. Partial state from an aborted run is never
// surfaced.
type KeygenResult struct {
	Public *PublicKeyPackage
	Share  *KeyShare
}

const (
	commitTagKeygen = "keygen/share-commit"
	dlogTagClient   = "keygen/client-share"
	dlogTagServer   = "keygen/server-share"
)

// KeygenSession runs one party's half of the key-generation protocol.
// The client initiates with Advance(nil); every later call feeds the
// counterparty's message and returns the reply to forward.
type KeygenSession struct {
	mu     sync.Mutex
	cfg    Config
	role   Role
	id     string
	state  KeygenState
	logger zerolog.Logger
	guard  replayGuard

	// client-side state
	x1        *curve.Scalar
	x1Int     *big.Int
	sk        *paillier.PrivateKey
	ckey      *big.Int
	ckeyNonce *big.Int
	shareCom  *curve.ComPoint
	blind     *curve.ComScalar
	pokRaw    []byte
	decommit  []byte
	q1        *curve.Point
	q2        *curve.Point

	// server-side state
	x2         *curve.Scalar
	peerPK     *paillier.PublicKey
	peerCommit []byte

	result *KeygenResult
	abort  *AbortReason
}

// NewKeygenSession begins key generation for one party. The client role
// creates the session ID; the server adopts it from the first message.
func NewKeygenSession(cfg Config, role Role) (*KeygenSession, error) {
	if role != RoleClient && role != RoleServer {
		return nil, fmt.Errorf("%w: unknown role %q", ErrMalformedMessage, role)
	}
	cfg = cfg.normalize()
	s := &KeygenSession{
		cfg:   cfg,
		role:  role,
		state: KeygenStart,
	}
	if role == RoleClient {
		s.id = uuid.NewString()
	}
	s.logger = roundLogger(cfg.Logger, "keygen", s.id, role)
	return s, nil
}

// SessionID returns the session identifier; empty on a server session
// that has not yet received the opening message.
func (s *KeygenSession) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Advance feeds an incoming message (nil for the client's opening move)
// and returns the outgoing message, if any, plus the session status.
// Redelivering the last processed message returns the cached reply;
// anything else unexpected aborts the session permanently.
func (s *KeygenSession) Advance(incoming []byte) ([]byte, KeygenStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case KeygenAborted:
		return nil, s.status(), ErrSessionAborted
	case KeygenFinalized:
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
	return out, s.status(), nil
}

func (s *KeygenSession) step(incoming []byte) ([]byte, error) {
	switch {
	case s.role == RoleClient && s.state == KeygenStart:
		if incoming != nil {
			return nil, fmt.Errorf("%w: client opens with no incoming message", ErrOutOfOrderMessage)
		}
		return s.clientCommit()
	case s.role == RoleClient && s.state == KeygenCommitShares:
		return s.clientOpen(incoming)
	case s.role == RoleClient && s.state == KeygenExchangePaillierKeys:
		return s.clientFinalize(incoming)
	case s.role == RoleServer && s.state == KeygenStart:
		return s.serverShare(incoming)
	case s.role == RoleServer && s.state == KeygenVerifyCommitments:
		return s.serverFinalize(incoming)
	default:
		return nil, fmt.Errorf("%w: no transition from %s", ErrOutOfOrderMessage, s.state)
	}
}

// clientCommit samples the client share and Paillier key pair, then sends
// the hash commitment to the public share together with the Paillier
// public key and its correctness proof.
func (s *KeygenSession) clientCommit() ([]byte, error) {
	var err error
	s.x1, s.x1Int, err = sampleShareScalar()
	if err != nil {
		return nil, err
	}
	s.q1 = curve.BaseMulSecret(s.x1)

	s.logger.Info().Int("bits", s.cfg.PaillierBits).Msg("generating paillier key pair")
	_, sk, err := paillier.GenerateKeyPair(s.cfg.PaillierBits)
	if err != nil {
		return nil, err
	}
	s.sk = sk

	modProof, err := zk.ProveMod(s.id, sk)
	if err != nil {
		return nil, err
	}
	pok, err := zk.ProveDLog(s.id, dlogTagClient, s.x1, s.q1)
	if err != nil {
		return nil, err
	}
	s.pokRaw, err = encoding.Marshal(pok)
	if err != nil {
		return nil, err
	}
	q1Bytes, err := s.q1.Encode()
	if err != nil {
		return nil, err
	}
	com, decommit, err := zk.Commit(commitTagKeygen, q1Bytes, s.pokRaw)
	if err != nil {
		return nil, err
	}
	s.decommit = decommit

	s.state = KeygenCommitShares
	s.logger.Info().Str("state", string(s.state)).Msg("sent share commitment")
	return encodeMessage(s.id, MsgKeygenCommit, 1, keygenCommitBody{
		Commitment: com,
		PaillierPK: sk.PublicKey(),
		ModProof:   modProof,
	})
}

// serverShare verifies the client's Paillier proof, samples the server
// share, and replies with its public share and proof of knowledge.
func (s *KeygenSession) serverShare(incoming []byte) ([]byte, error) {
	m, err := expectMessage(incoming, "", MsgKeygenCommit)
	if err != nil {
		return nil, err
	}
	if m.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrMalformedMessage)
	}
	s.id = m.SessionID
	s.logger = roundLogger(s.cfg.Logger, "keygen", s.id, s.role)

	var body keygenCommitBody
	if err := decodeBody(m, &body); err != nil {
		return nil, err
	}
	if body.PaillierPK == nil || body.PaillierPK.N.BitLen() < s.cfg.PaillierBits {
		return nil, fmt.Errorf("%w: paillier modulus below %d bits", ErrMalformedMessage, s.cfg.PaillierBits)
	}
	if len(body.Commitment) != zk.CommitmentSize {
		return nil, fmt.Errorf("%w: bad commitment size", ErrMalformedMessage)
	}

	if err := body.ModProof.Verify(s.id, body.PaillierPK); err != nil {
		return nil, &ProofError{Proof: zk.KindMod, Err: err}
	}
	s.peerPK = body.PaillierPK
	s.peerCommit = body.Commitment

	s.x2, _, err = sampleShareScalar()
	if err != nil {
		return nil, err
	}
	q2 := curve.BaseMulSecret(s.x2)
	pok, err := zk.ProveDLog(s.id, dlogTagServer, s.x2, q2)
	if err != nil {
		return nil, err
	}
	q2Bytes, err := q2.Encode()
	if err != nil {
		return nil, err
	}

	s.state = KeygenVerifyCommitments
	s.logger.Info().Str("state", string(s.state)).Msg("paillier proof verified, sent server share")
	return encodeMessage(s.id, MsgKeygenShare, 2, keygenShareBody{Share: q2Bytes, PoK: pok})
}

// clientOpen verifies the server share, opens the commitment, and sends
// the encrypted client share with its range and consistency proofs.
func (s *KeygenSession) clientOpen(incoming []byte) ([]byte, error) {
	m, err := expectMessage(incoming, s.id, MsgKeygenShare)
	if err != nil {
		return nil, err
	}
	var body keygenShareBody
	if err := decodeBody(m, &body); err != nil {
		return nil, err
	}
	q2, err := curve.DecodePoint(body.Share)
	if err != nil {
		return nil, fmt.Errorf("%w: server share: %v", ErrMalformedMessage, err)
	}
	if err := body.PoK.Verify(s.id, dlogTagServer, q2); err != nil {
		return nil, &ProofError{Proof: zk.KindDLog, Err: err}
	}

	s.ckey, s.ckeyNonce, err = s.sk.PublicKey().EncryptAndNonce(s.x1Int)
	if err != nil {
		return nil, err
	}
	s.shareCom, s.blind, err = zk.PedersenCommit(s.x1Int)
	if err != nil {
		return nil, err
	}
	rangeProof, err := zk.ProveRange(s.id, s.shareCom, s.x1Int, s.blind)
	if err != nil {
		return nil, err
	}
	consistency, err := zk.ProveConsistency(s.id, zk.ConsistencyStatement{
		PK:         s.sk.PublicKey(),
		Ciphertext: s.ckey,
		Point:      s.q1,
		Commitment: s.shareCom,
	}, s.x1Int, s.ckeyNonce, s.blind)
	if err != nil {
		return nil, err
	}

	q1Bytes, err := s.q1.Encode()
	if err != nil {
		return nil, err
	}
	var pok zk.DLogProof
	if err := encoding.Unmarshal(s.pokRaw, &pok); err != nil {
		return nil, err
	}

	// Hold q2 for the final agreement check.
	s.q2 = q2

	s.state = KeygenExchangePaillierKeys
	s.logger.Info().Str("state", string(s.state)).Msg("opened commitment, sent encrypted share")
	return encodeMessage(s.id, MsgKeygenOpen, 3, keygenOpenBody{
		Share:            q1Bytes,
		PoK:              &pok,
		Decommit:         s.decommit,
		CKey:             s.ckey.Bytes(),
		ShareCommitment:  s.shareCom.Bytes(),
		RangeProof:       rangeProof,
		ConsistencyProof: consistency,
	})
}

// serverFinalize verifies the opened commitment and every proof over the
// encrypted share, derives the joint key, and confirms it to the client.
func (s *KeygenSession) serverFinalize(incoming []byte) ([]byte, error) {
	m, err := expectMessage(incoming, s.id, MsgKeygenOpen)
	if err != nil {
		return nil, err
	}
	var body keygenOpenBody
	if err := decodeBody(m, &body); err != nil {
		return nil, err
	}
	q1, err := curve.DecodePoint(body.Share)
	if err != nil {
		return nil, fmt.Errorf("%w: client share: %v", ErrMalformedMessage, err)
	}
	pokRaw, err := encoding.Marshal(body.PoK)
	if err != nil {
		return nil, err
	}
	if !zk.VerifyCommit(s.peerCommit, body.Decommit, commitTagKeygen, body.Share, pokRaw) {
		return nil, fmt.Errorf("%w: commitment opening rejected", ErrMalformedMessage)
	}

	ckey := new(big.Int).SetBytes(body.CKey)
	if err := s.peerPK.ValidateCiphertext(ckey); err != nil {
		return nil, fmt.Errorf("%w: encrypted share: %v", ErrMalformedMessage, err)
	}
	shareCom, err := curve.DecodeComPoint(body.ShareCommitment)
	if err != nil {
		return nil, fmt.Errorf("%w: share commitment: %v", ErrMalformedMessage, err)
	}

	// The three proofs are independent; check them concurrently.
	err = zk.VerifyAll(
		func() error {
			if err := body.PoK.Verify(s.id, dlogTagClient, q1); err != nil {
				return &ProofError{Proof: zk.KindDLog, Err: err}
			}
			return nil
		},
		func() error {
			if err := body.RangeProof.Verify(s.id, shareCom); err != nil {
				return &ProofError{Proof: zk.KindRange, Err: err}
			}
			return nil
		},
		func() error {
			st := zk.ConsistencyStatement{
				PK:         s.peerPK,
				Ciphertext: ckey,
				Point:      q1,
				Commitment: shareCom,
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

	joint := q1.MulSecret(s.x2)
	jointBytes, err := joint.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: degenerate joint key", ErrMalformedMessage)
	}

	pub := &PublicKeyPackage{
		JointPublic:     jointBytes,
		ShareCommitment: body.ShareCommitment,
		PaillierModulus: s.peerPK.N.Bytes(),
	}
	s.result = &KeygenResult{
		Public: pub,
		Share: &KeyShare{
			Role:           RoleServer,
			Share:          s.x2,
			Public:         pub,
			PeerPaillierPK: s.peerPK,
			CKey:           ckey,
		},
	}
	s.state = KeygenFinalized
	s.logger.Info().Str("state", string(s.state)).Msg("key generation finalized")
	return encodeMessage(s.id, MsgKeygenConfirm, 4, keygenConfirmBody{JointPublic: jointBytes})
}

// clientFinalize checks that both parties derived the same joint public
// key and assembles the client's key share.
func (s *KeygenSession) clientFinalize(incoming []byte) ([]byte, error) {
	m, err := expectMessage(incoming, s.id, MsgKeygenConfirm)
	if err != nil {
		return nil, err
	}
	var body keygenConfirmBody
	if err := decodeBody(m, &body); err != nil {
		return nil, err
	}

	joint := s.q2.MulSecret(s.x1)
	jointBytes, err := joint.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: degenerate joint key", ErrMalformedMessage)
	}
	peerJoint, err := curve.DecodePoint(body.JointPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: confirmed joint key: %v", ErrMalformedMessage, err)
	}
	if !joint.Equal(peerJoint) {
		return nil, ErrPeerMismatch
	}

	pub := &PublicKeyPackage{
		JointPublic:     jointBytes,
		ShareCommitment: s.shareCom.Bytes(),
		PaillierModulus: s.sk.PublicKey().N.Bytes(),
	}
	s.result = &KeygenResult{
		Public: pub,
		Share: &KeyShare{
			Role:       RoleClient,
			Share:      s.x1,
			Public:     pub,
			PaillierSK: s.sk,
		},
	}
	arith.Zero(s.x1Int)
	arith.Zero(s.ckeyNonce)

	s.state = KeygenFinalized
	s.logger.Info().Str("state", string(s.state)).Msg("key generation finalized")
	return nil, nil
}

// fail moves the session to its terminal abort state and wipes all
// session-local secrets. Ownership of secrets transfers to the KeyShare
// only on a finalized run.
func (s *KeygenSession) fail(err error) {
	s.abort = abortReasonFor(err)
	s.state = KeygenAborted
	s.logger.Error().Str("reason", s.abort.String()).Msg("key generation aborted")

	if s.x1 != nil {
		s.x1.Zeroize()
	}
	arith.Zero(s.x1Int)
	arith.Zero(s.ckeyNonce)
	if s.sk != nil {
		s.sk.Zeroize()
	}
	if s.x2 != nil {
		s.x2.Zeroize()
	}
	s.result = nil
}

func (s *KeygenSession) status() KeygenStatus {
	st := KeygenStatus{State: s.state}
	switch s.state {
	case KeygenFinalized:
		st.Result = s.result
	case KeygenAborted:
		st.Abort = s.abort
	}
	return st
}
