package protocol

import (
	"crypto/sha256"
	"fmt"

	"github.com/arcadia-exchange/mpc/pkg/encoding"
	"github.com/arcadia-exchange/mpc/pkg/paillier"
	"github.com/arcadia-exchange/mpc/pkg/zk"
)

// MsgType identifies a protocol message. The transport carries messages
// opaquely; both ends decode them against the round they are waiting on.
type MsgType string

const (
	MsgKeygenCommit  MsgType = "keygen/commit"
	MsgKeygenShare   MsgType = "keygen/share"
	MsgKeygenOpen    MsgType = "keygen/open"
	MsgKeygenConfirm MsgType = "keygen/confirm"

	MsgSignNonceCommit MsgType = "sign/nonce-commit"
	MsgSignNonceAck    MsgType = "sign/nonce-ack"
	MsgSignNonceReveal MsgType = "sign/nonce-reveal"
	MsgSignPartial     MsgType = "sign/partial"
	MsgSignResult      MsgType = "sign/result"
)

// Message is the CBOR envelope every inter-party message travels in.
type Message struct {
	SessionID string
	Type      MsgType
	Round     int
	Body      []byte
}

func encodeMessage(sessionID string, typ MsgType, round int, body any) ([]byte, error) {
	raw, err := encoding.Marshal(body)
	if err != nil {
		return nil, err
	}
	return encoding.Marshal(Message{
		SessionID: sessionID,
		Type:      typ,
		Round:     round,
		Body:      raw,
	})
}

func decodeMessage(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrMalformedMessage)
	}
	var m Message
	if err := encoding.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &m, nil
}

func decodeBody(m *Message, v any) error {
	if err := encoding.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("%w: %s body: %v", ErrMalformedMessage, m.Type, err)
	}
	return nil
}

// messageHash fingerprints an incoming message for replay detection.
func messageHash(data []byte) [sha256.Size]byte {
	return sha256.Sum256(data)
}

// keygenCommitBody opens key generation: a hash commitment to the
// client's public share and its discrete-log proof, plus the Paillier
// public key with its correctness proof.
type keygenCommitBody struct {
	Commitment []byte
	PaillierPK *paillier.PublicKey
	ModProof   *zk.ModProof
}

// keygenShareBody is the server's public share and proof of knowledge.
type keygenShareBody struct {
	Share []byte
	PoK   *zk.DLogProof
}

// keygenOpenBody opens the client's commitment and carries the encrypted
// share with the proofs that make it safe to use in signing.
type keygenOpenBody struct {
	Share            []byte
	PoK              *zk.DLogProof
	Decommit         []byte
	CKey             []byte
	ShareCommitment  []byte
	RangeProof       *zk.RangeProof
	ConsistencyProof *zk.ConsistencyProof
}

// keygenConfirmBody closes key generation with the server's view of the
// joint public key, which the client checks for agreement.
type keygenConfirmBody struct {
	JointPublic []byte
}

// signNonceCommitBody opens a signing session: a hash commitment to the
// client's nonce point, plus the encrypted nonce with plaintext-knowledge
// and range proofs.
type signNonceCommitBody struct {
	Commitment      []byte
	EncNonce        []byte
	EncProof        *zk.EncProof
	NonceCommitment []byte
	RangeProof      *zk.RangeProof
}

// signNonceAckBody is the server's nonce point and proof of knowledge.
type signNonceAckBody struct {
	Nonce []byte
	PoK   *zk.DLogProof
}

// signNonceRevealBody opens the client's nonce commitment and binds the
// revealed point to the encrypted nonce.
type signNonceRevealBody struct {
	Nonce            []byte
	PoK              *zk.DLogProof
	Decommit         []byte
	ConsistencyProof *zk.ConsistencyProof
}

// signPartialBody is the server's encrypted partial signature.
type signPartialBody struct {
	Partial []byte
}

// signResultBody is the combined signature, echoed to the server so both
// parties finish with the same verified result.
type signResultBody struct {
	Signature []byte
}
