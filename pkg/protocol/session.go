// Package protocol implements the two-party threshold ECDSA protocol: a
// two-round-trip key generation and a five-message signing flow, both
// exposed as message-driven state machines. The transport between the
// parties is external; sessions only validate incoming bytes and produce
// outgoing bytes.
package protocol

import (
	"crypto/sha256"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/arcadia-exchange/mpc/pkg/zk"
)

// shareBits bounds every secret share and nonce so the proofs' witness
// range covers them.
const shareBits = zk.WitnessBits

// replayGuard caches every processed inbound message so redelivery of any
// of them is idempotent: the exact same bytes return the reply they
// produced the first time without touching session state, while any other
// unexpected message is treated as malformed. Sessions see at most a
// handful of messages, so the cache stays tiny.
type replayGuard struct {
	replies map[[sha256.Size]byte][]byte
}

func (g *replayGuard) cachedReply(incoming []byte) ([]byte, bool) {
	out, ok := g.replies[messageHash(incoming)]
	return out, ok
}

func (g *replayGuard) record(incoming, outgoing []byte) {
	if g.replies == nil {
		g.replies = make(map[[sha256.Size]byte][]byte)
	}
	g.replies[messageHash(incoming)] = outgoing
}

// expectMessage decodes and validates an envelope against the session and
// the message type the state machine is waiting on.
func expectMessage(data []byte, sessionID string, want MsgType) (*Message, error) {
	m, err := decodeMessage(data)
	if err != nil {
		return nil, err
	}
	if sessionID != "" && m.SessionID != sessionID {
		return nil, fmt.Errorf("%w: session %q, got %q", ErrMalformedMessage, sessionID, m.SessionID)
	}
	if m.Type != want {
		return nil, fmt.Errorf("%w: waiting on %s, got %s", ErrOutOfOrderMessage, want, m.Type)
	}
	return m, nil
}

func roundLogger(logger *zerolog.Logger, protocol string, sessionID string, role Role) zerolog.Logger {
	return logger.With().
		Str("protocol", protocol).
		Str("sessionID", sessionID).
		Str("role", string(role)).
		Logger()
}
