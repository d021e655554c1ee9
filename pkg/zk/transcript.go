package zk

import (
	"encoding/binary"
	"math/big"

	"golang.org/x/crypto/sha3"
)

// Transcript is a Fiat-Shamir transcript over SHAKE256. Every appended
// item is length-prefixed so distinct message sequences can never collide,
// and every drawn challenge is folded back into the state so later
// challenges bind earlier ones.
type Transcript struct {
	h sha3.ShakeHash
}

// NewTranscript starts a transcript under a domain-separation label.
func NewTranscript(label string) *Transcript {
	t := &Transcript{h: sha3.NewShake256()}
	t.write([]byte("arcadia/mpc/transcript/v1"))
	t.write([]byte(label))
	return t
}

// Append absorbs labeled data into the transcript.
func (t *Transcript) Append(label string, data []byte) {
	t.write([]byte(label))
	t.write(data)
}

// AppendInt absorbs a labeled big integer.
func (t *Transcript) AppendInt(label string, v *big.Int) {
	t.Append(label, v.Bytes())
}

// Challenge derives n pseudorandom bytes bound to everything absorbed so
// far.
func (t *Transcript) Challenge(label string, n int) []byte {
	t.Append("challenge", []byte(label))
	out := make([]byte, n)
	c := t.h.Clone()
	if _, err := c.Read(out); err != nil {
		panic(err) // shake read cannot fail
	}
	t.Append("challenge-output", out)
	return out
}

// ChallengeInt derives a challenge integer in [0, 2^bits).
func (t *Transcript) ChallengeInt(label string, bits uint) *big.Int {
	nbytes := (int(bits) + 7) / 8
	buf := t.Challenge(label, nbytes)
	v := new(big.Int).SetBytes(buf)
	excess := uint(nbytes*8) - bits
	return v.Rsh(v, excess)
}

// ChallengeBits derives n challenge bits.
func (t *Transcript) ChallengeBits(label string, n int) []bool {
	buf := t.Challenge(label, (n+7)/8)
	out := make([]bool, n)
	for i := range out {
		out[i] = (buf[i/8]>>(uint(i)%8))&1 == 1
	}
	return out
}

// ChallengeMod derives a challenge integer in [0, m) by oversampling 128
// extra bits before reduction.
func (t *Transcript) ChallengeMod(label string, m *big.Int) *big.Int {
	buf := t.Challenge(label, (m.BitLen()+7)/8+16)
	return new(big.Int).Mod(new(big.Int).SetBytes(buf), m)
}

func (t *Transcript) write(b []byte) {
	var lenPrefix [8]byte
	binary.BigEndian.PutUint64(lenPrefix[:], uint64(len(b)))
	if _, err := t.h.Write(lenPrefix[:]); err != nil {
		panic(err)
	}
	if _, err := t.h.Write(b); err != nil {
		panic(err)
	}
}
