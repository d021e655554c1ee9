package zk

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// CommitmentSize is the byte length of a hash commitment and of its
// decommitment nonce.
const CommitmentSize = 32

// Commit produces a hiding, binding hash commitment to the concatenation
// of parts under a domain tag, along with the decommitment nonce.
func Commit(tag string, parts ...[]byte) ([]byte, []byte, error) {
	nonce := make([]byte, CommitmentSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return commitWithNonce(tag, nonce, parts), nonce, nil
}

// VerifyCommit checks a commitment opening in constant time.
func VerifyCommit(com, nonce []byte, tag string, parts ...[]byte) bool {
	if len(com) != CommitmentSize || len(nonce) != CommitmentSize {
		return false
	}
	expect := commitWithNonce(tag, nonce, parts)
	return subtle.ConstantTimeCompare(com, expect) == 1
}

func commitWithNonce(tag string, nonce []byte, parts [][]byte) []byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	var lenPrefix [8]byte
	write := func(b []byte) {
		binary.BigEndian.PutUint64(lenPrefix[:], uint64(len(b)))
		h.Write(lenPrefix[:])
		h.Write(b)
	}
	write([]byte("arcadia/mpc/commit/v1"))
	write([]byte(tag))
	for _, p := range parts {
		write(p)
	}
	write(nonce)
	return h.Sum(nil)
}
