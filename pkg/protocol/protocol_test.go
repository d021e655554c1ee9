package protocol

import (
	"bytes"
	"crypto/sha256"
	"math/big"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/arcadia-exchange/mpc/pkg/curve"
	"github.com/arcadia-exchange/mpc/pkg/encoding"
	"github.com/arcadia-exchange/mpc/pkg/zk"
)

const testPaillierBits = 1024

func testConfig() Config {
	nop := zerolog.Nop()
	return Config{PaillierBits: testPaillierBits, Logger: &nop}
}

// runKeygen pumps messages between a client and a server session until
// both finalize.
func runKeygen(t *testing.T, cfg Config) (*KeygenResult, *KeygenResult) {
	t.Helper()
	client, err := NewKeygenSession(cfg, RoleClient)
	require.NoError(t, err)
	server, err := NewKeygenSession(cfg, RoleServer)
	require.NoError(t, err)

	var sst KeygenStatus
	msg, cst, err := client.Advance(nil)
	require.NoError(t, err)
	for len(msg) > 0 {
		var reply []byte
		reply, sst, err = server.Advance(msg)
		require.NoError(t, err)
		msg = nil
		if len(reply) > 0 {
			msg, cst, err = client.Advance(reply)
			require.NoError(t, err)
		}
	}
	require.Equal(t, KeygenFinalized, cst.State)
	require.Equal(t, KeygenFinalized, sst.State)
	require.NotNil(t, cst.Result)
	require.NotNil(t, sst.Result)
	return cst.Result, sst.Result
}

// runSign pumps a signing session over digest and returns both parties'
// terminal statuses.
func runSign(t *testing.T, cfg Config, clientShare, serverShare *KeyShare, digest []byte) (SigningStatus, SigningStatus) {
	t.Helper()
	client, err := NewSigningSession(cfg, clientShare, digest)
	require.NoError(t, err)
	server, err := NewSigningSession(cfg, serverShare, digest)
	require.NoError(t, err)

	var sst SigningStatus
	msg, cst, err := client.Advance(nil)
	require.NoError(t, err)
	for len(msg) > 0 {
		var reply []byte
		reply, sst, err = server.Advance(msg)
		require.NoError(t, err)
		msg = nil
		if len(reply) > 0 {
			msg, cst, err = client.Advance(reply)
			require.NoError(t, err)
		}
	}
	return cst, sst
}

// Key generation is the expensive part; most signing tests reuse one
// pair of shares.
var (
	keygenOnce   sync.Once
	sharedClient *KeygenResult
	sharedServer *KeygenResult
)

func sharedShares(t *testing.T) (*KeyShare, *KeyShare) {
	t.Helper()
	keygenOnce.Do(func() {
		sharedClient, sharedServer = runKeygen(t, testConfig())
	})
	require.NotNil(t, sharedClient)
	require.NotNil(t, sharedServer)
	return sharedClient.Share, sharedServer.Share
}

func TestKeygenPartiesAgree(t *testing.T) {
	clientRes, serverRes := runKeygen(t, testConfig())

	require.Equal(t, clientRes.Public.JointPublic, serverRes.Public.JointPublic)
	require.Equal(t, clientRes.Public.ShareCommitment, serverRes.Public.ShareCommitment)
	require.Equal(t, clientRes.Public.PaillierModulus, serverRes.Public.PaillierModulus)

	require.Equal(t, RoleClient, clientRes.Share.Role)
	require.NotNil(t, clientRes.Share.PaillierSK)
	require.Nil(t, clientRes.Share.CKey)

	require.Equal(t, RoleServer, serverRes.Share.Role)
	require.Nil(t, serverRes.Share.PaillierSK)
	require.NotNil(t, serverRes.Share.PeerPaillierPK)
	require.NotNil(t, serverRes.Share.CKey)

	// The server's ciphertext must hold exactly the client share.
	plain, err := clientRes.Share.PaillierSK.Decrypt(serverRes.Share.CKey)
	require.NoError(t, err)
	require.Zero(t, plain.Cmp(clientRes.Share.Share.Big()))
}

func TestKeygenAbortsOnBadPaillierProof(t *testing.T) {
	cfg := testConfig()
	client, err := NewKeygenSession(cfg, RoleClient)
	require.NoError(t, err)
	server, err := NewKeygenSession(cfg, RoleServer)
	require.NoError(t, err)

	msg, _, err := client.Advance(nil)
	require.NoError(t, err)

	var env Message
	require.NoError(t, encoding.Unmarshal(msg, &env))
	var body keygenCommitBody
	require.NoError(t, encoding.Unmarshal(env.Body, &body))
	body.ModProof.Ys[0][0] ^= 0x01
	env.Body, err = encoding.Marshal(body)
	require.NoError(t, err)
	tampered, err := encoding.Marshal(env)
	require.NoError(t, err)

	_, st, err := server.Advance(tampered)
	require.Error(t, err)
	var pe *ProofError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, zk.KindMod, pe.Proof)
	require.Equal(t, KeygenAborted, st.State)
	require.Equal(t, AbortProofFailed, st.Abort.Code)
	require.Nil(t, st.Result)

	// Aborts are permanent, even for the honest original message.
	_, _, err = server.Advance(msg)
	require.ErrorIs(t, err, ErrSessionAborted)
}

func TestKeygenReplayReturnsCachedReply(t *testing.T) {
	cfg := testConfig()
	client, err := NewKeygenSession(cfg, RoleClient)
	require.NoError(t, err)
	server, err := NewKeygenSession(cfg, RoleServer)
	require.NoError(t, err)

	msg, _, err := client.Advance(nil)
	require.NoError(t, err)
	reply, st, err := server.Advance(msg)
	require.NoError(t, err)

	again, stAgain, err := server.Advance(msg)
	require.NoError(t, err)
	require.True(t, bytes.Equal(reply, again))
	require.Equal(t, st.State, stAgain.State)
}

func TestSigningReplayOfEarlierRoundReturnsCachedReply(t *testing.T) {
	clientShare, serverShare := sharedShares(t)
	digest := sha256.Sum256([]byte("replay-earlier-round"))

	client, err := NewSigningSession(testConfig(), clientShare, digest[:])
	require.NoError(t, err)
	server, err := NewSigningSession(testConfig(), serverShare, digest[:])
	require.NoError(t, err)

	commit, _, err := client.Advance(nil)
	require.NoError(t, err)
	ack, _, err := server.Advance(commit)
	require.NoError(t, err)
	reveal, _, err := client.Advance(ack)
	require.NoError(t, err)
	partial, st, err := server.Advance(reveal)
	require.NoError(t, err)
	require.Equal(t, SignCombine, st.State)

	// The first round is two rounds behind the server's current state.
	again, stAgain, err := server.Advance(commit)
	require.NoError(t, err)
	require.True(t, bytes.Equal(ack, again))
	require.Equal(t, st.State, stAgain.State)

	again, stAgain, err = server.Advance(reveal)
	require.NoError(t, err)
	require.True(t, bytes.Equal(partial, again))
	require.Equal(t, st.State, stAgain.State)

	// The replays must not have disturbed the live run.
	result, cst, err := client.Advance(partial)
	require.NoError(t, err)
	require.Equal(t, SignDone, cst.State)
	_, sst, err := server.Advance(result)
	require.NoError(t, err)
	require.Equal(t, SignDone, sst.State)
}

func TestKeygenOutOfOrderMessageAborts(t *testing.T) {
	server, err := NewKeygenSession(testConfig(), RoleServer)
	require.NoError(t, err)

	stray, err := encodeMessage("session", MsgKeygenOpen, 3, keygenOpenBody{})
	require.NoError(t, err)

	_, st, err := server.Advance(stray)
	require.ErrorIs(t, err, ErrOutOfOrderMessage)
	require.Equal(t, KeygenAborted, st.State)
	require.Equal(t, AbortMalformed, st.Abort.Code)
}

func TestSigningEndToEnd(t *testing.T) {
	clientShare, serverShare := sharedShares(t)
	digest := sha256.Sum256([]byte("test-transaction-001"))

	cst, sst := runSign(t, testConfig(), clientShare, serverShare, digest[:])
	require.Equal(t, SignDone, cst.State)
	require.Equal(t, SignDone, sst.State)
	require.NotNil(t, cst.Signature)
	require.NotNil(t, sst.Signature)

	// Both parties finish with the same valid signature.
	require.Equal(t, cst.Signature.Encode(), sst.Signature.Encode())
	require.True(t, cst.Signature.Verify(clientShare.Public.JointPublic, digest[:]))

	// Low-s form.
	halfOrder := new(big.Int).Rsh(curve.Order(), 1)
	require.True(t, cst.Signature.S.Sign() > 0)
	require.True(t, cst.Signature.S.Cmp(halfOrder) <= 0)
}

func TestSigningDistinctDigestsDistinctSignatures(t *testing.T) {
	clientShare, serverShare := sharedShares(t)
	d1 := sha256.Sum256([]byte("transfer 1"))
	d2 := sha256.Sum256([]byte("transfer 2"))

	c1, _ := runSign(t, testConfig(), clientShare, serverShare, d1[:])
	c2, _ := runSign(t, testConfig(), clientShare, serverShare, d2[:])
	require.Equal(t, SignDone, c1.State)
	require.Equal(t, SignDone, c2.State)
	require.NotEqual(t, c1.Signature.Encode(), c2.Signature.Encode())

	// A signature never verifies against the other digest.
	require.False(t, c1.Signature.Verify(clientShare.Public.JointPublic, d2[:]))
}

func TestSigningAbortsOnBadRangeProof(t *testing.T) {
	clientShare, serverShare := sharedShares(t)
	digest := sha256.Sum256([]byte("tampered range proof"))

	client, err := NewSigningSession(testConfig(), clientShare, digest[:])
	require.NoError(t, err)
	server, err := NewSigningSession(testConfig(), serverShare, digest[:])
	require.NoError(t, err)

	msg, _, err := client.Advance(nil)
	require.NoError(t, err)

	var env Message
	require.NoError(t, encoding.Unmarshal(msg, &env))
	var body signNonceCommitBody
	require.NoError(t, encoding.Unmarshal(env.Body, &body))
	body.RangeProof.Zs[0][0] ^= 0x01
	env.Body, err = encoding.Marshal(body)
	require.NoError(t, err)
	tampered, err := encoding.Marshal(env)
	require.NoError(t, err)

	_, st, err := server.Advance(tampered)
	require.Error(t, err)
	var pe *ProofError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, zk.KindRange, pe.Proof)
	require.Equal(t, SignAborted, st.State)
	require.Equal(t, AbortProofFailed, st.Abort.Code)
	require.Nil(t, st.Signature)
}

func TestSigningSessionIsSingleUse(t *testing.T) {
	clientShare, serverShare := sharedShares(t)
	digest := sha256.Sum256([]byte("single use"))

	client, err := NewSigningSession(testConfig(), clientShare, digest[:])
	require.NoError(t, err)
	server, err := NewSigningSession(testConfig(), serverShare, digest[:])
	require.NoError(t, err)

	msg, cst, err := client.Advance(nil)
	require.NoError(t, err)
	for len(msg) > 0 {
		var reply []byte
		reply, _, err = server.Advance(msg)
		require.NoError(t, err)
		msg = nil
		if len(reply) > 0 {
			msg, cst, err = client.Advance(reply)
			require.NoError(t, err)
		}
	}
	require.Equal(t, SignDone, cst.State)

	_, _, err = client.Advance([]byte("anything"))
	require.ErrorIs(t, err, ErrSessionConsumed)
	_, _, err = server.Advance([]byte("anything"))
	require.ErrorIs(t, err, ErrSessionConsumed)
}

func TestSigningRejectsBadDigestLength(t *testing.T) {
	clientShare, _ := sharedShares(t)
	_, err := NewSigningSession(testConfig(), clientShare, []byte("short"))
	require.ErrorIs(t, err, ErrMalformedMessage)
}

func TestSessionLogsCarryNoShareMaterial(t *testing.T) {
	clientShare, serverShare := sharedShares(t)
	digest := sha256.Sum256([]byte("log hygiene"))

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	cfg := Config{PaillierBits: testPaillierBits, Logger: &logger}

	cst, _ := runSign(t, cfg, clientShare, serverShare, digest[:])
	require.Equal(t, SignDone, cst.State)

	logs := buf.String()
	require.NotEmpty(t, logs)
	require.NotContains(t, logs, clientShare.Share.Big().Text(16))
	require.NotContains(t, logs, serverShare.Share.Big().Text(16))
}

func TestKeyShareRoundTrip(t *testing.T) {
	clientShare, serverShare := sharedShares(t)

	for _, share := range []*KeyShare{clientShare, serverShare} {
		raw, err := share.Encode()
		require.NoError(t, err)
		got, err := DecodeKeyShare(raw)
		require.NoError(t, err)

		require.Equal(t, share.Role, got.Role)
		require.True(t, share.Share.Equal(got.Share))
		require.Equal(t, share.Public.JointPublic, got.Public.JointPublic)
		if share.CKey != nil {
			require.Zero(t, share.CKey.Cmp(got.CKey))
		}
		if share.PaillierSK != nil {
			// The restored key must still decrypt.
			c, err := got.PaillierSK.PublicKey().Encrypt(share.Share.Big())
			require.NoError(t, err)
			p, err := got.PaillierSK.Decrypt(c)
			require.NoError(t, err)
			require.Zero(t, p.Cmp(share.Share.Big()))
		}
	}
}

func TestPublicKeyPackageRoundTrip(t *testing.T) {
	sharedShares(t)

	pub := sharedClient.Public
	raw, err := pub.Encode()
	require.NoError(t, err)
	got, err := DecodePublicKeyPackage(raw)
	require.NoError(t, err)
	require.Equal(t, pub.JointPublic, got.JointPublic)

	pt, err := got.Point()
	require.NoError(t, err)
	require.False(t, pt.IsInfinity())
}

func TestKeygenFullStrengthModulus(t *testing.T) {
	if testing.Short() {
		t.Skip("2048-bit paillier keygen is slow")
	}
	cfg := testConfig()
	cfg.PaillierBits = 2048

	clientRes, serverRes := runKeygen(t, cfg)
	digest := sha256.Sum256([]byte("test-transaction-001"))
	cst, sst := runSign(t, cfg, clientRes.Share, serverRes.Share, digest[:])
	require.Equal(t, SignDone, cst.State)
	require.Equal(t, SignDone, sst.State)
	require.True(t, cst.Signature.Verify(clientRes.Public.JointPublic, digest[:]))
}
