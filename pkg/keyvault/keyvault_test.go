package keyvault

import (
	"bytes"
	"math/big"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/arcadia-exchange/mpc/pkg/curve"
	"github.com/arcadia-exchange/mpc/pkg/protocol"
)

func testVault(t *testing.T) *Vault {
	t.Helper()
	v, err := Open(Options{
		Passphrase:       "correct horse battery staple",
		ScryptWorkFactor: 10,
		InMemory:         true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, v.Close()) })
	return v
}

func TestOpenRejectsEmptyPassphrase(t *testing.T) {
	_, err := Open(Options{InMemory: true})
	require.ErrorIs(t, err, ErrPassphraseEmpty)
}

func TestPutGetDelete(t *testing.T) {
	v := testVault(t)

	require.NoError(t, v.Put("share/alpha", []byte("sealed payload")))
	got, err := v.Get("share/alpha")
	require.NoError(t, err)
	require.Equal(t, []byte("sealed payload"), got)

	require.NoError(t, v.Delete("share/alpha"))
	_, err = v.Get("share/alpha")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op.
	require.NoError(t, v.Delete("share/alpha"))
}

func TestGetMissingKey(t *testing.T) {
	v := testVault(t)
	_, err := v.Get("share/never-stored")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestKeysSorted(t *testing.T) {
	v := testVault(t)
	require.NoError(t, v.Put("public/b", []byte("2")))
	require.NoError(t, v.Put("share/a", []byte("1")))
	require.NoError(t, v.Put("share/c", []byte("3")))

	keys, err := v.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"public/b", "share/a", "share/c"}, keys)
}

func TestStoredValuesAreSealed(t *testing.T) {
	v := testVault(t)
	plain := []byte("super secret scalar bytes")
	require.NoError(t, v.Put("share/x", plain))

	// The raw database value must not contain the plaintext.
	var raw []byte
	err := v.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("share/x"))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	require.NoError(t, err)
	require.False(t, bytes.Contains(raw, plain))

	got, err := v.Get("share/x")
	require.NoError(t, err)
	require.Equal(t, plain, got)
}

func TestShareAndPublicRoundTrip(t *testing.T) {
	v := testVault(t)

	scalar := curve.NewScalar(big.NewInt(7))
	joint, err := curve.BaseMul(scalar).Encode()
	require.NoError(t, err)
	pub := &protocol.PublicKeyPackage{
		JointPublic:     joint,
		ShareCommitment: []byte{1, 2, 3},
		PaillierModulus: []byte{4, 5, 6},
	}
	share := &protocol.KeyShare{
		Role:   protocol.RoleServer,
		Share:  scalar,
		Public: pub,
		CKey:   big.NewInt(99),
	}

	require.NoError(t, v.PutShare("wallet-1", share))
	gotShare, err := v.GetShare("wallet-1")
	require.NoError(t, err)
	require.Equal(t, protocol.RoleServer, gotShare.Role)
	require.True(t, share.Share.Equal(gotShare.Share))
	require.Zero(t, share.CKey.Cmp(gotShare.CKey))

	require.NoError(t, v.PutPublic("wallet-1", pub))
	gotPub, err := v.GetPublic("wallet-1")
	require.NoError(t, err)
	require.Equal(t, pub.JointPublic, gotPub.JointPublic)

	_, err = v.GetShare("wallet-2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestWrongPassphraseFailsToUnseal(t *testing.T) {
	v := testVault(t)
	require.NoError(t, v.Put("share/x", []byte("payload")))

	// Swap the identity for one derived from a different passphrase.
	other, err := Open(Options{
		Passphrase:       "different passphrase",
		ScryptWorkFactor: 10,
		InMemory:         true,
	})
	require.NoError(t, err)
	defer other.Close()

	sealed, err := v.seal([]byte("payload"))
	require.NoError(t, err)
	_, err = other.open(sealed)
	require.Error(t, err)
}
