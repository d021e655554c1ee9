// Package keyvault persists key shares and public key packages in an
// encrypted on-disk store. Every value is sealed under a passphrase
// before it reaches the database, so the store never holds plaintext
// share material.
package keyvault

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/arcadia-exchange/mpc/pkg/protocol"
)

var (
	// ErrNotFound is returned when the requested entry does not exist.
	ErrNotFound = errors.New("keyvault: entry not found")

	// ErrPassphraseEmpty is returned when Open is given an empty
	// passphrase.
	ErrPassphraseEmpty = errors.New("keyvault: passphrase must not be empty")
)

const (
	sharePrefix  = "share/"
	publicPrefix = "public/"
)

// Options configures a vault.
type Options struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string

	// Passphrase seals every stored value.
	Passphrase string

	// ScryptWorkFactor overrides the passphrase hardening cost. Zero
	// keeps the library default; tests lower it.
	ScryptWorkFactor int

	// InMemory keeps the store off disk. Used in tests.
	InMemory bool

	// Logger receives store lifecycle logs. Nil silences logging.
	Logger *zerolog.Logger
}

// Vault is a passphrase-sealed store for key material.
type Vault struct {
	db        *badger.DB
	recipient *age.ScryptRecipient
	identity  *age.ScryptIdentity
	logger    zerolog.Logger
}

// Open opens or creates a vault at opts.Dir.
func Open(opts Options) (*Vault, error) {
	if opts.Passphrase == "" {
		return nil, ErrPassphraseEmpty
	}
	recipient, err := age.NewScryptRecipient(opts.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("keyvault: %w", err)
	}
	if opts.ScryptWorkFactor > 0 {
		recipient.SetWorkFactor(opts.ScryptWorkFactor)
	}
	identity, err := age.NewScryptIdentity(opts.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("keyvault: %w", err)
	}

	bopts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("keyvault: open store: %w", err)
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "keyvault").Logger()
	}
	logger.Info().Str("dir", opts.Dir).Bool("inMemory", opts.InMemory).Msg("vault opened")

	return &Vault{
		db:        db,
		recipient: recipient,
		identity:  identity,
		logger:    logger,
	}, nil
}

// Put seals value and stores it under key.
func (v *Vault) Put(key string, value []byte) error {
	sealed, err := v.seal(value)
	if err != nil {
		return err
	}
	return v.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), sealed)
	})
}

// Get loads and unseals the value stored under key.
func (v *Vault) Get(key string) ([]byte, error) {
	var sealed []byte
	err := v.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		if err != nil {
			return err
		}
		sealed, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v.open(sealed)
}

// Delete removes the entry stored under key. Deleting a missing entry
// is not an error.
func (v *Vault) Delete(key string) error {
	return v.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Keys lists every stored key in lexical order.
func (v *Vault) Keys() ([]string, error) {
	var keys []string
	err := v.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.PrefetchValues = false
		it := txn.NewIterator(iopts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Close flushes and closes the underlying store.
func (v *Vault) Close() error {
	return v.db.Close()
}

// PutShare stores a key share under name.
func (v *Vault) PutShare(name string, share *protocol.KeyShare) error {
	raw, err := share.Encode()
	if err != nil {
		return err
	}
	return v.Put(sharePrefix+name, raw)
}

// GetShare loads the key share stored under name.
func (v *Vault) GetShare(name string) (*protocol.KeyShare, error) {
	raw, err := v.Get(sharePrefix + name)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeKeyShare(raw)
}

// PutPublic stores a public key package under name.
func (v *Vault) PutPublic(name string, pub *protocol.PublicKeyPackage) error {
	raw, err := pub.Encode()
	if err != nil {
		return err
	}
	return v.Put(publicPrefix+name, raw)
}

// GetPublic loads the public key package stored under name.
func (v *Vault) GetPublic(name string) (*protocol.PublicKeyPackage, error) {
	raw, err := v.Get(publicPrefix + name)
	if err != nil {
		return nil, err
	}
	return protocol.DecodePublicKeyPackage(raw)
}

func (v *Vault) seal(value []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, v.recipient)
	if err != nil {
		return nil, fmt.Errorf("keyvault: seal: %w", err)
	}
	if _, err := w.Write(value); err != nil {
		return nil, fmt.Errorf("keyvault: seal: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("keyvault: seal: %w", err)
	}
	return buf.Bytes(), nil
}

func (v *Vault) open(sealed []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(sealed), v.identity)
	if err != nil {
		return nil, fmt.Errorf("keyvault: unseal: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("keyvault: unseal: %w", err)
	}
	return plain, nil
}
