package protocol

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/arcadia-exchange/mpc/pkg/paillier"
)

// Role identifies a party. The client holds the Paillier private key and
// decrypts the partial signature; the server holds the encrypted client
// share and computes the partial signature homomorphically.
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// Config carries the few tunables the core exposes. The curves are fixed
// at build time; only the Paillier modulus size and logging are
// configurable.
type Config struct {
	// PaillierBits is the Paillier modulus size; defaults to
	// paillier.DefaultModulusBits.
	PaillierBits int

	// Logger receives per-round session logs. Nil silences logging.
	// Secret material never reaches the logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a production configuration logging to the console.
func DefaultConfig() Config {
	logger := ConsoleLogger()
	return Config{
		PaillierBits: paillier.DefaultModulusBits,
		Logger:       &logger,
	}
}

// ConsoleLogger builds the console logger the sessions use by default.
func ConsoleLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func (c Config) normalize() Config {
	if c.PaillierBits == 0 {
		c.PaillierBits = paillier.DefaultModulusBits
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	return c
}
