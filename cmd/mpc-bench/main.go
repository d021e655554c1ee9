// mpc-bench runs both parties of the threshold signing protocol in one
// process over a loopback message pump. It exists to exercise key
// generation and signing end to end and to report their cost.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/arcadia-exchange/mpc/pkg/keyvault"
	"github.com/arcadia-exchange/mpc/pkg/paillier"
	"github.com/arcadia-exchange/mpc/pkg/protocol"
)

const Version = "0.1.0"

type benchConfig struct {
	PaillierBits int    `mapstructure:"paillier_bits"`
	VaultDir     string `mapstructure:"vault_dir"`
	Wallet       string `mapstructure:"wallet"`
	LogLevel     string `mapstructure:"log_level"`
	Passphrase   string `mapstructure:"passphrase"`
}

func main() {
	app := &cli.Command{
		Name:    "mpc-bench",
		Usage:   "Two-party threshold ECDSA benchmark harness",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file (yaml)",
			},
			&cli.IntFlag{
				Name:  "paillier-bits",
				Usage: "Paillier modulus size",
			},
			&cli.StringFlag{
				Name:  "vault-dir",
				Usage: "Key vault directory",
			},
			&cli.StringFlag{
				Name:    "wallet",
				Aliases: []string{"w"},
				Usage:   "Wallet name for vault entries",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "passphrase",
				Usage: "Vault passphrase (prompted when omitted)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "keygen",
				Usage:  "Run distributed key generation and store both shares",
				Action: runKeygenCmd,
			},
			{
				Name:  "sign",
				Usage: "Sign a message digest with stored shares",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "message",
						Aliases: []string{"m"},
						Usage:   "Message to hash and sign",
						Value:   "test-transaction-001",
					},
					&cli.IntFlag{
						Name:    "iterations",
						Aliases: []string{"i"},
						Usage:   "Number of signing rounds to time",
						Value:   1,
					},
				},
				Action: runSignCmd,
			},
			{
				Name:  "all",
				Usage: "Run keygen followed by a signing round",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "message",
						Aliases: []string{"m"},
						Usage:   "Message to hash and sign",
						Value:   "test-transaction-001",
					},
					&cli.IntFlag{
						Name:    "iterations",
						Aliases: []string{"i"},
						Usage:   "Number of signing rounds to time",
						Value:   1,
					},
				},
				Action: runAllCmd,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig merges defaults, the optional config file, environment
// variables, and command-line flags, in increasing precedence.
func loadConfig(cmd *cli.Command) (benchConfig, error) {
	v := viper.New()
	v.SetDefault("paillier_bits", paillier.DefaultModulusBits)
	v.SetDefault("vault_dir", "./mpc-vault")
	v.SetDefault("wallet", "default")
	v.SetDefault("log_level", "info")
	v.SetEnvPrefix("MPC")
	v.AutomaticEnv()

	if path := cmd.String("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return benchConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg benchConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return benchConfig{}, err
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return benchConfig{}, fmt.Errorf("decode config: %w", err)
	}

	if cmd.IsSet("paillier-bits") {
		cfg.PaillierBits = int(cmd.Int("paillier-bits"))
	}
	if cmd.IsSet("vault-dir") {
		cfg.VaultDir = cmd.String("vault-dir")
	}
	if cmd.IsSet("wallet") {
		cfg.Wallet = cmd.String("wallet")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("passphrase") {
		cfg.Passphrase = cmd.String("passphrase")
	}
	return cfg, nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("log level %q: %w", level, err)
	}
	return protocol.ConsoleLogger().Level(lvl), nil
}

// passphrase returns the configured passphrase, prompting on a terminal
// when none was supplied.
func passphrase(cfg benchConfig) (string, error) {
	if cfg.Passphrase != "" {
		return cfg.Passphrase, nil
	}
	if !term.IsTerminal(syscall.Stdin) {
		return "", errors.New("no passphrase configured and stdin is not a terminal")
	}
	fmt.Print("Enter vault passphrase: ")
	pass, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pass), nil
}

func openVault(cfg benchConfig, logger *zerolog.Logger) (*keyvault.Vault, error) {
	pass, err := passphrase(cfg)
	if err != nil {
		return nil, err
	}
	return keyvault.Open(keyvault.Options{
		Dir:        cfg.VaultDir,
		Passphrase: pass,
		Logger:     logger,
	})
}

func runKeygenCmd(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	vault, err := openVault(cfg, &logger)
	if err != nil {
		return err
	}
	defer vault.Close()

	_, err = keygenToVault(cfg, &logger, vault)
	return err
}

func runSignCmd(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	vault, err := openVault(cfg, &logger)
	if err != nil {
		return err
	}
	defer vault.Close()

	return signFromVault(cfg, &logger, vault, cmd.String("message"), int(cmd.Int("iterations")))
}

func runAllCmd(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	vault, err := openVault(cfg, &logger)
	if err != nil {
		return err
	}
	defer vault.Close()

	if _, err := keygenToVault(cfg, &logger, vault); err != nil {
		return err
	}
	return signFromVault(cfg, &logger, vault, cmd.String("message"), int(cmd.Int("iterations")))
}

// keygenToVault runs both keygen parties over the loopback pump and
// stores the resulting shares.
func keygenToVault(cfg benchConfig, logger *zerolog.Logger, vault *keyvault.Vault) (*protocol.PublicKeyPackage, error) {
	pcfg := protocol.Config{PaillierBits: cfg.PaillierBits, Logger: logger}

	client, err := protocol.NewKeygenSession(pcfg, protocol.RoleClient)
	if err != nil {
		return nil, err
	}
	server, err := protocol.NewKeygenSession(pcfg, protocol.RoleServer)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var cst, sst protocol.KeygenStatus
	msg, cst, err := client.Advance(nil)
	if err != nil {
		return nil, err
	}
	for len(msg) > 0 {
		var reply []byte
		reply, sst, err = server.Advance(msg)
		if err != nil {
			return nil, err
		}
		msg = nil
		if len(reply) > 0 {
			msg, cst, err = client.Advance(reply)
			if err != nil {
				return nil, err
			}
		}
	}
	if cst.State != protocol.KeygenFinalized || sst.State != protocol.KeygenFinalized {
		return nil, fmt.Errorf("keygen did not finalize: client=%s server=%s", cst.State, sst.State)
	}

	if err := vault.PutShare(cfg.Wallet+"/client", cst.Result.Share); err != nil {
		return nil, err
	}
	if err := vault.PutShare(cfg.Wallet+"/server", sst.Result.Share); err != nil {
		return nil, err
	}
	if err := vault.PutPublic(cfg.Wallet, cst.Result.Public); err != nil {
		return nil, err
	}

	logger.Info().
		Str("wallet", cfg.Wallet).
		Str("jointPublic", hex.EncodeToString(cst.Result.Public.JointPublic)).
		Dur("elapsed", time.Since(start)).
		Msg("key generation complete")
	return cst.Result.Public, nil
}

// signFromVault signs the digest of message with the stored shares,
// timing each round, and prints the last signature.
func signFromVault(cfg benchConfig, logger *zerolog.Logger, vault *keyvault.Vault, message string, iterations int) error {
	if iterations < 1 {
		iterations = 1
	}
	clientShare, err := vault.GetShare(cfg.Wallet + "/client")
	if err != nil {
		return err
	}
	serverShare, err := vault.GetShare(cfg.Wallet + "/server")
	if err != nil {
		return err
	}

	digest := sha256.Sum256([]byte(message))
	pcfg := protocol.Config{PaillierBits: cfg.PaillierBits, Logger: logger}

	var sig *protocol.Signature
	var total time.Duration
	for i := 0; i < iterations; i++ {
		start := time.Now()
		sig, err = signOnce(pcfg, clientShare, serverShare, digest[:])
		if err != nil {
			return err
		}
		elapsed := time.Since(start)
		total += elapsed
		logger.Debug().Int("iteration", i).Dur("elapsed", elapsed).Msg("signing round")
	}

	if !sig.Verify(clientShare.Public.JointPublic, digest[:]) {
		return errors.New("signature failed verification")
	}

	logger.Info().
		Str("wallet", cfg.Wallet).
		Int("iterations", iterations).
		Dur("total", total).
		Dur("perSignature", total/time.Duration(iterations)).
		Msg("signing complete")
	fmt.Printf("message:   %s\n", message)
	fmt.Printf("digest:    %s\n", hex.EncodeToString(digest[:]))
	fmt.Printf("signature: %s\n", hex.EncodeToString(sig.Encode()))
	return nil
}

// signOnce runs one full signing round over the loopback pump.
func signOnce(pcfg protocol.Config, clientShare, serverShare *protocol.KeyShare, digest []byte) (*protocol.Signature, error) {
	client, err := protocol.NewSigningSession(pcfg, clientShare, digest)
	if err != nil {
		return nil, err
	}
	server, err := protocol.NewSigningSession(pcfg, serverShare, digest)
	if err != nil {
		return nil, err
	}

	var cst protocol.SigningStatus
	msg, cst, err := client.Advance(nil)
	if err != nil {
		return nil, err
	}
	for len(msg) > 0 {
		var reply []byte
		reply, _, err = server.Advance(msg)
		if err != nil {
			return nil, err
		}
		msg = nil
		if len(reply) > 0 {
			msg, cst, err = client.Advance(reply)
			if err != nil {
				return nil, err
			}
		}
	}
	if cst.State != protocol.SignDone {
		return nil, fmt.Errorf("signing did not finish: %s", cst.State)
	}
	return cst.Signature, nil
}
