package config

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/multierr"
)

// Defaults mirror the public zkSync Era testnet deployment the transfer was written against
const (
	DefaultURL                  = "https://testnet.era.zksync.dev"
	DefaultNativeFeed           = "0x28ce555ee7a3daCdC305951974FcbA59F5BdF09b" // ETH/USD dAPI proxy
	DefaultTokenFeed            = "0x946E3232Cc18E812895A8e83CaE3d0caA241C2AB" // USDC/USD dAPI proxy
	DefaultPlaceholderAllowance = "100000000000000000000"
	DefaultGasPerPubdata        = 50000
	DefaultPollInterval         = time.Second
	DefaultOutputDir            = "./reports"
)

var (
	// ErrMissing is returned when a required value is absent
	ErrMissing = errors.New("missing required configuration")
	// ErrMalformed is returned when a value is present but cannot be parsed
	ErrMalformed = errors.New("malformed configuration")
)

// Config holds all configuration for a sponsored transfer run
type Config struct {
	// RPC connection
	URL     string `mapstructure:"url"`
	ChainID uint64 `mapstructure:"chain-id"`

	// Sender account
	PrivateKey   string `mapstructure:"private-key"`
	Mnemonic     string `mapstructure:"mnemonic"`
	AccountIndex uint32 `mapstructure:"account-index"`

	// Contracts
	PaymasterAddress string `mapstructure:"paymaster"`
	TokenAddress     string `mapstructure:"token"`
	GreeterAddress   string `mapstructure:"greeter"`
	ArtifactsDir     string `mapstructure:"artifacts"`

	// Transfer
	Recipient string `mapstructure:"recipient"`
	Amount    string `mapstructure:"amount"`

	// Fee conversion
	NativeFeed           string `mapstructure:"native-feed"`
	TokenFeed            string `mapstructure:"token-feed"`
	PlaceholderAllowance string `mapstructure:"placeholder-allowance"`
	GasPerPubdata        uint64 `mapstructure:"gas-per-pubdata"`

	// Run behavior
	RequireEmptyBalance bool          `mapstructure:"require-empty-balance"`
	DryRun              bool          `mapstructure:"dry-run"`
	Timeout             time.Duration `mapstructure:"timeout"`
	PollInterval        time.Duration `mapstructure:"poll-interval"`

	// Output
	OutputDir   string `mapstructure:"output-dir"`
	Verbose     bool   `mapstructure:"verbose"`
	PushGateway string `mapstructure:"pushgateway"`
}

var (
	httpRegex    = regexp.MustCompile(`^https?://`)
	wsRegex      = regexp.MustCompile(`^wss?://`)
	hexKeyRegex  = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)
	addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// ApplyDefaults fills unset optional fields
func (c *Config) ApplyDefaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.NativeFeed == "" {
		c.NativeFeed = DefaultNativeFeed
	}
	if c.TokenFeed == "" {
		c.TokenFeed = DefaultTokenFeed
	}
	if c.PlaceholderAllowance == "" {
		c.PlaceholderAllowance = DefaultPlaceholderAllowance
	}
	if c.GasPerPubdata == 0 {
		c.GasPerPubdata = DefaultGasPerPubdata
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// Validate checks every field before any network call is made and
// reports all problems found, not only the first one.
func (c *Config) Validate() error {
	c.ApplyDefaults()

	var err error

	if !httpRegex.MatchString(c.URL) && !wsRegex.MatchString(c.URL) {
		err = multierr.Append(err, fmt.Errorf("%w: url must be a valid HTTP or WebSocket URL", ErrMalformed))
	}

	switch {
	case c.PrivateKey == "" && c.Mnemonic == "":
		err = multierr.Append(err, fmt.Errorf("%w: either private-key or mnemonic", ErrMissing))
	case c.PrivateKey != "" && !hexKeyRegex.MatchString(c.PrivateKey):
		err = multierr.Append(err, fmt.Errorf("%w: private-key must be a 64-character hex string", ErrMalformed))
	}

	err = multierr.Append(err, requireAddress("paymaster", c.PaymasterAddress))
	err = multierr.Append(err, requireAddress("token", c.TokenAddress))
	err = multierr.Append(err, requireAddress("recipient", c.Recipient))
	err = multierr.Append(err, requireAddress("native-feed", c.NativeFeed))
	err = multierr.Append(err, requireAddress("token-feed", c.TokenFeed))
	if c.GreeterAddress != "" && !addressRegex.MatchString(c.GreeterAddress) {
		err = multierr.Append(err, fmt.Errorf("%w: greeter must be a 40-character hex address with 0x prefix", ErrMalformed))
	}

	if c.Amount == "" {
		err = multierr.Append(err, fmt.Errorf("%w: amount", ErrMissing))
	} else if _, perr := parseUnsigned(c.Amount); perr != nil {
		err = multierr.Append(err, fmt.Errorf("%w: amount: %v", ErrMalformed, perr))
	}

	if v, perr := parseUnsigned(c.PlaceholderAllowance); perr != nil {
		err = multierr.Append(err, fmt.Errorf("%w: placeholder-allowance: %v", ErrMalformed, perr))
	} else if v.Sign() == 0 {
		err = multierr.Append(err, fmt.Errorf("%w: placeholder-allowance must be greater than 0", ErrMalformed))
	}

	if c.Timeout < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: timeout must not be negative", ErrMalformed))
	}

	return err
}

func requireAddress(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s address", ErrMissing, name)
	}
	if !addressRegex.MatchString(value) {
		return fmt.Errorf("%w: %s must be a 40-character hex address with 0x prefix", ErrMalformed, name)
	}
	return nil
}

func parseUnsigned(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a decimal integer", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%q is negative", s)
	}
	return v, nil
}

// Paymaster returns the paymaster contract address
func (c *Config) Paymaster() common.Address {
	return common.HexToAddress(c.PaymasterAddress)
}

// Token returns the ERC20 token address
func (c *Config) Token() common.Address {
	return common.HexToAddress(c.TokenAddress)
}

// Greeter returns the greeter address, or the zero address when unset
func (c *Config) Greeter() common.Address {
	if c.GreeterAddress == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.GreeterAddress)
}

// RecipientAddress returns the transfer recipient
func (c *Config) RecipientAddress() common.Address {
	return common.HexToAddress(c.Recipient)
}

// Feeds returns the native/USD and token/USD feed addresses
func (c *Config) Feeds() (native, token common.Address) {
	return common.HexToAddress(c.NativeFeed), common.HexToAddress(c.TokenFeed)
}

// AmountValue returns the transfer amount in token base units.
// It must only be called on a validated config.
func (c *Config) AmountValue() *big.Int {
	v, _ := parseUnsigned(c.Amount)
	return v
}

// PlaceholderAllowanceValue returns the estimation-time allowance
func (c *Config) PlaceholderAllowanceValue() *big.Int {
	v, _ := parseUnsigned(c.PlaceholderAllowance)
	return v
}

