package testing

import (
	"math/big"
	"testing"
	"time"

	"github.com/0xmhha/pmtransfer/internal/config"
)

// Well-known addresses used across tests
const (
	TestPaymasterAddress = "0x1234567890123456789012345678901234567890"
	TestTokenAddress     = "0xabcdef0123456789abcdef0123456789abcdef01"
	TestRecipient        = "0x00000000000000000000000000000000000000bb"
	TestGreeterAddress   = "0x00000000000000000000000000000000000000cc"
)

// TestConfig creates a valid test configuration
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		URL:              "http://localhost:3050",
		PrivateKey:       "0x" + TestPrivateKey,
		PaymasterAddress: TestPaymasterAddress,
		TokenAddress:     TestTokenAddress,
		Recipient:        TestRecipient,
		Amount:           "5000000",
		PollInterval:     time.Millisecond,
		Timeout:          2 * time.Second,
	}
}

// MockWithFeeds returns a mock node whose paymaster reports the given
// native and token prices on the default feeds
func MockWithFeeds(t *testing.T, native, token *big.Int) *MockClient {
	t.Helper()
	m := NewMockClient()
	m.SetDapi(HexToAddress(config.DefaultNativeFeed), native)
	m.SetDapi(HexToAddress(config.DefaultTokenFeed), token)
	return m
}

// InvalidConfigs returns a set of invalid configurations for testing validation
func InvalidConfigs(t *testing.T) map[string]*config.Config {
	t.Helper()

	mutate := func(fn func(*config.Config)) *config.Config {
		cfg := TestConfig(t)
		fn(cfg)
		return cfg
	}

	return map[string]*config.Config{
		"invalid_url":         mutate(func(c *config.Config) { c.URL = "invalid-url" }),
		"missing_credentials": mutate(func(c *config.Config) { c.PrivateKey = "" }),
		"invalid_private_key": mutate(func(c *config.Config) { c.PrivateKey = "invalid-key" }),
		"missing_paymaster":   mutate(func(c *config.Config) { c.PaymasterAddress = "" }),
		"missing_token":       mutate(func(c *config.Config) { c.TokenAddress = "" }),
		"missing_recipient":   mutate(func(c *config.Config) { c.Recipient = "" }),
		"negative_amount":     mutate(func(c *config.Config) { c.Amount = "-1" }),
		"zero_placeholder":    mutate(func(c *config.Config) { c.PlaceholderAllowance = "0" }),
	}
}
