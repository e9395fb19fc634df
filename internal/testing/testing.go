// Package testing provides test utilities and helpers for pmtransfer tests.
package testing

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0xmhha/pmtransfer/internal/wallet"
)

// TestPrivateKey is a well-known test private key (DO NOT use in production)
const TestPrivateKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// TestMnemonic is a well-known test mnemonic (DO NOT use in production)
const TestMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// TestChainID is the default chain ID for tests (zkSync Era testnet)
var TestChainID = big.NewInt(280)

// GenerateTestKey generates a random private key for testing
func GenerateTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	return key
}

// MustWallet returns the wallet of TestPrivateKey or fails the test
func MustWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.NewFromPrivateKey(TestPrivateKey)
	if err != nil {
		t.Fatalf("failed to create test wallet: %v", err)
	}
	return w
}

// AddressFromKey returns the address for a private key
func AddressFromKey(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// RandomAddress generates a random address for testing
func RandomAddress(t *testing.T) common.Address {
	t.Helper()
	return AddressFromKey(GenerateTestKey(t))
}

// HexToAddress converts a hex string to an address
func HexToAddress(hex string) common.Address {
	return common.HexToAddress(hex)
}

// Ether converts ether to wei
func Ether(n int64) *big.Int {
	wei := big.NewInt(n)
	return wei.Mul(wei, big.NewInt(1e18))
}

// Gwei converts gwei to wei
func Gwei(n int64) *big.Int {
	wei := big.NewInt(n)
	return wei.Mul(wei, big.NewInt(1e9))
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertErrorIs fails the test unless err wraps target
func AssertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}

// AssertEqual fails the test if got != want
func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertBigEqual fails the test unless got equals want numerically
func AssertBigEqual(t *testing.T, got, want *big.Int) {
	t.Helper()
	if got == nil || want == nil || got.Cmp(want) != 0 {
		t.Errorf("got %v, want %v", got, want)
	}
}
