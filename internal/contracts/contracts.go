// Package contracts locates the token, paymaster and greeter contracts and
// wraps the calls the transfer needs from them.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ErrAddressMissing is returned when a contract has no configured address
var ErrAddressMissing = errors.New("contract address not configured")

// Signer is the account bound to a handle
type Signer interface {
	Address() common.Address
}

// Caller executes read-only contract calls
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Handle binds a contract address to its ABI and the signing account
type Handle struct {
	Name    string
	Address common.Address
	ABI     abi.ABI
	Signer  common.Address
}

// Locator resolves contract handles
type Locator struct {
	registry Registry
	signer   Signer
}

// NewLocator creates a locator backed by registry
func NewLocator(registry Registry, signer Signer) *Locator {
	return &Locator{
		registry: registry,
		signer:   signer,
	}
}

// Locate returns the handle for the named contract at address
func (l *Locator) Locate(name string, address common.Address) (*Handle, error) {
	if address == (common.Address{}) {
		return nil, fmt.Errorf("%s: %w", name, ErrAddressMissing)
	}

	parsed, err := l.registry.ABI(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s ABI: %w", name, err)
	}

	return &Handle{
		Name:    name,
		Address: address,
		ABI:     parsed,
		Signer:  l.signer.Address(),
	}, nil
}

// Pack encodes a call to method
func (h *Handle) Pack(method string, args ...interface{}) ([]byte, error) {
	data, err := h.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s.%s: %w", h.Name, method, err)
	}
	return data, nil
}

// Call performs an eth_call from the bound signer and decodes the outputs
func (h *Handle) Call(ctx context.Context, caller Caller, method string, args ...interface{}) ([]interface{}, error) {
	data, err := h.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	to := h.Address
	out, err := caller.CallContract(ctx, ethereum.CallMsg{
		From: h.Signer,
		To:   &to,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s.%s call failed: %w", h.Name, method, err)
	}

	values, err := h.ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s.%s result: %w", h.Name, method, err)
	}
	return values, nil
}

func (h *Handle) callUint(ctx context.Context, caller Caller, method string, args ...interface{}) (*big.Int, error) {
	values, err := h.Call(ctx, caller, method, args...)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s.%s returned %d values, want 1", h.Name, method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s.%s returned %T, want uint256", h.Name, method, values[0])
	}
	return v, nil
}
