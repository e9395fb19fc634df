package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrNetworkFailure is returned when an RPC call could not complete
	ErrNetworkFailure = errors.New("network failure")
	// ErrEstimationRevert is returned when the node simulated the call and it reverted
	ErrEstimationRevert = errors.New("execution reverted")
)

// JSON-RPC protocol level error codes; anything else came from execution
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
)

// Classify wraps err with ErrNetworkFailure or ErrEstimationRevert.
// Context cancellation is returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, ErrNetworkFailure) || errors.Is(err, ErrEstimationRevert) {
		return err
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeParseError, codeInvalidRequest, codeMethodNotFound:
			return fmt.Errorf("%w: %w", ErrNetworkFailure, err)
		}
		return fmt.Errorf("%w: %w", ErrEstimationRevert, err)
	}

	if strings.Contains(strings.ToLower(err.Error()), "execution reverted") {
		return fmt.Errorf("%w: %w", ErrEstimationRevert, err)
	}
	return fmt.Errorf("%w: %w", ErrNetworkFailure, err)
}

// RevertData returns the hex revert payload attached to a JSON-RPC error, if any
func RevertData(err error) (string, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return "", false
	}
	data, ok := dataErr.ErrorData().(string)
	return data, ok
}
