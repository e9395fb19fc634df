// Package integration provides integration tests for pmtransfer.
//
// These tests run the sponsored transfer against a real zkSync Era node
// with a deployed paymaster and token. They are skipped when no node is
// available, making them safe to include in CI/CD pipelines.
//
// # Running Integration Tests
//
// Connection tests (no account needed):
//
//	RPC_URL=http://localhost:3050 go test ./internal/integration/...
//
// Dry run and full transfer (requires deployed contracts):
//
//	RPC_URL=http://localhost:3050 \
//	PRIVATE_KEY=0x... \
//	PAYMASTER_ADDRESS=0x... \
//	TOKEN_ADDRESS=0x... \
//	go test ./internal/integration/...
//
// Skip integration tests in CI:
//
//	go test -short ./...
//
// # Environment Variables
//
//   - RPC_URL: RPC endpoint URL (default: http://localhost:3050)
//   - PRIVATE_KEY: sender key holding tokens (hex, with or without 0x prefix)
//   - PAYMASTER_ADDRESS, TOKEN_ADDRESS: deployed contracts
//   - EMPTY_WALLET_ADDRESS: transfer recipient (defaults to the sender)
//   - VALUE_TO_SEND: amount in token base units (default: 1)
package integration
