package integration

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/0xmhha/pmtransfer/internal/client"
	"github.com/0xmhha/pmtransfer/internal/config"
	"github.com/0xmhha/pmtransfer/internal/pipeline"
	"github.com/0xmhha/pmtransfer/internal/wallet"
)

const (
	defaultRPCURL = "http://localhost:3050"
)

func rpcURL() string {
	if url := os.Getenv("RPC_URL"); url != "" {
		return url
	}
	return defaultRPCURL
}

// skipIfNoRPC skips the test if no RPC endpoint is available
func skipIfNoRPC(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cli, err := client.New(rpcURL())
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to RPC at %s: %v", rpcURL(), err)
	}
	defer cli.Close()

	if _, err := cli.ChainID(ctx); err != nil {
		t.Skipf("Skipping integration test: RPC not responding at %s: %v", rpcURL(), err)
	}
}

// skipIfNoDeployment skips the test unless a key and the contracts are provided
func skipIfNoDeployment(t *testing.T) {
	t.Helper()
	for _, name := range []string{"PRIVATE_KEY", "PAYMASTER_ADDRESS", "TOKEN_ADDRESS"} {
		if os.Getenv(name) == "" {
			t.Skipf("Skipping integration test: %s environment variable not set", name)
		}
	}
}

// getTestConfig returns a test configuration from environment variables
func getTestConfig(t *testing.T) *config.Config {
	t.Helper()

	key := os.Getenv("PRIVATE_KEY")
	w, err := wallet.NewFromPrivateKey(key)
	if err != nil {
		t.Fatalf("Invalid PRIVATE_KEY: %v", err)
	}

	recipient := os.Getenv("EMPTY_WALLET_ADDRESS")
	if recipient == "" {
		recipient = w.Address().Hex()
	}
	amount := os.Getenv("VALUE_TO_SEND")
	if amount == "" {
		amount = "1"
	}

	cfg := &config.Config{
		URL:              rpcURL(),
		PrivateKey:       key,
		PaymasterAddress: os.Getenv("PAYMASTER_ADDRESS"),
		TokenAddress:     os.Getenv("TOKEN_ADDRESS"),
		Recipient:        recipient,
		Amount:           amount,
		Timeout:          2 * time.Minute,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// TestClientConnection tests basic RPC connectivity
func TestClientConnection(t *testing.T) {
	skipIfNoRPC(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cli, err := client.New(rpcURL())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer cli.Close()

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		t.Fatalf("Failed to get chain ID: %v", err)
	}
	t.Logf("Chain ID: %s", chainID.String())

	blockNum, err := cli.BlockNumber(ctx)
	if err != nil {
		t.Fatalf("Failed to get block number: %v", err)
	}
	t.Logf("Block Number: %d", blockNum)

	gasPrice, err := cli.SuggestGasPrice(ctx)
	if err != nil {
		t.Fatalf("Failed to get gas price: %v", err)
	}
	t.Logf("Gas Price: %s wei", gasPrice.String())
}

// TestPipelineDryRun quotes, converts and signs without sending
func TestPipelineDryRun(t *testing.T) {
	skipIfNoRPC(t)
	skipIfNoDeployment(t)

	cfg := getTestConfig(t)
	cfg.DryRun = true

	p, err := pipeline.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := p.WithRunConfig(&pipeline.RunConfig{
		DryRun: true,
		Fs:     afero.NewMemMapFs(),
		Stdout: io.Discard,
	}).Execute(ctx)
	if err != nil {
		t.Fatalf("Pipeline dry run failed: %v", err)
	}
	if result.State != pipeline.StateAuthorizationBuilt {
		t.Errorf("State = %s, want %s", result.State, pipeline.StateAuthorizationBuilt)
	}

	t.Logf("Fee: %s wei = %s token units", result.FeeNative, result.FeeToken)
	for _, sr := range result.StageResults {
		t.Logf("  %s: %s", sr.Stage.String(), sr.Duration)
	}
}

// TestFullPipeline sends the sponsored transfer and waits for inclusion
func TestFullPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping full pipeline test in short mode")
	}

	skipIfNoRPC(t)
	skipIfNoDeployment(t)

	cfg := getTestConfig(t)
	cfg.OutputDir = t.TempDir()

	p, err := pipeline.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	result, err := p.Execute(ctx)
	if err != nil {
		t.Fatalf("Pipeline execution failed: %v", err)
	}

	if !result.Success() {
		t.Errorf("Pipeline did not complete successfully")
		for _, e := range result.Errors {
			t.Errorf("  Error: %v", e)
		}
	}

	t.Logf("Transfer %s included in block %s", result.TxHash.Hex(), result.Receipt.BlockNumber)
	t.Logf("Token balance after transfer: %s", result.TokenBalance)
}
