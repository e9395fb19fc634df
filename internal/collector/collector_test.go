package collector

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/afero"

	"github.com/0xmhha/pmtransfer/internal/client"
)

// mockCollectorClient returns NotFound until the receipt becomes available
type mockCollectorClient struct {
	mu         sync.Mutex
	receipts   map[common.Hash]*types.Receipt
	readyAfter int
	calls      int
	receiptErr error
}

func newMockCollectorClient() *mockCollectorClient {
	return &mockCollectorClient{
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (m *mockCollectorClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.receiptErr != nil {
		return nil, m.receiptErr
	}
	if m.calls <= m.readyAfter {
		return nil, ethereum.NotFound
	}
	if receipt, ok := m.receipts[txHash]; ok {
		return receipt, nil
	}
	return nil, ethereum.NotFound
}

func (m *mockCollectorClient) addReceipt(hash common.Hash, status, gasUsed uint64) {
	m.receipts[hash] = &types.Receipt{
		Status:            status,
		GasUsed:           gasUsed,
		EffectiveGasPrice: big.NewInt(250000000),
		TxHash:            hash,
		BlockNumber:       big.NewInt(4242),
	}
}

func fastConfig() *Config {
	return &Config{
		PollInterval:   time.Millisecond,
		ConfirmTimeout: 2 * time.Second,
	}
}

func TestTxConfirmStatus_String(t *testing.T) {
	tests := []struct {
		status TxConfirmStatus
		want   string
	}{
		{TxConfirmPending, "PENDING"},
		{TxConfirmSuccess, "SUCCESS"},
		{TxConfirmFailed, "FAILED"},
		{TxConfirmTimeout, "TIMEOUT"},
		{TxConfirmStatus(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("TxConfirmStatus.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.PollInterval)
	}
	if cfg.ConfirmTimeout != 0 {
		t.Errorf("ConfirmTimeout = %v, want 0", cfg.ConfirmTimeout)
	}
	if cfg.Output == nil {
		t.Error("Output should default to stderr")
	}
}

func TestNew(t *testing.T) {
	client := newMockCollectorClient()

	c1 := New(client, nil)
	if c1.config == nil {
		t.Error("New() with nil config should use default config")
	}

	c2 := New(client, &Config{PollInterval: 0})
	if c2.config.PollInterval != time.Second {
		t.Errorf("zero PollInterval = %v, want 1s", c2.config.PollInterval)
	}
}

func TestTrack(t *testing.T) {
	hash := common.HexToHash("0x1234567890")
	from := common.HexToAddress("0xabcdef")

	info := Track(hash, from, 5, 500000)
	if info.Hash != hash || info.From != from || info.Nonce != 5 || info.GasLimit != 500000 {
		t.Errorf("Track() = %+v", info)
	}
	if info.Status != TxConfirmPending {
		t.Errorf("Status = %v, want PENDING", info.Status)
	}
	if info.SentAt.IsZero() {
		t.Error("SentAt should be set")
	}
}

func TestCollector_WaitMined_Success(t *testing.T) {
	client := newMockCollectorClient()
	hash := common.HexToHash("0xaa")
	client.addReceipt(hash, types.ReceiptStatusSuccessful, 380000)
	client.readyAfter = 3

	c := New(client, fastConfig())
	info := Track(hash, common.Address{}, 0, 500000)

	receipt, err := c.WaitMined(context.Background(), info)
	if err != nil {
		t.Fatalf("WaitMined() error = %v", err)
	}
	if receipt.GasUsed != 380000 {
		t.Errorf("GasUsed = %d, want 380000", receipt.GasUsed)
	}
	if info.Status != TxConfirmSuccess {
		t.Errorf("Status = %v, want SUCCESS", info.Status)
	}
	if client.calls != 4 {
		t.Errorf("receipt polled %d times, want 4", client.calls)
	}
	if info.ConfirmedAt.Before(info.SentAt) {
		t.Error("ConfirmedAt before SentAt")
	}
}

func TestCollector_WaitMined_Reverted(t *testing.T) {
	client := newMockCollectorClient()
	hash := common.HexToHash("0xbb")
	client.addReceipt(hash, types.ReceiptStatusFailed, 90000)

	c := New(client, fastConfig())
	info := Track(hash, common.Address{}, 0, 500000)

	receipt, err := c.WaitMined(context.Background(), info)
	if err != nil {
		t.Fatalf("WaitMined() error = %v", err)
	}
	if receipt.Status != types.ReceiptStatusFailed {
		t.Errorf("receipt status = %d, want failed", receipt.Status)
	}
	if info.Status != TxConfirmFailed {
		t.Errorf("Status = %v, want FAILED", info.Status)
	}
}

func TestCollector_WaitMined_Timeout(t *testing.T) {
	client := newMockCollectorClient()

	c := New(client, &Config{PollInterval: time.Millisecond, ConfirmTimeout: 30 * time.Millisecond})
	info := Track(common.HexToHash("0xcc"), common.Address{}, 0, 500000)

	_, err := c.WaitMined(context.Background(), info)
	if !errors.Is(err, ErrConfirmTimeout) {
		t.Fatalf("WaitMined() error = %v, want ErrConfirmTimeout", err)
	}
	if info.Status != TxConfirmTimeout {
		t.Errorf("Status = %v, want TIMEOUT", info.Status)
	}
}

func TestCollector_WaitMined_QueryErrorPropagates(t *testing.T) {
	cli := newMockCollectorClient()
	cli.receiptErr = errors.New("dial tcp 127.0.0.1:3050: connect: connection refused")

	c := New(cli, &Config{PollInterval: time.Millisecond})
	info := Track(common.HexToHash("0xdd"), common.Address{}, 0, 500000)

	_, err := c.WaitMined(context.Background(), info)
	if !errors.Is(err, client.ErrNetworkFailure) {
		t.Fatalf("WaitMined() error = %v, want ErrNetworkFailure", err)
	}
	if errors.Is(err, ErrConfirmTimeout) {
		t.Error("network failure must not be reported as timeout")
	}
	if cli.calls != 1 {
		t.Errorf("receipt polled %d times, want 1", cli.calls)
	}
	if info.Status != TxConfirmPending {
		t.Errorf("Status = %v, want pending", info.Status)
	}
}

func TestCollector_WaitMined_Canceled(t *testing.T) {
	client := newMockCollectorClient()

	c := New(client, &Config{PollInterval: time.Millisecond})
	info := Track(common.HexToHash("0xee"), common.Address{}, 0, 500000)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.WaitMined(ctx, info)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WaitMined() error = %v, want context.Canceled", err)
	}
	if info.Status == TxConfirmTimeout {
		t.Error("cancellation must not be reported as timeout")
	}
}

func TestNewReport(t *testing.T) {
	r1 := NewReport("paymaster-transfer")
	r2 := NewReport("paymaster-transfer")

	if r1.RunID == "" || r1.RunID == r2.RunID {
		t.Errorf("run ids %q and %q should be unique", r1.RunID, r2.RunID)
	}
	if r1.StartTime.IsZero() {
		t.Error("StartTime should be set")
	}

	r1.AddStage("RESOLVE", time.Millisecond, nil)
	r1.AddStage("ESTIMATE", 2*time.Millisecond, errors.New("execution reverted"))
	if len(r1.Stages) != 2 || r1.Stages[1].Error != "execution reverted" {
		t.Errorf("Stages = %+v", r1.Stages)
	}

	r1.Finish("Failed", errors.New("boom"))
	if r1.FinalState != "Failed" || r1.Error != "boom" || r1.Duration < 0 {
		t.Errorf("Finish() = %+v", r1)
	}
}

func TestExporter_ExportAll(t *testing.T) {
	fs := afero.NewMemMapFs()
	exporter := NewExporter(fs, "reports")

	report := NewReport("paymaster-transfer")
	report.Sender = common.HexToAddress("0x01")
	report.GasPrice = big.NewInt(250000000)
	report.GasLimit = 500000
	report.FeeToken = big.NewInt(15000000000)
	report.AddStage("RESOLVE", time.Millisecond, nil)
	report.AddStage("ESTIMATE", time.Millisecond, nil)
	report.Tx = Track(common.HexToHash("0xaa"), report.Sender, 3, 500000)
	report.Tx.Status = TxConfirmSuccess
	report.Tx.ConfirmedAt = time.Now()
	report.Tx.Receipt = &types.Receipt{BlockNumber: big.NewInt(99), GasUsed: 410000}
	report.Finish("Included", nil)

	files, err := exporter.ExportAll(report)
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("ExportAll() wrote %d files, want 2", len(files))
	}

	data, err := afero.ReadFile(fs, files[0])
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var jr JSONReport
	if err := json.Unmarshal(data, &jr); err != nil {
		t.Fatalf("json: %v", err)
	}
	if jr.RunID != report.RunID {
		t.Errorf("run_id = %s, want %s", jr.RunID, report.RunID)
	}
	if jr.Fee.Token != "15000000000" || jr.Fee.GasLimit != 500000 {
		t.Errorf("fee = %+v", jr.Fee)
	}
	if jr.Tx == nil || jr.Tx.Block != "99" || jr.Tx.Status != "SUCCESS" {
		t.Errorf("tx = %+v", jr.Tx)
	}
	if len(jr.Stages) != 2 {
		t.Errorf("stages = %d, want 2", len(jr.Stages))
	}

	csvData, err := afero.ReadFile(fs, files[1])
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	if len(lines) != 3 {
		t.Errorf("csv has %d lines, want header + 2 stages", len(lines))
	}
	if !strings.Contains(files[1], report.RunID[:8]) {
		t.Errorf("file name %s does not carry run id", files[1])
	}
}

func TestExporter_UnsupportedFormat(t *testing.T) {
	exporter := NewExporter(afero.NewMemMapFs(), "reports")
	if _, err := exporter.Export(NewReport("x"), ExportFormat("xml")); err == nil {
		t.Error("Export() with xml expected error")
	}
}
