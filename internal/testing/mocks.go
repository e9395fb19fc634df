package testing

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0xmhha/pmtransfer/internal/client"
)

var (
	readDapiSelector  = crypto.Keccak256([]byte("readDapi(address)"))[:4]
	balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
)

// MockClient is an in-memory zkSync node answering the calls a transfer run makes
type MockClient struct {
	mu sync.RWMutex

	// Configurable return values
	ChainIDValue      *big.Int
	BalanceValue      *big.Int
	NonceValue        uint64
	GasPriceValue     *big.Int
	EstimateGasValue  uint64
	TokenBalanceValue *big.Int

	// DapiValues maps a feed proxy address to its readDapi result
	DapiValues map[common.Address]*big.Int

	// AutoMine stores a receipt with ReceiptStatus for every accepted raw tx
	AutoMine      bool
	ReceiptStatus uint64
	GasUsedValue  uint64

	// Error responses
	ChainIDError         error
	BalanceError         error
	NonceError           error
	GasPriceError        error
	CallError            error
	EstimateGasError     error
	SendTransactionError error
	ReceiptError         error

	// Receipts storage
	Receipts map[common.Hash]*types.Receipt

	// Request tracking
	EstimateRequests []*client.CallMsg
	SentRawTxs       [][]byte

	// Call counters
	CallCounts map[string]int
}

// NewMockClient creates a new mock client with default values
func NewMockClient() *MockClient {
	return &MockClient{
		ChainIDValue:      new(big.Int).Set(TestChainID),
		BalanceValue:      big.NewInt(0),
		NonceValue:        0,
		GasPriceValue:     big.NewInt(250000000), // 0.25 Gwei
		EstimateGasValue:  500000,
		TokenBalanceValue: big.NewInt(1000000000000),
		DapiValues:        make(map[common.Address]*big.Int),
		AutoMine:          true,
		ReceiptStatus:     types.ReceiptStatusSuccessful,
		GasUsedValue:      410000,
		Receipts:          make(map[common.Hash]*types.Receipt),
		EstimateRequests:  make([]*client.CallMsg, 0),
		SentRawTxs:        make([][]byte, 0),
		CallCounts:        make(map[string]int),
	}
}

// SetDapi sets the value returned by readDapi for feed
func (m *MockClient) SetDapi(feed common.Address, value *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DapiValues[feed] = value
}

func (m *MockClient) incrementCallCount(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[method]++
}

// GetCallCount returns the number of times a method was called
func (m *MockClient) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}

// Close closes the mock client
func (m *MockClient) Close() {
	m.incrementCallCount("Close")
}

// ChainID returns the configured chain ID
func (m *MockClient) ChainID(ctx context.Context) (*big.Int, error) {
	m.incrementCallCount("ChainID")
	if m.ChainIDError != nil {
		return nil, m.ChainIDError
	}
	return m.ChainIDValue, nil
}

// BalanceAt returns the configured native balance
func (m *MockClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	m.incrementCallCount("BalanceAt")
	if m.BalanceError != nil {
		return nil, m.BalanceError
	}
	return m.BalanceValue, nil
}

// PendingNonceAt returns the configured nonce
func (m *MockClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	m.incrementCallCount("PendingNonceAt")
	if m.NonceError != nil {
		return 0, m.NonceError
	}
	return m.NonceValue, nil
}

// SuggestGasPrice returns the configured gas price
func (m *MockClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	m.incrementCallCount("SuggestGasPrice")
	if m.GasPriceError != nil {
		return nil, m.GasPriceError
	}
	return m.GasPriceValue, nil
}

// CallContract answers readDapi and balanceOf calls
func (m *MockClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	m.incrementCallCount("CallContract")
	if m.CallError != nil {
		return nil, m.CallError
	}
	if len(msg.Data) < 4+32 {
		return nil, errors.New("execution reverted")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	selector, arg := msg.Data[:4], common.BytesToAddress(msg.Data[4:36])
	switch {
	case bytes.Equal(selector, readDapiSelector):
		v, ok := m.DapiValues[arg]
		if !ok {
			return nil, errors.New("execution reverted: dAPI not set")
		}
		return common.LeftPadBytes(v.Bytes(), 32), nil
	case bytes.Equal(selector, balanceOfSelector):
		return common.LeftPadBytes(m.TokenBalanceValue.Bytes(), 32), nil
	default:
		return nil, errors.New("execution reverted: unknown selector")
	}
}

// EstimateGasL2 records the request and returns the configured estimate
func (m *MockClient) EstimateGasL2(ctx context.Context, msg *client.CallMsg) (uint64, error) {
	m.incrementCallCount("EstimateGasL2")
	m.mu.Lock()
	m.EstimateRequests = append(m.EstimateRequests, msg)
	m.mu.Unlock()
	if m.EstimateGasError != nil {
		return 0, m.EstimateGasError
	}
	return m.EstimateGasValue, nil
}

// SendRawTransaction stores the raw transaction and returns its keccak hash
func (m *MockClient) SendRawTransaction(ctx context.Context, rawTx []byte) (common.Hash, error) {
	m.incrementCallCount("SendRawTransaction")
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentRawTxs = append(m.SentRawTxs, rawTx)
	if m.SendTransactionError != nil {
		return common.Hash{}, m.SendTransactionError
	}

	hash := crypto.Keccak256Hash(rawTx)
	if m.AutoMine {
		m.Receipts[hash] = &types.Receipt{
			Status:      m.ReceiptStatus,
			TxHash:      hash,
			BlockNumber: big.NewInt(1000),
			GasUsed:     m.GasUsedValue,
		}
	}
	return hash, nil
}

// TransactionReceipt returns the receipt for a transaction
func (m *MockClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	m.incrementCallCount("TransactionReceipt")
	if m.ReceiptError != nil {
		return nil, m.ReceiptError
	}
	m.mu.RLock()
	receipt, ok := m.Receipts[txHash]
	m.mu.RUnlock()
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// AddReceipt adds a receipt to the mock storage
func (m *MockClient) AddReceipt(txHash common.Hash, receipt *types.Receipt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Receipts[txHash] = receipt
}
