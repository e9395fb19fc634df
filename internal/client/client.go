package client

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/0xmhha/pmtransfer/internal/paymaster"
)

// EIP712TxType is the zkSync transaction type used for paymaster calls
const EIP712TxType = 0x71

// Client wraps the Ethereum client with the zkSync specific calls
type Client struct {
	eth *ethclient.Client
	rpc *rpc.Client
}

// CallMsg is an eth_estimateGas request carrying zkSync EIP-712 metadata
type CallMsg struct {
	From            common.Address
	To              *common.Address
	Value           *big.Int
	Data            []byte
	GasPerPubdata   *big.Int
	PaymasterParams *paymaster.Params
}

// New creates a new client instance
func New(url string) (*Client, error) {
	rpcClient, err := rpc.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	return &Client{
		eth: ethclient.NewClient(rpcClient),
		rpc: rpcClient,
	}, nil
}

// Close closes the client connection
func (c *Client) Close() {
	c.rpc.Close()
}

// ChainID returns the chain ID
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

// BlockNumber returns the latest block number
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// BalanceAt returns the native balance of an account at a given block
func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, account, blockNumber)
}

// PendingNonceAt returns the pending nonce for an account
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, account)
}

// SuggestGasPrice returns the suggested gas price
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

// CallContract executes a read-only call
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, blockNumber)
}

// EstimateGasL2 estimates gas for a type 0x71 transaction. The paymaster
// params take part in the simulation, so the estimate includes the
// paymaster validation cost.
func (c *Client) EstimateGasL2(ctx context.Context, msg *CallMsg) (uint64, error) {
	var hex hexutil.Uint64
	if err := c.rpc.CallContext(ctx, &hex, "eth_estimateGas", toCallArg(msg)); err != nil {
		return 0, err
	}
	return uint64(hex), nil
}

// SendRawTransaction sends a raw transaction via RPC. zkSync hashes 0x71
// transactions differently from Ethereum, so the node's hash is returned.
func (c *Client) SendRawTransaction(ctx context.Context, rawTx []byte) (common.Hash, error) {
	var hash common.Hash
	err := c.rpc.CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(rawTx))
	return hash, err
}

// TransactionReceipt returns the receipt of a transaction by hash
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, txHash)
}

func toCallArg(msg *CallMsg) map[string]interface{} {
	arg := map[string]interface{}{
		"from": msg.From,
		"type": hexutil.Uint64(EIP712TxType),
	}
	if msg.To != nil {
		arg["to"] = msg.To
	}
	if len(msg.Data) > 0 {
		arg["data"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}

	meta := map[string]interface{}{}
	if msg.GasPerPubdata != nil {
		meta["gasPerPubdata"] = (*hexutil.Big)(msg.GasPerPubdata)
	}
	if msg.PaymasterParams != nil {
		meta["paymasterParams"] = map[string]interface{}{
			"paymaster":      msg.PaymasterParams.Paymaster,
			"paymasterInput": byteArray(msg.PaymasterParams.PaymasterInput),
		}
	}
	arg["eip712Meta"] = meta

	return arg
}

// byteArray renders b as a JSON array of byte values, the encoding zkSync
// nodes expect for paymasterInput
func byteArray(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}
