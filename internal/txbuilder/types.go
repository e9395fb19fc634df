package txbuilder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xmhha/pmtransfer/internal/paymaster"
)

// TxType represents the transaction type
type TxType byte

// TxTypeEIP712 is the zkSync Era EIP-712 transaction type
const TxTypeEIP712 TxType = 0x71

// DefaultGasPerPubdata is the gas per pubdata byte limit used when none is set
const DefaultGasPerPubdata = 50000

// Transaction712 is a zkSync Era EIP-712 transaction (type 0x71).
//
// Only the fields a paymaster sponsored call needs are modelled; factory
// dependencies are always encoded as an empty list.
type Transaction712 struct {
	ChainID       *big.Int
	Nonce         uint64
	GasTipCap     *big.Int // maxPriorityFeePerGas
	GasFeeCap     *big.Int // maxFeePerGas
	Gas           uint64
	From          common.Address
	To            common.Address
	Value         *big.Int
	Data          []byte
	GasPerPubdata *big.Int

	PaymasterParams *paymaster.Params

	// Signature is the 65 byte EIP-712 signature, v in {27, 28}
	Signature []byte
}

// SignedTx represents a signed transaction ready to send
type SignedTx struct {
	Tx       *Transaction712
	RawTx    []byte
	From     common.Address
	Nonce    uint64
	GasLimit uint64
}

// BuilderConfig holds configuration for transaction building
type BuilderConfig struct {
	ChainID       *big.Int
	GasPerPubdata *big.Int
}

// TransferRequest describes a paymaster sponsored ERC20 transfer
type TransferRequest struct {
	From     common.Address
	Token    common.Address
	Calldata []byte
	Nonce    uint64

	GasLimit uint64
	GasPrice *big.Int

	Paymaster *paymaster.Params
}
