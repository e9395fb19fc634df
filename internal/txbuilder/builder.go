package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Builder assembles and signs the EIP-712 transactions of a run
type Builder struct {
	config *BuilderConfig
	signer Signer
}

// NewBuilder creates a new builder
func NewBuilder(config *BuilderConfig, signer Signer) *Builder {
	if config.GasPerPubdata == nil {
		config.GasPerPubdata = big.NewInt(DefaultGasPerPubdata)
	}
	return &Builder{
		config: config,
		signer: signer,
	}
}


// Transfer returns the unsigned transaction for req.
// maxFeePerGas is the quoted gas price and no priority fee is paid.
func (b *Builder) Transfer(req *TransferRequest) (*Transaction712, error) {
	if req.Token == (common.Address{}) {
		return nil, fmt.Errorf("token address is required")
	}
	if req.GasPrice == nil {
		return nil, fmt.Errorf("gas price is required")
	}
	if req.GasLimit == 0 {
		return nil, fmt.Errorf("gas limit is required")
	}

	return &Transaction712{
		ChainID:         new(big.Int).Set(b.config.ChainID),
		Nonce:           req.Nonce,
		GasTipCap:       new(big.Int),
		GasFeeCap:       new(big.Int).Set(req.GasPrice),
		Gas:             req.GasLimit,
		From:            req.From,
		To:              req.Token,
		Value:           new(big.Int),
		Data:            common.CopyBytes(req.Calldata),
		GasPerPubdata:   new(big.Int).Set(b.config.GasPerPubdata),
		PaymasterParams: req.Paymaster,
	}, nil
}

// BuildTransfer builds, signs and encodes the transfer
func (b *Builder) BuildTransfer(req *TransferRequest) (*SignedTx, error) {
	tx, err := b.Transfer(req)
	if err != nil {
		return nil, err
	}

	if err := tx.Sign(b.signer); err != nil {
		return nil, err
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, err
	}

	return &SignedTx{
		Tx:       tx,
		RawTx:    raw,
		From:     tx.From,
		Nonce:    tx.Nonce,
		GasLimit: tx.Gas,
	}, nil
}
