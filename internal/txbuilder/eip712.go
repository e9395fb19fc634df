package txbuilder

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/0xmhha/pmtransfer/internal/paymaster"
)

// EIP-712 signing domain of zkSync Era
const (
	DomainName    = "zkSync"
	DomainVersion = "2"
)

var (
	// ErrNotSigned is returned when encoding requires a signature that is missing
	ErrNotSigned = errors.New("transaction is not signed")
	// ErrInvalidTxType is returned when decoding a payload without the 0x71 prefix
	ErrInvalidTxType = errors.New("not an EIP-712 transaction")
)

var typedDataTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	"Transaction": {
		{Name: "txType", Type: "uint256"},
		{Name: "from", Type: "uint256"},
		{Name: "to", Type: "uint256"},
		{Name: "gasLimit", Type: "uint256"},
		{Name: "gasPerPubdataByteLimit", Type: "uint256"},
		{Name: "maxFeePerGas", Type: "uint256"},
		{Name: "maxPriorityFeePerGas", Type: "uint256"},
		{Name: "paymaster", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "factoryDeps", Type: "bytes32[]"},
		{Name: "paymasterInput", Type: "bytes"},
	},
}

// Signer signs a 32 byte digest with the recovery id in [0, 1]
type Signer interface {
	Address() common.Address
	SignHash(hash []byte) ([]byte, error)
}

// TypedData returns the EIP-712 structure that is signed for this transaction
func (tx *Transaction712) TypedData() apitypes.TypedData {
	var (
		pm    common.Address
		input []byte
	)
	if tx.PaymasterParams != nil {
		pm = tx.PaymasterParams.Paymaster
		input = tx.PaymasterParams.PaymasterInput
	}

	return apitypes.TypedData{
		Types:       typedDataTypes,
		PrimaryType: "Transaction",
		Domain: apitypes.TypedDataDomain{
			Name:    DomainName,
			Version: DomainVersion,
			ChainId: (*math.HexOrDecimal256)(orZero(tx.ChainID)),
		},
		Message: apitypes.TypedDataMessage{
			"txType":                 big.NewInt(int64(TxTypeEIP712)),
			"from":                   addressToUint(tx.From),
			"to":                     addressToUint(tx.To),
			"gasLimit":               new(big.Int).SetUint64(tx.Gas),
			"gasPerPubdataByteLimit": orDefault(tx.GasPerPubdata, DefaultGasPerPubdata),
			"maxFeePerGas":           orZero(tx.GasFeeCap),
			"maxPriorityFeePerGas":   orZero(tx.GasTipCap),
			"paymaster":              addressToUint(pm),
			"nonce":                  new(big.Int).SetUint64(tx.Nonce),
			"value":                  orZero(tx.Value),
			"data":                   nonNil(tx.Data),
			"factoryDeps":            []interface{}{},
			"paymasterInput":         nonNil(input),
		},
	}
}

// SigningHash returns the EIP-712 digest the sender signs
func (tx *Transaction712) SigningHash() (common.Hash, error) {
	hash, _, err := apitypes.TypedDataAndHash(tx.TypedData())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// Sign signs the transaction and stores the signature with v in {27, 28}
func (tx *Transaction712) Sign(signer Signer) error {
	if signer.Address() != tx.From {
		return fmt.Errorf("signer %s does not match sender %s", signer.Address().Hex(), tx.From.Hex())
	}

	hash, err := tx.SigningHash()
	if err != nil {
		return err
	}

	sig, err := signer.SignHash(hash.Bytes())
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("invalid signature length %d", len(sig))
	}

	sig = common.CopyBytes(sig)
	if sig[crypto.RecoveryIDOffset] < 27 {
		sig[crypto.RecoveryIDOffset] += 27
	}
	tx.Signature = sig
	return nil
}

// Sender recovers the signing address from the stored signature
func (tx *Transaction712) Sender() (common.Address, error) {
	if len(tx.Signature) != crypto.SignatureLength {
		return common.Address{}, ErrNotSigned
	}

	hash, err := tx.SigningHash()
	if err != nil {
		return common.Address{}, err
	}

	sig := common.CopyBytes(tx.Signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover sender: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// rlpTx712 is the wire layout of a type 0x71 payload.
//
// The v, r, s slots carry chainId and two empty strings; the actual
// signature travels in CustomSignature.
type rlpTx712 struct {
	Nonce           uint64
	GasTipCap       *big.Int
	GasFeeCap       *big.Int
	Gas             uint64
	To              common.Address
	Value           *big.Int
	Data            []byte
	V               *big.Int
	R               []byte
	S               []byte
	ChainID         *big.Int
	From            common.Address
	GasPerPubdata   *big.Int
	FactoryDeps     [][]byte
	CustomSignature []byte
	PaymasterParams []rlp.RawValue
}

// MarshalBinary encodes the signed transaction as 0x71 || rlp(fields)
func (tx *Transaction712) MarshalBinary() ([]byte, error) {
	if len(tx.Signature) != crypto.SignatureLength {
		return nil, ErrNotSigned
	}

	pmParams := []rlp.RawValue{}
	if tx.PaymasterParams != nil {
		addr, err := rlp.EncodeToBytes(tx.PaymasterParams.Paymaster)
		if err != nil {
			return nil, err
		}
		input, err := rlp.EncodeToBytes(nonNil(tx.PaymasterParams.PaymasterInput))
		if err != nil {
			return nil, err
		}
		pmParams = append(pmParams, addr, input)
	}

	chainID := orZero(tx.ChainID)
	payload := &rlpTx712{
		Nonce:           tx.Nonce,
		GasTipCap:       orZero(tx.GasTipCap),
		GasFeeCap:       orZero(tx.GasFeeCap),
		Gas:             tx.Gas,
		To:              tx.To,
		Value:           orZero(tx.Value),
		Data:            nonNil(tx.Data),
		V:               chainID,
		R:               []byte{},
		S:               []byte{},
		ChainID:         chainID,
		From:            tx.From,
		GasPerPubdata:   orDefault(tx.GasPerPubdata, DefaultGasPerPubdata),
		FactoryDeps:     [][]byte{},
		CustomSignature: tx.Signature,
		PaymasterParams: pmParams,
	}

	var buf bytes.Buffer
	buf.WriteByte(byte(TxTypeEIP712))
	if err := rlp.Encode(&buf, payload); err != nil {
		return nil, fmt.Errorf("failed to encode tx: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a 0x71 payload produced by MarshalBinary
func (tx *Transaction712) UnmarshalBinary(raw []byte) error {
	if len(raw) == 0 || raw[0] != byte(TxTypeEIP712) {
		return ErrInvalidTxType
	}

	var payload rlpTx712
	if err := rlp.DecodeBytes(raw[1:], &payload); err != nil {
		return fmt.Errorf("failed to decode tx: %w", err)
	}

	var params *paymaster.Params
	switch len(payload.PaymasterParams) {
	case 0:
	case 2:
		params = &paymaster.Params{}
		if err := rlp.DecodeBytes(payload.PaymasterParams[0], &params.Paymaster); err != nil {
			return fmt.Errorf("failed to decode paymaster: %w", err)
		}
		if err := rlp.DecodeBytes(payload.PaymasterParams[1], &params.PaymasterInput); err != nil {
			return fmt.Errorf("failed to decode paymaster input: %w", err)
		}
	default:
		return fmt.Errorf("invalid paymaster params length %d", len(payload.PaymasterParams))
	}

	*tx = Transaction712{
		ChainID:         payload.ChainID,
		Nonce:           payload.Nonce,
		GasTipCap:       payload.GasTipCap,
		GasFeeCap:       payload.GasFeeCap,
		Gas:             payload.Gas,
		From:            payload.From,
		To:              payload.To,
		Value:           payload.Value,
		Data:            payload.Data,
		GasPerPubdata:   payload.GasPerPubdata,
		PaymasterParams: params,
		Signature:       payload.CustomSignature,
	}
	return nil
}

func addressToUint(addr common.Address) *big.Int {
	return new(big.Int).SetBytes(addr.Bytes())
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func orDefault(v *big.Int, def int64) *big.Int {
	if v == nil || v.Sign() == 0 {
		return big.NewInt(def)
	}
	return v
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
