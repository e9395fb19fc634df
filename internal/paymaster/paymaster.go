// Package paymaster builds the paymaster parameters attached to a sponsored
// zkSync transaction.
package paymaster

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// FlowType is the paymaster interaction mode
type FlowType string

const (
	// FlowApprovalBased lets the paymaster pull an approved token allowance
	FlowApprovalBased FlowType = "ApprovalBased"
	// FlowGeneral passes opaque input to the paymaster
	FlowGeneral FlowType = "General"
)

// Flow selectors, as defined by the IPaymasterFlow interface
var (
	// approvalBased(address,uint256,bytes)
	ApprovalBasedSelector = crypto.Keccak256([]byte("approvalBased(address,uint256,bytes)"))[:4]
	// general(bytes)
	GeneralSelector = crypto.Keccak256([]byte("general(bytes)"))[:4]
)

// ErrUnknownFlow is returned when paymaster input carries an unknown selector
var ErrUnknownFlow = errors.New("unknown paymaster flow")

var (
	approvalBasedArgs abi.Arguments
	generalArgs       abi.Arguments
)

func init() {
	addressTy, _ := abi.NewType("address", "", nil)
	uint256Ty, _ := abi.NewType("uint256", "", nil)
	bytesTy, _ := abi.NewType("bytes", "", nil)

	approvalBasedArgs = abi.Arguments{
		{Name: "token", Type: addressTy},
		{Name: "minAllowance", Type: uint256Ty},
		{Name: "innerInput", Type: bytesTy},
	}
	generalArgs = abi.Arguments{
		{Name: "input", Type: bytesTy},
	}
}

// Authorization describes how the paymaster is allowed to charge the sender
type Authorization struct {
	Paymaster        common.Address
	Flow             FlowType
	Token            common.Address
	MinimalAllowance *big.Int
	InnerInput       []byte
}

// Params is the encoded form carried in the transaction
type Params struct {
	Paymaster      common.Address
	PaymasterInput []byte
}

// NewApprovalBased returns an ApprovalBased authorization. The allowance is
// taken as is; callers decide whether it is sane.
func NewApprovalBased(paymaster, token common.Address, allowance *big.Int, innerInput []byte) *Authorization {
	if innerInput == nil {
		innerInput = []byte{}
	}
	return &Authorization{
		Paymaster:        paymaster,
		Flow:             FlowApprovalBased,
		Token:            token,
		MinimalAllowance: new(big.Int).Set(allowance),
		InnerInput:       innerInput,
	}
}

// NewGeneral returns a General flow authorization
func NewGeneral(paymaster common.Address, innerInput []byte) *Authorization {
	if innerInput == nil {
		innerInput = []byte{}
	}
	return &Authorization{
		Paymaster:  paymaster,
		Flow:       FlowGeneral,
		InnerInput: innerInput,
	}
}

// Encode ABI-encodes the flow call into paymaster params
func (a *Authorization) Encode() (*Params, error) {
	var (
		selector []byte
		packed   []byte
		err      error
	)

	switch a.Flow {
	case FlowApprovalBased:
		if a.MinimalAllowance == nil {
			return nil, fmt.Errorf("approval based flow requires a minimal allowance")
		}
		selector = ApprovalBasedSelector
		packed, err = approvalBasedArgs.Pack(a.Token, a.MinimalAllowance, a.InnerInput)
	case FlowGeneral:
		selector = GeneralSelector
		packed, err = generalArgs.Pack(a.InnerInput)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFlow, a.Flow)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s input: %w", a.Flow, err)
	}

	input := make([]byte, 0, len(selector)+len(packed))
	input = append(input, selector...)
	input = append(input, packed...)

	return &Params{
		Paymaster:      a.Paymaster,
		PaymasterInput: input,
	}, nil
}

// Decode parses paymaster params back into an authorization
func Decode(p *Params) (*Authorization, error) {
	if len(p.PaymasterInput) < 4 {
		return nil, fmt.Errorf("paymaster input too short: %d bytes", len(p.PaymasterInput))
	}
	selector, data := p.PaymasterInput[:4], p.PaymasterInput[4:]

	switch {
	case bytes.Equal(selector, ApprovalBasedSelector):
		values, err := approvalBasedArgs.Unpack(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode approval based input: %w", err)
		}
		return &Authorization{
			Paymaster:        p.Paymaster,
			Flow:             FlowApprovalBased,
			Token:            values[0].(common.Address),
			MinimalAllowance: values[1].(*big.Int),
			InnerInput:       values[2].([]byte),
		}, nil
	case bytes.Equal(selector, GeneralSelector):
		values, err := generalArgs.Unpack(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode general input: %w", err)
		}
		return &Authorization{
			Paymaster:  p.Paymaster,
			Flow:       FlowGeneral,
			InnerInput: values[0].([]byte),
		}, nil
	default:
		return nil, fmt.Errorf("%w: selector 0x%x", ErrUnknownFlow, selector)
	}
}
