package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ERC20 function selectors
var (
	// transfer(address,uint256) = 0xa9059cbb
	ERC20TransferSelector = common.FromHex("0xa9059cbb")
	// balanceOf(address) = 0x70a08231
	ERC20BalanceOfSelector = common.FromHex("0x70a08231")
)

// ERC20 is the token the transfer moves and the paymaster charges in
type ERC20 struct {
	*Handle
}

// NewERC20 wraps a located token handle
func NewERC20(h *Handle) *ERC20 {
	return &ERC20{Handle: h}
}

// TransferCalldata encodes transfer(to, amount)
func (t *ERC20) TransferCalldata(to common.Address, amount *big.Int) ([]byte, error) {
	return t.Pack("transfer", to, amount)
}

// BalanceOf returns the token balance of owner
func (t *ERC20) BalanceOf(ctx context.Context, caller Caller, owner common.Address) (*big.Int, error) {
	return t.callUint(ctx, caller, "balanceOf", owner)
}

// Paymaster is the sponsoring contract that also exposes the price feeds
type Paymaster struct {
	*Handle
}

// NewPaymaster wraps a located paymaster handle
func NewPaymaster(h *Handle) *Paymaster {
	return &Paymaster{Handle: h}
}

// ReadDapi returns the current value of the dAPI behind the proxy address
func (p *Paymaster) ReadDapi(ctx context.Context, caller Caller, proxy common.Address) (*big.Int, error) {
	return p.callUint(ctx, caller, "readDapi", proxy)
}
