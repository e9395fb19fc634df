package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"

	"github.com/0xmhha/pmtransfer/internal/client"
	"github.com/0xmhha/pmtransfer/internal/util/progress"
)

// ErrConfirmTimeout is returned when the transaction is not mined in time
var ErrConfirmTimeout = errors.New("confirmation timeout")

// Client interface for collector operations
type Client interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Collector waits for the submitted transaction to be mined
type Collector struct {
	client Client
	config *Config
}

// New creates a new Collector instance
func New(client Client, config *Config) *Collector {
	if config == nil {
		config = DefaultConfig()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}

	return &Collector{
		client: client,
		config: config,
	}
}

// Track creates the tracking record for a transaction that was just sent
func Track(hash common.Hash, from common.Address, nonce, gasLimit uint64) *TxInfo {
	return &TxInfo{
		Hash:     hash,
		From:     from,
		Nonce:    nonce,
		GasLimit: gasLimit,
		SentAt:   time.Now(),
		Status:   TxConfirmPending,
	}
}

// WaitMined polls for the receipt of info.Hash until it is found, the
// confirm timeout elapses or ctx ends. Only a missing receipt is polled
// again; any other query error is returned classified. A reverted receipt
// is returned without error; info.Status tells the outcome.
func (c *Collector) WaitMined(ctx context.Context, info *TxInfo) (*types.Receipt, error) {
	waitCtx := ctx
	if c.config.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.config.ConfirmTimeout)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Every(c.config.PollInterval), 1)

	var bar *progressbar.ProgressBar
	if c.config.Output != nil {
		bar = progress.Spinner(c.config.Output, fmt.Sprintf("waiting for %s", shortHash(info.Hash)))
		defer progress.Finish(bar)
	}

	attempts := 0
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			return nil, c.abort(ctx, info, err)
		}
		attempts++

		receipt, err := c.client.TransactionReceipt(waitCtx, info.Hash)
		if err != nil {
			if waitCtx.Err() != nil {
				return nil, c.abort(ctx, info, waitCtx.Err())
			}
			if !errors.Is(err, ethereum.NotFound) {
				info.Error = client.Classify(err)
				return nil, info.Error
			}
			progress.Add(bar, 1)
			continue
		}

		info.ConfirmedAt = time.Now()
		info.Latency = info.ConfirmedAt.Sub(info.SentAt)
		info.Receipt = receipt
		if receipt.Status == types.ReceiptStatusSuccessful {
			info.Status = TxConfirmSuccess
		} else {
			info.Status = TxConfirmFailed
		}

		log.Debug("Receipt found", "hash", info.Hash, "block", receipt.BlockNumber, "attempts", attempts, "latency", info.Latency)
		return receipt, nil
	}
}

// abort classifies why waiting stopped
func (c *Collector) abort(parent context.Context, info *TxInfo, err error) error {
	if parent.Err() != nil {
		info.Error = parent.Err()
		return parent.Err()
	}

	info.Status = TxConfirmTimeout
	info.Error = fmt.Errorf("%w after %s", ErrConfirmTimeout, c.config.ConfirmTimeout)
	return info.Error
}

func shortHash(h common.Hash) string {
	s := h.Hex()
	return s[:10] + "..." + s[len(s)-6:]
}
