package collector

import (
	"io"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

// TxConfirmStatus represents the confirmation status of a transaction
type TxConfirmStatus int

const (
	TxConfirmPending TxConfirmStatus = iota
	TxConfirmSuccess
	TxConfirmFailed
	TxConfirmTimeout
)

func (s TxConfirmStatus) String() string {
	switch s {
	case TxConfirmPending:
		return "PENDING"
	case TxConfirmSuccess:
		return "SUCCESS"
	case TxConfirmFailed:
		return "FAILED"
	case TxConfirmTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// TxInfo represents tracked transaction information
type TxInfo struct {
	Hash        common.Hash
	From        common.Address
	Nonce       uint64
	GasLimit    uint64
	SentAt      time.Time
	ConfirmedAt time.Time
	Status      TxConfirmStatus
	Receipt     *types.Receipt
	Latency     time.Duration
	Error       error
}

// Config holds collector configuration
type Config struct {
	// PollInterval is the interval for polling receipts
	PollInterval time.Duration

	// ConfirmTimeout bounds the wait for inclusion, zero waits until the context ends
	ConfirmTimeout time.Duration

	// Output receives the spinner, nil disables it
	Output io.Writer
}

// DefaultConfig returns default collector configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:   time.Second,
		ConfirmTimeout: 0,
		Output:         os.Stderr,
	}
}

// StageTiming records how one pipeline stage went
type StageTiming struct {
	Name     string
	Duration time.Duration
	Error    string
}

// Report is the record of a single sponsored transfer run
type Report struct {
	RunID     string
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	ChainID   *big.Int
	Sender    common.Address
	Token     common.Address
	Paymaster common.Address
	Recipient common.Address
	Amount    *big.Int

	GasPrice   *big.Int
	GasLimit   uint64
	FeeNative  *big.Int
	RateNative *big.Int
	RateToken  *big.Int
	FeeToken   *big.Int
	Allowance  *big.Int

	TokenBalance *big.Int

	Stages []StageTiming
	Tx     *TxInfo

	FinalState string
	Error      string
}

// NewReport creates a new report with a fresh run id
func NewReport(name string) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Name:      name,
		StartTime: time.Now(),
		Stages:    make([]StageTiming, 0),
	}
}

// AddStage appends a stage timing
func (r *Report) AddStage(name string, d time.Duration, err error) {
	st := StageTiming{Name: name, Duration: d}
	if err != nil {
		st.Error = err.Error()
	}
	r.Stages = append(r.Stages, st)
}

// Finish stamps the end of the run
func (r *Report) Finish(state string, err error) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.FinalState = state
	if err != nil {
		r.Error = err.Error()
	}
}
