package pipeline

import (
	"errors"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/afero"

	"github.com/0xmhha/pmtransfer/internal/collector"
	"github.com/0xmhha/pmtransfer/internal/fee"
	"github.com/0xmhha/pmtransfer/internal/paymaster"
)

var (
	// ErrNonEmptyBalance is returned when the sender must hold no native
	// currency but does
	ErrNonEmptyBalance = errors.New("sender native balance is not zero")
	// ErrSubmissionRejected is returned when the node refuses the
	// transaction or it reverts on chain
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrChainMismatch is returned when the configured chain id differs from the node's
	ErrChainMismatch = errors.New("chain id mismatch")
)

// Stage represents a pipeline stage
type Stage int

const (
	StageResolve Stage = iota
	StageEstimate
	StageConvert
	StageAuthorize
	StageSubmit
	StageInclude
)

func (s Stage) String() string {
	switch s {
	case StageResolve:
		return "RESOLVE"
	case StageEstimate:
		return "ESTIMATE"
	case StageConvert:
		return "CONVERT"
	case StageAuthorize:
		return "AUTHORIZE"
	case StageSubmit:
		return "SUBMIT"
	case StageInclude:
		return "INCLUDE"
	default:
		return "UNKNOWN"
	}
}

// State is the position of a run in its lifecycle
type State int

const (
	StateIdle State = iota
	StateContractsResolved
	StateGasEstimated
	StateFeeComputed
	StateAuthorizationBuilt
	StateSubmitted
	StateIncluded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateContractsResolved:
		return "ContractsResolved"
	case StateGasEstimated:
		return "GasEstimated"
	case StateFeeComputed:
		return "FeeComputed"
	case StateAuthorizationBuilt:
		return "AuthorizationBuilt"
	case StateSubmitted:
		return "Submitted"
	case StateIncluded:
		return "Included"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// reached is the state a stage moves the run to on success
func (s Stage) reached() State {
	return State(int(s) + 1)
}

// StageResult represents the result of a pipeline stage
type StageResult struct {
	Stage    Stage
	Success  bool
	Duration time.Duration
	Message  string
	Error    error
}

// RunConfig holds runtime configuration for the pipeline
type RunConfig struct {
	// Dry run (sign the transaction but don't send)
	DryRun bool

	// Export report to files
	ExportReport bool

	// Output directory for reports
	OutputDir string

	// Filesystem the reports are written to
	Fs afero.Fs

	// Pushgateway URL, empty disables pushing
	PushGateway string

	// Stdout receives banners and the summary table
	Stdout io.Writer

	// Progress receives the inclusion spinner, nil disables it
	Progress io.Writer
}

// DefaultRunConfig returns default run configuration
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		DryRun:       false,
		ExportReport: true,
		OutputDir:    "./reports",
		Fs:           afero.NewOsFs(),
		Stdout:       os.Stdout,
		Progress:     os.Stderr,
	}
}

// Result represents the complete pipeline execution result
type Result struct {
	// Execution info
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// Stage results
	StageResults []*StageResult
	State        State

	// Fee
	Quote     fee.Quote
	Rates     fee.Rates
	FeeNative *big.Int
	FeeToken  *big.Int

	// Authorization carrying FeeToken as its minimal allowance
	Authorization *paymaster.Authorization

	// Submission
	RawTx        []byte
	TxHash       common.Hash
	Receipt      *types.Receipt
	TokenBalance *big.Int

	// Detailed report
	Report *collector.Report

	// Errors encountered
	Errors []error
}

// NewResult creates a new pipeline result
func NewResult() *Result {
	return &Result{
		StartTime:    time.Now(),
		StageResults: make([]*StageResult, 0),
		State:        StateIdle,
		Errors:       make([]error, 0),
	}
}

// AddStageResult adds a stage result
func (r *Result) AddStageResult(sr *StageResult) {
	r.StageResults = append(r.StageResults, sr)
	if sr.Error != nil {
		r.Errors = append(r.Errors, sr.Error)
	}
}

// Finalize completes the result
func (r *Result) Finalize() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// Success returns true if all stages succeeded
func (r *Result) Success() bool {
	for _, sr := range r.StageResults {
		if !sr.Success {
			return false
		}
	}
	return r.State != StateFailed
}
