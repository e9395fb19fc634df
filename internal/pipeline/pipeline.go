package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/afero"

	"github.com/0xmhha/pmtransfer/internal/client"
	"github.com/0xmhha/pmtransfer/internal/collector"
	"github.com/0xmhha/pmtransfer/internal/config"
	"github.com/0xmhha/pmtransfer/internal/contracts"
	"github.com/0xmhha/pmtransfer/internal/fee"
	"github.com/0xmhha/pmtransfer/internal/metrics"
	"github.com/0xmhha/pmtransfer/internal/paymaster"
	"github.com/0xmhha/pmtransfer/internal/txbuilder"
	"github.com/0xmhha/pmtransfer/internal/wallet"
)

// Client is the node access the pipeline needs
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGasL2(ctx context.Context, msg *client.CallMsg) (uint64, error)
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Pipeline runs a single paymaster sponsored token transfer
type Pipeline struct {
	cfg      *config.Config
	runCfg   *RunConfig
	client   Client
	wallet   *wallet.Wallet
	registry contracts.Registry
	metrics  *metrics.Metrics
	chainID  *big.Int

	// Resolved contracts
	token     *contracts.ERC20
	paymaster *contracts.Paymaster
	greeter   *contracts.Handle

	// Run state
	calldata []byte
	signed   *txbuilder.SignedTx
	txInfo   *collector.TxInfo
	result   *Result
	report   *collector.Report
}

// New creates a new pipeline instance connected to cfg.URL
func New(cfg *config.Config) (*Pipeline, error) {
	cli, err := client.New(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w: %w", client.ErrNetworkFailure, err)
	}

	var w *wallet.Wallet
	if cfg.Mnemonic != "" {
		w, err = wallet.NewFromMnemonic(cfg.Mnemonic, cfg.AccountIndex)
	} else {
		w, err = wallet.NewFromPrivateKey(cfg.PrivateKey)
	}
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	registry := contracts.Chain{contracts.NewBuiltinRegistry()}
	if cfg.ArtifactsDir != "" {
		registry = contracts.Chain{
			contracts.NewArtifactRegistry(afero.NewOsFs(), cfg.ArtifactsDir),
			contracts.NewBuiltinRegistry(),
		}
	}

	return NewWithClient(cfg, cli, w, registry), nil
}

// NewWithClient creates a pipeline over an existing client, wallet and registry
func NewWithClient(cfg *config.Config, cli Client, w *wallet.Wallet, registry contracts.Registry) *Pipeline {
	cfg.ApplyDefaults()

	runCfg := DefaultRunConfig()
	runCfg.DryRun = cfg.DryRun
	runCfg.PushGateway = cfg.PushGateway
	if cfg.OutputDir == "" {
		runCfg.ExportReport = false
	} else {
		runCfg.OutputDir = cfg.OutputDir
	}

	return &Pipeline{
		cfg:      cfg,
		runCfg:   runCfg,
		client:   cli,
		wallet:   w,
		registry: registry,
		metrics:  metrics.NewMetrics("pmtransfer"),
	}
}

// WithRunConfig sets the run configuration
func (p *Pipeline) WithRunConfig(runCfg *RunConfig) *Pipeline {
	p.runCfg = runCfg
	return p
}

// Metrics returns the metrics of the run
func (p *Pipeline) Metrics() *metrics.Metrics {
	return p.metrics
}

// Execute runs the transfer from contract resolution to inclusion
func (p *Pipeline) Execute(ctx context.Context) (*Result, error) {
	p.result = NewResult()
	p.report = collector.NewReport("paymaster-erc20-transfer")
	p.result.Report = p.report

	fmt.Fprintln(p.runCfg.Stdout)
	fmt.Fprintln(p.runCfg.Stdout, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(p.runCfg.Stdout, "║                        pmtransfer                            ║")
	fmt.Fprintln(p.runCfg.Stdout, "║          Paymaster Sponsored ERC20 Transfer (zkSync)         ║")
	fmt.Fprintln(p.runCfg.Stdout, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(p.runCfg.Stdout)

	err := p.run(ctx)

	if err != nil {
		p.result.State = StateFailed
	}
	p.result.Finalize()
	p.report.Finish(p.result.State.String(), err)

	p.metrics.RecordRun(p.result.State.String())
	p.export()
	p.pushMetrics(ctx)
	p.printFinalSummary(p.result)

	return p.result, err
}

func (p *Pipeline) run(ctx context.Context) error {
	stages := []struct {
		stage Stage
		fn    func(context.Context) error
	}{
		{StageResolve, p.resolve},
		{StageEstimate, p.estimate},
		{StageConvert, p.convert},
		{StageAuthorize, p.authorize},
		{StageSubmit, p.submit},
		{StageInclude, p.include},
	}

	for _, s := range stages {
		if s.stage == StageSubmit && p.runCfg.DryRun {
			fmt.Fprintln(p.runCfg.Stdout, "\nDry run complete - transaction signed but not sent")
			fmt.Fprintf(p.runCfg.Stdout, "  Raw: %s\n", hexutil.Encode(p.signed.RawTx))
			return nil
		}
		if err := p.runStage(ctx, s.stage, s.fn); err != nil {
			return err
		}
	}
	return nil
}

// runStage executes a pipeline stage with timing and error handling
func (p *Pipeline) runStage(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	fmt.Fprintf(p.runCfg.Stdout, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(p.runCfg.Stdout, "  Stage %d: %s\n", stage+1, stage.String())
	fmt.Fprintf(p.runCfg.Stdout, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	sr := &StageResult{
		Stage:    stage,
		Success:  err == nil,
		Duration: duration,
	}

	if err != nil {
		sr.Error = err
		sr.Message = fmt.Sprintf("Failed: %v", err)
		log.Error("Stage failed", "stage", stage, "elapsed", duration, "err", err)
	} else {
		sr.Message = fmt.Sprintf("Completed in %s", duration)
		p.result.State = stage.reached()
		log.Info("Stage completed", "stage", stage, "state", p.result.State, "elapsed", duration)
	}

	p.result.AddStageResult(sr)
	p.report.AddStage(stage.String(), duration, err)
	p.metrics.RecordStageDuration(stage.String(), duration, err)
	return err
}

// Stage 1: resolve the chain, the sender and the contracts
func (p *Pipeline) resolve(ctx context.Context) error {
	chainID, err := p.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID: %w", client.Classify(err))
	}
	if p.cfg.ChainID != 0 && p.cfg.ChainID != chainID.Uint64() {
		return fmt.Errorf("%w: configured %d, node reports %s", ErrChainMismatch, p.cfg.ChainID, chainID)
	}
	p.chainID = chainID

	sender := p.wallet.Address()
	locator := contracts.NewLocator(p.registry, p.wallet)

	tokenHandle, err := locator.Locate(contracts.TokenContract, p.cfg.Token())
	if err != nil {
		return err
	}
	p.token = contracts.NewERC20(tokenHandle)

	pmHandle, err := locator.Locate(contracts.PaymasterContract, p.cfg.Paymaster())
	if err != nil {
		return err
	}
	p.paymaster = contracts.NewPaymaster(pmHandle)

	if greeter := p.cfg.Greeter(); greeter != (common.Address{}) {
		p.greeter, err = locator.Locate(contracts.GreeterContract, greeter)
		if err != nil {
			return err
		}
	}

	amount := p.cfg.AmountValue()
	if amount == nil {
		return fmt.Errorf("%w: amount %q", config.ErrMalformed, p.cfg.Amount)
	}
	p.calldata, err = p.token.TransferCalldata(p.cfg.RecipientAddress(), amount)
	if err != nil {
		return err
	}

	p.report.ChainID = chainID
	p.report.Sender = sender
	p.report.Token = p.token.Address
	p.report.Paymaster = p.paymaster.Address
	p.report.Recipient = p.cfg.RecipientAddress()
	p.report.Amount = amount

	fmt.Fprintf(p.runCfg.Stdout, "\nConfiguration:\n")
	fmt.Fprintf(p.runCfg.Stdout, "  URL:        %s\n", p.cfg.URL)
	fmt.Fprintf(p.runCfg.Stdout, "  Chain ID:   %s\n", chainID)
	fmt.Fprintf(p.runCfg.Stdout, "  Sender:     %s\n", sender.Hex())
	fmt.Fprintf(p.runCfg.Stdout, "  Token:      %s\n", p.token.Address.Hex())
	fmt.Fprintf(p.runCfg.Stdout, "  Paymaster:  %s\n", p.paymaster.Address.Hex())
	fmt.Fprintf(p.runCfg.Stdout, "  Recipient:  %s\n", p.cfg.RecipientAddress().Hex())
	fmt.Fprintf(p.runCfg.Stdout, "  Amount:     %s\n", amount)
	if p.greeter != nil {
		fmt.Fprintf(p.runCfg.Stdout, "  Greeter:    %s\n", p.greeter.Address.Hex())
	}

	if p.cfg.RequireEmptyBalance {
		balance, err := p.client.BalanceAt(ctx, sender, nil)
		if err != nil {
			return fmt.Errorf("failed to get sender balance: %w", client.Classify(err))
		}
		if balance.Sign() != 0 {
			return fmt.Errorf("%w: %s holds %s wei", ErrNonEmptyBalance, sender.Hex(), balance)
		}
		log.Info("Sender holds no native currency", "sender", sender)
	}

	return nil
}

// Stage 2: quote gas price and limit with a placeholder allowance
func (p *Pipeline) estimate(ctx context.Context) error {
	placeholder := paymaster.NewApprovalBased(
		p.paymaster.Address,
		p.token.Address,
		p.cfg.PlaceholderAllowanceValue(),
		[]byte{},
	)
	params, err := placeholder.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode placeholder authorization: %w", err)
	}

	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get gas price: %w", client.Classify(err))
	}

	to := p.token.Address
	gasLimit, err := p.client.EstimateGasL2(ctx, &client.CallMsg{
		From:            p.wallet.Address(),
		To:              &to,
		Data:            p.calldata,
		GasPerPubdata:   new(big.Int).SetUint64(p.cfg.GasPerPubdata),
		PaymasterParams: params,
	})
	if err != nil {
		err = client.Classify(err)
		if data, ok := client.RevertData(err); ok {
			log.Debug("Estimation reverted", "data", data)
		}
		return fmt.Errorf("failed to estimate gas: %w", err)
	}

	p.result.Quote = fee.Quote{GasPrice: gasPrice, GasLimit: gasLimit}
	p.report.GasPrice = gasPrice
	p.report.GasLimit = gasLimit
	p.metrics.RecordQuote(gasPrice, gasLimit)

	fmt.Fprintf(p.runCfg.Stdout, "\nGas price: %s wei\n", gasPrice)
	fmt.Fprintf(p.runCfg.Stdout, "Gas limit: %d\n", gasLimit)
	return nil
}

// Stage 3: price the fee in the token through the paymaster's feeds
func (p *Pipeline) convert(ctx context.Context) error {
	nativeFeed, tokenFeed := p.cfg.Feeds()

	rateNative, err := p.paymaster.ReadDapi(ctx, p.client, nativeFeed)
	if err != nil {
		return fmt.Errorf("failed to read native feed: %w", client.Classify(err))
	}
	rateToken, err := p.paymaster.ReadDapi(ctx, p.client, tokenFeed)
	if err != nil {
		return fmt.Errorf("failed to read token feed: %w", client.Classify(err))
	}

	rates := fee.Rates{Native: rateNative, Token: rateToken}
	feeNative := p.result.Quote.NativeFee()
	feeToken, err := fee.ConvertQuote(p.result.Quote, rates)
	if err != nil {
		return fmt.Errorf("failed to convert fee: %w", err)
	}

	p.result.Rates = rates
	p.result.FeeNative = feeNative
	p.result.FeeToken = feeToken
	p.report.FeeNative = feeNative
	p.report.RateNative = rateNative
	p.report.RateToken = rateToken
	p.report.FeeToken = feeToken
	p.metrics.RecordFee(feeNative, rateNative, rateToken, feeToken)

	fmt.Fprintf(p.runCfg.Stdout, "\nNative rate: %s\n", rateNative)
	fmt.Fprintf(p.runCfg.Stdout, "Token rate:  %s\n", rateToken)
	fmt.Fprintf(p.runCfg.Stdout, "Fee:         %s wei = %s token units\n", feeNative, feeToken)
	return nil
}

// Stage 4: build the final authorization and sign the transfer
func (p *Pipeline) authorize(ctx context.Context) error {
	feeToken := p.result.FeeToken
	if placeholder := p.cfg.PlaceholderAllowanceValue(); !fee.Covers(placeholder, feeToken) {
		log.Warn("Final allowance exceeds the estimation placeholder, gas may be under-provisioned",
			"placeholder", placeholder, "allowance", feeToken)
	}

	auth := paymaster.NewApprovalBased(p.paymaster.Address, p.token.Address, feeToken, []byte{})
	params, err := auth.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode authorization: %w", err)
	}
	p.result.Authorization = auth
	p.report.Allowance = auth.MinimalAllowance

	sender := p.wallet.Address()
	nonce, err := p.client.PendingNonceAt(ctx, sender)
	if err != nil {
		return fmt.Errorf("failed to get nonce: %w", client.Classify(err))
	}

	builder := txbuilder.NewBuilder(&txbuilder.BuilderConfig{
		ChainID:       p.chainID,
		GasPerPubdata: new(big.Int).SetUint64(p.cfg.GasPerPubdata),
	}, p.wallet)

	p.signed, err = builder.BuildTransfer(&txbuilder.TransferRequest{
		From:      sender,
		Token:     p.token.Address,
		Calldata:  p.calldata,
		Nonce:     nonce,
		GasLimit:  p.result.Quote.GasLimit,
		GasPrice:  p.result.Quote.GasPrice,
		Paymaster: params,
	})
	if err != nil {
		return fmt.Errorf("failed to build transaction: %w", err)
	}
	p.result.RawTx = p.signed.RawTx

	fmt.Fprintf(p.runCfg.Stdout, "\nAuthorization: %s flow, allowance %s\n", auth.Flow, auth.MinimalAllowance)
	fmt.Fprintf(p.runCfg.Stdout, "Transaction:   nonce %d, %d bytes\n", nonce, len(p.signed.RawTx))
	return nil
}

// Stage 5: send the signed transaction
func (p *Pipeline) submit(ctx context.Context) error {
	hash, err := p.client.SendRawTransaction(ctx, p.signed.RawTx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubmissionRejected, err)
	}

	p.result.TxHash = hash
	p.txInfo = collector.Track(hash, p.signed.From, p.signed.Nonce, p.signed.GasLimit)
	p.report.Tx = p.txInfo

	fmt.Fprintf(p.runCfg.Stdout, "\nTransaction hash: %s\n", hash.Hex())
	return nil
}

// Stage 6: wait for the receipt
func (p *Pipeline) include(ctx context.Context) error {
	waiter := collector.New(p.client, &collector.Config{
		PollInterval:   p.cfg.PollInterval,
		ConfirmTimeout: p.cfg.Timeout,
		Output:         p.runCfg.Progress,
	})

	receipt, err := waiter.WaitMined(ctx, p.txInfo)
	if err != nil {
		return fmt.Errorf("failed waiting for %s: %w", p.txInfo.Hash.Hex(), err)
	}
	p.result.Receipt = receipt

	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: transaction %s reverted in block %s", ErrSubmissionRejected, receipt.TxHash.Hex(), receipt.BlockNumber)
	}
	p.metrics.RecordIncluded(p.txInfo.Latency, receipt.GasUsed)

	balance, err := p.token.BalanceOf(ctx, p.client, p.wallet.Address())
	if err != nil {
		log.Warn("Failed to read token balance", "err", err)
	} else {
		p.result.TokenBalance = balance
		p.report.TokenBalance = balance
	}

	fmt.Fprintf(p.runCfg.Stdout, "\nIncluded in block %s, gas used %d\n", receipt.BlockNumber, receipt.GasUsed)
	return nil
}

// export writes the run report when an output directory is configured
func (p *Pipeline) export() {
	if !p.runCfg.ExportReport || p.runCfg.OutputDir == "" {
		return
	}

	exporter := collector.NewExporter(p.runCfg.Fs, p.runCfg.OutputDir)
	files, err := exporter.ExportAll(p.report)
	if err != nil {
		log.Warn("Failed to export report", "err", err)
		return
	}

	fmt.Fprintf(p.runCfg.Stdout, "\nReports exported to:\n")
	for _, f := range files {
		fmt.Fprintf(p.runCfg.Stdout, "  - %s\n", f)
	}
}

func (p *Pipeline) pushMetrics(ctx context.Context) {
	if p.runCfg.PushGateway == "" {
		return
	}

	// the run context may already be canceled, the push still gets a short window
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := p.metrics.Push(pushCtx, p.runCfg.PushGateway, "pmtransfer"); err != nil {
		log.Warn("Failed to push metrics", "err", err)
	}
}

// Close cleans up pipeline resources
func (p *Pipeline) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
