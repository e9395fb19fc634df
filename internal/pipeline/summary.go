package pipeline

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"
)

// printFinalSummary prints the final execution summary
func (p *Pipeline) printFinalSummary(result *Result) {
	out := p.runCfg.Stdout

	fmt.Fprintln(out)
	fmt.Fprintln(out, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║                      Execution Summary                       ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	stages := tablewriter.NewWriter(out)
	stages.SetHeader([]string{"#", "Stage", "Result", "Duration"})
	stages.SetBorder(true)
	for _, sr := range result.StageResults {
		status := "ok"
		if !sr.Success {
			status = "failed"
		}
		stages.Append([]string{
			fmt.Sprintf("%d", sr.Stage+1),
			sr.Stage.String(),
			status,
			sr.Duration.String(),
		})
	}
	stages.SetFooter([]string{"", "STATE", result.State.String(), result.Duration.String()})
	stages.Render()

	fmt.Fprintln(out)

	values := tablewriter.NewWriter(out)
	values.SetHeader([]string{"Field", "Value"})
	values.SetBorder(true)
	values.SetAutoWrapText(false)

	if result.Quote.GasPrice != nil {
		values.Append([]string{"Gas price (wei)", result.Quote.GasPrice.String()})
		values.Append([]string{"Gas limit", fmt.Sprintf("%d", result.Quote.GasLimit)})
	}
	if result.FeeNative != nil {
		values.Append([]string{"Fee (wei)", result.FeeNative.String()})
		values.Append([]string{"Native rate", orDash(result.Rates.Native)})
		values.Append([]string{"Token rate", orDash(result.Rates.Token)})
		values.Append([]string{"Fee (token units)", orDash(result.FeeToken)})
	}
	if result.Authorization != nil {
		values.Append([]string{"Paymaster flow", string(result.Authorization.Flow)})
		values.Append([]string{"Minimal allowance", orDash(result.Authorization.MinimalAllowance)})
	}
	if result.TxHash != (common.Hash{}) {
		values.Append([]string{"Tx hash", result.TxHash.Hex()})
	}
	if result.Receipt != nil {
		values.Append([]string{"Block", orDash(result.Receipt.BlockNumber)})
		values.Append([]string{"Gas used", fmt.Sprintf("%d", result.Receipt.GasUsed)})
	}
	if result.TokenBalance != nil {
		values.Append([]string{"Token balance", result.TokenBalance.String()})
	}
	if result.Report != nil {
		values.Append([]string{"Run ID", result.Report.RunID})
	}
	values.Render()

	if result.Success() {
		fmt.Fprintf(out, "\nTransfer finished in state %s\n", result.State)
	} else {
		fmt.Fprintln(out, "\nTransfer failed")
		for _, err := range result.Errors {
			fmt.Fprintf(out, "  - %v\n", err)
		}
	}
}

func orDash(v *big.Int) string {
	if v == nil {
		return "-"
	}
	return v.String()
}
