package collector

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/big"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// ExportFormat represents the export format
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

// Exporter handles report export functionality
type Exporter struct {
	fs        afero.Fs
	outputDir string
}

// NewExporter creates a new Exporter writing under outputDir on fs
func NewExporter(fs afero.Fs, outputDir string) *Exporter {
	return &Exporter{
		fs:        fs,
		outputDir: outputDir,
	}
}

// Export exports the report to the specified format
func (e *Exporter) Export(report *Report, format ExportFormat) (string, error) {
	if err := e.fs.MkdirAll(e.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	base := fmt.Sprintf("run_%s_%s", report.StartTime.Format("20060102_150405"), shortID(report.RunID))

	switch format {
	case FormatJSON:
		return e.exportJSON(report, base)
	case FormatCSV:
		return e.exportCSV(report, base)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// ExportAll exports the report in all formats
func (e *Exporter) ExportAll(report *Report) ([]string, error) {
	files := make([]string, 0, 2)

	jsonFile, err := e.Export(report, FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to export JSON: %w", err)
	}
	files = append(files, jsonFile)

	csvFile, err := e.Export(report, FormatCSV)
	if err != nil {
		return nil, fmt.Errorf("failed to export CSV: %w", err)
	}
	files = append(files, csvFile)

	return files, nil
}

// JSONReport is a JSON-serializable version of Report
type JSONReport struct {
	RunID     string      `json:"run_id"`
	Name      string      `json:"name"`
	StartTime string      `json:"start_time"`
	EndTime   string      `json:"end_time"`
	Duration  string      `json:"duration"`
	State     string      `json:"state"`
	Error     string      `json:"error,omitempty"`
	Accounts  JSONAccount `json:"accounts"`
	Fee       JSONFee     `json:"fee"`
	Stages    []JSONStage `json:"stages"`
	Tx        *JSONTx     `json:"tx,omitempty"`
}

// JSONAccount lists the addresses involved in the run
type JSONAccount struct {
	ChainID   string `json:"chain_id,omitempty"`
	Sender    string `json:"sender"`
	Token     string `json:"token"`
	Paymaster string `json:"paymaster"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount,omitempty"`
}

// JSONFee is the fee quote and its conversion
type JSONFee struct {
	GasPrice     string `json:"gas_price,omitempty"`
	GasLimit     uint64 `json:"gas_limit,omitempty"`
	Native       string `json:"native,omitempty"`
	RateNative   string `json:"rate_native,omitempty"`
	RateToken    string `json:"rate_token,omitempty"`
	Token        string `json:"token,omitempty"`
	Allowance    string `json:"allowance,omitempty"`
	TokenBalance string `json:"token_balance,omitempty"`
}

// JSONStage is a JSON-serializable stage timing
type JSONStage struct {
	Name     string `json:"name"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

// JSONTx is a JSON-serializable transaction outcome
type JSONTx struct {
	Hash        string `json:"hash"`
	Nonce       uint64 `json:"nonce"`
	Status      string `json:"status"`
	SentAt      string `json:"sent_at"`
	ConfirmedAt string `json:"confirmed_at,omitempty"`
	Latency     string `json:"latency,omitempty"`
	Block       string `json:"block,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
}

func (e *Exporter) exportJSON(report *Report, base string) (string, error) {
	filename := filepath.Join(e.outputDir, base+".json")

	data, err := json.MarshalIndent(e.createJSONReport(report), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := afero.WriteFile(e.fs, filename, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	return filename, nil
}

func (e *Exporter) createJSONReport(report *Report) *JSONReport {
	jr := &JSONReport{
		RunID:     report.RunID,
		Name:      report.Name,
		StartTime: report.StartTime.Format(time.RFC3339),
		EndTime:   report.EndTime.Format(time.RFC3339),
		Duration:  report.Duration.String(),
		State:     report.FinalState,
		Error:     report.Error,
		Accounts: JSONAccount{
			ChainID:   bigString(report.ChainID),
			Sender:    report.Sender.Hex(),
			Token:     report.Token.Hex(),
			Paymaster: report.Paymaster.Hex(),
			Recipient: report.Recipient.Hex(),
			Amount:    bigString(report.Amount),
		},
		Fee: JSONFee{
			GasPrice:     bigString(report.GasPrice),
			GasLimit:     report.GasLimit,
			Native:       bigString(report.FeeNative),
			RateNative:   bigString(report.RateNative),
			RateToken:    bigString(report.RateToken),
			Token:        bigString(report.FeeToken),
			Allowance:    bigString(report.Allowance),
			TokenBalance: bigString(report.TokenBalance),
		},
		Stages: make([]JSONStage, 0, len(report.Stages)),
	}

	for _, st := range report.Stages {
		jr.Stages = append(jr.Stages, JSONStage{
			Name:     st.Name,
			Duration: st.Duration.String(),
			Error:    st.Error,
		})
	}

	if tx := report.Tx; tx != nil {
		jt := &JSONTx{
			Hash:   tx.Hash.Hex(),
			Nonce:  tx.Nonce,
			Status: tx.Status.String(),
			SentAt: tx.SentAt.Format(time.RFC3339Nano),
		}
		if !tx.ConfirmedAt.IsZero() {
			jt.ConfirmedAt = tx.ConfirmedAt.Format(time.RFC3339Nano)
			jt.Latency = tx.Latency.String()
		}
		if tx.Receipt != nil {
			jt.Block = bigString(tx.Receipt.BlockNumber)
			jt.GasUsed = tx.Receipt.GasUsed
		}
		jr.Tx = jt
	}

	return jr
}

// exportCSV writes the stage timings as CSV
func (e *Exporter) exportCSV(report *Report, base string) (string, error) {
	filename := filepath.Join(e.outputDir, base+"_stages.csv")

	file, err := e.fs.Create(filename)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"RunID", "Stage", "Duration", "Error"}); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}
	for _, st := range report.Stages {
		record := []string{report.RunID, st.Name, st.Duration.String(), st.Error}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("failed to write record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}

	return filename, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
