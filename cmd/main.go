package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/0xmhha/pmtransfer/internal/config"
	"github.com/0xmhha/pmtransfer/internal/pipeline"
)

var version = "dev"

// legacyEnv maps config keys to the variable names the deploy scripts export
var legacyEnv = map[string]string{
	"paymaster":   "PAYMASTER_ADDRESS",
	"recipient":   "EMPTY_WALLET_ADDRESS",
	"amount":      "VALUE_TO_SEND",
	"token":       "TOKEN_ADDRESS",
	"private-key": "EMPTY_WALLET_PRIVATE_KEY",
}

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pmtransfer",
		Short: "Paymaster sponsored ERC20 transfer for zkSync Era",
		Long: `pmtransfer sends an ERC20 transfer from an account holding no native currency.
The fee is quoted, converted to token units through the paymaster's price feeds
and paid by the paymaster in exchange for a token allowance.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			port, _ := cmd.Flags().GetInt("metrics-port")
			return run(cmd.Context(), cfg, port)
		},
	}

	registerFlags(cmd)
	return cmd
}

func registerFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	// Connection and sender
	flags.String("url", config.DefaultURL, "zkSync RPC endpoint URL")
	flags.Uint64("chain-id", 0, "Expected chain ID (auto-detect if not specified)")
	flags.String("private-key", "", "Sender private key (hex)")
	flags.String("mnemonic", "", "BIP39 mnemonic (alternative to private-key)")
	flags.Uint32("account-index", 0, "Account index for mnemonic derivation")

	// Contracts
	flags.String("paymaster", "", "Paymaster contract address")
	flags.String("token", "", "ERC20 token contract address")
	flags.String("greeter", "", "Greeter contract address (optional)")
	flags.String("artifacts", "", "Directory of compiled contract artifacts")

	// Transfer
	flags.String("recipient", "", "Transfer recipient address")
	flags.String("amount", "", "Amount to transfer in token base units")

	// Fee conversion
	flags.String("native-feed", config.DefaultNativeFeed, "dAPI proxy of the native currency price")
	flags.String("token-feed", config.DefaultTokenFeed, "dAPI proxy of the token price")
	flags.String("placeholder-allowance", config.DefaultPlaceholderAllowance, "Allowance used while estimating gas")
	flags.Uint64("gas-per-pubdata", config.DefaultGasPerPubdata, "Gas per pubdata byte limit")

	// Run behavior
	flags.Bool("require-empty-balance", false, "Abort unless the sender holds no native currency")
	flags.Bool("dry-run", false, "Sign the transaction but don't send it")
	flags.Duration("timeout", 0, "Maximum time to wait for inclusion (0 = wait until included)")
	flags.Duration("poll-interval", config.DefaultPollInterval, "Receipt polling interval")

	// Output
	flags.String("output-dir", "", "Directory for JSON/CSV run reports (empty disables export)")
	flags.Bool("verbose", false, "Enable verbose logging")
	flags.String("pushgateway", "", "Prometheus Pushgateway URL")
	flags.Int("metrics-port", 0, "Serve Prometheus metrics on this port during the run (0 = disabled)")
	flags.String("env-file", ".env", "Optional dotenv file with configuration variables")
}

// loadConfig resolves flags, PMT_* variables, the legacy variable names and
// the dotenv file into a validated Config. Explicit flags win over the
// environment and the environment over flag defaults.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	v.SetEnvPrefix("PMT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, name := range legacyEnv {
		envName := "PMT_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		if err := v.BindEnv(key, envName, name); err != nil {
			return nil, err
		}
	}

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadEnvFile exports the variables of a dotenv file that are not already set
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}

	dotenv := viper.New()
	dotenv.SetConfigFile(path)
	dotenv.SetConfigType("env")
	if err := dotenv.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	for _, key := range dotenv.AllKeys() {
		name := strings.ToUpper(key)
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if err := os.Setenv(name, dotenv.GetString(key)); err != nil {
			return err
		}
	}
	return nil
}

func setupLogging(verbose bool) {
	level := log.LevelInfo
	if verbose {
		level = log.LevelDebug
	}
	useColor := false
	if fi, err := os.Stderr.Stat(); err == nil {
		useColor = fi.Mode()&os.ModeCharDevice != 0
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, useColor)))
}

func run(parent context.Context, cfg *config.Config, metricsPort int) error {
	setupLogging(cfg.Verbose)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()

	if metricsPort > 0 {
		if err := p.Metrics().Start(ctx, metricsPort); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := p.Metrics().Stop(shutdownCtx); err != nil {
				log.Warn("Failed to stop metrics server", "err", err)
			}
		}()
		log.Info("Metrics endpoint enabled", "port", metricsPort)
	}

	result, err := p.Execute(ctx)
	if err != nil {
		return fmt.Errorf("transfer failed in state %s: %w", result.State, err)
	}
	if !result.Success() {
		return errors.New("transfer completed with errors")
	}
	return nil
}
