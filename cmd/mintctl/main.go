package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmerrifield20/SovereignLedger/pkg/client"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

const defaultLedgerURL = "http://localhost:8080"

var (
	ledgerURL  string
	cfgFile    string
	outputJSON bool
	timeout    time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mintctl",
	Short: "Sovereign Ledger CLI",
	Long: `mintctl is the command-line interface for a Sovereign Ledger server.

It reads supply progress and sovereign proofs, and lets the ledger owner
mint, toggle minting and update metadata URIs.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(configDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("mintctl")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if ledgerURL == "" {
			ledgerURL = viper.GetString("ledger_url")
		}
		if ledgerURL == "" {
			ledgerURL = defaultLedgerURL
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.mintctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&ledgerURL, "ledger", "", "ledger server URL (default "+defaultLedgerURL+")")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(proofCmd)
	rootCmd.AddCommand(uriCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(versionCmd)
}

// configDir returns ~/.mintctl.
func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mintctl")
}

// newClient builds a client for the configured ledger, carrying the saved
// caller token when one exists.
func newClient() (*client.Client, error) {
	opts := []client.Option{client.WithTimeout(timeout)}
	if tok := viper.GetString("token"); tok != "" {
		opts = append(opts, client.WithBearerToken(tok))
	}
	return client.New(ledgerURL, opts...)
}

func parseAddressArg(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── progress ─────────────────────────────────────────────────────────────────

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show minted, remaining and cap",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.Progress(context.Background())
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		if outputJSON {
			return printJSON(p)
		}
		fmt.Printf("Minted:    %d\n", p.Minted)
		fmt.Printf("Remaining: %d\n", p.Remaining)
		fmt.Printf("Cap:       %d\n", p.Cap)
		return nil
	},
}

// ── status ───────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the ledger owner, minting flag and metadata URIs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		s, err := c.Status(context.Background())
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		if outputJSON {
			return printJSON(s)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Owner:\t%s\n", s.Owner.Hex())
		fmt.Fprintf(w, "Minting enabled:\t%t\n", s.MintingEnabled)
		fmt.Fprintf(w, "Total minted:\t%d / %d\n", s.TotalMinted, s.Cap)
		fmt.Fprintf(w, "Token ID:\t%d\n", s.TokenID)
		fmt.Fprintf(w, "Base URI:\t%s\n", s.BaseURI)
		fmt.Fprintf(w, "Contract URI:\t%s\n", s.ContractURI)
		return w.Flush()
	},
}

// ── proof ────────────────────────────────────────────────────────────────────

var proofCmd = &cobra.Command{
	Use:   "proof <address>",
	Short: "Show the sovereign proof of an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddressArg(args[0])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.Proof(context.Background(), addr)
		if err != nil {
			return fmt.Errorf("proof: %w", err)
		}
		if outputJSON {
			return printJSON(map[string]any{
				"address":   p.Address.Hex(),
				"timestamp": p.Timestamp,
				"delta":     p.Delta,
				"balance":   p.Balance.Dec(),
				"validated": p.Validated,
			})
		}
		fmt.Printf("Address:   %s\n", p.Address.Hex())
		fmt.Printf("Validated: %t\n", p.Validated)
		if p.Validated {
			fmt.Printf("Proof:     %d (%s)\n", p.Timestamp, time.Unix(p.Timestamp, 0).UTC().Format(time.RFC3339))
		} else {
			fmt.Printf("Proof:     %d\n", p.Timestamp)
		}
		fmt.Printf("Delta:     %d\n", p.Delta)
		fmt.Printf("Balance:   %s\n", p.Balance.Dec())
		return nil
	},
}

// ── uri ──────────────────────────────────────────────────────────────────────

var uriCmd = &cobra.Command{
	Use:   "uri <token-id>",
	Short: "Print the metadata URI of a token id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid token id %q", args[0])
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		u, err := c.TokenURI(context.Background(), id)
		if err != nil {
			return fmt.Errorf("uri: %w", err)
		}
		fmt.Println(u)
		return nil
	},
}

// ── balance ──────────────────────────────────────────────────────────────────

var balanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "Print the token balance of an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddressArg(args[0])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		bal, err := c.Balance(context.Background(), addr)
		if err != nil {
			return fmt.Errorf("balance: %w", err)
		}
		fmt.Println(bal.Dec())
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mintctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mintctl %s (Sovereign Ledger)\n", version)
	},
}
