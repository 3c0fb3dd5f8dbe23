package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmerrifield20/SovereignLedger/internal/identity"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(auditCmd)

	tokenCmd.AddCommand(tokenIssueCmd)
	keyCmd.AddCommand(keyHashCmd)
	auditCmd.AddCommand(auditVerifyCmd)

	loginCmd.Flags().StringVar(&loginKey, "api-key", "", "API key (prompted when empty)")

	tokenIssueCmd.Flags().StringVar(&issueSecret, "secret", "", "token signing secret (default $MINTCTL_TOKEN_SECRET)")
	tokenIssueCmd.Flags().StringVar(&issueIssuer, "issuer", "sovereign-ledger", "token issuer; must match auth.token_issuer")
	tokenIssueCmd.Flags().DurationVar(&issueTTL, "ttl", time.Hour, "token lifetime")
}

// readSecret reads one line from stdin.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// ── login ────────────────────────────────────────────────────────────────────

var loginKey string

var loginCmd = &cobra.Command{
	Use:   "login <address>",
	Short: "Exchange an API key for a caller token and save it",
	Long: `login sends the address and API key to POST /api/v1/auth/token and
stores the returned token in ~/.mintctl/config.yaml together with the ledger
URL. Later commands send it as a bearer token.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddressArg(args[0])
		if err != nil {
			return err
		}
		key := loginKey
		if key == "" {
			if key, err = readSecret("API key: "); err != nil {
				return err
			}
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		tok, err := c.IssueToken(context.Background(), addr, key)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}

		viper.Set("ledger_url", ledgerURL)
		viper.Set("token", tok.Token)
		path := viper.ConfigFileUsed()
		if path == "" {
			if err := os.MkdirAll(configDir(), 0o700); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			path = filepath.Join(configDir(), "config.yaml")
		}
		if err := viper.WriteConfigAs(path); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("restrict config permissions: %w", err)
		}

		fmt.Printf("✓ Logged in as %s\n", addr.Hex())
		fmt.Printf("  Token expires %s\n", tok.ExpiresAt.Local().Format(time.RFC1123))
		return nil
	},
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	issueSecret string
	issueIssuer string
	issueTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Work with caller tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <address>",
	Short: "Sign a caller token locally with the server's token secret",
	Long: `issue signs a caller token without contacting the server. It needs the
same secret and issuer ledgerd is configured with, so it is meant for
operators bootstrapping the owner before any API key exists.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddressArg(args[0])
		if err != nil {
			return err
		}
		secret := issueSecret
		if secret == "" {
			secret = viper.GetString("token_secret")
		}
		if secret == "" {
			return errors.New("no signing secret: pass --secret or set MINTCTL_TOKEN_SECRET")
		}

		issuer, err := identity.NewTokenIssuer([]byte(secret), issueIssuer, issueTTL)
		if err != nil {
			return err
		}
		tok, err := issuer.Issue(addr)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Println(tok)
		return nil
	},
}

// ── key ──────────────────────────────────────────────────────────────────────

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage API keys",
}

var keyHashCmd = &cobra.Command{
	Use:   "hash [api-key]",
	Short: "Print the bcrypt hash of an API key for auth.api_keys",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			var err error
			if key, err = readSecret("API key: "); err != nil {
				return err
			}
		}
		if key == "" {
			return errors.New("API key must not be empty")
		}
		hash, err := identity.HashKey(key)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

// ── audit ────────────────────────────────────────────────────────────────────

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the ledger audit log",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Ask the server to verify the audit hash chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx := context.Background()

		overview, err := c.AuditOverview(ctx)
		if err != nil {
			return fmt.Errorf("audit overview: %w", err)
		}
		valid, reason, err := c.AuditVerify(ctx)
		if err != nil {
			return fmt.Errorf("audit verify: %w", err)
		}
		if outputJSON {
			return printJSON(map[string]any{
				"entries": overview.Entries,
				"root":    overview.Root,
				"valid":   valid,
				"error":   reason,
			})
		}

		fmt.Printf("Entries: %d\n", overview.Entries)
		fmt.Printf("Root:    %s\n", overview.Root)
		if !valid {
			return fmt.Errorf("audit chain is invalid: %s", reason)
		}
		fmt.Println("✓ Audit chain verified")
		return nil
	},
}
