package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/jmerrifield20/SovereignLedger/pkg/client"
)

func init() {
	rootCmd.AddCommand(mintCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(setBaseURICmd)
	rootCmd.AddCommand(setContractURICmd)

	batchCmd.Flags().StringVar(&batchFile, "file", "", "CSV file of address,amount rows (- for stdin)")
	_ = batchCmd.MarkFlagRequired("file")
}

// explain adds a hint for the errors an owner is likely to hit.
func explain(op string, err error) error {
	switch {
	case errors.Is(err, client.ErrUnauthenticated):
		return fmt.Errorf("%s: %w (run 'mintctl login' first)", op, err)
	case errors.Is(err, client.ErrUnauthorized):
		return fmt.Errorf("%s: %w (the logged-in address is not the ledger owner)", op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func printReceipt(r *client.Receipt) error {
	if outputJSON {
		latched := make([]string, len(r.Latched))
		for i, a := range r.Latched {
			latched[i] = a.Hex()
		}
		return printJSON(map[string]any{
			"timestamp":    r.Timestamp,
			"amount":       r.Amount,
			"total_minted": r.TotalMinted,
			"latched":      latched,
		})
	}
	fmt.Printf("✓ Minted %d units (total %d)\n", r.Amount, r.TotalMinted)
	for _, a := range r.Latched {
		fmt.Printf("  proof latched: %s @ %d\n", a.Hex(), r.Timestamp)
	}
	return nil
}

// ── mint ─────────────────────────────────────────────────────────────────────

var mintCmd = &cobra.Command{
	Use:   "mint <address> <amount>",
	Short: "Mint units of the sovereign token to one address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, err := parseAddressArg(args[0])
		if err != nil {
			return err
		}
		amount, err := uint256.FromDecimal(args[1])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		r, err := c.Mint(context.Background(), to, amount)
		if err != nil {
			return explain("mint", err)
		}
		return printReceipt(r)
	},
}

// ── batch ────────────────────────────────────────────────────────────────────

var batchFile string

var batchCmd = &cobra.Command{
	Use:   "batch --file recipients.csv",
	Short: "Mint to many addresses in one atomic batch",
	Long: `batch reads address,amount rows from a CSV file and submits them as a
single batch mint. Either every row is credited or none is. Blank lines and
lines starting with # are ignored, as is a leading "address,amount" header.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = os.Stdin
		if batchFile != "-" {
			f, err := os.Open(batchFile)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		recipients, amounts, err := readBatch(in)
		if err != nil {
			return err
		}
		if len(recipients) == 0 {
			return errors.New("batch file has no rows")
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		r, err := c.MintBatch(context.Background(), recipients, amounts)
		if err != nil {
			return explain("batch mint", err)
		}
		return printReceipt(r)
	},
}

// readBatch parses address,amount rows.
func readBatch(in io.Reader) ([]common.Address, []*uint256.Int, error) {
	r := csv.NewReader(in)
	r.Comment = '#'
	r.FieldsPerRecord = 2
	r.TrimLeadingSpace = true

	var (
		recipients []common.Address
		amounts    []*uint256.Int
	)
	for row := 1; ; row++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read batch: %w", err)
		}
		addr, amt := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1])
		if row == 1 && strings.EqualFold(addr, "address") {
			continue
		}
		if !common.IsHexAddress(addr) {
			return nil, nil, fmt.Errorf("row %d: invalid address %q", row, addr)
		}
		v, err := uint256.FromDecimal(amt)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: invalid amount %q: %w", row, amt, err)
		}
		recipients = append(recipients, common.HexToAddress(addr))
		amounts = append(amounts, v)
	}
	return recipients, amounts, nil
}

// ── enable / disable ─────────────────────────────────────────────────────────

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable minting",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, args []string) error { return setMinting(true) },
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable minting",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, args []string) error { return setMinting(false) },
}

func setMinting(enabled bool) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.SetMintingEnabled(context.Background(), enabled); err != nil {
		return explain("set minting", err)
	}
	if enabled {
		fmt.Println("✓ Minting enabled")
	} else {
		fmt.Println("✓ Minting disabled")
	}
	return nil
}

// ── metadata ─────────────────────────────────────────────────────────────────

var setBaseURICmd = &cobra.Command{
	Use:   "set-base-uri <uri>",
	Short: "Replace the token metadata base URI",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.SetBaseURI(context.Background(), args[0]); err != nil {
			return explain("set base uri", err)
		}
		fmt.Printf("✓ Base URI set to %q\n", args[0])
		return nil
	},
}

var setContractURICmd = &cobra.Command{
	Use:   "set-contract-uri <uri>",
	Short: "Replace the contract metadata URI",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.SetContractURI(context.Background(), args[0]); err != nil {
			return explain("set contract uri", err)
		}
		fmt.Printf("✓ Contract URI set to %q\n", args[0])
		return nil
	},
}
