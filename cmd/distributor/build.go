package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/allocation"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/distribution"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/snapshot"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

func buildCommand() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Build a distribution file from a snapshot or a balance map",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "snapshot",
				Usage: "Holder snapshot JSON; amounts are allocated in proportion to balances",
			},
			&cli.StringFlag{
				Name:  "balances",
				Usage: "JSON object mapping address to decimal amount",
			},
			&cli.StringFlag{
				Name:     "total",
				Usage:    "Total token amount (decimal base units)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"o"},
				Usage:    "Output distribution file",
				Required: true,
			},
		},
		Action: runBuild,
	}
}

func runBuild(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	total, ok := new(big.Int).SetString(c.String("total"), 10)
	if !ok {
		return fmt.Errorf("total %q is not a decimal integer", c.String("total"))
	}

	var balances map[string]*big.Int
	switch {
	case c.IsSet("snapshot") && c.IsSet("balances"):
		return fmt.Errorf("--snapshot and --balances are mutually exclusive")
	case c.IsSet("snapshot"):
		snap, err := snapshot.ReadSnapshotFile(c.String("snapshot"))
		if err != nil {
			return err
		}
		balances, err = snap.Allocate(total)
		if err != nil {
			return fmt.Errorf("failed to allocate snapshot %q: %w", snap.Name, err)
		}
		l.Sugar().Infow("Allocated snapshot",
			"name", snap.Name,
			"holders", len(snap.Holders),
			"dust", allocation.Dust(total, balances).String(),
		)
	case c.IsSet("balances"):
		balances, err = readBalancesFile(c.String("balances"))
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("one of --snapshot or --balances is required")
	}

	d, err := distribution.Build(total, balances)
	if err != nil {
		return fmt.Errorf("failed to build distribution: %w", err)
	}
	if err := distribution.WriteDistributionFile(c.String("out"), d); err != nil {
		return err
	}

	l.Sugar().Infow("Distribution written",
		"root", persistence.RootKey(d.Root),
		"claims", len(d.Claims),
		"allocated", d.AllocatedTotal().Dec(),
		"tokenTotal", d.TokenTotal.Dec(),
		"out", c.String("out"),
	)
	return nil
}

func readBalancesFile(path string) (map[string]*big.Int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read balances file: %w", err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse balances file: %w", err)
	}
	balances := make(map[string]*big.Int, len(raw))
	for address, amount := range raw {
		v, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, fmt.Errorf("amount %q for %s is not a decimal integer", amount, address)
		}
		balances[address] = v
	}
	return balances, nil
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Check that a distribution file reproduces its root and proofs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "distribution",
				Aliases:  []string{"d"},
				Usage:    "Distribution file",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			d, err := distribution.ReadDistributionFile(c.String("distribution"))
			if err != nil {
				return err
			}
			if err := distribution.Verify(d); err != nil {
				return err
			}
			fmt.Printf("OK %s (%d claims, %s of %s allocated)\n",
				persistence.RootKey(d.Root), len(d.Claims), d.AllocatedTotal().Dec(), d.TokenTotal.Dec())
			return nil
		},
	}
}

func proofCommand() *cli.Command {
	return &cli.Command{
		Name:  "proof",
		Usage: "Print the claim record of one address",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "distribution",
				Aliases:  []string{"d"},
				Usage:    "Distribution file",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "address",
				Aliases:  []string{"a"},
				Usage:    "Claiming address",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if !common.IsHexAddress(c.String("address")) {
				return fmt.Errorf("invalid address %q", c.String("address"))
			}
			d, err := distribution.ReadDistributionFile(c.String("distribution"))
			if err != nil {
				return err
			}
			claim, ok := d.ClaimFor(common.HexToAddress(c.String("address")))
			if !ok {
				return fmt.Errorf("no claim for %s", c.String("address"))
			}
			return printJSON(types.NewClaimRecord(claim))
		},
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
