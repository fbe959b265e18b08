package main

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/client"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

func serverFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Distributor server URL",
		Value:   "http://localhost:8080",
	}
}

func claimCommand() *cli.Command {
	return &cli.Command{
		Name:  "claim",
		Usage: "Fetch the proof of an address from a server and submit it",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{
				Name:     "address",
				Aliases:  []string{"a"},
				Usage:    "Claiming address",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			l, err := newLogger(c)
			if err != nil {
				return err
			}
			defer func() { _ = l.Sync() }()

			if !common.IsHexAddress(c.String("address")) {
				return fmt.Errorf("invalid address %q", c.String("address"))
			}

			dc := client.NewDistributorClient(c.String("server"), l)
			resp, err := dc.ClaimFor(c.Context, common.HexToAddress(c.String("address")))
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func drainCommand() *cli.Command {
	return &cli.Command{
		Name:  "drain",
		Usage: "Move held funds to a destination with an administrator signature",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{
				Name:     "admin-key",
				Usage:    "Administrator private key (hex)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "destination",
				Usage:    "Address receiving the drained funds",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "amount",
				Usage: "Amount to drain (decimal base units); omit to drain everything",
			},
		},
		Action: func(c *cli.Context) error {
			l, err := newLogger(c)
			if err != nil {
				return err
			}
			defer func() { _ = l.Sync() }()

			key, err := crypto.HexToECDSA(strings.TrimPrefix(c.String("admin-key"), "0x"))
			if err != nil {
				return fmt.Errorf("invalid admin key: %w", err)
			}
			if !common.IsHexAddress(c.String("destination")) {
				return fmt.Errorf("invalid destination %q", c.String("destination"))
			}

			var amount *uint256.Int
			if c.IsSet("amount") {
				amount, err = types.ParseAmount(c.String("amount"))
				if err != nil {
					return fmt.Errorf("invalid amount: %w", err)
				}
			}

			dc := client.NewDistributorClient(c.String("server"), l)
			resp, err := dc.DrainNext(c.Context, key, common.HexToAddress(c.String("destination")), amount)
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}
