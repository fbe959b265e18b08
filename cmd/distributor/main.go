package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/config"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "distributor",
		Usage: "Merkle token distributor",
		Description: `Builds merkle balance distributions and serves claims against them.

Offline commands turn a holder snapshot or an explicit balance map into a
distribution file, re-verify a file and print single proofs. The serve command
loads a distribution and pays each claim once from a holder balance, either
in memory or through an ERC-20 token. The claim and drain commands talk to a
running server.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable debug logging",
				EnvVars: []string{config.EnvDistributorDebug},
			},
		},
		Commands: []*cli.Command{
			buildCommand(),
			verifyCommand(),
			proofCommand(),
			serveCommand(),
			claimCommand(),
			drainCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}
