package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/claims"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/config"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/distribution"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/ledger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/ledger/erc20"
	memoryLedger "github.com/Layr-Labs/merkle-distributor-go/pkg/ledger/memory"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/logger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence/badger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence/memory"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence/redis"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/server"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/transactionSigner"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve claims against a distribution",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file; flags override its values",
				EnvVars: []string{config.EnvDistributorConfigFile},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8080,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvDistributorPort},
			},
			&cli.StringFlag{
				Name:    "distribution",
				Aliases: []string{"d"},
				Usage:   "Distribution file to serve",
				EnvVars: []string{config.EnvDistributionFile},
			},
			&cli.StringFlag{
				Name:    "administrator",
				Aliases: []string{"admin"},
				Usage:   "Address allowed to drain the holder",
				EnvVars: []string{config.EnvDistributorAdmin},
			},
			&cli.StringFlag{
				Name:    "holder",
				Usage:   "Holder address of the memory ledger",
				EnvVars: []string{config.EnvDistributorHolder},
			},
			&cli.Int64Flag{
				Name:    "window-start",
				Usage:   "Claim window start (unix seconds)",
				EnvVars: []string{config.EnvDistributorWindowStart},
			},
			&cli.Int64Flag{
				Name:    "window-end",
				Usage:   "Claim window end (unix seconds, 0 for open-ended)",
				EnvVars: []string{config.EnvDistributorWindowEnd},
			},
			&cli.StringFlag{
				Name:    "persistence",
				Usage:   "Claim state backend: memory, badger or redis",
				Value:   string(config.PersistenceType_Memory),
				EnvVars: []string{config.EnvPersistenceType},
			},
			&cli.StringFlag{
				Name:    "badger-path",
				Usage:   "Badger data directory",
				EnvVars: []string{config.EnvBadgerPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis host:port",
				EnvVars: []string{config.EnvRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix for every redis key",
				EnvVars: []string{config.EnvRedisKeyPrefix},
			},
			&cli.StringFlag{
				Name:    "ledger",
				Usage:   "Funds transfer: memory or erc20",
				Value:   string(config.LedgerType_Memory),
				EnvVars: []string{config.EnvLedgerType},
			},
			&cli.StringFlag{
				Name:    "initial-balance",
				Usage:   "Balance minted to the memory ledger holder (defaults to the distribution token total)",
				EnvVars: []string{config.EnvLedgerInitialBalance},
			},
			&cli.StringFlag{
				Name:    "rpc-url",
				Aliases: []string{"rpc"},
				Usage:   "Ethereum RPC endpoint URL",
				Value:   "http://localhost:8545",
				EnvVars: []string{config.EnvLedgerRPCURL},
			},
			&cli.StringFlag{
				Name:    "token-address",
				Usage:   "ERC-20 token address",
				EnvVars: []string{config.EnvLedgerTokenAddress},
			},
			&cli.Uint64Flag{
				Name:    "chain-id",
				Aliases: []string{"chain"},
				Usage:   fmt.Sprintf("Ethereum chain ID: %s", config.GetSupportedChainIDsString()),
				Value:   uint64(config.ChainId_EthereumAnvil),
				EnvVars: []string{config.EnvLedgerChainID},
			},
			&cli.StringFlag{
				Name:    "signer-private-key",
				Usage:   "Hex private key of the token holder",
				EnvVars: []string{config.EnvLedgerSignerPrivateKey},
			},
			&cli.Float64Flag{
				Name:    "claim-rate-limit",
				Usage:   "Claims per second accepted (0 disables)",
				Value:   20,
				EnvVars: []string{config.EnvClaimRateLimitPerSecond},
			},
			&cli.IntFlag{
				Name:    "claim-rate-burst",
				Usage:   "Claim rate limit burst",
				Value:   40,
				EnvVars: []string{config.EnvClaimRateLimitBurst},
			},
		},
		Action: runServe,
	}
}

// parseServeConfig reads the config file, if any, and applies every flag
// that was set explicitly on top of it
func parseServeConfig(c *cli.Context) (*config.DistributorConfig, error) {
	cfg := config.DefaultDistributorConfig()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("distribution") {
		cfg.DistributionFile = c.String("distribution")
	}
	if c.IsSet("administrator") {
		cfg.Administrator = c.String("administrator")
	}
	if c.IsSet("holder") {
		cfg.Holder = c.String("holder")
	}
	if c.IsSet("window-start") {
		cfg.WindowStart = c.Int64("window-start")
	}
	if c.IsSet("window-end") {
		cfg.WindowEnd = c.Int64("window-end")
	}
	if c.IsSet("persistence") {
		cfg.Persistence.Type = config.PersistenceType(c.String("persistence"))
	}
	if c.IsSet("badger-path") {
		cfg.Persistence.BadgerPath = c.String("badger-path")
	}
	if c.IsSet("redis-address") {
		cfg.Persistence.Redis.Address = c.String("redis-address")
	}
	if c.IsSet("redis-password") {
		cfg.Persistence.Redis.Password = c.String("redis-password")
	}
	if c.IsSet("redis-db") {
		cfg.Persistence.Redis.DB = c.Int("redis-db")
	}
	if c.IsSet("redis-key-prefix") {
		cfg.Persistence.Redis.KeyPrefix = c.String("redis-key-prefix")
	}
	if c.IsSet("ledger") {
		cfg.Ledger.Type = config.LedgerType(c.String("ledger"))
	}
	if c.IsSet("initial-balance") {
		cfg.Ledger.InitialBalance = c.String("initial-balance")
	}
	if c.IsSet("rpc-url") || cfg.Ledger.RpcUrl == "" {
		cfg.Ledger.RpcUrl = c.String("rpc-url")
	}
	if c.IsSet("token-address") {
		cfg.Ledger.TokenAddress = c.String("token-address")
	}
	if c.IsSet("chain-id") {
		cfg.Ledger.ChainID = config.ChainId(c.Uint64("chain-id"))
	}
	if c.IsSet("signer-private-key") {
		cfg.Ledger.SignerPrivateKey = c.String("signer-private-key")
	}
	if c.IsSet("claim-rate-limit") {
		cfg.RateLimit.PerSecond = c.Float64("claim-rate-limit")
	}
	if c.IsSet("claim-rate-burst") {
		cfg.RateLimit.Burst = c.Int("claim-rate-burst")
	}
	if c.Bool("verbose") {
		cfg.Debug = true
	}
	return cfg, nil
}

func runServe(c *cli.Context) error {
	cfg, err := parseServeConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	dist, err := distribution.ReadDistributionFile(cfg.DistributionFile)
	if err != nil {
		return err
	}
	if err := distribution.Verify(dist); err != nil {
		return fmt.Errorf("refusing to serve %s: %w", cfg.DistributionFile, err)
	}

	store, err := newPersistence(&cfg.Persistence, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Errorw("Failed to close persistence", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	funds, holder, err := newLedger(ctx, &cfg.Ledger, cfg.Holder, dist, l)
	if err != nil {
		return err
	}

	registry, err := claims.NewRegistry(&claims.RegistryConfig{
		Root:          dist.Root,
		WindowStart:   cfg.WindowStartTime(),
		WindowEnd:     cfg.WindowEndTime(),
		Administrator: common.HexToAddress(cfg.Administrator),
		Holder:        holder,
		ClaimCount:    uint64(len(dist.Claims)),
	}, store, funds, l)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(&server.Config{
		Port:               cfg.Port,
		ClaimRatePerSecond: cfg.RateLimit.PerSecond,
		ClaimBurst:         cfg.RateLimit.Burst,
	}, registry, dist, l)
	if err != nil {
		return err
	}

	l.Sugar().Infow("Starting distributor",
		"root", persistence.RootKey(dist.Root),
		"claims", len(dist.Claims),
		"port", cfg.Port,
		"persistence", cfg.Persistence.Type,
		"ledger", cfg.Ledger.Type,
	)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	<-ctx.Done()
	l.Sugar().Infow("Shutting down distributor")
	return srv.Stop()
}

func newPersistence(cfg *config.PersistenceConfig, l *zap.Logger) (persistence.IClaimPersistence, error) {
	switch cfg.Type {
	case config.PersistenceType_Badger:
		return badger.NewBadgerPersistence(cfg.BadgerPath, l)
	case config.PersistenceType_Redis:
		return redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, l)
	default:
		return memory.NewMemoryPersistence(), nil
	}
}

// newLedger returns the funds transfer and the address it pays out of
func newLedger(ctx context.Context, cfg *config.LedgerConfig, holder string, dist *types.Distribution, l *zap.Logger) (ledger.IFundsTransfer, common.Address, error) {
	if cfg.Type != config.LedgerType_ERC20 {
		holderAddress := common.HexToAddress(holder)
		balance := dist.TokenTotal
		if cfg.InitialBalance != "" {
			parsed, err := types.ParseAmount(cfg.InitialBalance)
			if err != nil {
				return nil, common.Address{}, fmt.Errorf("invalid initial balance: %w", err)
			}
			balance = parsed
		}
		book := memoryLedger.NewInMemoryLedger(holderAddress, l)
		if err := book.Mint(holderAddress, balance); err != nil {
			return nil, common.Address{}, err
		}
		return book, holderAddress, nil
	}

	client, err := ethclient.DialContext(ctx, cfg.RpcUrl)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to connect to %s: %w", cfg.RpcUrl, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to read chain ID: %w", err)
	}
	if chainID.Uint64() != uint64(cfg.ChainID) {
		return nil, common.Address{}, fmt.Errorf("RPC reports chain %s, configured chain is %d", chainID, cfg.ChainID)
	}
	l.Sugar().Infow("Using chain", "name", config.ChainIdToName[cfg.ChainID], "chain_id", cfg.ChainID)

	signer, err := transactionSigner.NewTransactionSigner(&transactionSigner.SignerConfig{
		PrivateKey: cfg.SignerPrivateKey,
	}, client, l)
	if err != nil {
		return nil, common.Address{}, err
	}
	token, err := erc20.NewTokenLedger(common.HexToAddress(cfg.TokenAddress), client, signer, l)
	if err != nil {
		return nil, common.Address{}, err
	}
	return token, token.Holder(), nil
}
