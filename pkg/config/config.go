package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for distributor server configuration
const (
	EnvDistributorConfigFile   = "DISTRIBUTOR_CONFIG_FILE"
	EnvDistributorPort         = "DISTRIBUTOR_PORT"
	EnvDistributionFile        = "DISTRIBUTOR_DISTRIBUTION_FILE"
	EnvDistributorAdmin        = "DISTRIBUTOR_ADMINISTRATOR"
	EnvDistributorHolder       = "DISTRIBUTOR_HOLDER"
	EnvDistributorWindowStart  = "DISTRIBUTOR_WINDOW_START"
	EnvDistributorWindowEnd    = "DISTRIBUTOR_WINDOW_END"
	EnvDistributorDebug        = "DISTRIBUTOR_DEBUG"
	EnvPersistenceType         = "DISTRIBUTOR_PERSISTENCE_TYPE"
	EnvBadgerPath              = "DISTRIBUTOR_BADGER_PATH"
	EnvRedisAddress            = "DISTRIBUTOR_REDIS_ADDRESS"
	EnvRedisPassword           = "DISTRIBUTOR_REDIS_PASSWORD"
	EnvRedisDB                 = "DISTRIBUTOR_REDIS_DB"
	EnvRedisKeyPrefix          = "DISTRIBUTOR_REDIS_KEY_PREFIX"
	EnvLedgerType              = "DISTRIBUTOR_LEDGER_TYPE"
	EnvLedgerRPCURL            = "DISTRIBUTOR_RPC_URL"
	EnvLedgerTokenAddress      = "DISTRIBUTOR_TOKEN_ADDRESS"
	EnvLedgerChainID           = "DISTRIBUTOR_CHAIN_ID"
	EnvLedgerSignerPrivateKey  = "DISTRIBUTOR_SIGNER_PRIVATE_KEY"
	EnvLedgerInitialBalance    = "DISTRIBUTOR_INITIAL_BALANCE"
	EnvClaimRateLimitPerSecond = "DISTRIBUTOR_CLAIM_RATE_LIMIT"
	EnvClaimRateLimitBurst     = "DISTRIBUTOR_CLAIM_RATE_BURST"
)

type ChainId uint

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_EthereumAnvil   ChainId = 31337
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_EthereumSepolia ChainName = "sepolia"
	ChainName_EthereumAnvil   ChainName = "devnet"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_EthereumSepolia: ChainName_EthereumSepolia,
	ChainId_EthereumAnvil:   ChainName_EthereumAnvil,
}
var ChainNameToId = map[ChainName]ChainId{
	ChainName_EthereumMainnet: ChainId_EthereumMainnet,
	ChainName_EthereumSepolia: ChainId_EthereumSepolia,
	ChainName_EthereumAnvil:   ChainId_EthereumAnvil,
}

// IsEthereum reports whether the chain is an Ethereum L1 network (including a local fork of one)
func IsEthereum(chainId ChainId) bool {
	_, ok := ChainIdToName[chainId]
	return ok
}

// GetSupportedChainIDsString returns supported chain IDs as strings for CLI help
func GetSupportedChainIDsString() string {
	return fmt.Sprintf("%d (mainnet), %d (sepolia), %d (anvil)",
		ChainId_EthereumMainnet, ChainId_EthereumSepolia, ChainId_EthereumAnvil)
}

type PersistenceType string

const (
	PersistenceType_Memory PersistenceType = "memory"
	PersistenceType_Badger PersistenceType = "badger"
	PersistenceType_Redis  PersistenceType = "redis"
)

type LedgerType string

const (
	LedgerType_Memory LedgerType = "memory"
	LedgerType_ERC20  LedgerType = "erc20"
)

type RedisConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

// PersistenceConfig selects where claim state is kept
type PersistenceConfig struct {
	Type       PersistenceType `json:"type" yaml:"type"`
	BadgerPath string          `json:"badgerPath" yaml:"badgerPath"`
	Redis      RedisConfig     `json:"redis" yaml:"redis"`
}

func (pc *PersistenceConfig) Validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	switch pc.Type {
	case PersistenceType_Memory:
	case PersistenceType_Badger:
		if pc.BadgerPath == "" {
			allErrors = append(allErrors, field.Required(path.Child("badgerPath"), "badgerPath is required for badger persistence"))
		}
	case PersistenceType_Redis:
		if pc.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(path.Child("redis", "address"), "redis address is required for redis persistence"))
		}
		if pc.Redis.DB < 0 || pc.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(path.Child("redis", "db"), pc.Redis.DB, "must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), pc.Type,
			[]string{string(PersistenceType_Memory), string(PersistenceType_Badger), string(PersistenceType_Redis)}))
	}
	return allErrors
}

// LedgerConfig selects how claimed funds are moved
type LedgerConfig struct {
	Type LedgerType `json:"type" yaml:"type"`

	// InitialBalance is the decimal balance minted to the holder of a memory ledger
	InitialBalance string `json:"initialBalance" yaml:"initialBalance"`

	RpcUrl           string  `json:"rpcUrl" yaml:"rpcUrl"`
	TokenAddress     string  `json:"tokenAddress" yaml:"tokenAddress"`
	ChainID          ChainId `json:"chainId" yaml:"chainId"`
	SignerPrivateKey string  `json:"signerPrivateKey" yaml:"signerPrivateKey"`
}

func (lc *LedgerConfig) Validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	switch lc.Type {
	case LedgerType_Memory:
	case LedgerType_ERC20:
		if lc.RpcUrl == "" {
			allErrors = append(allErrors, field.Required(path.Child("rpcUrl"), "rpcUrl is required for the erc20 ledger"))
		}
		if !common.IsHexAddress(lc.TokenAddress) {
			allErrors = append(allErrors, field.Invalid(path.Child("tokenAddress"), lc.TokenAddress, "must be a hex address"))
		}
		if _, ok := ChainIdToName[lc.ChainID]; !ok {
			allErrors = append(allErrors, field.Invalid(path.Child("chainId"), lc.ChainID,
				fmt.Sprintf("unsupported chain ID. Supported: %s", GetSupportedChainIDsString())))
		}
		key := strings.TrimPrefix(lc.SignerPrivateKey, "0x")
		if len(key) != 64 {
			allErrors = append(allErrors, field.Invalid(path.Child("signerPrivateKey"), "<redacted>",
				fmt.Sprintf("must be 32 bytes (64 hex chars), got %d chars", len(key))))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), lc.Type,
			[]string{string(LedgerType_Memory), string(LedgerType_ERC20)}))
	}
	return allErrors
}

// RateLimitConfig bounds POST /claim. PerSecond <= 0 disables the limit.
type RateLimitConfig struct {
	PerSecond float64 `json:"perSecond" yaml:"perSecond"`
	Burst     int     `json:"burst" yaml:"burst"`
}

// DistributorConfig represents the complete configuration for a distributor server
type DistributorConfig struct {
	Port             int    `json:"port" yaml:"port"`
	DistributionFile string `json:"distributionFile" yaml:"distributionFile"`

	// Administrator is the only address allowed to drain the holder
	Administrator string `json:"administrator" yaml:"administrator"`

	// Holder owns the undistributed funds. Required for the memory ledger;
	// the erc20 ledger always holds at the signer address.
	Holder string `json:"holder" yaml:"holder"`

	// Claim window as Unix seconds. WindowEnd 0 leaves the window open-ended.
	WindowStart int64 `json:"windowStart" yaml:"windowStart"`
	WindowEnd   int64 `json:"windowEnd" yaml:"windowEnd"`

	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`
	Ledger      LedgerConfig      `json:"ledger" yaml:"ledger"`
	RateLimit   RateLimitConfig   `json:"rateLimit" yaml:"rateLimit"`

	Debug bool `json:"debug" yaml:"debug"`
}

// DefaultDistributorConfig returns a config that runs entirely in memory
func DefaultDistributorConfig() *DistributorConfig {
	return &DistributorConfig{
		Port: 8080,
		Persistence: PersistenceConfig{
			Type: PersistenceType_Memory,
		},
		Ledger: LedgerConfig{
			Type:    LedgerType_Memory,
			ChainID: ChainId_EthereumAnvil,
		},
		RateLimit: RateLimitConfig{
			PerSecond: 20,
			Burst:     40,
		},
	}
}

// LoadConfigFile reads a YAML config file on top of the defaults
func LoadConfigFile(path string) (*DistributorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultDistributorConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate validates the distributor configuration
func (c *DistributorConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "must be between 1-65535"))
	}
	if c.DistributionFile == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("distributionFile"), "distributionFile is required"))
	}
	if !common.IsHexAddress(c.Administrator) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("administrator"), c.Administrator, "must be a hex address"))
	} else if common.HexToAddress(c.Administrator) == (common.Address{}) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("administrator"), c.Administrator, "must not be the zero address"))
	}
	if c.Ledger.Type == LedgerType_Memory && !common.IsHexAddress(c.Holder) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("holder"), c.Holder, "must be a hex address for the memory ledger"))
	}
	if c.WindowStart < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("windowStart"), c.WindowStart, "must not be negative"))
	}
	if c.WindowEnd != 0 && c.WindowEnd < c.WindowStart {
		allErrors = append(allErrors, field.Invalid(field.NewPath("windowEnd"), c.WindowEnd, "must not be before windowStart"))
	}
	if c.RateLimit.PerSecond > 0 && c.RateLimit.Burst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimit", "burst"), c.RateLimit.Burst, "must be at least 1 when rate limiting is enabled"))
	}

	allErrors = append(allErrors, c.Persistence.Validate(field.NewPath("persistence"))...)
	allErrors = append(allErrors, c.Ledger.Validate(field.NewPath("ledger"))...)

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// WindowStartTime returns the start of the claim window
func (c *DistributorConfig) WindowStartTime() time.Time {
	return time.Unix(c.WindowStart, 0)
}

// WindowEndTime returns the end of the claim window. An open-ended window
// ends far enough in the future to never elapse.
func (c *DistributorConfig) WindowEndTime() time.Time {
	if c.WindowEnd == 0 {
		return time.Unix(math.MaxInt64/2, 0)
	}
	return time.Unix(c.WindowEnd, 0)
}
